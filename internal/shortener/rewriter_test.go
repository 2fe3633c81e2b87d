package shortener

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/letterflow/letterflow/internal/models"
	"github.com/letterflow/letterflow/internal/render"
)

type fakeAPI struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
}

func (f *fakeAPI) Shorten(ctx context.Context, originalURL string) (*ShortenResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, originalURL)
	f.mu.Unlock()
	if err := f.fail[originalURL]; err != nil {
		return nil, err
	}
	return &ShortenResponse{Success: true, ShortURL: "https://s.test/" + originalURL[len(originalURL)-1:], ShortCode: "c"}, nil
}

type fakeCache struct {
	mu      sync.Mutex
	entries map[string]*models.ShortLink
	getErr  error
	putErr  error
	puts    int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[string]*models.ShortLink{}}
}

func (f *fakeCache) Get(originalURL string) (*models.ShortLink, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.entries[originalURL], nil
}

func (f *fakeCache) Put(link *models.ShortLink) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts++
	if f.putErr != nil {
		return f.putErr
	}
	f.entries[link.OriginalURL] = link
	return nil
}

func testModel() *render.Model {
	return &render.Model{
		Issue: render.IssueInfo{ID: "issue-1", Subject: "Hi"},
		Blocks: []render.Block{
			{Type: models.BlockTypeStory, Data: models.StoryData{Title: "A", Link: "https://example.com/a"}},
			{Type: models.BlockTypePromo, Data: models.PromoData{Title: "P", Link: "https://example.com/b"}},
			// Duplicate link across blocks.
			{Type: models.BlockTypeImage, Data: models.ImageData{URL: "https://cdn.test/i.png", Link: "https://example.com/a"}},
			{Type: models.BlockTypeText, Data: models.TextData{Content: "no links here"}},
		},
		Footer: &models.FooterContent{
			SocialLinks: []models.SocialLink{{Platform: "web", URL: "https://example.com/c"}},
		},
		URLs: render.URLSet{
			Unsubscribe: "https://letterflow.test/api/unsubscribe?token=t",
			WebVersion:  "https://letterflow.test/n/p/i",
		},
	}
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRewriteShortensDistinctURLs(t *testing.T) {
	api := &fakeAPI{}
	cache := newFakeCache()
	rw := NewRewriter(api, cache, discard())

	m := testModel()
	out := rw.Rewrite(context.Background(), m)

	if out == m {
		t.Fatal("expected a rewritten copy")
	}
	// Three distinct URLs across four link fields.
	if len(api.calls) != 3 {
		t.Errorf("API calls = %d, want 3", len(api.calls))
	}

	if got := out.Blocks[0].Data.(models.StoryData).Link; got != "https://s.test/a" {
		t.Errorf("story link = %q", got)
	}
	if got := out.Blocks[2].Data.(models.ImageData).Link; got != "https://s.test/a" {
		t.Errorf("image link = %q", got)
	}
	if got := out.Footer.SocialLinks[0].URL; got != "https://s.test/c" {
		t.Errorf("footer social link = %q", got)
	}

	// System URLs are never rewritten.
	if out.URLs.Unsubscribe != m.URLs.Unsubscribe {
		t.Error("unsubscribe URL must not be rewritten")
	}

	// Original model untouched.
	if m.Blocks[0].Data.(models.StoryData).Link != "https://example.com/a" {
		t.Error("original model was mutated")
	}
	if cache.puts != 3 {
		t.Errorf("cache puts = %d, want 3", cache.puts)
	}
}

func TestRewriteAnyFailureKeepsOriginal(t *testing.T) {
	api := &fakeAPI{fail: map[string]error{"https://example.com/b": errors.New("boom")}}
	rw := NewRewriter(api, newFakeCache(), discard())

	m := testModel()
	out := rw.Rewrite(context.Background(), m)

	if out != m {
		t.Fatal("expected the original model back on partial failure")
	}
	if m.Blocks[0].Data.(models.StoryData).Link != "https://example.com/a" {
		t.Error("original model was mutated")
	}
}

func TestRewriteCacheReadFailureKeepsOriginal(t *testing.T) {
	cache := newFakeCache()
	cache.getErr = errors.New("db gone")
	api := &fakeAPI{}
	rw := NewRewriter(api, cache, discard())

	m := testModel()
	out := rw.Rewrite(context.Background(), m)
	if out != m {
		t.Fatal("expected the original model back on cache read failure")
	}
	if len(api.calls) != 0 {
		t.Errorf("API calls = %d, want 0", len(api.calls))
	}
}

func TestRewriteUsesCacheHits(t *testing.T) {
	cache := newFakeCache()
	cache.entries["https://example.com/a"] = &models.ShortLink{
		OriginalURL: "https://example.com/a",
		ShortURL:    "https://s.test/cached",
	}
	api := &fakeAPI{}
	rw := NewRewriter(api, cache, discard())

	out := rw.Rewrite(context.Background(), testModel())

	if got := out.Blocks[0].Data.(models.StoryData).Link; got != "https://s.test/cached" {
		t.Errorf("story link = %q, want cached mapping", got)
	}
	for _, u := range api.calls {
		if u == "https://example.com/a" {
			t.Error("cached URL should not hit the API")
		}
	}
}

func TestRewriteCacheWriteFailureIsNonFatal(t *testing.T) {
	cache := newFakeCache()
	cache.putErr = errors.New("disk full")
	rw := NewRewriter(&fakeAPI{}, cache, discard())

	m := testModel()
	out := rw.Rewrite(context.Background(), m)
	if out == m {
		t.Fatal("expected rewriting to succeed despite cache write failures")
	}
	if got := out.Blocks[0].Data.(models.StoryData).Link; got != "https://s.test/a" {
		t.Errorf("story link = %q", got)
	}
}

func TestRewriteDisabled(t *testing.T) {
	rw := NewRewriter(nil, newFakeCache(), discard())
	m := testModel()
	if out := rw.Rewrite(context.Background(), m); out != m {
		t.Error("disabled rewriter must pass the model through")
	}
}

func TestRewriteNoLinks(t *testing.T) {
	api := &fakeAPI{}
	rw := NewRewriter(api, newFakeCache(), discard())
	m := &render.Model{
		Blocks: []render.Block{{Type: models.BlockTypeText, Data: models.TextData{Content: "plain"}}},
	}
	if out := rw.Rewrite(context.Background(), m); out != m {
		t.Error("model without links must pass through")
	}
	if len(api.calls) != 0 {
		t.Errorf("API calls = %d, want 0", len(api.calls))
	}
}
