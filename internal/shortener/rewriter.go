package shortener

import (
	"context"
	"log/slog"
	"sync"

	"github.com/letterflow/letterflow/internal/models"
	"github.com/letterflow/letterflow/internal/render"
)

// API is the outbound shortening call
type API interface {
	Shorten(ctx context.Context, originalURL string) (*ShortenResponse, error)
}

// Cache is a read-through cache for original->short mappings. Reads are
// consulted first; inserts are best-effort and insert failures are
// non-fatal.
type Cache interface {
	Get(originalURL string) (*models.ShortLink, error)
	Put(link *models.ShortLink) error
}

// Rewriter replaces outbound content links in a render model with
// tracked short links. System URLs (unsubscribe, web version) are never
// touched. Any failure in the whole step falls back to the original,
// unmodified model: a partially-shortened newsletter with mixed links is
// worse than a fully-unshortened one.
type Rewriter struct {
	api    API
	cache  Cache
	logger *slog.Logger
}

// NewRewriter creates a rewriter. A nil api disables rewriting entirely
// (models pass through unchanged).
func NewRewriter(api API, cache Cache, logger *slog.Logger) *Rewriter {
	return &Rewriter{
		api:    api,
		cache:  cache,
		logger: logger.With("component", "shortener"),
	}
}

// Rewrite returns a copy of the model with outbound content links
// shortened, or the original model untouched when shortening is disabled
// or any part of the step fails.
func (rw *Rewriter) Rewrite(ctx context.Context, m *render.Model) *render.Model {
	if rw.api == nil {
		return m
	}

	urls := collectURLs(m)
	if len(urls) == 0 {
		return m
	}

	mapping, err := rw.resolve(ctx, urls)
	if err != nil {
		rw.logger.Warn("link rewriting failed, keeping original links",
			"issue_id", m.Issue.ID, "urls", len(urls), "error", err)
		return m
	}

	out := m.Clone()
	applyMapping(out, mapping)

	rw.logger.Info("links rewritten", "issue_id", m.Issue.ID, "urls", len(urls))
	return out
}

// collectURLs gathers the distinct set of link-bearing fields across
// story/promo/image blocks and footer social links. A URL repeated
// across blocks appears once.
func collectURLs(m *render.Model) []string {
	seen := map[string]struct{}{}
	var urls []string
	add := func(u string) {
		if u == "" {
			return
		}
		if _, ok := seen[u]; ok {
			return
		}
		seen[u] = struct{}{}
		urls = append(urls, u)
	}

	for _, b := range m.Blocks {
		switch d := b.Data.(type) {
		case models.StoryData:
			add(d.Link)
		case models.PromoData:
			add(d.Link)
		case models.ImageData:
			add(d.Link)
		case models.FooterData:
			for _, l := range d.SocialLinks {
				add(l.URL)
			}
		}
	}
	if m.Footer != nil {
		for _, l := range m.Footer.SocialLinks {
			add(l.URL)
		}
	}
	return urls
}

// resolve produces the original->short mapping, consulting the cache
// first and calling the API concurrently for all misses. Distinct URLs
// have no ordering dependency between them.
func (rw *Rewriter) resolve(ctx context.Context, urls []string) (map[string]string, error) {
	mapping := make(map[string]string, len(urls))
	var misses []string

	for _, u := range urls {
		cached, err := rw.cache.Get(u)
		if err != nil {
			return nil, err
		}
		if cached != nil {
			mapping[u] = cached.ShortURL
			continue
		}
		misses = append(misses, u)
	}

	if len(misses) == 0 {
		return mapping, nil
	}

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		firstErr error
	)
	for _, u := range misses {
		wg.Add(1)
		go func(originalURL string) {
			defer wg.Done()

			resp, err := rw.api.Shorten(ctx, originalURL)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			mapping[originalURL] = resp.ShortURL

			// Insert is best-effort; a failed cache write still leaves
			// us with a usable short URL.
			if cerr := rw.cache.Put(&models.ShortLink{
				OriginalURL: originalURL,
				ShortURL:    resp.ShortURL,
				ShortCode:   resp.ShortCode,
			}); cerr != nil {
				rw.logger.Warn("failed to cache short link", "url", originalURL, "error", cerr)
			}
		}(u)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return mapping, nil
}

func applyMapping(m *render.Model, mapping map[string]string) {
	for i, b := range m.Blocks {
		switch d := b.Data.(type) {
		case models.StoryData:
			if s, ok := mapping[d.Link]; ok {
				d.Link = s
				m.Blocks[i].Data = d
			}
		case models.PromoData:
			if s, ok := mapping[d.Link]; ok {
				d.Link = s
				m.Blocks[i].Data = d
			}
		case models.ImageData:
			if s, ok := mapping[d.Link]; ok {
				d.Link = s
				m.Blocks[i].Data = d
			}
		case models.FooterData:
			for j, l := range d.SocialLinks {
				if s, ok := mapping[l.URL]; ok {
					d.SocialLinks[j].URL = s
				}
			}
			m.Blocks[i].Data = d
		}
	}
	if m.Footer != nil {
		for j, l := range m.Footer.SocialLinks {
			if s, ok := mapping[l.URL]; ok {
				m.Footer.SocialLinks[j].URL = s
			}
		}
	}
}
