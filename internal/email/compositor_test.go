package email

import (
	"strings"
	"testing"

	"github.com/letterflow/letterflow/internal/models"
	"github.com/letterflow/letterflow/internal/render"
)

func testModel() *render.Model {
	return &render.Model{
		Publication: render.PublicationInfo{
			Name:  "The Weekly",
			Slug:  "weekly",
			Brand: models.Brand{AccentColor: "#112233"},
		},
		Issue: render.IssueInfo{
			Subject:   "Issue #1",
			Preheader: "This week in things",
		},
		Blocks: []render.Block{
			{Type: models.BlockTypeStory, Data: models.StoryData{
				Title: "Top story", Link: "https://example.com/top", Blurb: "Something happened",
			}},
			{Type: models.BlockTypeText, Data: models.TextData{Content: "First para.\n\nSecond para."}},
			{Type: models.BlockTypePromo, Data: models.PromoData{
				Title: "Sponsor", Content: "Buy things", Link: "https://example.com/promo", LinkText: "Shop",
			}},
			{Type: models.BlockTypeFooter, Data: models.FooterData{FooterContent: models.FooterContent{
				Text:    "You subscribed to this.",
				Address: "1 Main St",
				SocialLinks: []models.SocialLink{
					{Platform: "mastodon", URL: "https://social.test/@weekly"},
				},
			}}},
		},
		URLs: render.URLSet{
			WebVersion:      "https://letterflow.test/n/weekly/issue-1",
			Unsubscribe:     "https://letterflow.test/api/unsubscribe?token=tok",
			PublicationHome: "https://letterflow.test/n/weekly",
		},
	}
}

func TestComposeRendersBlocks(t *testing.T) {
	em, err := Compose(testModel())
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}

	if em.Subject != "Issue #1" {
		t.Errorf("subject = %q", em.Subject)
	}
	for _, want := range []string{
		"Top story",
		"https://example.com/top",
		"First para.",
		"Second para.",
		"Buy things",
		"Shop",
		"You subscribed to this.",
		"1 Main St",
		"https://social.test/@weekly",
		"https://letterflow.test/n/weekly/issue-1",
		"https://letterflow.test/api/unsubscribe?token=tok",
		"This week in things",
		"#112233",
	} {
		if !strings.Contains(em.HTML, want) {
			t.Errorf("HTML missing %q", want)
		}
	}
}

func TestComposeListUnsubscribeHeader(t *testing.T) {
	em, err := Compose(testModel())
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if got := em.Headers["List-Unsubscribe"]; got != "<https://letterflow.test/api/unsubscribe?token=tok>" {
		t.Errorf("List-Unsubscribe = %q", got)
	}
	if got := em.Headers["List-Unsubscribe-Post"]; got != "List-Unsubscribe=One-Click" {
		t.Errorf("List-Unsubscribe-Post = %q", got)
	}
}

func TestComposeEscapesContent(t *testing.T) {
	m := testModel()
	m.Blocks = []render.Block{
		{Type: models.BlockTypeText, Data: models.TextData{Content: "<script>alert(1)</script>"}},
	}
	em, err := Compose(m)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if strings.Contains(em.HTML, "<script>alert(1)</script>") {
		t.Error("text content must be escaped")
	}
}

func TestComposeSkipsUnknownBlocks(t *testing.T) {
	m := testModel()
	m.Blocks = append(m.Blocks, render.Block{Type: "poll", Data: models.UnknownData{Type: "poll"}})
	if _, err := Compose(m); err != nil {
		t.Fatalf("Compose with unknown block: %v", err)
	}
}

func TestComposeDefaultAccentColor(t *testing.T) {
	m := testModel()
	m.Publication.Brand = models.Brand{}
	em, err := Compose(m)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if !strings.Contains(em.HTML, defaultAccentColor) {
		t.Error("expected default accent color")
	}
}

func TestComposeConfirmation(t *testing.T) {
	em, err := ComposeConfirmation("The Weekly", "https://letterflow.test/api/confirm?token=abc")
	if err != nil {
		t.Fatalf("ComposeConfirmation: %v", err)
	}
	if !strings.Contains(em.Subject, "The Weekly") {
		t.Errorf("subject = %q", em.Subject)
	}
	if !strings.Contains(em.HTML, "https://letterflow.test/api/confirm?token=abc") {
		t.Error("HTML missing confirmation URL")
	}
}
