package render

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/letterflow/letterflow/internal/models"
	"github.com/letterflow/letterflow/internal/repository"
)

var ErrIssueNotFound = errors.New("issue not found")

// syntheticFooterSortOrder keeps an injected footer block after every
// authored block.
const syntheticFooterSortOrder = 9999

// Model is the fully-assembled, provider-agnostic representation of one
// issue's email content, ready for per-recipient personalization. It is
// built fresh per send and never mutated in place; link rewriting and
// unsubscribe-URL substitution both produce new copies.
type Model struct {
	Publication PublicationInfo
	Issue       IssueInfo
	Blocks      []Block
	Footer      *models.FooterContent
	URLs        URLSet
}

type PublicationInfo struct {
	ID        string
	Name      string
	Slug      string
	Brand     models.Brand
	FromName  string
	FromEmail string
	ReplyTo   string
}

type IssueInfo struct {
	ID          string
	Slug        string
	Subject     string
	Preheader   string
	PublishedAt *time.Time
}

// Block is one renderable unit with its decoded payload
type Block struct {
	ID        string
	Type      string
	SortOrder int
	Data      models.BlockData
}

type URLSet struct {
	WebVersion      string
	Unsubscribe     string
	PublicationHome string
}

// Options for building a model
type Options struct {
	// BaseURL overrides the builder's configured base URL.
	BaseURL string
	// UnsubscribeToken, when set, produces a tokenized unsubscribe URL
	// instead of the generic publication unsubscribe page.
	UnsubscribeToken string
}

// Builder assembles render models from stored data. Assembly is
// deterministic and has no side effects.
type Builder struct {
	publications *repository.PublicationRepository
	issues       *repository.IssueRepository
	blocks       *repository.BlockRepository
	footers      *repository.FooterRepository
	baseURL      string
	logger       *slog.Logger
}

func NewBuilder(
	publications *repository.PublicationRepository,
	issues *repository.IssueRepository,
	blocks *repository.BlockRepository,
	footers *repository.FooterRepository,
	baseURL string,
	logger *slog.Logger,
) *Builder {
	return &Builder{
		publications: publications,
		issues:       issues,
		blocks:       blocks,
		footers:      footers,
		baseURL:      baseURL,
		logger:       logger.With("component", "render"),
	}
}

// Build assembles the render model for an issue.
func (b *Builder) Build(issueID string, opts Options) (*Model, error) {
	issue, err := b.issues.GetByID(issueID)
	if err != nil {
		return nil, fmt.Errorf("fetch issue: %w", err)
	}
	if issue == nil {
		return nil, ErrIssueNotFound
	}

	pub, err := b.publications.GetByID(issue.PublicationID)
	if err != nil {
		return nil, fmt.Errorf("fetch publication: %w", err)
	}
	if pub == nil {
		return nil, fmt.Errorf("publication %s not found for issue %s", issue.PublicationID, issueID)
	}

	stored, err := b.blocks.ListByIssue(issueID)
	if err != nil {
		return nil, fmt.Errorf("fetch blocks: %w", err)
	}

	// Issue-level footer override wins over the publication default.
	footerID := issue.FooterID
	if footerID == "" {
		footerID = pub.DefaultFooterID
	}
	var footer *models.FooterContent
	if footerID != "" {
		f, err := b.footers.GetByID(footerID)
		if err != nil {
			return nil, fmt.Errorf("fetch footer: %w", err)
		}
		if f != nil {
			footer = &f.Content
		}
	}

	blocks := make([]Block, 0, len(stored)+1)
	hasFooterBlock := false
	for _, sb := range stored {
		data, err := sb.Decode()
		if err != nil {
			return nil, fmt.Errorf("decode block %s: %w", sb.ID, err)
		}
		if sb.Type == models.BlockTypeFooter {
			hasFooterBlock = true
		}
		blocks = append(blocks, Block{ID: sb.ID, Type: sb.Type, SortOrder: sb.SortOrder, Data: data})
	}
	sort.SliceStable(blocks, func(i, j int) bool { return blocks[i].SortOrder < blocks[j].SortOrder })

	// Inject a trailing footer block when the issue has none but a
	// footer is configured.
	if !hasFooterBlock && footer != nil {
		blocks = append(blocks, Block{
			ID:        "footer-auto",
			Type:      models.BlockTypeFooter,
			SortOrder: syntheticFooterSortOrder,
			Data:      models.FooterData{FooterContent: *footer},
		})
	}

	baseURL := b.baseURL
	if opts.BaseURL != "" {
		baseURL = opts.BaseURL
	}

	unsubscribe := baseURL + "/n/" + pub.Slug + "/unsubscribe"
	if opts.UnsubscribeToken != "" {
		unsubscribe = UnsubscribeURL(baseURL, opts.UnsubscribeToken)
	}

	return &Model{
		Publication: PublicationInfo{
			ID:        pub.ID,
			Name:      pub.Name,
			Slug:      pub.Slug,
			Brand:     pub.Brand,
			FromName:  pub.FromName,
			FromEmail: pub.FromEmail,
			ReplyTo:   pub.ReplyTo,
		},
		Issue: IssueInfo{
			ID:          issue.ID,
			Slug:        issue.Slug,
			Subject:     issue.Subject,
			Preheader:   issue.Preheader,
			PublishedAt: issue.PublishedAt,
		},
		Blocks: blocks,
		Footer: footer,
		URLs: URLSet{
			WebVersion:      baseURL + "/n/" + pub.Slug + "/" + issue.Slug,
			Unsubscribe:     unsubscribe,
			PublicationHome: baseURL + "/n/" + pub.Slug,
		},
	}, nil
}

// UnsubscribeURL builds the tokenized one-click unsubscribe URL for a
// subscriber.
func UnsubscribeURL(baseURL, token string) string {
	return baseURL + "/api/unsubscribe?token=" + token
}

// WithUnsubscribeURL returns a copy of the model with the recipient's
// unsubscribe URL substituted. The receiver is left untouched.
func (m *Model) WithUnsubscribeURL(url string) *Model {
	c := *m
	c.URLs.Unsubscribe = url
	return &c
}

// Clone returns a deep copy safe for link rewriting.
func (m *Model) Clone() *Model {
	c := *m
	c.Blocks = make([]Block, len(m.Blocks))
	for i, b := range m.Blocks {
		c.Blocks[i] = b
		if fd, ok := b.Data.(models.FooterData); ok {
			fd.SocialLinks = cloneSocialLinks(fd.SocialLinks)
			c.Blocks[i].Data = fd
		}
	}
	if m.Footer != nil {
		f := *m.Footer
		f.SocialLinks = cloneSocialLinks(m.Footer.SocialLinks)
		c.Footer = &f
	}
	return &c
}

func cloneSocialLinks(links []models.SocialLink) []models.SocialLink {
	if links == nil {
		return nil
	}
	out := make([]models.SocialLink, len(links))
	copy(out, links)
	return out
}
