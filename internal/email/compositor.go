package email

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/letterflow/letterflow/internal/models"
	"github.com/letterflow/letterflow/internal/render"
)

const defaultAccentColor = "#1d4ed8"

// Email is a fully composed message ready to hand to the delivery
// provider.
type Email struct {
	Subject string
	HTML    string
	Headers map[string]string
}

// Compose renders a model into the final HTML email. The model must
// already carry the recipient's unsubscribe URL; composition itself is
// pure and recipient data beyond that never enters the template.
func Compose(m *render.Model) (*Email, error) {
	p := page{
		Subject:         m.Issue.Subject,
		Preheader:       m.Issue.Preheader,
		PublicationName: m.Publication.Name,
		AccentColor:     accentColor(m.Publication.Brand),
		LogoURL:         m.Publication.Brand.LogoURL,
		HeaderImageURL:  m.Publication.Brand.HeaderImageURL,
		WebVersionURL:   m.URLs.WebVersion,
		UnsubscribeURL:  m.URLs.Unsubscribe,
		HomeURL:         m.URLs.PublicationHome,
	}

	for _, b := range m.Blocks {
		v, ok := viewFor(b)
		if !ok {
			// Unknown block types render nothing rather than failing
			// the whole issue.
			continue
		}
		p.Blocks = append(p.Blocks, v)
	}

	var buf bytes.Buffer
	if err := issueTmpl.Execute(&buf, p); err != nil {
		return nil, fmt.Errorf("render issue template: %w", err)
	}

	return &Email{
		Subject: m.Issue.Subject,
		HTML:    buf.String(),
		Headers: map[string]string{
			"List-Unsubscribe":      "<" + m.URLs.Unsubscribe + ">",
			"List-Unsubscribe-Post": "List-Unsubscribe=One-Click",
		},
	}, nil
}

// ComposeConfirmation renders the double opt-in confirmation email.
func ComposeConfirmation(publicationName, confirmURL string) (*Email, error) {
	var buf bytes.Buffer
	err := confirmTmpl.Execute(&buf, struct {
		PublicationName string
		ConfirmURL      string
	}{publicationName, confirmURL})
	if err != nil {
		return nil, fmt.Errorf("render confirmation template: %w", err)
	}
	return &Email{
		Subject: "Confirm your subscription to " + publicationName,
		HTML:    buf.String(),
	}, nil
}

type page struct {
	Subject         string
	Preheader       string
	PublicationName string
	AccentColor     string
	LogoURL         string
	HeaderImageURL  string
	WebVersionURL   string
	UnsubscribeURL  string
	HomeURL         string
	Blocks          []blockView
}

// blockView carries exactly one non-nil payload pointer so the template
// can branch without type assertions.
type blockView struct {
	Story    *models.StoryData
	Promo    *models.PromoData
	Text     *models.TextData
	TextHTML template.HTML
	Divider  *models.DividerData
	Image    *models.ImageData
	Footer   *models.FooterData
}

func viewFor(b render.Block) (blockView, bool) {
	switch d := b.Data.(type) {
	case models.StoryData:
		return blockView{Story: &d}, true
	case models.PromoData:
		return blockView{Promo: &d}, true
	case models.TextData:
		return blockView{Text: &d, TextHTML: paragraphs(d.Content)}, true
	case models.DividerData:
		return blockView{Divider: &d}, true
	case models.ImageData:
		return blockView{Image: &d}, true
	case models.FooterData:
		return blockView{Footer: &d}, true
	default:
		return blockView{}, false
	}
}

// paragraphs escapes plain text and converts blank-line-separated
// paragraphs into <p> elements.
func paragraphs(content string) template.HTML {
	var sb strings.Builder
	for _, para := range strings.Split(content, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		escaped := template.HTMLEscapeString(para)
		escaped = strings.ReplaceAll(escaped, "\n", "<br>")
		sb.WriteString("<p style=\"margin:0 0 16px;\">")
		sb.WriteString(escaped)
		sb.WriteString("</p>")
	}
	return template.HTML(sb.String())
}

func accentColor(b models.Brand) string {
	if b.AccentColor != "" {
		return b.AccentColor
	}
	return defaultAccentColor
}

var issueTmpl = template.Must(template.New("issue").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>{{.Subject}}</title>
</head>
<body style="margin:0;padding:0;background-color:#f4f4f5;font-family:-apple-system,BlinkMacSystemFont,'Segoe UI',Roboto,Helvetica,Arial,sans-serif;">
{{if .Preheader}}<div style="display:none;max-height:0;overflow:hidden;">{{.Preheader}}</div>{{end}}
<table role="presentation" width="100%" cellpadding="0" cellspacing="0" style="background-color:#f4f4f5;">
<tr><td align="center" style="padding:24px 12px;">
<table role="presentation" width="600" cellpadding="0" cellspacing="0" style="max-width:600px;width:100%;background-color:#ffffff;border-radius:8px;overflow:hidden;">
<tr><td style="padding:24px 32px 0;text-align:center;">
{{if .LogoURL}}<a href="{{.HomeURL}}"><img src="{{.LogoURL}}" alt="{{.PublicationName}}" height="40" style="border:0;"></a>
{{else}}<a href="{{.HomeURL}}" style="color:{{.AccentColor}};font-size:20px;font-weight:bold;text-decoration:none;">{{.PublicationName}}</a>{{end}}
<div style="margin-top:8px;"><a href="{{.WebVersionURL}}" style="color:#71717a;font-size:12px;">View in browser</a></div>
</td></tr>
{{if .HeaderImageURL}}<tr><td style="padding:24px 0 0;"><img src="{{.HeaderImageURL}}" alt="" width="600" style="width:100%;border:0;display:block;"></td></tr>{{end}}
<tr><td style="padding:24px 32px;color:#18181b;font-size:16px;line-height:1.6;">
{{range .Blocks}}
{{if .Story}}<table role="presentation" width="100%" cellpadding="0" cellspacing="0" style="margin-bottom:28px;"><tr><td>
{{if .Story.ImageURL}}<a href="{{.Story.Link}}"><img src="{{.Story.ImageURL}}" alt="{{.Story.ImageAlt}}" width="536" style="width:100%;border:0;border-radius:6px;display:block;margin-bottom:12px;"></a>{{end}}
{{if .Story.PublicationName}}<div style="color:#71717a;font-size:12px;text-transform:uppercase;letter-spacing:0.05em;margin-bottom:4px;">{{.Story.PublicationName}}</div>{{end}}
<h2 style="margin:0 0 8px;font-size:20px;line-height:1.3;"><a href="{{.Story.Link}}" style="color:#18181b;text-decoration:none;">{{.Story.Title}}</a></h2>
{{if .Story.Blurb}}<p style="margin:0;color:#3f3f46;">{{.Story.Blurb}}</p>{{end}}
</td></tr></table>
{{else if .Promo}}<table role="presentation" width="100%" cellpadding="0" cellspacing="0" style="margin-bottom:28px;"><tr>
<td style="background-color:{{if .Promo.BackgroundColor}}{{.Promo.BackgroundColor}}{{else}}#f4f4f5{{end}};border-radius:6px;padding:20px 24px;">
<h3 style="margin:0 0 8px;font-size:17px;">{{.Promo.Title}}</h3>
<p style="margin:0 0 12px;color:#3f3f46;">{{.Promo.Content}}</p>
{{if .Promo.Link}}<a href="{{.Promo.Link}}" style="color:{{$.AccentColor}};font-weight:bold;text-decoration:none;">{{if .Promo.LinkText}}{{.Promo.LinkText}}{{else}}Learn more{{end}} &rarr;</a>{{end}}
</td></tr></table>
{{else if .Text}}<div style="margin-bottom:28px;{{if .Text.Alignment}}text-align:{{.Text.Alignment}};{{end}}">{{.TextHTML}}</div>
{{else if .Divider}}{{if eq .Divider.Style "space"}}<div style="height:28px;"></div>{{else}}<hr style="border:none;border-top:1px {{if eq .Divider.Style "dots"}}dotted{{else}}solid{{end}} #e4e4e7;margin:28px 0;">{{end}}
{{else if .Image}}<table role="presentation" width="100%" cellpadding="0" cellspacing="0" style="margin-bottom:28px;"><tr><td align="center">
{{if .Image.Link}}<a href="{{.Image.Link}}"><img src="{{.Image.URL}}" alt="{{.Image.Alt}}" width="536" style="width:100%;border:0;border-radius:6px;display:block;"></a>
{{else}}<img src="{{.Image.URL}}" alt="{{.Image.Alt}}" width="536" style="width:100%;border:0;border-radius:6px;display:block;">{{end}}
{{if .Image.Caption}}<div style="color:#71717a;font-size:13px;margin-top:8px;">{{.Image.Caption}}</div>{{end}}
</td></tr></table>
{{else if .Footer}}<table role="presentation" width="100%" cellpadding="0" cellspacing="0" style="border-top:1px solid #e4e4e7;margin-top:12px;"><tr><td style="padding-top:20px;color:#71717a;font-size:13px;text-align:center;">
{{if .Footer.Text}}<p style="margin:0 0 12px;">{{.Footer.Text}}</p>{{end}}
{{if .Footer.SocialLinks}}<p style="margin:0 0 12px;">{{range $i, $l := .Footer.SocialLinks}}{{if $i}} &middot; {{end}}<a href="{{$l.URL}}" style="color:{{$.AccentColor}};text-decoration:none;">{{if $l.Label}}{{$l.Label}}{{else}}{{$l.Platform}}{{end}}</a>{{end}}</p>{{end}}
{{if .Footer.Address}}<p style="margin:0 0 12px;">{{.Footer.Address}}</p>{{end}}
</td></tr></table>
{{end}}
{{end}}
</td></tr>
<tr><td style="padding:0 32px 28px;color:#a1a1aa;font-size:12px;text-align:center;">
<a href="{{.UnsubscribeURL}}" style="color:#a1a1aa;">Unsubscribe</a>
</td></tr>
</table>
</td></tr>
</table>
</body>
</html>
`))

var confirmTmpl = template.Must(template.New("confirm").Parse(`<!DOCTYPE html>
<html>
<body style="margin:0;padding:0;background-color:#f4f4f5;font-family:-apple-system,BlinkMacSystemFont,'Segoe UI',Roboto,Helvetica,Arial,sans-serif;">
<table role="presentation" width="100%" cellpadding="0" cellspacing="0"><tr><td align="center" style="padding:40px 12px;">
<table role="presentation" width="480" cellpadding="0" cellspacing="0" style="max-width:480px;width:100%;background-color:#ffffff;border-radius:8px;">
<tr><td style="padding:32px;color:#18181b;font-size:16px;line-height:1.6;">
<h2 style="margin:0 0 16px;font-size:20px;">Confirm your subscription</h2>
<p style="margin:0 0 20px;">You asked to subscribe to <strong>{{.PublicationName}}</strong>. Click the button below to confirm your email address.</p>
<table role="presentation" cellpadding="0" cellspacing="0"><tr><td style="border-radius:6px;background-color:#1d4ed8;">
<a href="{{.ConfirmURL}}" style="display:inline-block;padding:12px 24px;color:#ffffff;font-weight:bold;text-decoration:none;">Confirm subscription</a>
</td></tr></table>
<p style="margin:20px 0 0;color:#71717a;font-size:13px;">If you did not request this, you can safely ignore this email.</p>
</td></tr>
</table>
</td></tr></table>
</body>
</html>
`))
