package models

import "time"

// Publication represents a newsletter publication
type Publication struct {
	ID              string     `json:"id"`
	Slug            string     `json:"slug"`
	Name            string     `json:"name"`
	FromName        string     `json:"from_name"`
	FromEmail       string     `json:"from_email"`
	ReplyTo         string     `json:"reply_to,omitempty"`
	Public          bool       `json:"public"`
	Brand           Brand      `json:"brand"`
	DefaultFooterID string     `json:"default_footer_id,omitempty"`
	DeletedAt       *time.Time `json:"deleted_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Brand holds publication brand settings, stored as JSON
type Brand struct {
	LogoURL        string `json:"logo_url,omitempty"`
	AccentColor    string `json:"accent_color,omitempty"`
	HeaderImageURL string `json:"header_image_url,omitempty"`
}

// Footer is reusable footer content referenced by publications and issues
type Footer struct {
	ID        string        `json:"id"`
	Content   FooterContent `json:"content"`
	CreatedAt time.Time     `json:"created_at"`
}

// FooterContent is the footer payload rendered at the bottom of every email
type FooterContent struct {
	Text        string       `json:"text"`
	SocialLinks []SocialLink `json:"social_links,omitempty"`
	Address     string       `json:"address,omitempty"`
}

// SocialLink is a single outbound social link in a footer
type SocialLink struct {
	Platform string `json:"platform"`
	URL      string `json:"url"`
	Label    string `json:"label,omitempty"`
}
