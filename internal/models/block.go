package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Block types
const (
	BlockTypeStory   = "story"
	BlockTypePromo   = "promo"
	BlockTypeText    = "text"
	BlockTypeDivider = "divider"
	BlockTypeImage   = "image"
	BlockTypeFooter  = "footer"
)

// Block is one ordered unit of issue content. Data is the raw
// type-specific payload; Decode turns it into a typed variant.
type Block struct {
	ID        string          `json:"id"`
	IssueID   string          `json:"issue_id"`
	Type      string          `json:"type"`
	SortOrder int             `json:"sort_order"`
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"created_at"`
}

// BlockData is the discriminated union of block payloads.
type BlockData interface {
	blockData()
}

type StoryData struct {
	Title           string `json:"title"`
	ImageURL        string `json:"image_url,omitempty"`
	ImageAlt        string `json:"image_alt,omitempty"`
	Link            string `json:"link"`
	Blurb           string `json:"blurb"`
	PublicationName string `json:"publication_name,omitempty"`
}

type PromoData struct {
	Title           string `json:"title"`
	Content         string `json:"content"`
	Link            string `json:"link,omitempty"`
	LinkText        string `json:"link_text,omitempty"`
	BackgroundColor string `json:"background_color,omitempty"`
}

type TextData struct {
	Content   string `json:"content"`
	Alignment string `json:"alignment,omitempty"` // left, center, right
}

type DividerData struct {
	Style string `json:"style,omitempty"` // simple, decorative, spacer
}

type ImageData struct {
	URL     string `json:"url"`
	Alt     string `json:"alt"`
	Caption string `json:"caption,omitempty"`
	Link    string `json:"link,omitempty"`
}

type FooterData struct {
	FooterContent
}

// UnknownData is the catch-all variant for unrecognized block types.
// It renders as nothing.
type UnknownData struct {
	Type string
}

func (StoryData) blockData()   {}
func (PromoData) blockData()   {}
func (TextData) blockData()    {}
func (DividerData) blockData() {}
func (ImageData) blockData()   {}
func (FooterData) blockData()  {}
func (UnknownData) blockData() {}

// DecodeBlockData decodes a raw block payload into its typed variant.
// Unrecognized types decode to UnknownData rather than erroring.
func DecodeBlockData(blockType string, raw json.RawMessage) (BlockData, error) {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}

	switch blockType {
	case BlockTypeStory:
		var d StoryData
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("decode story block: %w", err)
		}
		return d, nil
	case BlockTypePromo:
		var d PromoData
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("decode promo block: %w", err)
		}
		return d, nil
	case BlockTypeText:
		var d TextData
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("decode text block: %w", err)
		}
		return d, nil
	case BlockTypeDivider:
		var d DividerData
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("decode divider block: %w", err)
		}
		return d, nil
	case BlockTypeImage:
		var d ImageData
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("decode image block: %w", err)
		}
		return d, nil
	case BlockTypeFooter:
		var d FooterData
		if err := json.Unmarshal(raw, &d.FooterContent); err != nil {
			return nil, fmt.Errorf("decode footer block: %w", err)
		}
		return d, nil
	default:
		return UnknownData{Type: blockType}, nil
	}
}

// Decode returns the typed payload for this block.
func (b *Block) Decode() (BlockData, error) {
	return DecodeBlockData(b.Type, b.Data)
}
