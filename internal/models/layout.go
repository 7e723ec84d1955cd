package models

import "encoding/json"

// BlockType names what a layout block holds.
type BlockType string

const (
	BlockHeadline BlockType = "headline"
	BlockSubhead  BlockType = "subhead"
	BlockImage    BlockType = "image"
	BlockBody     BlockType = "body"
	BlockAd       BlockType = "ad"
)

// PageSize is the paper format of a layout template.
type PageSize string

const (
	PageA4     PageSize = "A4"
	PageLetter PageSize = "Letter"
	PageA3     PageSize = "A3"
)

var (
	BlockTypes = []BlockType{BlockHeadline, BlockSubhead, BlockImage, BlockBody, BlockAd}
	PageSizes  = []PageSize{PageA4, PageLetter, PageA3}
)

// Grid bounds shared by the validation schemas.
const (
	MaxBlockWidth = 12
	MinColumns    = 1
	MaxColumns    = 6
	MinMarginMM   = 5
	MaxMarginMM   = 30
)

// LayoutBlock is a rectangle on the page grid. Blocks may overlap.
type LayoutBlock struct {
	Type BlockType `json:"type"`
	X    int       `json:"x"`
	Y    int       `json:"y"`
	W    int       `json:"w"`
	H    int       `json:"h"`
}

// UnmarshalJSON fills omitted fields with their defaults.
func (b *LayoutBlock) UnmarshalJSON(data []byte) error {
	type plain LayoutBlock
	p := plain{Type: BlockBody, W: MaxBlockWidth, H: 2}
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*b = LayoutBlock(p)
	return nil
}

// LayoutTemplate is a named page layout. Templates are created and listed, never updated.
type LayoutTemplate struct {
	Name        string        `json:"name"`
	Description *string       `json:"description"`
	PageSize    PageSize      `json:"page_size"`
	Columns     int           `json:"columns"`
	MarginMM    int           `json:"margin_mm"`
	Blocks      []LayoutBlock `json:"blocks"`
}

// UnmarshalJSON fills omitted fields with their defaults.
func (t *LayoutTemplate) UnmarshalJSON(data []byte) error {
	type plain LayoutTemplate
	p := plain{PageSize: PageA4, Columns: 3, MarginMM: 12, Blocks: []LayoutBlock{}}
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	if p.Blocks == nil {
		p.Blocks = []LayoutBlock{}
	}
	*t = LayoutTemplate(p)
	return nil
}

// SaveLayoutRequest wraps a template in the save endpoint body.
type SaveLayoutRequest struct {
	Template LayoutTemplate `json:"template"`
}
