package models

import (
	"encoding/json"
	"time"
)

// EpaperExport asks for an edition built from stored articles and a layout template.
type EpaperExport struct {
	ArticleIDs       []string `json:"article_ids"`
	LayoutTemplateID *string  `json:"layout_template_id"`
}

// UnmarshalJSON fills omitted fields with their defaults.
func (e *EpaperExport) UnmarshalJSON(data []byte) error {
	type plain EpaperExport
	p := plain{ArticleIDs: []string{}}
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	if p.ArticleIDs == nil {
		p.ArticleIDs = []string{}
	}
	*e = EpaperExport(p)
	return nil
}

// EpaperEdition is the record the worker writes once an export has been assembled.
type EpaperEdition struct {
	ExportID          string    `json:"export_id"`
	LayoutTemplateID  string    `json:"layout_template_id,omitempty"`
	TemplateName      string    `json:"template_name,omitempty"`
	PageSize          PageSize  `json:"page_size,omitempty"`
	Columns           int       `json:"columns,omitempty"`
	ArticleIDs        []string  `json:"article_ids"`
	Headlines         []string  `json:"headlines"`
	MissingArticleIDs []string  `json:"missing_article_ids"`
	AssembledAt       time.Time `json:"assembled_at"`
}
