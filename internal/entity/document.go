package entity

import (
	"strings"

	"github.com/google/uuid"
)

// Document is one invoice as delivered by the document-understanding
// service: raw text plus whatever structured annotations the service
// managed to produce. Immutable once ingested.
type Document struct {
	ID       uuid.UUID `json:"id"`
	Text     string    `json:"text"`
	Pages    []Page    `json:"pages,omitempty"`
	Entities []Entity  `json:"entities,omitempty"`
	Tables   []Table   `json:"tables,omitempty"`
}

// Page is one page worth of text. Documents without page boundaries carry
// everything in Text and leave Pages empty.
type Page struct {
	Number int    `json:"number"`
	Text   string `json:"text"`
}

// Entity is a structured annotation supplied upstream (e.g. a line_item
// entity with nested property entities for code, price and quantity).
type Entity struct {
	Type       string   `json:"type"`
	Mention    string   `json:"mention"`
	Normalized string   `json:"normalized,omitempty"`
	Page       int      `json:"page,omitempty"`
	Properties []Entity `json:"properties,omitempty"`
}

// Table is a detected tabular structure: one header row plus body rows,
// cells in column order.
type Table struct {
	Page    int        `json:"page,omitempty"`
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

// FullText returns the document text, reassembled from pages when the
// flat Text field is empty. Page order is preserved as delivered.
func (d *Document) FullText() string {
	if d.Text != "" || len(d.Pages) == 0 {
		return d.Text
	}
	var b strings.Builder
	for i, p := range d.Pages {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(p.Text)
	}
	return b.String()
}

// Property returns the first nested property of the given type, if any.
func (e *Entity) Property(typ string) (Entity, bool) {
	for _, p := range e.Properties {
		if strings.EqualFold(p.Type, typ) {
			return p, true
		}
	}
	return Entity{}, false
}

// Value prefers the service-normalized value over the raw mention.
func (e *Entity) Value() string {
	if e.Normalized != "" {
		return e.Normalized
	}
	return strings.TrimSpace(e.Mention)
}
