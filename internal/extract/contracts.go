package extract

import (
	"context"

	"github.com/JoeYatesss/invoice/constants"
	"github.com/JoeYatesss/invoice/internal/document"
	"github.com/JoeYatesss/invoice/internal/entity"
)

// DocumentText is the method-agnostic view of one document after token
// acquisition: the immutable token set, the layout groupings referencing
// those tokens, and the flattened full text in reading order. Both the
// rule-based and AI extractors consume it concurrently without
// coordination.
type DocumentText struct {
	Format        constants.Format
	Pages         int
	NativeText    bool // tokens came from the PDF text layer (no recognition error)
	Tokens        []document.TextToken
	Regions       []document.Region
	Flat          string
	Warnings      []string // per-page acquisition warnings (e.g. OCR_PAGE_FAILED:2)
	OCRConfidence float64  // blended recognition quality, 0 when no OCR ran
}

// RegionTokens resolves a region's token indices against the document
// token slice, skipping indices that fell out of range.
func (d *DocumentText) RegionTokens(r document.Region) []document.TextToken {
	out := make([]document.TextToken, 0, len(r.TokenIdx))
	for _, i := range r.TokenIdx {
		if i >= 0 && i < len(d.Tokens) {
			out = append(out, d.Tokens[i])
		}
	}
	return out
}

// Candidate is one strategy's proposed structured record. A field is
// considered present iff it is keyed in FieldConfidence.
type Candidate struct {
	Method          string
	Record          entity.InvoiceRecord
	FieldConfidence map[string]float64
	Warnings        []string
}

// Has reports whether the candidate proposes a value for field.
func (c *Candidate) Has(field string) bool {
	_, ok := c.FieldConfidence[field]
	return ok
}

// FieldCount returns the number of proposed fields.
func (c *Candidate) FieldCount() int {
	return len(c.FieldConfidence)
}

// Producer is the capability interface every extraction strategy
// implements, so new methods plug in without touching the orchestrator's
// merge logic.
type Producer interface {
	Method() string
	Produce(ctx context.Context, doc *DocumentText) (Candidate, error)
}

// Outcome is the final result handed to the caller: best-effort record
// plus the diagnostics a human needs to judge it.
type Outcome struct {
	Record     entity.InvoiceRecord `json:"record"`
	Warnings   []string             `json:"warnings"`
	MethodUsed string               `json:"method_used"`
	Provenance map[string]string    `json:"per_field_provenance"`
}
