package document

import (
	"os"

	"github.com/JoeYatesss/invoice/constants"
)

// Source identifies which kind of engine produced a token.
type Source string

const (
	SourceOCR    Source = "OCR"
	SourceNative Source = "NATIVE"
)

// BBox is an axis-aligned bounding box. Native PDF tokens use PDF point
// coordinates with the origin at the bottom-left; OCR tokens use pixel
// coordinates with the origin at the top-left. Consumers only compare
// boxes within one page, so the two never mix.
type BBox struct {
	X0, Y0, X1, Y1 float64
}

func (b BBox) Width() float64  { return b.X1 - b.X0 }
func (b BBox) Height() float64 { return b.Y1 - b.Y0 }

// TextToken is one recognized or natively-present text fragment.
// Confidence is 0..1 for OCR tokens and -1 when the engine reports none;
// native tokens carry no recognition error and use 1.
type TextToken struct {
	Text       string
	BBox       BBox
	Page       int
	Source     Source
	Engine     string
	Confidence float64
}

// RegionKind labels a grouped region of tokens.
type RegionKind string

const (
	RegionHeader RegionKind = "header"
	RegionTable  RegionKind = "table"
	RegionTotals RegionKind = "totals"
	RegionBody   RegionKind = "body"
)

// Region groups tokens by index into the document token slice, so
// confidence and provenance trace back to the original tokens rather
// than copies.
type Region struct {
	Kind     RegionKind
	Page     int
	TokenIdx []int
	BBox     BBox
}

// PageSurface is one page of a source document: either a native
// positioned-text page or a rasterized image destined for OCR.
type PageSurface struct {
	Index     int
	Native    bool
	Tokens    []TextToken // set when Native
	ImagePath string      // set when !Native; PNG on disk
	Width     float64
	Height    float64
}

// SourceDocument is the normalized input, owned by one extraction call.
// Close releases the temporary raster artifacts.
type SourceDocument struct {
	Format  constants.Format
	Pages   []PageSurface
	workDir string
}

// HasNative reports whether any page carries a native text layer.
func (d *SourceDocument) HasNative() bool {
	for _, p := range d.Pages {
		if p.Native {
			return true
		}
	}
	return false
}

// Close removes temporary files created during normalization.
func (d *SourceDocument) Close() {
	if d.workDir != "" {
		_ = os.RemoveAll(d.workDir)
	}
}
