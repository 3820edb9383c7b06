package layout

import (
	"strings"
	"testing"

	"github.com/JoeYatesss/invoice/internal/document"
)

func ocrTok(text string, page int, x, y float64) document.TextToken {
	return document.TextToken{
		Text:   text,
		Page:   page,
		Source: document.SourceOCR,
		BBox:   document.BBox{X0: x, Y0: y, X1: x + float64(8*len(text)), Y1: y + 15},
	}
}

func nativeTok(text string, page int, x, y float64) document.TextToken {
	t := ocrTok(text, page, x, y)
	t.Source = document.SourceNative
	return t
}

// invoiceTokens is a one-page scanned invoice: header block, a line-item
// table under a column-header row, and a totals block at the bottom.
func invoiceTokens() []document.TextToken {
	return []document.TextToken{
		ocrTok("ACME", 0, 40, 20), ocrTok("Corp", 0, 90, 20),
		ocrTok("Invoice", 0, 40, 50), ocrTok("Number:", 0, 100, 50), ocrTok("INV-77", 0, 170, 50),

		ocrTok("Description", 0, 40, 100), ocrTok("Qty", 0, 200, 100),
		ocrTok("Rate", 0, 280, 100), ocrTok("Amount", 0, 360, 100),

		ocrTok("Consulting", 0, 40, 130), ocrTok("10", 0, 200, 130),
		ocrTok("150.00", 0, 280, 130), ocrTok("1500.00", 0, 360, 130),
		ocrTok("Design", 0, 40, 160), ocrTok("2", 0, 200, 160),
		ocrTok("75.00", 0, 280, 160), ocrTok("150.00", 0, 360, 160),

		ocrTok("Subtotal", 0, 240, 220), ocrTok("1,650.00", 0, 360, 220),
		ocrTok("Total", 0, 240, 250), ocrTok("$1,650.00", 0, 360, 250),
	}
}

func TestLinesOCRReadingOrder(t *testing.T) {
	tokens := []document.TextToken{
		ocrTok("bottom", 0, 40, 300),
		ocrTok("top", 0, 40, 20),
	}
	lines := Lines(tokens)
	if len(lines) != 2 {
		t.Fatalf("got %d lines; want 2", len(lines))
	}
	if LineText(tokens, lines[0]) != "top" || LineText(tokens, lines[1]) != "bottom" {
		t.Errorf("order = %q, %q; want top before bottom",
			LineText(tokens, lines[0]), LineText(tokens, lines[1]))
	}
}

func TestLinesNativeReadingOrder(t *testing.T) {
	// Native PDF coordinates grow upward, so the larger Y is the top row.
	tokens := []document.TextToken{
		nativeTok("bottom", 0, 40, 100),
		nativeTok("top", 0, 40, 700),
	}
	lines := Lines(tokens)
	if len(lines) != 2 {
		t.Fatalf("got %d lines; want 2", len(lines))
	}
	if LineText(tokens, lines[0]) != "top" || LineText(tokens, lines[1]) != "bottom" {
		t.Errorf("order = %q, %q; want top before bottom",
			LineText(tokens, lines[0]), LineText(tokens, lines[1]))
	}
}

func TestLinesGroupsJitteredRow(t *testing.T) {
	// Token height 15 gives a 9-unit tolerance, so a 4-unit wobble stays
	// in the same row, and the row is re-sorted left to right.
	tokens := []document.TextToken{
		ocrTok("world", 0, 120, 104),
		ocrTok("hello", 0, 40, 100),
	}
	lines := Lines(tokens)
	if len(lines) != 1 {
		t.Fatalf("got %d lines; want 1", len(lines))
	}
	if got := LineText(tokens, lines[0]); got != "hello world" {
		t.Errorf("row = %q; want %q", got, "hello world")
	}
}

func TestFlattenPagesSeparatedByFormFeed(t *testing.T) {
	tokens := []document.TextToken{
		ocrTok("one", 0, 40, 20),
		ocrTok("two", 1, 40, 20),
	}
	got := Flatten(tokens)
	if got != "one\n\f\ntwo" {
		t.Errorf("flat = %q", got)
	}
}

func TestAnalyzeLabelsInvoiceRegions(t *testing.T) {
	tokens := invoiceTokens()
	regions := NewAnalyzer(nil).Analyze(tokens)

	byKind := map[document.RegionKind]document.Region{}
	for _, r := range regions {
		if _, dup := byKind[r.Kind]; dup {
			t.Fatalf("duplicate %v region on one page", r.Kind)
		}
		byKind[r.Kind] = r
	}

	table, ok := byKind[document.RegionTable]
	if !ok {
		t.Fatal("no table region found")
	}
	tableText := regionText(tokens, table)
	if !strings.Contains(tableText, "Consulting") || !strings.Contains(tableText, "Design") {
		t.Errorf("table text = %q; missing item rows", tableText)
	}
	if !strings.Contains(tableText, "Description") {
		t.Errorf("table text = %q; column header row not attached", tableText)
	}

	header, ok := byKind[document.RegionHeader]
	if !ok {
		t.Fatal("no header region found")
	}
	headerText := regionText(tokens, header)
	if !strings.Contains(headerText, "ACME") || !strings.Contains(headerText, "INV-77") {
		t.Errorf("header text = %q", headerText)
	}
	if header.Page != 0 {
		t.Errorf("header page = %d", header.Page)
	}

	totals, ok := byKind[document.RegionTotals]
	if !ok {
		t.Fatal("no totals region found")
	}
	totalsText := regionText(tokens, totals)
	if !strings.Contains(totalsText, "Subtotal") || !strings.Contains(totalsText, "$1,650.00") {
		t.Errorf("totals text = %q", totalsText)
	}
}

func TestAnalyzeProseFallsToBody(t *testing.T) {
	tokens := []document.TextToken{
		ocrTok("Thank", 0, 40, 20), ocrTok("you", 0, 100, 20),
		ocrTok("for", 0, 40, 50), ocrTok("your", 0, 80, 50), ocrTok("business", 0, 130, 50),
		ocrTok("Payment", 0, 40, 80), ocrTok("terms", 0, 120, 80), ocrTok("apply", 0, 180, 80),
	}
	regions := NewAnalyzer(nil).Analyze(tokens)
	for _, r := range regions {
		if r.Kind == document.RegionTable {
			t.Errorf("prose labeled as table: %q", regionText(tokens, r))
		}
	}
}

func TestAnalyzeEmpty(t *testing.T) {
	if regions := NewAnalyzer(nil).Analyze(nil); regions != nil {
		t.Errorf("regions = %v; want none", regions)
	}
}

func regionText(tokens []document.TextToken, r document.Region) string {
	parts := make([]string, 0, len(r.TokenIdx))
	for _, i := range r.TokenIdx {
		parts = append(parts, tokens[i].Text)
	}
	return strings.Join(parts, " ")
}
