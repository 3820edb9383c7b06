package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"strings"
	"testing"

	"github.com/JoeYatesss/invoice/constants"
	"github.com/JoeYatesss/invoice/internal/common"
	"github.com/JoeYatesss/invoice/internal/document"
	"github.com/JoeYatesss/invoice/internal/entity"
	"github.com/JoeYatesss/invoice/internal/extract"
	"github.com/JoeYatesss/invoice/internal/layout"
	"github.com/JoeYatesss/invoice/internal/ocr"
	"github.com/JoeYatesss/invoice/internal/rules"
)

// stubEngine returns canned tokens instead of shelling out.
type stubEngine struct {
	tokens []document.TextToken
	err    error
}

func (s *stubEngine) Name() string { return "stub" }

func (s *stubEngine) Recognize(_ context.Context, _ string, pageIndex int) ([]document.TextToken, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([]document.TextToken, len(s.tokens))
	copy(out, s.tokens)
	for i := range out {
		out[i].Page = pageIndex
	}
	return out, nil
}

// stubAI is a canned AI strategy.
type stubAI struct {
	cand      extract.Candidate
	err       error
	available bool
	called    bool
}

func (s *stubAI) Method() string  { return constants.SourceAI }
func (s *stubAI) Available() bool { return s.available }

func (s *stubAI) Produce(context.Context, *extract.DocumentText) (extract.Candidate, error) {
	s.called = true
	return s.cand, s.err
}

func pngFixture(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 32, 32))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// invoiceTokens lays out "Invoice Number: INV-77" and "Total $100.00"
// as two OCR rows.
func invoiceTokens() []document.TextToken {
	tok := func(text string, x, y float64) document.TextToken {
		return document.TextToken{
			Text:       text,
			BBox:       document.BBox{X0: x, Y0: y, X1: x + 50, Y1: y + 12},
			Source:     document.SourceOCR,
			Engine:     "stub",
			Confidence: 0.9,
		}
	}
	return []document.TextToken{
		tok("Invoice", 0, 10), tok("Number:", 60, 10), tok("INV-77", 130, 10),
		tok("Total", 0, 40), tok("$100.00", 60, 40),
	}
}

func newTestOrchestrator(t *testing.T, engine ocr.Engine, ai extract.Producer) *Orchestrator {
	t.Helper()
	normalizer := document.NewNormalizer(document.Config{ArtifactDir: t.TempDir()}, nil, nil)
	adapter := ocr.NewAdapter(nil, engine)
	acquirer := NewAcquirer(adapter, layout.NewAnalyzer(nil), 2, nil)
	return NewOrchestrator(normalizer, acquirer, rules.NewExtractor(nil), ai, nil)
}

func TestExtractAutoWithoutAICredential(t *testing.T) {
	ai := &stubAI{available: false}
	o := newTestOrchestrator(t, &stubEngine{tokens: invoiceTokens()}, ai)

	outcome, err := o.Extract(context.Background(), pngFixture(t), "png", constants.MethodAuto)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if ai.called {
		t.Error("unconfigured ai strategy was invoked")
	}
	for field, method := range outcome.Provenance {
		if method == constants.SourceAI {
			t.Errorf("field %s attributed to ai without a credential", field)
		}
	}
	if outcome.MethodUsed != constants.SourceRules {
		t.Errorf("method_used = %q; want %q", outcome.MethodUsed, constants.SourceRules)
	}
	if outcome.Record.InvoiceNumber != "INV-77" {
		t.Errorf("invoice number = %q; want INV-77", outcome.Record.InvoiceNumber)
	}
}

func TestExtractAutoMergesAICandidate(t *testing.T) {
	var aiRec entity.InvoiceRecord
	aiRec.Vendor.Name = "Stub Vendor Ltd"
	ai := &stubAI{
		available: true,
		cand: extract.Candidate{
			Method: constants.SourceAI,
			Record: aiRec,
			FieldConfidence: map[string]float64{
				entity.FieldVendorName: 0.9,
			},
		},
	}
	o := newTestOrchestrator(t, &stubEngine{tokens: invoiceTokens()}, ai)

	outcome, err := o.Extract(context.Background(), pngFixture(t), "png", constants.MethodAuto)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if outcome.Record.Vendor.Name != "Stub Vendor Ltd" {
		t.Errorf("vendor = %q; want ai value", outcome.Record.Vendor.Name)
	}
	if outcome.Provenance[entity.FieldVendorName] != constants.SourceAI {
		t.Errorf("vendor provenance = %q; want ai", outcome.Provenance[entity.FieldVendorName])
	}
	// Rules still win the fields the ai did not claim.
	if outcome.Provenance[entity.FieldInvoiceNumber] != constants.SourceRules {
		t.Errorf("invoice number provenance = %q; want rules", outcome.Provenance[entity.FieldInvoiceNumber])
	}
	if outcome.MethodUsed != "rules+ai" {
		t.Errorf("method_used = %q; want rules+ai", outcome.MethodUsed)
	}
}

func TestExtractOCRPlusAIFallsBackToRules(t *testing.T) {
	ai := &stubAI{available: true, err: common.WrapError(common.ErrAIUnavailable, "stub outage")}
	o := newTestOrchestrator(t, &stubEngine{tokens: invoiceTokens()}, ai)

	outcome, err := o.Extract(context.Background(), pngFixture(t), "png", constants.MethodOCRPlusAI)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if outcome.Record.InvoiceNumber != "INV-77" {
		t.Errorf("fallback did not run rules: %+v", outcome.Record)
	}
	found := false
	for _, w := range outcome.Warnings {
		if strings.Contains(w, "fell back to rules") {
			found = true
		}
	}
	if !found {
		t.Errorf("no fallback warning in %v", outcome.Warnings)
	}
}

func TestExtractExhausted(t *testing.T) {
	// Engine yields nothing: OCR_PAGE_FAILED warning, zero fields.
	o := newTestOrchestrator(t, &stubEngine{}, &stubAI{available: false})

	_, err := o.Extract(context.Background(), pngFixture(t), "png", constants.MethodOCROnly)
	if !errors.Is(err, common.ErrExtractionExhausted) {
		t.Fatalf("err = %v; want ErrExtractionExhausted", err)
	}
	if !strings.Contains(err.Error(), common.WarnOCRPageFailed) {
		t.Errorf("exhaustion error does not carry page warnings: %v", err)
	}
}

func TestExtractCorruptUpload(t *testing.T) {
	o := newTestOrchestrator(t, &stubEngine{tokens: invoiceTokens()}, &stubAI{})

	_, err := o.Extract(context.Background(), nil, "pdf", constants.MethodAuto)
	if !errors.Is(err, common.ErrCorruptDocument) {
		t.Fatalf("zero-byte upload: err = %v; want ErrCorruptDocument", err)
	}
}

func TestExtractUnsupportedFormat(t *testing.T) {
	o := newTestOrchestrator(t, &stubEngine{tokens: invoiceTokens()}, &stubAI{})

	_, err := o.Extract(context.Background(), []byte("hello"), "docx", constants.MethodAuto)
	if !errors.Is(err, common.ErrUnsupportedFormat) {
		t.Fatalf("err = %v; want ErrUnsupportedFormat", err)
	}
}

func TestExtractIdempotent(t *testing.T) {
	o := newTestOrchestrator(t, &stubEngine{tokens: invoiceTokens()}, &stubAI{available: false})
	content := pngFixture(t)

	first, err := o.Extract(context.Background(), content, "png", constants.MethodAuto)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := o.Extract(context.Background(), content, "png", constants.MethodAuto)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if first.Record.InvoiceNumber != second.Record.InvoiceNumber ||
		!first.Record.Total.Equal(second.Record.Total) ||
		first.MethodUsed != second.MethodUsed {
		t.Errorf("re-run drifted: %+v vs %+v", first.Record, second.Record)
	}
}
