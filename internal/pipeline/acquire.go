// Package pipeline coordinates one extraction request: token
// acquisition (native text layer or per-page OCR), the configured
// extraction strategies, and the field-level merge of their candidates.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/JoeYatesss/invoice/internal/document"
	"github.com/JoeYatesss/invoice/internal/extract"
	"github.com/JoeYatesss/invoice/internal/layout"
	"github.com/JoeYatesss/invoice/internal/ocr"
)

// Acquirer turns a normalized document into the immutable DocumentText
// both extraction strategies consume. OCR pages run in parallel up to
// Workers; native pages contribute their text-layer tokens directly.
type Acquirer struct {
	ocr      *ocr.Adapter
	analyzer *layout.Analyzer
	workers  int
	logger   *slog.Logger
}

func NewAcquirer(adapter *ocr.Adapter, analyzer *layout.Analyzer, workers int, logger *slog.Logger) *Acquirer {
	if workers <= 0 {
		workers = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Acquirer{ocr: adapter, analyzer: analyzer, workers: workers, logger: logger}
}

// Acquire gathers tokens for every page. With nativeOnly set, raster
// pages are skipped entirely (the layout-only policy runs no OCR).
// The only error returned is context cancellation; per-page OCR failures
// become warnings on the result.
func (a *Acquirer) Acquire(ctx context.Context, doc *document.SourceDocument, nativeOnly bool) (*extract.DocumentText, error) {
	pageTokens := make([][]document.TextToken, len(doc.Pages))
	pageWarnings := make([][]string, len(doc.Pages))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)
	for i, p := range doc.Pages {
		if p.Native {
			pageTokens[i] = p.Tokens
			continue
		}
		if nativeOnly {
			pageWarnings[i] = []string{fmt.Sprintf("page %d skipped: no native text layer", p.Index)}
			continue
		}
		i, p := i, p
		g.Go(func() error {
			tokens, warns, err := a.ocr.RecognizePage(gctx, p)
			if err != nil {
				return err
			}
			pageTokens[i] = tokens
			pageWarnings[i] = warns
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var tokens []document.TextToken
	var warnings []string
	for i := range doc.Pages {
		tokens = append(tokens, pageTokens[i]...)
		warnings = append(warnings, pageWarnings[i]...)
	}

	dt := &extract.DocumentText{
		Format:     doc.Format,
		Pages:      len(doc.Pages),
		NativeText: doc.HasNative(),
		Tokens:     tokens,
		Warnings:   warnings,
	}
	dt.Regions = a.analyzer.Analyze(tokens)
	dt.Flat = layout.Flatten(tokens)
	if !dt.NativeText && len(tokens) > 0 {
		dt.OCRConfidence = ocr.BlendedConfidence(tokens, dt.Flat)
		if dt.OCRConfidence < lowOCRConfidence {
			dt.Warnings = append(dt.Warnings,
				fmt.Sprintf("low ocr confidence %.2f", dt.OCRConfidence))
		}
	}

	a.logger.Info("pipeline.acquire.done",
		"pages", len(doc.Pages),
		"tokens", len(tokens),
		"regions", len(dt.Regions),
		"native", dt.NativeText,
		"ocr_confidence", dt.OCRConfidence,
		"warnings", len(dt.Warnings),
	)
	return dt, nil
}

// lowOCRConfidence is the blend below which the caller is warned that
// recognition quality is poor.
const lowOCRConfidence = 0.4
