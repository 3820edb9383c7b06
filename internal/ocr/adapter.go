package ocr

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/JoeYatesss/invoice/internal/common"
	"github.com/JoeYatesss/invoice/internal/document"
)

// Adapter fronts one or more OCR engines behind a single capability.
// Engines are tried in order per page: if the primary errors or returns
// no tokens, the next engine gets the same page. A page that fails every
// engine yields zero tokens and an OCR_PAGE_FAILED warning instead of a
// pipeline failure.
type Adapter struct {
	engines []Engine
	logger  *slog.Logger
}

func NewAdapter(logger *slog.Logger, engines ...Engine) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{engines: engines, logger: logger}
}

// RecognizePage runs the engine chain for one rasterized page.
// The warnings slice is non-empty when fallback engines were used or the
// page failed entirely; err is reserved for context cancellation.
func (a *Adapter) RecognizePage(ctx context.Context, page document.PageSurface) ([]document.TextToken, []string, error) {
	var warnings []string
	for _, eng := range a.engines {
		if ctx.Err() != nil {
			return nil, warnings, ctx.Err()
		}
		tokens, err := eng.Recognize(ctx, page.ImagePath, page.Index)
		if err != nil {
			a.logger.Warn("ocr engine failed",
				"engine", eng.Name(), "page", page.Index, "error", err)
			warnings = append(warnings, fmt.Sprintf("%s engine %s: %v", common.WarnOCRPageFailed, eng.Name(), err))
			continue
		}
		if len(tokens) == 0 {
			a.logger.Debug("ocr engine returned no tokens, trying next",
				"engine", eng.Name(), "page", page.Index)
			continue
		}
		return tokens, warnings, nil
	}
	warnings = append(warnings, fmt.Sprintf("%s:%d", common.WarnOCRPageFailed, page.Index))
	return nil, warnings, nil
}
