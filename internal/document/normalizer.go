package document

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/JoeYatesss/invoice/constants"
	"github.com/JoeYatesss/invoice/internal/common"
)

// Config for the document normalizer.
type Config struct {
	Pdftoppm    string // binary name or absolute path; if empty -> "pdftoppm"
	DPI         int    // rasterization DPI for image-only pages, default 300
	MaxPages    int    // 0 = no limit
	ArtifactDir string // parent dir for per-request work dirs; "" = os temp

	MinNativeTokens int // below this a native page is flagged image-only
	MinNativeChars  int
}

// Normalizer turns raw upload bytes into an ordered sequence of
// PageSurfaces: native positioned text where the PDF carries a usable
// text layer, rasterized PNG pages everywhere else.
type Normalizer struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewNormalizer(cfg Config, runner Runner, logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	if cfg.MinNativeTokens <= 0 {
		cfg.MinNativeTokens = 8
	}
	if cfg.MinNativeChars <= 0 {
		cfg.MinNativeChars = 40
	}
	return &Normalizer{cfg: cfg, runner: runner, logger: logger}
}

// Normalize builds a SourceDocument from upload bytes and the declared
// format. Fails with common.ErrUnsupportedFormat for formats outside
// {pdf, png, jpg, jpeg} and common.ErrCorruptDocument when no pages can
// be recovered. forceRaster skips the native text layer and rasterizes
// every PDF page, for callers that want OCR unconditionally. The caller
// owns the returned document and must Close it.
func (n *Normalizer) Normalize(ctx context.Context, content []byte, declaredFormat string, forceRaster bool) (*SourceDocument, error) {
	format := constants.MapExtToFormat(declaredFormat)
	if format == "" {
		return nil, fmt.Errorf("%w: %q", common.ErrUnsupportedFormat, declaredFormat)
	}
	if len(content) == 0 {
		return nil, fmt.Errorf("%w: empty upload", common.ErrCorruptDocument)
	}

	workDir, err := os.MkdirTemp(n.cfg.ArtifactDir, "inv-doc-*")
	if err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	doc := &SourceDocument{Format: format, workDir: workDir}

	switch format {
	case constants.PDF:
		err = n.normalizePDF(ctx, content, doc, forceRaster)
	case constants.IMAGE:
		err = n.normalizeImage(content, doc)
	}
	if err != nil {
		doc.Close()
		return nil, err
	}
	if len(doc.Pages) == 0 {
		doc.Close()
		return nil, fmt.Errorf("%w: no pages recoverable", common.ErrCorruptDocument)
	}
	return doc, nil
}

func (n *Normalizer) normalizeImage(content []byte, doc *SourceDocument) error {
	path, err := prepareImage(content, doc.workDir)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrCorruptDocument, err)
	}
	doc.Pages = []PageSurface{{Index: 0, ImagePath: path}}
	return nil
}

func (n *Normalizer) normalizePDF(ctx context.Context, content []byte, doc *SourceDocument, forceRaster bool) error {
	if !bytes.HasPrefix(content, []byte("%PDF")) {
		return fmt.Errorf("%w: missing pdf header", common.ErrCorruptDocument)
	}

	pdfPath := filepath.Join(doc.workDir, "in.pdf")
	if err := os.WriteFile(pdfPath, content, 0o600); err != nil {
		return fmt.Errorf("stage pdf: %w", err)
	}

	if forceRaster {
		pages, err := n.rasterize(ctx, pdfPath, doc.workDir, 0, 0)
		if err != nil || len(pages) == 0 {
			return fmt.Errorf("%w: rasterization failed", common.ErrCorruptDocument)
		}
		for i, p := range pages {
			doc.Pages = append(doc.Pages, PageSurface{Index: i, ImagePath: p})
		}
		return nil
	}

	native, nativeErr := nativePDFTokens(content)
	if nativeErr != nil {
		// Text layer unreadable; the container may still rasterize.
		n.logger.Warn("native pdf text extraction failed, rasterizing all pages",
			"error", nativeErr)
		pages, err := n.rasterize(ctx, pdfPath, doc.workDir, 0, 0)
		if err != nil || len(pages) == 0 {
			return fmt.Errorf("%w: text layer and raster both failed", common.ErrCorruptDocument)
		}
		for i, p := range pages {
			doc.Pages = append(doc.Pages, PageSurface{Index: i, ImagePath: p})
		}
		return nil
	}

	pageCount := len(native)
	if n.cfg.MaxPages > 0 && pageCount > n.cfg.MaxPages {
		pageCount = n.cfg.MaxPages
	}
	for i := 0; i < pageCount; i++ {
		tokens := native[i]
		if pageDensity(tokens, n.cfg.MinNativeTokens, n.cfg.MinNativeChars) {
			doc.Pages = append(doc.Pages, PageSurface{Index: i, Native: true, Tokens: tokens})
			continue
		}
		// Image-only page: native layer empty or too sparse to trust.
		n.logger.Debug("pdf page below native token density, rasterizing",
			"page", i, "tokens", len(tokens))
		paths, err := n.rasterize(ctx, pdfPath, doc.workDir, i+1, i+1)
		if err != nil || len(paths) == 0 {
			// Keep the sparse native tokens rather than dropping the page.
			n.logger.Warn("rasterization failed, keeping sparse native page",
				"page", i, "error", err)
			doc.Pages = append(doc.Pages, PageSurface{Index: i, Native: true, Tokens: tokens})
			continue
		}
		doc.Pages = append(doc.Pages, PageSurface{Index: i, ImagePath: paths[0]})
	}
	return nil
}

var rePageNum = regexp.MustCompile(`-(\d+)\.png$`)

// rasterize renders PDF pages [first..last] (1-based; 0,0 = all) to PNG
// at the configured DPI. pdftoppm -r <dpi> -png [-f f -l l] <in> <prefix>
func (n *Normalizer) rasterize(ctx context.Context, pdfPath, workDir string, first, last int) ([]string, error) {
	prefix := filepath.Join(workDir, "page")
	args := []string{"-r", strconv.Itoa(n.cfg.DPI), "-png"}
	if first > 0 {
		args = append(args, "-f", strconv.Itoa(first), "-l", strconv.Itoa(last))
	}
	args = append(args, pdfPath, prefix)

	if _, errb, err := n.runner.Run(ctx, n.cfg.Pdftoppm, args...); err != nil {
		return nil, fmt.Errorf("pdftoppm: %w: %s", err, truncate(string(errb), 512))
	}

	matches, _ := filepath.Glob(prefix + "-*.png")
	// The work dir is shared across raster calls for one document, so a
	// ranged render must only pick up its own pages.
	if first > 0 {
		kept := matches[:0]
		for _, m := range matches {
			if p := rasterPageNumber(m); p >= first && p <= last {
				kept = append(kept, m)
			}
		}
		matches = kept
	}
	// pdftoppm numbers pages without padding, so sort numerically.
	sortByPageNumber(matches)
	if n.cfg.MaxPages > 0 && len(matches) > n.cfg.MaxPages {
		matches = matches[:n.cfg.MaxPages]
	}
	return matches, nil
}

func rasterPageNumber(path string) int {
	m := rePageNum.FindStringSubmatch(path)
	if m == nil {
		return 0
	}
	v, _ := strconv.Atoi(m[1])
	return v
}

func sortByPageNumber(paths []string) {
	for i := 1; i < len(paths); i++ {
		for j := i; j > 0 && rasterPageNumber(paths[j]) < rasterPageNumber(paths[j-1]); j-- {
			paths[j], paths[j-1] = paths[j-1], paths[j]
		}
	}
}

// SniffFormat guesses a format from content when the declared one is
// untrusted. Returns "" when nothing matches.
func SniffFormat(content []byte) string {
	switch {
	case bytes.HasPrefix(content, []byte("%PDF")):
		return "pdf"
	case bytes.HasPrefix(content, []byte("\x89PNG")):
		return "png"
	case bytes.HasPrefix(content, []byte("\xff\xd8\xff")):
		return "jpg"
	}
	return ""
}
