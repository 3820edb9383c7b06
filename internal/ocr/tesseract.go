package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/JoeYatesss/invoice/internal/document"
)

// TesseractConfig configures the exec-based tesseract engine.
type TesseractConfig struct {
	Binary      string // binary name or absolute path; if empty -> "tesseract"
	Language    string // default "eng"
	TessdataDir string
	PSM         int // e.g. 6 for a uniform block of text
	OEM         int // 1 = LSTM; leave 0 to use default
}

// TesseractEngine shells out to tesseract in TSV mode, which yields
// word-level boxes and confidences in one pass.
type TesseractEngine struct {
	cfg    TesseractConfig
	runner document.Runner
	logger *slog.Logger
}

func NewTesseractEngine(cfg TesseractConfig, runner document.Runner, logger *slog.Logger) *TesseractEngine {
	if cfg.Binary == "" {
		cfg.Binary = "tesseract"
	}
	if cfg.Language == "" {
		cfg.Language = "eng"
	}
	if runner == nil {
		runner = document.ExecRunner{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TesseractEngine{cfg: cfg, runner: runner, logger: logger}
}

func (e *TesseractEngine) Name() string { return "tesseract" }

// Recognize runs: tesseract <file> stdout -l <lang> [...] tsv
func (e *TesseractEngine) Recognize(ctx context.Context, imagePath string, pageIndex int) ([]document.TextToken, error) {
	args := []string{imagePath, "stdout", "-l", e.cfg.Language}
	if e.cfg.PSM > 0 {
		args = append(args, "--psm", strconv.Itoa(e.cfg.PSM))
	}
	if e.cfg.OEM > 0 {
		args = append(args, "--oem", strconv.Itoa(e.cfg.OEM))
	}
	if e.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", e.cfg.TessdataDir)
	}
	args = append(args, "tsv")

	out, errb, err := e.runner.Run(ctx, e.cfg.Binary, args...)
	if err != nil {
		return nil, fmt.Errorf("tesseract: %w: %s", err, strings.TrimSpace(string(errb)))
	}
	return parseTSV(string(out), pageIndex, e.Name()), nil
}

// parseTSV extracts word rows (level 5) from tesseract TSV output.
// Columns: level page block par line word left top width height conf text
func parseTSV(tsv string, pageIndex int, engine string) []document.TextToken {
	var tokens []document.TextToken
	lines := strings.Split(tsv, "\n")
	for i, ln := range lines {
		if i == 0 || len(ln) == 0 {
			continue // header
		}
		cols := strings.Split(ln, "\t")
		if len(cols) < 12 {
			continue
		}
		if cols[0] != "5" {
			continue
		}
		text := strings.TrimSpace(cols[11])
		if text == "" {
			continue
		}
		left, _ := strconv.ParseFloat(cols[6], 64)
		top, _ := strconv.ParseFloat(cols[7], 64)
		width, _ := strconv.ParseFloat(cols[8], 64)
		height, _ := strconv.ParseFloat(cols[9], 64)

		conf := -1.0
		if cols[10] != "" && cols[10] != "-1" {
			if v, err := strconv.ParseFloat(cols[10], 64); err == nil {
				conf = v / 100.0
			}
		}

		tokens = append(tokens, document.TextToken{
			Text:       text,
			BBox:       document.BBox{X0: left, Y0: top, X1: left + width, Y1: top + height},
			Page:       pageIndex,
			Source:     document.SourceOCR,
			Engine:     engine,
			Confidence: conf,
		})
	}
	return tokens
}
