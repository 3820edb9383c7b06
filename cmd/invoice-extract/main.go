// invoice-extract runs one extraction from the command line and prints
// the outcome as JSON, for scripting and for poking at documents without
// standing up the HTTP server.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/JoeYatesss/invoice/constants"
	"github.com/JoeYatesss/invoice/internal/common"
	"github.com/JoeYatesss/invoice/internal/document"
	"github.com/JoeYatesss/invoice/internal/layout"
	"github.com/JoeYatesss/invoice/internal/llm"
	"github.com/JoeYatesss/invoice/internal/ocr"
	"github.com/JoeYatesss/invoice/internal/pipeline"
	"github.com/JoeYatesss/invoice/internal/rules"
)

func main() {
	method := flag.String("method", "auto", "extraction method: auto | layout_only | ocr_only | ocr_plus_ai")
	timeout := flag.Duration("timeout", 2*time.Minute, "overall extraction timeout")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if flag.NArg() != 1 {
		logger.Error("usage", "cmd", "invoice-extract [-method auto] [-timeout 2m] <file>")
		os.Exit(2)
	}
	path := flag.Arg(0)

	if err := godotenv.Load(); err != nil {
		logger.Debug("no .env file loaded", "error", err)
	}
	cfg := common.LoadConfig()

	content, err := os.ReadFile(path)
	if err != nil {
		logger.Error("read file", "path", path, "error", err)
		os.Exit(1)
	}
	ext := strings.TrimPrefix(filepath.Ext(path), ".")

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	orch := buildOrchestrator(cfg, logger)
	start := time.Now()
	outcome, err := orch.Extract(ctx, content, ext, constants.ParseMethod(*method))
	if err != nil {
		logger.Error("extraction failed",
			"path", path, "error", err, "duration_ms", time.Since(start).Milliseconds())
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(outcome); err != nil {
		logger.Error("encode outcome", "error", err)
		os.Exit(1)
	}
	logger.Info("extraction OK",
		"path", path,
		"method_used", outcome.MethodUsed,
		"fields", len(outcome.Provenance),
		"warnings", len(outcome.Warnings),
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

func buildOrchestrator(cfg *common.Config, logger *slog.Logger) *pipeline.Orchestrator {
	runner := document.ExecRunner{}

	normalizer := document.NewNormalizer(document.Config{
		Pdftoppm:    cfg.OCR.Pdftoppm,
		DPI:         cfg.OCR.DPI,
		MaxPages:    cfg.OCR.MaxPages,
		ArtifactDir: cfg.OCR.ArtifactDir,
	}, runner, logger)

	tesseract := ocr.NewTesseractEngine(ocr.TesseractConfig{
		Binary:   cfg.OCR.Tesseract,
		Language: cfg.OCR.Language,
	}, runner, logger)
	adapter := ocr.NewAdapter(logger, tesseract)

	analyzer := layout.NewAnalyzer(logger)
	acquirer := pipeline.NewAcquirer(adapter, analyzer, cfg.OCR.PageWorkers, logger)

	ruleExtractor := rules.NewExtractor(logger)
	aiClient := llm.NewClient(llm.Config{
		APIKey:      cfg.AI.APIKey,
		BaseURL:     cfg.AI.BaseURL,
		Model:       cfg.AI.Model,
		Temperature: cfg.AI.Temperature,
		Timeout:     cfg.AI.Timeout,
		MaxTokens:   cfg.AI.MaxTokens,
		MaxRetries:  cfg.AI.MaxRetries,
	}, logger)
	aiProducer := llm.NewProducer(aiClient, logger)

	return pipeline.NewOrchestrator(normalizer, acquirer, ruleExtractor, aiProducer, logger)
}
