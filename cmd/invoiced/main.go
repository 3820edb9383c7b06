package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/JoeYatesss/invoice/constants"
	"github.com/JoeYatesss/invoice/internal/common"
	"github.com/JoeYatesss/invoice/internal/document"
	"github.com/JoeYatesss/invoice/internal/ingest"
	"github.com/JoeYatesss/invoice/internal/layout"
	"github.com/JoeYatesss/invoice/internal/llm"
	"github.com/JoeYatesss/invoice/internal/ocr"
	"github.com/JoeYatesss/invoice/internal/pipeline"
	"github.com/JoeYatesss/invoice/internal/repository"
	"github.com/JoeYatesss/invoice/internal/rules"
	"github.com/JoeYatesss/invoice/internal/server"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		logger.Debug("no .env file loaded", "error", err)
	}
	cfg := common.LoadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	orch := buildOrchestrator(cfg, logger)

	var history repository.HistoryRepository = repository.NopHistory{}
	if cfg.History.Path != "" {
		h, err := repository.OpenHistory(ctx, cfg.History.Path, logger)
		if err != nil {
			logger.Error("open history db", "path", cfg.History.Path, "error", err)
			os.Exit(1)
		}
		history = h
	}
	defer func() {
		if err := history.Close(); err != nil {
			logger.Error("close history db", "error", err)
		}
	}()

	srv := server.New(orch, history, logger)
	httpSrv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if cfg.Watch.Dir != "" {
		paths, _, err := ingest.Watch(ctx, ingest.WatchOptions{
			Root:        cfg.Watch.Dir,
			InitialScan: true,
			Debounce:    cfg.Watch.Debounce,
		}, logger)
		if err != nil {
			logger.Error("start drop-folder watcher", "dir", cfg.Watch.Dir, "error", err)
			os.Exit(1)
		}
		svc := ingest.NewService(orch, history,
			constants.ParseMethod(cfg.Watch.Method), cfg.Watch.Workers, logger)
		go func() {
			if err := svc.Run(ctx, paths); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("drop-folder ingest stopped", "error", err)
			}
		}()
	}

	go func() {
		logger.Info("http serving", "addr", cfg.Server.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http serve", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	logger.Info("stopped")
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
