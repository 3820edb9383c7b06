package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/JoeYatesss/invoice/constants"
	"github.com/JoeYatesss/invoice/internal/common"
	"github.com/JoeYatesss/invoice/internal/extract"
	"github.com/JoeYatesss/invoice/internal/repository"
)

// extractor is the slice of the pipeline the ingestor needs.
type extractor interface {
	Extract(ctx context.Context, content []byte, declaredFormat string, method constants.Method) (*extract.Outcome, error)
}

// Service drains watched paths through the extraction pipeline. Files
// are deduplicated by content hash, so a re-dropped or re-saved invoice
// is not extracted twice.
type Service struct {
	pipeline extractor
	history  repository.HistoryRepository
	method   constants.Method
	workers  int
	logger   *slog.Logger

	mu   sync.Mutex
	seen map[string]struct{} // sha256 of processed content
}

func NewService(pipeline extractor, history repository.HistoryRepository, method constants.Method, workers int, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if workers <= 0 {
		workers = 2
	}
	if history == nil {
		history = repository.NopHistory{}
	}
	return &Service{
		pipeline: pipeline,
		history:  history,
		method:   method,
		workers:  workers,
		logger:   logger,
		seen:     map[string]struct{}{},
	}
}

// Run consumes paths until the channel closes or the context ends.
func (s *Service) Run(ctx context.Context, paths <-chan string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for {
		select {
		case <-gctx.Done():
			_ = g.Wait()
			return gctx.Err()
		case path, ok := <-paths:
			if !ok {
				return g.Wait()
			}
			g.Go(func() error {
				s.Process(gctx, path)
				return nil
			})
		}
	}
}

// Process extracts one file. Failures are recorded and logged, never
// propagated: one bad drop must not stop the watcher.
func (s *Service) Process(ctx context.Context, path string) {
	start := time.Now()
	content, err := os.ReadFile(path)
	if err != nil {
		s.logger.Warn("ingest.read.failed", "path", path, "error", err)
		return
	}

	sum := sha256.Sum256(content)
	digest := hex.EncodeToString(sum[:])
	if s.alreadySeen(digest) {
		s.logger.Debug("ingest.skip.duplicate", "path", path, "sha256", digest)
		return
	}

	ext := constants.NormalizeExt(filepath.Ext(path))
	outcome, err := s.pipeline.Extract(ctx, content, ext, s.method)

	entry := repository.Entry{
		Filename:        filepath.Base(path),
		Format:          ext,
		RequestedMethod: string(s.method),
		DurationMS:      time.Since(start).Milliseconds(),
	}
	if err != nil {
		entry.ErrorCode = common.ErrorCode(err)
		if rerr := s.history.Record(ctx, entry); rerr != nil {
			s.logger.Warn("ingest.history.failed", "path", path, "error", rerr)
		}
		s.logger.Error("ingest.extract.failed", "path", path, "error", err)
		return
	}

	entry.Success = true
	entry.MethodUsed = outcome.MethodUsed
	entry.FieldCount = len(outcome.Provenance)
	entry.Warnings = outcome.Warnings
	if rerr := s.history.Record(ctx, entry); rerr != nil {
		s.logger.Warn("ingest.history.failed", "path", path, "error", rerr)
	}

	if err := writeSidecar(path, outcome); err != nil {
		s.logger.Warn("ingest.sidecar.failed", "path", path, "error", err)
		return
	}
	s.logger.Info("ingest.extract.done",
		"path", path,
		"method_used", outcome.MethodUsed,
		"fields", len(outcome.Provenance),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
}

func (s *Service) alreadySeen(digest string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[digest]; ok {
		return true
	}
	s.seen[digest] = struct{}{}
	return false
}

// writeSidecar puts the outcome at <file>.extracted.json, atomically so
// a watcher on the same directory never reads a half-written file.
func writeSidecar(path string, outcome *extract.Outcome) error {
	data, err := json.MarshalIndent(outcome, "", "  ")
	if err != nil {
		return err
	}
	target := path + ".extracted.json"
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, target)
}
