// Package server exposes the extraction pipeline over HTTP: one
// multipart upload endpoint, the extraction history, and a health probe.
package server

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/JoeYatesss/invoice/constants"
	"github.com/JoeYatesss/invoice/internal/common"
	"github.com/JoeYatesss/invoice/internal/pipeline"
	"github.com/JoeYatesss/invoice/internal/repository"
)

// maxUploadBytes bounds one document upload.
const maxUploadBytes = 32 << 20

type Server struct {
	orch    *pipeline.Orchestrator
	history repository.HistoryRepository
	logger  *slog.Logger
}

func New(orch *pipeline.Orchestrator, history repository.HistoryRepository, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if history == nil {
		history = repository.NopHistory{}
	}
	return &Server{orch: orch, history: history, logger: logger}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.MaxMultipartMemory = maxUploadBytes

	r.GET("/healthz", s.health)
	api := r.Group("/api/v1")
	api.POST("/extract", s.extract)
	api.GET("/history", s.listHistory)
	return r
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// extract handles one multipart upload: form file "file", optional form
// value "method" (auto | layout_only | ocr_only | ocr_plus_ai).
func (s *Server) extract(c *gin.Context) {
	start := time.Now()

	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "form file 'file' is required"})
		return
	}
	if fh.Size > maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	}
	method := constants.ParseMethod(c.PostForm("method"))
	ext := strings.TrimPrefix(filepath.Ext(fh.Filename), ".")

	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot open upload"})
		return
	}
	content, err := io.ReadAll(f)
	if cErr := f.Close(); cErr != nil {
		s.logger.Warn("upload close failed", "error", cErr)
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read upload"})
		return
	}

	outcome, err := s.orch.Extract(c.Request.Context(), content, ext, method)
	entry := repository.Entry{
		Filename:        fh.Filename,
		Format:          ext,
		RequestedMethod: string(method),
		DurationMS:      time.Since(start).Milliseconds(),
	}
	if err != nil {
		entry.Success = false
		entry.ErrorCode = errorCode(err)
		s.recordHistory(c, entry)
		status := errorStatus(err)
		s.logger.Warn("extract request failed",
			"filename", fh.Filename, "method", method, "status", status, "error", err)
		c.JSON(status, gin.H{"error": err.Error(), "code": entry.ErrorCode})
		return
	}

	entry.Success = true
	entry.MethodUsed = outcome.MethodUsed
	entry.FieldCount = len(outcome.Provenance)
	entry.Warnings = outcome.Warnings
	s.recordHistory(c, entry)

	c.JSON(http.StatusOK, outcome)
}

func (s *Server) listHistory(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	entries, err := s.history.List(c.Request.Context(), limit)
	if err != nil {
		s.logger.Error("history list failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "history unavailable"})
		return
	}
	if entries == nil {
		entries = []repository.Entry{}
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (s *Server) recordHistory(c *gin.Context, e repository.Entry) {
	if err := s.history.Record(c.Request.Context(), e); err != nil {
		s.logger.Error("history record failed", "filename", e.Filename, "error", err)
	}
}

// errorStatus maps the pipeline taxonomy onto HTTP statuses. Fatal
// document problems are the client's fault; exhaustion means the
// document was readable but yielded nothing.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, common.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, common.ErrCorruptDocument):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrExtractionExhausted):
		return http.StatusUnprocessableEntity
	case errors.Is(err, common.ErrAIUnavailable), errors.Is(err, common.ErrAIResponseMalformed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, common.ErrUnsupportedFormat):
		return "UNSUPPORTED_FORMAT"
	case errors.Is(err, common.ErrCorruptDocument):
		return "CORRUPT_DOCUMENT"
	case errors.Is(err, common.ErrExtractionExhausted):
		return "EXTRACTION_EXHAUSTED"
	case errors.Is(err, common.ErrAIUnavailable):
		return "AI_UNAVAILABLE"
	case errors.Is(err, common.ErrAIResponseMalformed):
		return "AI_RESPONSE_MALFORMED"
	default:
		return common.ErrorCode(err)
	}
}
