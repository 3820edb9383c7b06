package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/JoeYatesss/invoice/constants"
	"github.com/JoeYatesss/invoice/internal/common"
	"github.com/JoeYatesss/invoice/internal/entity"
	"github.com/JoeYatesss/invoice/internal/extract"
	"github.com/JoeYatesss/invoice/internal/repository"
)

type stubPipeline struct {
	calls   atomic.Int32
	outcome *extract.Outcome
	err     error
}

func (s *stubPipeline) Extract(context.Context, []byte, string, constants.Method) (*extract.Outcome, error) {
	s.calls.Add(1)
	return s.outcome, s.err
}

type recordingHistory struct {
	repository.NopHistory
	entries []repository.Entry
}

func (h *recordingHistory) Record(_ context.Context, e repository.Entry) error {
	h.entries = append(h.entries, e)
	return nil
}

func dropFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestProcessWritesSidecarAndHistory(t *testing.T) {
	var rec entity.InvoiceRecord
	rec.InvoiceNumber = "INV-9"
	pipe := &stubPipeline{outcome: &extract.Outcome{
		Record:     rec,
		MethodUsed: constants.SourceRules,
		Provenance: map[string]string{entity.FieldInvoiceNumber: constants.SourceRules},
	}}
	hist := &recordingHistory{}
	svc := NewService(pipe, hist, constants.MethodAuto, 1, nil)

	path := dropFile(t, t.TempDir(), "inv.pdf", []byte("%PDF-1.4 fake"))
	svc.Process(context.Background(), path)

	data, err := os.ReadFile(path + ".extracted.json")
	if err != nil {
		t.Fatalf("sidecar missing: %v", err)
	}
	var out extract.Outcome
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("sidecar not valid JSON: %v", err)
	}
	if out.Record.InvoiceNumber != "INV-9" || out.MethodUsed != constants.SourceRules {
		t.Errorf("sidecar outcome = %+v", out)
	}

	if len(hist.entries) != 1 {
		t.Fatalf("history entries = %d; want 1", len(hist.entries))
	}
	e := hist.entries[0]
	if !e.Success || e.Filename != "inv.pdf" || e.Format != "pdf" || e.FieldCount != 1 {
		t.Errorf("entry = %+v", e)
	}
}

func TestProcessDeduplicatesByContent(t *testing.T) {
	pipe := &stubPipeline{outcome: &extract.Outcome{MethodUsed: constants.SourceRules}}
	svc := NewService(pipe, nil, constants.MethodAuto, 1, nil)

	dir := t.TempDir()
	first := dropFile(t, dir, "a.pdf", []byte("same bytes"))
	second := dropFile(t, dir, "b.pdf", []byte("same bytes"))

	svc.Process(context.Background(), first)
	svc.Process(context.Background(), second)

	if got := pipe.calls.Load(); got != 1 {
		t.Errorf("pipeline calls = %d; want 1 (identical content skipped)", got)
	}
}

func TestProcessRecordsFailure(t *testing.T) {
	pipe := &stubPipeline{err: common.NewAppError("EXTRACTION_EXHAUSTED", "nothing matched", common.ErrExtractionExhausted)}
	hist := &recordingHistory{}
	svc := NewService(pipe, hist, constants.MethodOCROnly, 1, nil)

	path := dropFile(t, t.TempDir(), "bad.png", []byte("junk"))
	svc.Process(context.Background(), path)

	if _, err := os.Stat(path + ".extracted.json"); !errors.Is(err, os.ErrNotExist) {
		t.Error("sidecar written for a failed extraction")
	}
	if len(hist.entries) != 1 {
		t.Fatalf("history entries = %d; want 1", len(hist.entries))
	}
	e := hist.entries[0]
	if e.Success || e.ErrorCode != "EXTRACTION_EXHAUSTED" {
		t.Errorf("entry = %+v", e)
	}
}

func TestRunDrainsChannel(t *testing.T) {
	pipe := &stubPipeline{outcome: &extract.Outcome{MethodUsed: constants.SourceRules}}
	svc := NewService(pipe, nil, constants.MethodAuto, 2, nil)

	dir := t.TempDir()
	paths := make(chan string, 3)
	paths <- dropFile(t, dir, "a.pdf", []byte("one"))
	paths <- dropFile(t, dir, "b.pdf", []byte("two"))
	paths <- dropFile(t, dir, "c.pdf", []byte("three"))
	close(paths)

	if err := svc.Run(context.Background(), paths); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := pipe.calls.Load(); got != 3 {
		t.Errorf("pipeline calls = %d; want 3", got)
	}
}
