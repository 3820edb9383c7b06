package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func collectPaths(t *testing.T, paths <-chan string, want int, deadline time.Duration) map[string]bool {
	t.Helper()
	got := map[string]bool{}
	timeout := time.After(deadline)
	for len(got) < want {
		select {
		case p, ok := <-paths:
			if !ok {
				t.Fatalf("watcher closed after %d of %d paths", len(got), want)
			}
			got[filepath.Base(p)] = true
		case <-timeout:
			t.Fatalf("timed out with %d of %d paths: %v", len(got), want, got)
		}
	}
	return got
}

func TestWatchEmitsSupportedDrops(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	paths, _, err := Watch(ctx, WatchOptions{Root: dir, Debounce: 20 * time.Millisecond}, nil)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}

	for _, name := range []string{"a.pdf", "b.png", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(name), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	got := collectPaths(t, paths, 2, 5*time.Second)
	if !got["a.pdf"] || !got["b.png"] {
		t.Errorf("emitted = %v; want both invoice files", got)
	}
	if got["notes.txt"] {
		t.Errorf("unsupported extension emitted: %v", got)
	}
}

// A burst of drops arriving inside one debounce window must all come
// out, and re-arming the debounce while events keep landing must not
// disturb the pending set.
func TestWatchSurvivesRapidBurst(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	paths, _, err := Watch(ctx, WatchOptions{Root: dir, Debounce: 10 * time.Millisecond}, nil)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}

	const n = 10
	for i := 0; i < n; i++ {
		name := filepath.Join(dir, fmt.Sprintf("inv-%d.pdf", i))
		if err := os.WriteFile(name, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	got := collectPaths(t, paths, n, 5*time.Second)
	for i := 0; i < n; i++ {
		if !got[fmt.Sprintf("inv-%d.pdf", i)] {
			t.Errorf("missing inv-%d.pdf in %v", i, got)
		}
	}
}

func TestWatchInitialScan(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "existing.pdf"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	paths, _, err := Watch(ctx, WatchOptions{Root: dir, InitialScan: true}, nil)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	got := collectPaths(t, paths, 1, 5*time.Second)
	if !got["existing.pdf"] {
		t.Errorf("initial scan missed the pre-existing file: %v", got)
	}
}

func TestWatchClosesOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	paths, errs, err := Watch(ctx, WatchOptions{Root: t.TempDir()}, nil)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	cancel()

	deadline := time.After(5 * time.Second)
	for paths != nil || errs != nil {
		select {
		case _, ok := <-paths:
			if !ok {
				paths = nil
			}
		case _, ok := <-errs:
			if !ok {
				errs = nil
			}
		case <-deadline:
			t.Fatal("channels not closed after cancellation")
		}
	}
}
