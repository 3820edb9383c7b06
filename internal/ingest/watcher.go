// Package ingest watches a drop folder for invoice files and runs each
// one through the extraction pipeline, writing the outcome as a JSON
// sidecar next to the source file.
package ingest

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/JoeYatesss/invoice/constants"
)

// WatchOptions configures directory watching.
type WatchOptions struct {
	Root        string
	InitialScan bool          // walk the root once and emit existing files
	Debounce    time.Duration // coalesce rapid write/rename bursts
}

// Watch emits paths of supported invoice files appearing under the root,
// recursively. New subdirectories are picked up as they are created.
// Both channels close when the context is cancelled.
func Watch(ctx context.Context, opts WatchOptions, logger *slog.Logger) (<-chan string, <-chan error, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Root == "" {
		return nil, nil, errors.New("no watch root provided")
	}

	paths := make(chan string, 256)
	errs := make(chan error, 1)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, err
	}

	walk := func() error {
		return filepath.WalkDir(opts.Root, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if d.IsDir() {
				return w.Add(path)
			}
			if opts.InitialScan && supported(path) {
				select {
				case paths <- path:
				default:
				}
			}
			return nil
		})
	}
	if err := walk(); err != nil {
		_ = w.Close()
		return nil, nil, err
	}

	go func() {
		defer close(paths)
		defer close(errs)
		defer func() { _ = w.Close() }()

		// pending and its debounce timer are only touched from this
		// goroutine; the timer fires through the select below rather
		// than a callback, so there is no concurrent map access.
		var timer *time.Timer
		var fire <-chan time.Time
		pending := map[string]struct{}{}
		flush := func() {
			for p := range pending {
				select {
				case paths <- p:
				default:
				}
				delete(pending, p)
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case <-fire:
				fire = nil
				flush()
			case e, ok := <-w.Events:
				if !ok {
					return
				}
				if e.Op.Has(fsnotify.Create) {
					// A new directory must be watched too. Adding a
					// plain file fails harmlessly.
					_ = w.Add(e.Name)
				}
				if supported(e.Name) && e.Op.Has(fsnotify.Create|fsnotify.Write|fsnotify.Rename) {
					pending[e.Name] = struct{}{}
					if opts.Debounce > 0 {
						if timer == nil {
							timer = time.NewTimer(opts.Debounce)
						} else {
							if !timer.Stop() && fire != nil {
								<-timer.C
							}
							timer.Reset(opts.Debounce)
						}
						fire = timer.C
					} else {
						flush()
					}
				}
			case werr, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Error("ingest.watch.error", "error", werr)
				select {
				case errs <- werr:
				default:
				}
			}
		}
	}()

	logger.Info("ingest.watch.start", "root", opts.Root, "debounce", opts.Debounce)
	return paths, errs, nil
}

func supported(path string) bool {
	return constants.MapExtToFormat(filepath.Ext(path)) != ""
}
