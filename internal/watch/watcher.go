// Copyright (C) 2025 sysml2test contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package watch re-runs synchronization whenever the requirements
// document changes on disk.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/redasasin4/sysml2test/pkg/logging"
)

// DefaultDebounce batches the write bursts editors and atomic-save
// tools produce into one sync.
const DefaultDebounce = 500 * time.Millisecond

// SyncFunc runs one sync pass. Errors are logged, not fatal: the
// watcher keeps running so a later save can succeed.
type SyncFunc func(ctx context.Context) error

// Watcher triggers a SyncFunc when a watched document changes.
//
// The watch is placed on the document's parent directory, not the file
// itself, because editors typically replace files via rename, which
// drops a file-level watch.
type Watcher struct {
	docPath  string
	debounce time.Duration
	sync     SyncFunc
	logger   *logging.Logger
}

// New creates a Watcher for the given document. A zero debounce uses
// DefaultDebounce; a nil logger falls back to the default stderr
// logger.
func New(docPath string, debounce time.Duration, sync SyncFunc, logger *logging.Logger) (*Watcher, error) {
	if docPath == "" {
		return nil, fmt.Errorf("watch requires a document path")
	}
	if sync == nil {
		return nil, fmt.Errorf("watch requires a sync function")
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = logging.Default()
	}
	abs, err := filepath.Abs(docPath)
	if err != nil {
		return nil, fmt.Errorf("resolving document path: %w", err)
	}
	return &Watcher{
		docPath:  abs,
		debounce: debounce,
		sync:     sync,
		logger:   logger,
	}, nil
}

// Run watches until the context is canceled.
//
// # Description
//
// Runs one initial sync, then loops: every create/write/rename event
// touching the document arms a debounce timer, and the timer firing
// runs the sync. Sync failures are logged and the loop continues.
func (w *Watcher) Run(ctx context.Context) error {
	notifier, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	defer notifier.Close()

	dir := filepath.Dir(w.docPath)
	if err := notifier.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}
	w.logger.Info("watching requirements document",
		"path", w.docPath,
		"debounce", w.debounce.String(),
	)

	w.runSync(ctx)

	var timer *time.Timer
	var timerC <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return ctx.Err()

		case event, ok := <-notifier.Events:
			if !ok {
				return fmt.Errorf("watcher event channel closed")
			}
			if !w.relevant(event) {
				continue
			}
			w.logger.Debug("document event", "op", event.Op.String(), "name", event.Name)
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}

		case watchErr, ok := <-notifier.Errors:
			if !ok {
				return fmt.Errorf("watcher error channel closed")
			}
			w.logger.Warn("file watcher error", "error", watchErr)

		case <-timerC:
			timer = nil
			timerC = nil
			w.runSync(ctx)
		}
	}
}

// relevant filters events down to ones that can change the document's
// content.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != w.docPath {
		return false
	}
	return event.Op.Has(fsnotify.Write) ||
		event.Op.Has(fsnotify.Create) ||
		event.Op.Has(fsnotify.Rename)
}

func (w *Watcher) runSync(ctx context.Context) {
	start := time.Now()
	if err := w.sync(ctx); err != nil {
		w.logger.Error("sync failed", "error", err)
		return
	}
	w.logger.Info("sync complete", "elapsed", time.Since(start).String())
}
