package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"flowedit/internal/domain"
)

// ImportSuffix marks files the watcher picks up.
const ImportSuffix = ".flow.json"

const DefaultImportDebounce = 500 * time.Millisecond

const importJob = "import"

// Importer stores a whole solution. SolutionService implements it.
type Importer interface {
	Import(ctx context.Context, sol *domain.Solution) error
}

// ImportWatcher imports solution files dropped into a directory.
type ImportWatcher struct {
	dir      string
	importer Importer
	debounce time.Duration
	log      *zap.Logger

	guard   *JobGuard
	watcher *fsnotify.Watcher
	cancel  context.CancelFunc

	mu     sync.Mutex
	timers map[string]*time.Timer
}

func NewImportWatcher(dir string, importer Importer, log *zap.Logger) *ImportWatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &ImportWatcher{
		dir:      dir,
		importer: importer,
		debounce: DefaultImportDebounce,
		log:      log.Named("import"),
		timers:   make(map[string]*time.Timer),
		guard:    NewJobGuard(),
	}
}

// SetGuard shares g with the other jobs on the same store.
func (w *ImportWatcher) SetGuard(g *JobGuard) {
	if g != nil {
		w.guard = g
	}
}

// IsImportFile reports whether name is a solution file.
func IsImportFile(name string) bool {
	return strings.HasSuffix(strings.ToLower(filepath.Base(name)), ImportSuffix)
}

// Start creates the directory if needed and begins watching it.
func (w *ImportWatcher) Start(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create import dir: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create import watcher: %w", err)
	}
	if err := watcher.Add(w.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch import dir %q: %w", w.dir, err)
	}
	w.watcher = watcher

	watchCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	go w.loop(watchCtx, watcher)
	w.log.Info("watching for imports", zap.String("dir", w.dir))
	return nil
}

func (w *ImportWatcher) loop(ctx context.Context, watcher *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if !IsImportFile(event.Name) {
				continue
			}
			w.schedule(ctx, event.Name)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("watcher error", zap.Error(err))
		}
	}
}

// schedule restarts the debounce timer of path.
func (w *ImportWatcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[path]; ok {
		t.Stop()
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		err := w.ImportFile(ctx, path)
		switch {
		case err == nil:
		case errors.Is(err, ErrJobRunning) && ctx.Err() == nil:
			// Another job holds the solution; try again after it.
			w.log.Debug("import deferred", zap.String("file", path))
			w.schedule(ctx, path)
		default:
			w.log.Error("import failed", zap.String("file", path), zap.Error(err))
		}
	})
}

// ImportFile reads one solution file and hands it to the importer. A file
// without a name takes it from the file name. It returns ErrJobRunning while
// another job holds that solution.
func (w *ImportWatcher) ImportFile(ctx context.Context, path string) error {
	sol, err := ReadSolutionFile(path)
	if err != nil {
		return err
	}
	if !w.guard.TryLock(importJob, sol.Name) {
		return ErrJobRunning
	}
	defer w.guard.Unlock(importJob, sol.Name)

	if err := w.importer.Import(ctx, sol); err != nil {
		return err
	}
	w.log.Info("solution imported", zap.String("solution", sol.Name), zap.String("file", path))
	return nil
}

func ReadSolutionFile(path string) (*domain.Solution, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read solution file: %w", err)
	}
	var sol domain.Solution
	if err := json.Unmarshal(data, &sol); err != nil {
		return nil, fmt.Errorf("parse solution file %q: %w", filepath.Base(path), err)
	}
	if sol.Name == "" {
		base := filepath.Base(path)
		if IsImportFile(base) {
			sol.Name = base[:len(base)-len(ImportSuffix)]
		} else {
			sol.Name = strings.TrimSuffix(base, filepath.Ext(base))
		}
	}
	return &sol, nil
}

// Stop ends the watch and waits for in-flight imports.
func (w *ImportWatcher) Stop(ctx context.Context) {
	if w.cancel != nil {
		w.cancel()
	}
	if w.watcher != nil {
		w.watcher.Close()
		w.watcher = nil
	}
	w.mu.Lock()
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
	w.mu.Unlock()
	w.guard.WaitAll(ctx)
}
