// Package watch ingests files dropped into a directory.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"crawlmind/internal/app"
	"crawlmind/internal/extract"
	"crawlmind/internal/logger"
)

type Ingester interface {
	Ingest(ctx context.Context, input app.IngestInput) (*app.IngestResult, error)
}

// Watcher waits for a file to stop changing for the settle delay, then
// ingests it as a single-file batch for the configured identity.
type Watcher struct {
	fs       *fsnotify.Watcher
	dir      string
	identity string
	settle   time.Duration
	ingester Ingester

	// OnResult is called after each ingestion attempt when set.
	OnResult func(path string, result *app.IngestResult, err error)

	mu      sync.Mutex
	pending map[string]*time.Timer
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func New(dir, identity string, settle time.Duration, ingester Ingester) (*Watcher, error) {
	if settle <= 0 {
		settle = 500 * time.Millisecond
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create watch dir failed: %w", err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fs watcher failed: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("watch %s failed: %w", dir, err)
	}
	return &Watcher{
		fs:       fsw,
		dir:      dir,
		identity: identity,
		settle:   settle,
		ingester: ingester,
		pending:  make(map[string]*time.Timer),
	}, nil
}

func (w *Watcher) Start(ctx context.Context) {
	if w.cancel != nil {
		return
	}
	watchCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.loop(watchCtx)
	}()
	logger.Infof("watching %s for documents", w.dir)
}

func (w *Watcher) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if extract.TypeFromName(event.Name) == "" {
				continue
			}
			w.schedule(ctx, event.Name)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			logger.Warnf("watch %s: %v", w.dir, err)
		}
	}
}

// schedule (re)arms the settle timer of path.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[path]; ok && t.Stop() {
		w.wg.Done()
	}
	w.wg.Add(1)
	w.pending[path] = time.AfterFunc(w.settle, func() {
		defer w.wg.Done()
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		w.ingest(ctx, path)
	})
}

func (w *Watcher) ingest(ctx context.Context, path string) {
	if ctx.Err() != nil {
		return
	}
	content, err := os.ReadFile(path)
	if err != nil {
		logger.Warnf("read dropped file %s: %v", path, err)
		return
	}

	sess := &app.SessionContext{Identity: w.identity, SessionID: "watch"}
	result, err := w.ingester.Ingest(ctx, app.IngestInput{
		Session: sess,
		Sources: []extract.Source{extract.File(filepath.Base(path), content)},
	})
	if err != nil {
		logger.Warnf("ingest dropped file %s: %v", path, err)
	} else {
		logger.Infof("ingested dropped file %s into %s", path, result.Collection.Name)
	}
	if w.OnResult != nil {
		w.OnResult(path, result, err)
	}
}

func (w *Watcher) Close() error {
	if w.cancel != nil {
		w.cancel()
	}
	w.mu.Lock()
	for path, t := range w.pending {
		if t.Stop() {
			w.wg.Done()
		}
		delete(w.pending, path)
	}
	w.mu.Unlock()

	err := w.fs.Close()
	w.wg.Wait()
	return err
}
