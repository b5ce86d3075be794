package modelconfig

import (
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.opentelemetry.io/otel/trace"

	"github.com/shuaitravel/agent/pkg/llm"
	"github.com/shuaitravel/agent/pkg/obs"
)

// Watcher reloads the manifest whenever its file changes and atomically
// swaps the live llm.Registry, matching hector's FileProvider debounce
// pattern so a burst of saves from an editor only triggers one reload.
type Watcher struct {
	path    string
	tracer  trace.Tracer
	metrics *obs.Metrics
	current atomic.Pointer[llm.Registry]

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewWatcher loads the manifest once, builds the initial registry, and
// starts watching the containing directory for subsequent writes. metrics
// is optional and is threaded into every Capability the registry builds.
func NewWatcher(path string, tracer trace.Tracer, metrics *obs.Metrics) (*Watcher, []error, error) {
	w := &Watcher{path: path, tracer: tracer, metrics: metrics, done: make(chan struct{})}

	registry, errs, err := w.reload()
	if err != nil {
		return nil, nil, err
	}
	w.current.Store(registry)

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errs, err
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, errs, err
	}
	w.watcher = fw

	go w.loop()
	return w, errs, nil
}

func (w *Watcher) reload() (*llm.Registry, []error, error) {
	manifest, err := Load(w.path)
	if err != nil {
		return nil, nil, err
	}
	registry, errs := llm.BuildRegistry(manifest.ToEntries(), w.tracer, w.metrics)
	return registry, errs, nil
}

func (w *Watcher) loop() {
	const debounce = 200 * time.Millisecond
	var timer *time.Timer
	target := filepath.Base(w.path)

	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, w.applyReload)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("model manifest watcher error", "error", err)
		}
	}
}

func (w *Watcher) applyReload() {
	registry, errs, err := w.reload()
	if err != nil {
		slog.Error("model manifest reload failed, keeping prior registry", "error", err)
		return
	}
	for _, e := range errs {
		slog.Warn("model manifest entry skipped on reload", "error", e)
	}
	w.current.Store(registry)
	slog.Info("model manifest reloaded", "path", w.path)
}

// Registry returns the currently live registry snapshot. Safe for
// concurrent use; a reload in flight never exposes a partially built one.
func (w *Watcher) Registry() *llm.Registry {
	return w.current.Load()
}

// Close stops the underlying file watcher.
func (w *Watcher) Close() error {
	close(w.done)
	if w.watcher != nil {
		return w.watcher.Close()
	}
	return nil
}
