// Package watcher monitors the drop folder for newly scanned documents and
// feeds arrivals into the pipeline.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/agentt/internal/bus"
)

// Extensions the watcher will pick up, lowercase with leading dot.
var supportedExts = map[string]struct{}{
	".pdf":  {},
	".png":  {},
	".jpg":  {},
	".jpeg": {},
	".tiff": {},
	".tif":  {},
	".bmp":  {},
}

// Supported reports whether the path has an extension the watcher handles.
func Supported(path string) bool {
	_, ok := supportedExts[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Emitter is the sink for arrival events. *bus.Bus satisfies it.
type Emitter interface {
	Emit(ev bus.Event)
}

// Watcher monitors a single directory (non-recursive) and emits a
// file_arrived event for each new supported file. A grace period after the
// create event lets slow scanner writes finish before the file is handed
// off.
type Watcher struct {
	dir     string
	grace   time.Duration
	emitter Emitter

	mu      sync.Mutex
	fsw     *fsnotify.Watcher
	done    chan struct{}
	running bool
	wg      sync.WaitGroup
}

// New creates a Watcher for the given directory. The directory is created if
// it does not exist.
func New(dir string, grace time.Duration, emitter Emitter) (*Watcher, error) {
	if dir == "" {
		return nil, eris.New("watcher: watch directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "watcher: create watch dir %s", dir)
	}
	return &Watcher{dir: dir, grace: grace, emitter: emitter}, nil
}

// Start begins watching. Files already present in the directory are emitted
// first so a backlog left over from downtime is not lost. Start is
// idempotent.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return eris.Wrap(err, "watcher: create fsnotify watcher")
	}
	if err := fsw.Add(w.dir); err != nil {
		fsw.Close()
		return eris.Wrapf(err, "watcher: add %s", w.dir)
	}

	w.fsw = fsw
	w.done = make(chan struct{})
	w.running = true

	if err := w.emitExisting(); err != nil {
		zap.L().Warn("watcher: initial scan failed", zap.Error(err))
	}

	w.wg.Add(1)
	go w.loop(ctx)

	zap.L().Info("watcher: started", zap.String("dir", w.dir))
	return nil
}

// Stop halts watching and waits for the event loop to exit. Stop is
// idempotent.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.done)
	w.fsw.Close()
	w.mu.Unlock()

	w.wg.Wait()
	zap.L().Info("watcher: stopped", zap.String("dir", w.dir))
}

// emitExisting emits arrivals for supported files already in the directory.
func (w *Watcher) emitExisting() error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return eris.Wrapf(err, "watcher: read dir %s", w.dir)
	}
	for _, entry := range entries {
		if entry.IsDir() || !Supported(entry.Name()) {
			continue
		}
		path := filepath.Join(w.dir, entry.Name())
		w.emit(path)
	}
	return nil
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Create) {
				continue
			}
			if !Supported(ev.Name) {
				zap.L().Debug("watcher: ignoring unsupported file", zap.String("path", ev.Name))
				continue
			}
			if !w.waitGrace(ctx) {
				return
			}
			// The file may have been renamed or removed during the grace
			// period.
			info, err := os.Stat(ev.Name)
			if err != nil {
				zap.L().Debug("watcher: file gone after grace period", zap.String("path", ev.Name))
				continue
			}
			if info.IsDir() {
				zap.L().Debug("watcher: ignoring directory", zap.String("path", ev.Name))
				continue
			}
			w.emit(ev.Name)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			zap.L().Error("watcher: fsnotify error", zap.Error(err))
		}
	}
}

// waitGrace sleeps for the grace period. It returns false when the watcher
// was stopped while waiting.
func (w *Watcher) waitGrace(ctx context.Context) bool {
	if w.grace <= 0 {
		return true
	}
	timer := time.NewTimer(w.grace)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	case <-w.done:
		return false
	}
}

func (w *Watcher) emit(path string) {
	zap.L().Info("watcher: file arrived", zap.String("path", path))
	w.emitter.Emit(bus.Event{
		Name: bus.EventFileArrived,
		Data: bus.FileArrived{
			FilePath: path,
			Filename: filepath.Base(path),
		},
	})
}
