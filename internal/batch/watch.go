package batch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"blockmend/internal/logging"
	"blockmend/internal/rewrite"
)

// debounceWindow coalesces the burst of write events most editors emit
// for a single save.
const debounceWindow = 250 * time.Millisecond

// Watcher repairs Python files as they change on disk. Each save is
// debounced per path, then repaired like a one-shot run. The watcher's own
// rewrites do not re-trigger: a repaired file scans clean on the next pass,
// so the second event is a cheap no-op.
type Watcher struct {
	repairer *rewrite.Repairer
	onReport func(*rewrite.Report)

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// NewWatcher builds a watcher around one repairer. onReport is invoked for
// every completed repair (nil is allowed).
func NewWatcher(repairer *rewrite.Repairer, onReport func(*rewrite.Report)) *Watcher {
	return &Watcher{
		repairer: repairer,
		onReport: onReport,
		pending:  make(map[string]*time.Timer),
	}
}

// Watch blocks until ctx is cancelled, repairing .py files under the given
// targets as they change. Directories are watched recursively (new
// subdirectories are picked up as they appear).
func (w *Watcher) Watch(ctx context.Context, targets []string) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()
	defer w.stopPending()

	for _, target := range targets {
		if err := addRecursive(fsw, target); err != nil {
			return err
		}
	}
	logging.Batch("watching %d target(s)", len(targets))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(fsw, event)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logging.BatchWarn("watch error: %v", err)
		}
	}
}

func (w *Watcher) handleEvent(fsw *fsnotify.Watcher, event fsnotify.Event) {
	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			_ = addRecursive(fsw, event.Name)
			return
		}
	}
	if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) {
		return
	}
	if !strings.HasSuffix(event.Name, ".py") {
		return
	}
	w.schedule(event.Name)
}

// schedule arms (or re-arms) the debounce timer for one path.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if timer, ok := w.pending[path]; ok {
		timer.Reset(debounceWindow)
		return
	}
	w.pending[path] = time.AfterFunc(debounceWindow, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()

		report, err := w.repairer.RepairFile(path)
		if err != nil {
			logging.BatchWarn("watch repair %s: %v", path, err)
		}
		if w.onReport != nil && report != nil {
			w.onReport(report)
		}
	})
}

// stopPending cancels every armed debounce timer so no repair fires after
// Watch has returned.
func (w *Watcher) stopPending() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, timer := range w.pending {
		timer.Stop()
		delete(w.pending, path)
	}
}

// addRecursive registers target and, for directories, every non-hidden
// subdirectory beneath it.
func addRecursive(fsw *fsnotify.Watcher, target string) error {
	info, err := os.Stat(target)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fsw.Add(filepath.Dir(target))
	}
	return filepath.Walk(target, func(p string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !fi.IsDir() {
			return nil
		}
		if name := fi.Name(); name != "." && strings.HasPrefix(name, ".") {
			return filepath.SkipDir
		}
		return fsw.Add(p)
	})
}
