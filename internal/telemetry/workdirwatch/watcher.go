// Package workdirwatch watches a bug instance's workdir for removal,
// grounded on the teacher's fsnotify-based plugin directory watcher.
// The orchestrator already re-checks existence lazily before re-applying
// a patch (spec §4.1 step 8); this package gives a run an event-driven
// signal as well, which cmd/aprloop logs as soon as the removal happens
// rather than at the next apply attempt. The loop itself does not
// consume it.
package workdirwatch

import (
	"context"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher reports workdir removal on Removed.
type Watcher struct {
	fsw     *fsnotify.Watcher
	workdir string
	removed chan struct{}
	logger  *zap.Logger
}

// New starts watching the parent of workdir (fsnotify has no recursive
// delete event on the watched path itself once it's gone, so the parent
// directory is what's actually watched).
func New(workdir string, logger *zap.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	parent := parentDir(workdir)
	if err := fsw.Add(parent); err != nil {
		fsw.Close()
		return nil, err
	}
	return &Watcher{fsw: fsw, workdir: workdir, removed: make(chan struct{}, 1), logger: logger}, nil
}

// Removed fires at most once, when the workdir is observed removed or
// renamed away.
func (w *Watcher) Removed() <-chan struct{} {
	return w.removed
}

// Run drains fsnotify events until ctx is cancelled, closing the
// underlying watcher on exit.
func (w *Watcher) Run(ctx context.Context) {
	defer w.fsw.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Name != w.workdir {
				continue
			}
			if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				w.logger.Warn("workdir disappeared", zap.String("workdir", w.workdir), zap.String("op", event.Op.String()))
				select {
				case w.removed <- struct{}{}:
				default:
				}
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("workdir watcher error", zap.Error(err))
		}
	}
}

func parentDir(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			if i == 0 {
				return "/"
			}
			return path[:i]
		}
	}
	return "."
}
