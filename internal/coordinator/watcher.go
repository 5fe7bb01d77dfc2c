package coordinator

import (
	"context"
	"log/slog"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/nextlevelbuilder/teleclaw/internal/store"
)

// Watcher nudges the standby check when the sync medium delivers a new
// state record, instead of waiting out the full check interval. It is an
// optimization only; the periodic tick remains authoritative.
type Watcher struct {
	fw    *fsnotify.Watcher
	nudge chan struct{}
}

// NewWatcher watches the store base directory for state.json changes.
func NewWatcher(s *store.Store) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(s.Base()); err != nil {
		fw.Close()
		return nil, err
	}
	return &Watcher{fw: fw, nudge: make(chan struct{}, 1)}, nil
}

// Nudges returns a channel that receives after state.json changed.
// The channel is buffered at one; bursts coalesce.
func (w *Watcher) Nudges() <-chan struct{} { return w.nudge }

// Run consumes filesystem events until ctx is done.
func (w *Watcher) Run(ctx context.Context) {
	defer w.fw.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(ev.Name, stateFile) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			select {
			case w.nudge <- struct{}{}:
			default:
			}
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			slog.Debug("state watcher error", "error", err)
		}
	}
}
