package queue

import (
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounce coalesces a burst of filesystem events (e.g. a renameio-style
// write-then-rename producing two events for one logical change) into a
// single kick.
const debounce = 200 * time.Millisecond

// watcher watches a workspace's tasks directory and calls onChange
// (debounced) whenever a file inside it is created, written, renamed, or
// removed, supplementing the 30s safety poll with near-immediate dispatch
// on external task edits made outside the daemon.
type watcher struct {
	fsw  *fsnotify.Watcher
	done chan struct{}
}

// newWatcher starts watching dir. If dir does not exist yet it is created
// so a fresh workspace can still be watched from the start.
func newWatcher(dir string, onChange func()) (*watcher, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	w := &watcher{fsw: fsw, done: make(chan struct{})}
	go w.loop(onChange)
	return w, nil
}

func (w *watcher) loop(onChange func()) {
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-w.done:
			return
		case _, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if timer == nil {
				timer = time.AfterFunc(debounce, onChange)
			} else {
				timer.Reset(debounce)
			}
		case _, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
		}
	}
}

func (w *watcher) close() {
	close(w.done)
	_ = w.fsw.Close()
}
