package lease

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch watches the directory containing the lease file so a second process
// instance (e.g. a health-check invocation) observes lease changes without
// polling. onChange is called (possibly on a background goroutine) whenever
// the lease file is written; callers that only care about their own writes
// can ignore this and rely on Upsert's return value instead.
func (s *Store) Watch(onChange func()) (stop func() error, err error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) == filepath.Clean(s.path) {
					onChange()
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			case <-done:
				return
			}
		}
	}()

	return func() error {
		close(done)
		return watcher.Close()
	}, nil
}
