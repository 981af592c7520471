package sync

import (
	"fmt"
	"path/filepath"
	stdsync "sync"

	"github.com/fsnotify/fsnotify"
)

// storeWatcher reports writes to the store file made by any process,
// including other CLI invocations sharing the database.
type storeWatcher struct {
	watcher *fsnotify.Watcher
	names   map[string]bool
	changed chan struct{}
	done    chan struct{}
	wg      stdsync.WaitGroup
}

// watchStore watches the directory holding path. SQLite rewrites the WAL
// and journal files beside the database, so those names count as well.
func watchStore(path string) (*storeWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve store path %s: %w", path, err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("failed to watch store directory %s: %w", filepath.Dir(abs), err)
	}

	base := filepath.Base(abs)
	sw := &storeWatcher{
		watcher: w,
		names:   map[string]bool{base: true, base + "-wal": true, base + "-journal": true},
		changed: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	sw.wg.Add(1)
	go sw.processEvents()
	return sw, nil
}

// Changed emits at most one pending notification; bursts collapse.
func (sw *storeWatcher) Changed() <-chan struct{} {
	return sw.changed
}

func (sw *storeWatcher) Close() error {
	close(sw.done)
	err := sw.watcher.Close()
	sw.wg.Wait()
	if err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}

func (sw *storeWatcher) processEvents() {
	defer sw.wg.Done()

	for {
		select {
		case <-sw.done:
			return

		case event, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if !sw.names[filepath.Base(event.Name)] {
				continue
			}
			select {
			case sw.changed <- struct{}{}:
			default:
			}

		case _, ok := <-sw.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}
