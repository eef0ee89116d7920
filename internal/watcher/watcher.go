// Package watcher turns raw filesystem events under the served root into
// debounced changed-path batches for the session registry.
package watcher

import (
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Broadcaster receives each coalesced batch. Satisfied by the session
// registry.
type Broadcaster interface {
	Broadcast(paths []string)
}

// Watcher owns the blocking OS watch and the debounce loop. The loop runs on
// its own goroutine so the blocking receive never occupies a connection
// goroutine.
type Watcher struct {
	root        string
	debounce    time.Duration
	fsw         *fsnotify.Watcher
	broadcaster Broadcaster
}

func New(root string, debounce time.Duration, b Broadcaster) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		root:        root,
		debounce:    debounce,
		fsw:         fsw,
		broadcaster: b,
	}, nil
}

// Start registers watches for the root and all of its subdirectories, then
// launches the debounce loop.
func (w *Watcher) Start() error {
	if err := w.watchTree(w.root); err != nil {
		return err
	}
	go w.loop()
	return nil
}

// Close tears down the OS watch, which terminates the loop.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

// watchTree adds path and every directory below it. fsnotify watches are
// non-recursive, so each directory needs its own watch.
func (w *Watcher) watchTree(root string) error {
	if err := w.fsw.Add(root); err != nil {
		return err
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			log.Printf("watcher: walk %s: %v", path, err)
			return nil
		}
		if !d.IsDir() || path == root {
			return nil
		}
		if err := w.fsw.Add(path); err != nil {
			log.Printf("watcher: watch %s: %v", path, err)
		}
		return nil
	})
}

// loop blocks until a raw event arrives, keeps collecting for one debounce
// window, then emits the whole batch as a single broadcast. Watch errors are
// logged and do not terminate the loop; the loop ends when the event channel
// closes.
func (w *Watcher) loop() {
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			batch := w.translate(event, nil)
			batch, open := w.collect(batch)
			if len(batch) > 0 {
				w.broadcaster.Broadcast(batch)
			}
			if !open {
				return
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Printf("watcher: %v", err)
		}
	}
}

// collect drains further events until the debounce window expires. It
// reports whether the event source is still open.
func (w *Watcher) collect(batch []string) ([]string, bool) {
	timer := time.NewTimer(w.debounce)
	defer timer.Stop()
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return batch, false
			}
			batch = w.translate(event, batch)
		case err, ok := <-w.fsw.Errors:
			if ok {
				log.Printf("watcher: %v", err)
			}
		case <-timer.C:
			return batch, true
		}
	}
}

// translate appends the paths affected by one raw event. Created
// directories start their own watches so new subtrees keep reporting.
func (w *Watcher) translate(event fsnotify.Event, batch []string) []string {
	switch {
	case event.Op.Has(fsnotify.Create):
		log.Printf("watcher: detected file created at %s", event.Name)
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.watchTree(event.Name); err != nil {
				log.Printf("watcher: watch new directory %s: %v", event.Name, err)
			}
		}
		return append(batch, event.Name)
	case event.Op.Has(fsnotify.Write):
		log.Printf("watcher: detected file written at %s", event.Name)
		return append(batch, event.Name)
	case event.Op.Has(fsnotify.Remove):
		log.Printf("watcher: detected file removed at %s", event.Name)
		return append(batch, event.Name)
	case event.Op.Has(fsnotify.Rename):
		log.Printf("watcher: detected file renamed at %s", event.Name)
		return append(batch, event.Name)
	default:
		return batch
	}
}
