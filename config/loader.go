package config

import (
	"os"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Load reads and parses a layered config file from disk.
func Load(path string) (File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return File{}, err
	}
	var f File
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return File{}, err
	}
	return f, nil
}

// Watcher holds the most recently loaded File behind an atomic pointer and
// reloads it whenever the backing file changes on disk.
type Watcher struct {
	path    string
	current atomic.Pointer[File]

	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	onChange func(File)
	stopCh   chan struct{}
}

// NewWatcher loads path once and begins watching it for changes. onChange,
// if non-nil, is invoked after each successful reload.
func NewWatcher(path string, onChange func(File)) (*Watcher, error) {
	f, err := Load(path)
	if err != nil {
		return nil, err
	}
	w := &Watcher{path: path, onChange: onChange, stopCh: make(chan struct{})}
	w.current.Store(&f)

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(path); err != nil {
		_ = fw.Close()
		return nil, err
	}
	w.watcher = fw
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			f, err := Load(w.path)
			if err != nil {
				continue // keep serving the last good config
			}
			w.current.Store(&f)
			if w.onChange != nil {
				w.onChange(f)
			}
		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
		case <-w.stopCh:
			return
		}
	}
}

// Current returns the most recently loaded File.
func (w *Watcher) Current() File {
	return *w.current.Load()
}

// Close stops watching and releases the underlying inotify/kqueue handle.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	select {
	case <-w.stopCh:
	default:
		close(w.stopCh)
	}
	if w.watcher != nil {
		return w.watcher.Close()
	}
	return nil
}
