package broker

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Watcher reloads a yaml registry file into a StaticStore whenever the file
// changes, so broker secrets can be rotated without restarting the server.
type Watcher struct {
	path    string
	store   *StaticStore
	watcher *fsnotify.Watcher
	logger  *logrus.Logger
}

// NewWatcher watches the registry file at path. The containing directory is
// watched rather than the file itself so that atomic rename-style updates
// are seen.
func NewWatcher(path string, store *StaticStore, logger *logrus.Logger) (*Watcher, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create registry watcher: %w", err)
	}

	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch registry directory: %w", err)
	}

	return &Watcher{path: path, store: store, watcher: fw, logger: logger}, nil
}

// Run processes file events until the context is cancelled. A registry file
// that fails to load leaves the previous broker list in place.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.WithError(err).Warn("broker registry watcher error")
		}
	}
}

func (w *Watcher) reload() {
	brokers, err := LoadRegistryFile(w.path)
	if err != nil {
		w.logger.WithError(err).WithField("path", w.path).
			Error("failed to reload broker registry, keeping previous list")
		return
	}

	w.store.Replace(brokers)
	w.logger.WithFields(logrus.Fields{
		"path":    w.path,
		"brokers": len(brokers),
	}).Info("broker registry reloaded")
}
