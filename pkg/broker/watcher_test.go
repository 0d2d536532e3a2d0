package broker

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "brokers.yaml")
	require.NoError(t, os.WriteFile(path, []byte("brokers:\n  - id: appid\n    secret: old\n"), 0o600))

	store, err := NewStaticStoreFromFile(path)
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	watcher, err := NewWatcher(path, store, logger)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		watcher.Run(ctx)
	}()

	require.NoError(t, os.WriteFile(path, []byte("brokers:\n  - id: appid\n    secret: new\n"), 0o600))

	require.Eventually(t, func() bool {
		b, err := store.FindByID(context.Background(), "appid")
		return err == nil && b.Secret == "new"
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	<-done
}

func TestWatcher_KeepsListOnBadReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "brokers.yaml")
	require.NoError(t, os.WriteFile(path, []byte("brokers:\n  - id: appid\n    secret: old\n"), 0o600))

	store, err := NewStaticStoreFromFile(path)
	require.NoError(t, err)

	watcher, err := NewWatcher(path, store, nil)
	require.NoError(t, err)

	watcher.reload() // valid file, no-op change
	require.NoError(t, os.WriteFile(path, []byte("brokers: [}"), 0o600))
	watcher.reload()

	b, err := store.FindByID(context.Background(), "appid")
	require.NoError(t, err)
	assert.Equal(t, "old", b.Secret)

	watcher.watcher.Close()
}
