package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherInvalidatesOnExternalWrite(t *testing.T) {
	ctx := context.Background()
	s := newTempFileStore(t)
	require.NoError(t, s.Append(ctx, mustRecord(t, `{"a":1}`)))

	w, err := NewWatcher(s)
	require.NoError(t, err)
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- w.Run(runCtx) }()
	defer func() {
		cancel()
		assert.NoError(t, <-done)
	}()

	require.Eventually(t, func() bool {
		s.cacheMu.Lock()
		defer s.cacheMu.Unlock()
		return s.caching
	}, 2*time.Second, 10*time.Millisecond)

	recs, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)

	require.NoError(t, os.WriteFile(s.Path(), []byte(`[{"a":1},{"a":2},{"a":3}]`), 0o644))
	assert.Eventually(t, func() bool {
		recs, err := s.Load(ctx)
		return err == nil && len(recs) == 3
	}, 2*time.Second, 20*time.Millisecond)
}

func TestWatcherSurvivesDirectoryRecreation(t *testing.T) {
	ctx := context.Background()
	s := newTempFileStore(t)
	dir := filepath.Dir(s.Path())
	require.NoError(t, s.Append(ctx, mustRecord(t, `{"a":1}`)))

	w, err := NewWatcher(s)
	require.NoError(t, err)
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- w.Run(runCtx) }()
	defer func() {
		cancel()
		assert.NoError(t, <-done)
	}()

	recs, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)

	require.NoError(t, os.RemoveAll(dir))
	recs, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, recs)

	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(s.Path(), []byte(`[{"item":"rice"}]`), 0o644))
	assert.Eventually(t, func() bool {
		recs, err := s.Load(ctx)
		return err == nil && len(recs) == 1
	}, 2*time.Second, 20*time.Millisecond)
	assert.Eventually(t, func() bool {
		s.cacheMu.Lock()
		defer s.cacheMu.Unlock()
		return !s.caching
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWatcherCloseIsIdempotent(t *testing.T) {
	w, err := NewWatcher(newTempFileStore(t))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
}
