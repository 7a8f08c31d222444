package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTempFileStore(t *testing.T) *FileStore {
	t.Helper()
	return NewFile(filepath.Join(t.TempDir(), "data", "restockRequests.json"))
}

func TestFileStoreWritesPrettyArray(t *testing.T) {
	s := newTempFileStore(t)
	require.NoError(t, s.Append(context.Background(), mustRecord(t, `{"item":"rice","qty":50}`)))
	b, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Equal(t, "[\n  {\n    \"item\": \"rice\",\n    \"qty\": 50\n  }\n]", string(b))

	entries, err := os.ReadDir(filepath.Dir(s.Path()))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp files must not be left behind")
}

func TestFileStoreCorruptFile(t *testing.T) {
	ctx := context.Background()
	s := newTempFileStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(s.Path()), 0o755))
	require.NoError(t, os.WriteFile(s.Path(), []byte(`[{"item":`), 0o644))

	recs, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, recs)

	_, err = s.PatchStatus(ctx, IndexRef(0), Status(json.RawMessage(`"done"`)))
	assert.ErrorIs(t, err, ErrInvalidData)

	s.now = func() time.Time { return time.Unix(0, 42) }
	require.NoError(t, s.Append(ctx, mustRecord(t, `{"item":"oil"}`)))
	recs, err = s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, `{"item":"oil"}`, encode(t, recs[0]))

	backup, err := os.ReadFile(s.Path() + ".corrupt-42")
	require.NoError(t, err)
	assert.Equal(t, `[{"item":`, string(backup))
}

func TestFileStoreReadsExternalFile(t *testing.T) {
	s := newTempFileStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(s.Path()), 0o755))
	require.NoError(t, os.WriteFile(s.Path(), []byte(`[{"z":1,"a":{"nested": [1, 2]}}]`), 0o644))

	got, err := s.PatchStatus(context.Background(), IndexRef(0), Status(json.RawMessage(`"seen"`)))
	require.NoError(t, err)
	assert.Equal(t, `{"z":1,"a":{"nested":[1,2]},"status":"seen"}`, encode(t, got))
}

func TestFileStoreConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	s := newTempFileStore(t)
	const n = 100
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, s.Append(ctx, mustRecord(t, fmt.Sprintf(`{"n":%d}`, i))))
		}(i)
	}
	wg.Wait()
	recs, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, recs, n)
	seen := make(map[string]bool, n)
	for _, r := range recs {
		raw, _ := r.Get("n")
		seen[string(raw)] = true
	}
	assert.Len(t, seen, n)
}

func TestFileStoreCacheInvalidation(t *testing.T) {
	ctx := context.Background()
	s := newTempFileStore(t)
	require.NoError(t, s.Append(ctx, mustRecord(t, `{"a":1}`)))
	s.EnableCache(true)

	recs, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	snap, ok := s.snapshot(mustStat(t, s))
	require.True(t, ok)
	assert.Len(t, snap, 1)

	s.Invalidate()
	_, ok = s.snapshot(mustStat(t, s))
	assert.False(t, ok)
}

func mustStat(t *testing.T, s *FileStore) os.FileInfo {
	t.Helper()
	fi, known := s.stat()
	require.True(t, known)
	return fi
}

func TestFileStoreCacheSeesChangesWithoutEvents(t *testing.T) {
	ctx := context.Background()
	s := newTempFileStore(t)
	dir := filepath.Dir(s.Path())
	require.NoError(t, s.Append(ctx, mustRecord(t, `{"a":1}`)))
	s.EnableCache(true)
	recs, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)

	require.NoError(t, os.WriteFile(s.Path(), []byte(`[{"a":1},{"a":2}]`), 0o644))
	recs, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, recs, 2)

	require.NoError(t, os.RemoveAll(dir))
	recs, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, recs)

	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(s.Path(), []byte(`[{"item":"rice"}]`), 0o644))
	recs, err = s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, `{"item":"rice"}`, encode(t, recs[0]))
}

func TestFileStoreKeepsNonObjectElements(t *testing.T) {
	ctx := context.Background()
	s := newTempFileStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(s.Path()), 0o755))
	require.NoError(t, os.WriteFile(s.Path(), []byte(`[{"item":"rice"}, "note", null, [1, 2]]`), 0o644))

	recs, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, `[{"item":"rice"},"note",null,[1,2]]`, encode(t, recs))

	_, err = s.PatchStatus(ctx, IndexRef(1), Status(json.RawMessage(`"done"`)))
	assert.ErrorIs(t, err, ErrInvalidData)

	require.NoError(t, s.Append(ctx, mustRecord(t, `{"item":"oil"}`)))
	recs, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, `[{"item":"rice"},"note",null,[1,2],{"item":"oil"}]`, encode(t, recs))
	entries, err := os.ReadDir(filepath.Dir(s.Path()))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "a valid file must not be backed up")
}

func TestFileStoreLoadReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := newTempFileStore(t)
	s.EnableCache(true)
	require.NoError(t, s.Append(ctx, mustRecord(t, `{"a":1}`)))
	recs, err := s.Load(ctx)
	require.NoError(t, err)
	require.NoError(t, recs[0].Set("a", json.RawMessage(`99`)))
	again, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, encode(t, again[0]))
	assert.False(t, strings.Contains(encode(t, again), "99"))
}
