package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fairyhunter13/festival-restock-service/internal/model"
	"github.com/fairyhunter13/festival-restock-service/internal/obs"
)

type fileState int

const (
	stateOK fileState = iota
	stateMissing
	stateCorrupt
)

// FileStore keeps restock requests as one pretty-printed JSON array on disk.
//
// The file may also be written by other processes. Every write replaces the
// file through a rename so readers never observe a partial array.
type FileStore struct {
	path string
	mu   sync.Mutex // serializes load-modify-store cycles
	now  func() time.Time

	cacheMu  sync.Mutex
	caching  bool
	gen      uint64
	cached   []model.RestockRequest
	cachedFI os.FileInfo // nil when the snapshot was taken of a missing file
	hasSnap  bool
}

// NewFile returns a FileStore backed by path.
func NewFile(path string) *FileStore {
	return &FileStore{path: filepath.Clean(path), now: time.Now}
}

// Path returns the backing file path.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Load(ctx context.Context) ([]model.RestockRequest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fi, known := s.stat()
	if known {
		if recs, ok := s.snapshot(fi); ok {
			return recs, nil
		}
	}
	gen := s.generation()
	recs, state, _, err := s.read()
	if err != nil {
		return nil, err
	}
	if state == stateCorrupt {
		obs.Logger.Warn("store_corrupt", zap.String("path", s.path), zap.String("op", "load"))
	}
	if known {
		s.remember(gen, fi, recs)
	}
	return model.CloneAll(recs), nil
}

func (s *FileStore) Append(ctx context.Context, rec model.RestockRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	recs, state, raw, err := s.read()
	if err != nil {
		return err
	}
	if state == stateCorrupt {
		backup := fmt.Sprintf("%s.corrupt-%d", s.path, s.now().UnixNano())
		if err := os.WriteFile(backup, raw, 0o644); err != nil {
			return fmt.Errorf("back up corrupt store: %w", err)
		}
		obs.Logger.Warn("store_corrupt",
			zap.String("path", s.path),
			zap.String("op", "append"),
			zap.String("backup", backup),
		)
		recs = nil
	}
	recs = append(recs, rec.Clone())
	return s.write(recs)
}

func (s *FileStore) PatchStatus(ctx context.Context, ref Ref, status StatusFunc) (model.RestockRequest, error) {
	if err := ctx.Err(); err != nil {
		return model.RestockRequest{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	recs, state, _, err := s.read()
	if err != nil {
		return model.RestockRequest{}, err
	}
	switch state {
	case stateMissing:
		return model.RestockRequest{}, ErrNoRequests
	case stateCorrupt:
		return model.RestockRequest{}, fmt.Errorf("%s: %w", s.path, ErrInvalidData)
	}
	updated, err := applyStatus(recs, ref, status)
	if err != nil {
		return model.RestockRequest{}, err
	}
	if err := s.write(recs); err != nil {
		return model.RestockRequest{}, err
	}
	return updated, nil
}

// read loads the file. raw holds the file bytes when state is stateCorrupt.
func (s *FileStore) read() ([]model.RestockRequest, fileState, []byte, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, stateMissing, nil, nil
	}
	if err != nil {
		return nil, stateOK, nil, fmt.Errorf("read store: %w", err)
	}
	var recs []model.RestockRequest
	if err := json.Unmarshal(b, &recs); err != nil {
		return nil, stateCorrupt, b, nil
	}
	return recs, stateOK, nil, nil
}

func (s *FileStore) write(recs []model.RestockRequest) error {
	b, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		return fmt.Errorf("encode store: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace store: %w", err)
	}
	s.Invalidate()
	return nil
}

// stat reports the file's current info, nil if it does not exist. known is
// false when the state of the file cannot be determined.
func (s *FileStore) stat() (fi os.FileInfo, known bool) {
	fi, err := os.Stat(s.path)
	switch {
	case err == nil:
		return fi, true
	case errors.Is(err, fs.ErrNotExist):
		return nil, true
	default:
		return nil, false
	}
}

// sameFile reports whether a and b describe the same unmodified file.
func sameFile(a, b os.FileInfo) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return os.SameFile(a, b) && a.Size() == b.Size() && a.ModTime().Equal(b.ModTime())
}

// EnableCache makes Load serve a snapshot while the file on disk is unchanged
// and Invalidate has not been called since. Watcher enables it.
func (s *FileStore) EnableCache(on bool) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.caching = on
	s.gen++
	s.cached, s.cachedFI, s.hasSnap = nil, nil, false
}

// Invalidate drops the cached snapshot and returns the new generation.
func (s *FileStore) Invalidate() uint64 {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.gen++
	s.cached, s.cachedFI, s.hasSnap = nil, nil, false
	return s.gen
}

func (s *FileStore) generation() uint64 {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	return s.gen
}

// snapshot returns the cached records if they were read from the file fi
// still describes.
func (s *FileStore) snapshot(fi os.FileInfo) ([]model.RestockRequest, bool) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if !s.caching || !s.hasSnap || !sameFile(s.cachedFI, fi) {
		return nil, false
	}
	return model.CloneAll(s.cached), true
}

// remember caches recs, read after fi was taken, if nothing invalidated the
// cache since gen was read.
func (s *FileStore) remember(gen uint64, fi os.FileInfo, recs []model.RestockRequest) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if !s.caching || gen != s.gen {
		return
	}
	s.cached, s.cachedFI, s.hasSnap = model.CloneAll(recs), fi, true
}
