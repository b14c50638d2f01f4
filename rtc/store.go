package rtc

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/golang/snappy"
	"go.uber.org/zap"

	"github.com/mjasion/balena-home/vitalsgw/pkg/types"
)

// FileStore keeps the snapshot in a snappy-compressed file. Writes go to a
// temporary file that is renamed over the previous one.
type FileStore struct {
	path       string
	categories []types.Category
	logger     *zap.Logger
}

// NewFileStore creates a store at path for the configured slot categories.
func NewFileStore(path string, categories []types.Category, logger *zap.Logger) *FileStore {
	return &FileStore{
		path:       path,
		categories: categories,
		logger:     logger,
	}
}

// Load reads the snapshot. A missing, unreadable or mismatching file yields a
// fresh snapshot; only a failure to build that fresh snapshot is an error.
func (s *FileStore) Load() (Snapshot, error) {
	fresh, err := Fresh(s.categories)
	if err != nil {
		return Snapshot{}, err
	}

	compressed, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Info("no preserved state, starting with empty registry",
			zap.String("path", s.path))
		return fresh, nil
	}
	if err != nil {
		s.logger.Warn("failed to read preserved state, starting fresh",
			zap.String("path", s.path),
			zap.Error(err))
		return fresh, nil
	}

	raw, err := snappy.Decode(nil, compressed)
	if err != nil {
		s.logger.Warn("failed to decompress preserved state, starting fresh",
			zap.String("path", s.path),
			zap.Error(err))
		return fresh, nil
	}

	var snap Snapshot
	if err := snap.UnmarshalBinary(raw); err != nil {
		s.logger.Warn("failed to decode preserved state, starting fresh",
			zap.String("path", s.path),
			zap.Error(err))
		return fresh, nil
	}

	if !snap.MatchesCategories(s.categories) {
		s.logger.Warn("preserved registry categories differ from configuration, discarding",
			zap.String("path", s.path),
			zap.Int("stored_slots", len(snap.Table)),
			zap.Int("configured_slots", len(s.categories)))
		fresh.Sample = snap.Sample
		return fresh, nil
	}

	return snap, nil
}

// Save writes snap atomically.
func (s *FileStore) Save(snap Snapshot) error {
	raw, err := snap.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(snappy.Encode(nil, raw)); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close snapshot: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}

	s.logger.Debug("preserved state saved",
		zap.String("path", s.path),
		zap.Int("bytes", len(raw)))
	return nil
}

// MemoryStore keeps the snapshot in process memory.
type MemoryStore struct {
	mu    sync.Mutex
	snap  Snapshot
	saves int
}

// NewMemoryStore returns a store holding a fresh snapshot for categories.
func NewMemoryStore(categories []types.Category) (*MemoryStore, error) {
	snap, err := Fresh(categories)
	if err != nil {
		return nil, err
	}
	return &MemoryStore{snap: snap}, nil
}

// Load returns a copy of the stored snapshot.
func (m *MemoryStore) Load() (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap.Clone(), nil
}

// Save stores a copy of snap.
func (m *MemoryStore) Save(snap Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = snap.Clone()
	m.saves++
	return nil
}

// Saves returns how many times Save was called.
func (m *MemoryStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
