package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// FileStore is the dedup set plus a plain-text checkpoint file.
type FileStore struct {
	fs     afero.Fs
	path   string
	floor  int
	seen   map[int]struct{}
	logger *zap.Logger
}

// NewFileStore seeds the dedup set from identifiers already in the dataset.
// Entries that are not integers are skipped with a warning.
func NewFileStore(fs afero.Fs, checkpointPath string, floor int, existing []string, logger *zap.Logger) *FileStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &FileStore{
		fs:     fs,
		path:   checkpointPath,
		floor:  floor,
		seen:   make(map[int]struct{}, len(existing)),
		logger: logger,
	}
	for _, raw := range existing {
		id, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			logger.Warn("ignoring malformed dataset id", zap.String("value", raw))
			continue
		}
		s.seen[id] = struct{}{}
	}
	return s
}

// Has reports whether id has already been collected.
func (s *FileStore) Has(id int) bool {
	_, ok := s.seen[id]
	return ok
}

// Len is the size of the dedup set.
func (s *FileStore) Len() int {
	return len(s.seen)
}

// RecordAccepted adds id to the dedup set and overwrites the checkpoint.
func (s *FileStore) RecordAccepted(id int) error {
	s.seen[id] = struct{}{}
	if dir := filepath.Dir(s.path); dir != "." && dir != "" {
		if err := s.fs.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create checkpoint dir: %w", err)
		}
	}
	tmp := s.path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, []byte(strconv.Itoa(id)), 0o644); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := s.fs.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace checkpoint: %w", err)
	}
	return nil
}

// LoadCheckpoint returns the last accepted identifier, or the floor when the
// file is missing or unreadable.
func (s *FileStore) LoadCheckpoint() int {
	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Info("no checkpoint found, starting from floor", zap.Int("start_id", s.floor))
		} else {
			s.logger.Warn("failed to read checkpoint, starting from floor",
				zap.String("path", s.path), zap.Error(err))
		}
		return s.floor
	}
	id, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		s.logger.Warn("malformed checkpoint, starting from floor",
			zap.String("path", s.path), zap.String("value", string(data)))
		return s.floor
	}
	return id
}
