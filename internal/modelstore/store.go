// Package modelstore persists the trained classifier as a single artifact
// file and holds the snapshot currently serving classifications. Writers go
// through a temporary file and a rename, so readers only ever see a complete
// artifact; the in-memory snapshot is swapped atomically on Publish.
package modelstore

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/cause-classifier/internal/bayes"
	apperrors "github.com/Adithya-Monish-Kumar-K/cause-classifier/pkg/errors"
	"github.com/google/uuid"
)

// Snapshot is an immutable trained model together with its identity.
type Snapshot struct {
	Model     *bayes.Model
	Version   string
	TrainedAt time.Time
}

// Store owns the artifact at path and the published snapshot.
type Store struct {
	path    string
	current atomic.Pointer[Snapshot]
	writeMu sync.Mutex
	now     func() time.Time
	logger  *slog.Logger
}

// New creates a Store for the artifact at path. Nothing is read until Load.
func New(path string) *Store {
	return &Store{
		path:   path,
		now:    time.Now,
		logger: slog.Default().With("component", "modelstore"),
	}
}

func (s *Store) Path() string { return s.path }

// Load reads and validates the artifact. It fails with ErrModelMissing when
// no artifact exists and ErrArtifactCorrupt when it does not validate.
func (s *Store) Load() (*Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrModelMissing, s.path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading model artifact: %w", err)
	}
	snap, err := decode(data)
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// Save writes model as the new artifact and returns its snapshot. The model
// is not published; callers decide when readers should see it.
func (s *Store) Save(model *bayes.Model) (*Snapshot, error) {
	if !model.Trained() {
		return nil, fmt.Errorf("refusing to save: %w", apperrors.ErrModelNotTrained)
	}
	snap := &Snapshot{
		Model:     model,
		Version:   uuid.NewString(),
		TrainedAt: s.now().UTC(),
	}
	data, err := encode(snap)
	if err != nil {
		return nil, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := writeAtomic(s.path, data); err != nil {
		return nil, err
	}
	s.logger.Info("model artifact written",
		"path", s.path,
		"version", snap.Version,
		"labels", len(model.Labels()),
		"documents", model.TotalDocuments(),
		"bytes", len(data),
	)
	return snap, nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating model directory: %w", err)
	}
	f, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp artifact: %w", err)
	}
	tmpPath := f.Name()
	committed := false
	defer func() {
		if !committed {
			f.Close()
			os.Remove(tmpPath)
		}
	}()
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("writing temp artifact: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("syncing temp artifact: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing temp artifact: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming artifact: %w", err)
	}
	committed = true
	return nil
}

// Modified returns the artifact's modification time.
func (s *Store) Modified() (time.Time, error) {
	info, err := os.Stat(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return time.Time{}, fmt.Errorf("%w: %s", apperrors.ErrModelMissing, s.path)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("stat model artifact: %w", err)
	}
	return info.ModTime(), nil
}

// IsStale reports whether the artifact is older than maxAge.
func (s *Store) IsStale(maxAge time.Duration) (bool, error) {
	mod, err := s.Modified()
	if err != nil {
		return false, err
	}
	return s.now().Sub(mod) > maxAge, nil
}

// EvictIfStale deletes the artifact when it is older than maxAge and reports
// whether it did. A missing artifact is not an error. The published snapshot
// keeps serving until a retrain replaces it.
func (s *Store) EvictIfStale(maxAge time.Duration) (bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	stale, err := s.IsStale(maxAge)
	if errors.Is(err, apperrors.ErrModelMissing) {
		return false, nil
	}
	if err != nil || !stale {
		return false, err
	}
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("evicting model artifact: %w", err)
	}
	s.logger.Info("evicted stale model artifact", "path", s.path, "max_age", maxAge)
	return true, nil
}

// Get returns the published snapshot, or ErrModelMissing if none is.
func (s *Store) Get() (*Snapshot, error) {
	snap := s.current.Load()
	if snap == nil {
		return nil, apperrors.ErrModelMissing
	}
	return snap, nil
}

// Publish makes snap the snapshot new callers of Get observe. Callers that
// already hold the previous snapshot keep using it unchanged.
func (s *Store) Publish(snap *Snapshot) {
	prev := s.current.Swap(snap)
	attrs := []any{"version", snap.Version, "trained_at", snap.TrainedAt}
	if prev != nil {
		attrs = append(attrs, "previous_version", prev.Version)
	}
	s.logger.Info("model published", attrs...)
}

// Reload loads the artifact from disk and publishes it.
func (s *Store) Reload() (*Snapshot, error) {
	snap, err := s.Load()
	if err != nil {
		return nil, err
	}
	s.Publish(snap)
	return snap, nil
}
