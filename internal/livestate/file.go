package livestate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/renameio/v2"
)

const lockPollInterval = 50 * time.Millisecond

// FileStore persists state as a JSON document in a single file. Writes replace the
// file atomically, so a crash mid-write never leaves a truncated document behind.
type FileStore struct {
	path        string
	lockTimeout time.Duration
}

func NewFileStore(path string, lockTimeout time.Duration) *FileStore {
	return &FileStore{
		path:        path,
		lockTimeout: lockTimeout,
	}
}

func (s *FileStore) Path() string {
	return s.path
}

// Lock takes an exclusive advisory lock on a sibling ".lock" file, waiting up to the
// configured timeout for a concurrent run to finish
func (s *FileStore) Lock(ctx context.Context) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	fl := flock.New(s.path + ".lock")

	lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()
	locked, err := fl.TryLockContext(lockCtx, lockPollInterval)
	if err != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("failed to lock state file: %w", err)
	}
	if !locked {
		return nil, ErrLockTimeout
	}
	return func() { fl.Unlock() }, nil
}

// Load reads the state file. A missing file is a cold start; an unreadable one is
// reported as ErrCorruptState alongside an empty document that the caller may use.
func (s *FileStore) Load(ctx context.Context) (*Document, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewDocument(), nil
		}
		return NewDocument(), errors.Join(ErrCorruptState, err)
	}
	return decodeDocument(data)
}

func (s *FileStore) Save(ctx context.Context, doc *Document) error {
	data, err := encodeDocument(doc)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	if err := renameio.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write state file %s: %w", s.path, err)
	}
	return nil
}
