package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

const lockRetryDelay = 10 * time.Millisecond

// FileBackend keeps each collection as an indented JSON document in dir.
// Writers in any process serialize on a <collection>.lock file next to it.
type FileBackend struct {
	dir string
}

func NewFileBackend(dir string) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}
	return &FileBackend{dir: dir}, nil
}

func (b *FileBackend) path(name Collection) string {
	return filepath.Join(b.dir, string(name)+".json")
}

func (b *FileBackend) Read(_ context.Context, name Collection) ([]byte, error) {
	data, err := os.ReadFile(b.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return data, err
}

// Write replaces the document through a synced temp file and a rename, so a
// concurrent reader sees either the old or the new document.
func (b *FileBackend) Write(_ context.Context, name Collection, doc []byte) error {
	tmp, err := os.CreateTemp(b.dir, string(name)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(doc); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, b.path(name))
}

func (b *FileBackend) lockPath(name Collection) string {
	return filepath.Join(b.dir, string(name)+".lock")
}

// Begin takes an exclusive flock on every collection's lock file, waiting
// until ctx is done.
func (b *FileBackend) Begin(ctx context.Context, collections []Collection) (Session, error) {
	sess := &fileSession{backend: b}
	for _, c := range collections {
		lock := flock.New(b.lockPath(c))
		locked, err := lock.TryLockContext(ctx, lockRetryDelay)
		if err == nil && !locked {
			err = fmt.Errorf("lock file %s busy", lock.Path())
		}
		if err != nil {
			if relErr := sess.release(); relErr != nil {
				err = errors.Join(err, relErr)
			}
			return nil, fmt.Errorf("locking %s: %w", c, err)
		}
		sess.locks = append(sess.locks, lock)
	}
	return sess, nil
}

type fileSession struct {
	backend *FileBackend
	locks   []*flock.Flock
}

func (s *fileSession) Read(ctx context.Context, name Collection) ([]byte, error) {
	return s.backend.Read(ctx, name)
}

func (s *fileSession) Write(ctx context.Context, name Collection, doc []byte) error {
	return s.backend.Write(ctx, name, doc)
}

func (s *fileSession) Commit() error   { return s.release() }
func (s *fileSession) Rollback() error { return s.release() }
func (s *fileSession) Atomic() bool    { return false }

func (s *fileSession) release() error {
	var errs []error
	for i := len(s.locks) - 1; i >= 0; i-- {
		if err := s.locks[i].Unlock(); err != nil {
			errs = append(errs, err)
		}
	}
	s.locks = nil
	return errors.Join(errs...)
}
