package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	ID    string `json:"id"`
	Count int    `json:"count"`
}

func (i item) Validate() error {
	if i.ID == "" {
		return errors.New("missing id")
	}
	return nil
}

func newFileStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	backend, err := NewFileBackend(dir)
	require.NoError(t, err)
	return New(backend), dir
}

func TestLoadNeverWritten(t *testing.T) {
	s, _ := newFileStore(t)

	records, err := Load[item](context.Background(), s, Consoles)
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
}

func TestUpdateRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, dir := newFileStore(t)

	err := s.Update(ctx, func(tx *Tx) error {
		if err := Put(tx, Consoles, "a", item{ID: "a", Count: 1}); err != nil {
			return err
		}
		return Put(tx, Consoles, "b", item{ID: "b", Count: 2})
	}, Consoles)
	require.NoError(t, err)

	records, err := Load[item](ctx, s, Consoles)
	require.NoError(t, err)
	assert.Equal(t, map[string]item{"a": {ID: "a", Count: 1}, "b": {ID: "b", Count: 2}}, records)

	err = s.Update(ctx, func(tx *Tx) error {
		return Remove[item](tx, Consoles, "a")
	}, Consoles)
	require.NoError(t, err)

	records, err = Load[item](ctx, s, Consoles)
	require.NoError(t, err)
	assert.Len(t, records, 1)

	// no temp files left behind
	matches, err := filepath.Glob(filepath.Join(dir, "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestTableSeesOwnWrites(t *testing.T) {
	s, _ := newFileStore(t)

	err := s.Update(context.Background(), func(tx *Tx) error {
		require.NoError(t, Put(tx, Rentals, "x", item{ID: "x"}))
		records, err := Table[item](tx, Rentals)
		require.NoError(t, err)
		assert.Contains(t, records, "x")

		rec, ok, err := Get[item](tx, Rentals, "x")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "x", rec.ID)
		return nil
	}, Rentals)
	require.NoError(t, err)
}

func TestUpdateFailureWritesNothing(t *testing.T) {
	ctx := context.Background()
	s, _ := newFileStore(t)
	boom := errors.New("boom")

	err := s.Update(ctx, func(tx *Tx) error {
		require.NoError(t, Put(tx, Consoles, "a", item{ID: "a"}))
		require.NoError(t, Put(tx, Rentals, "r", item{ID: "r"}))
		return boom
	}, Consoles, Rentals)
	assert.ErrorIs(t, err, boom)

	consoles, err := Load[item](ctx, s, Consoles)
	require.NoError(t, err)
	assert.Empty(t, consoles)
	rentals, err := Load[item](ctx, s, Rentals)
	require.NoError(t, err)
	assert.Empty(t, rentals)
}

func TestAccessOutsideLockedSet(t *testing.T) {
	s, _ := newFileStore(t)

	err := s.Update(context.Background(), func(tx *Tx) error {
		return Put(tx, Users, "u", item{ID: "u"})
	}, Consoles)
	assert.ErrorIs(t, err, ErrNotLocked)
}

func TestUnknownCollection(t *testing.T) {
	s, _ := newFileStore(t)

	err := s.Update(context.Background(), func(tx *Tx) error { return nil }, Collection("gadgets"))
	assert.ErrorIs(t, err, ErrUnknown)
}

func TestMalformedDocuments(t *testing.T) {
	ctx := context.Background()

	t.Run("invalid json", func(t *testing.T) {
		s, dir := newFileStore(t)
		require.NoError(t, os.WriteFile(filepath.Join(dir, "consoles.json"), []byte("{not json"), 0o644))

		_, err := Load[item](ctx, s, Consoles)
		assert.ErrorIs(t, err, ErrMalformed)
	})

	t.Run("record fails validation", func(t *testing.T) {
		s, dir := newFileStore(t)
		require.NoError(t, os.WriteFile(filepath.Join(dir, "consoles.json"), []byte(`{"a":{"count":3}}`), 0o644))

		_, err := Load[item](ctx, s, Consoles)
		assert.ErrorIs(t, err, ErrMalformed)

		err = s.Update(ctx, func(tx *Tx) error {
			_, err := Table[item](tx, Consoles)
			return err
		}, Consoles)
		assert.ErrorIs(t, err, ErrMalformed)
	})
}

func TestConcurrentUpdatesAreSerialized(t *testing.T) {
	ctx := context.Background()
	s, _ := newFileStore(t)
	const workers = 40

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Update(ctx, func(tx *Tx) error {
				rec, _, err := Get[item](tx, Consoles, "counter")
				if err != nil {
					return err
				}
				rec.ID = "counter"
				rec.Count++
				return Put(tx, Consoles, "counter", rec)
			}, Consoles)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	records, err := Load[item](ctx, s, Consoles)
	require.NoError(t, err)
	assert.Equal(t, workers, records["counter"].Count)
}

func TestOppositeDeclarationOrderDoesNotDeadlock(t *testing.T) {
	ctx := context.Background()
	s, _ := newFileStore(t)

	bump := func(tx *Tx) error {
		for _, c := range []Collection{Users, Consoles} {
			rec, _, err := Get[item](tx, c, "n")
			if err != nil {
				return err
			}
			rec.ID = "n"
			rec.Count++
			if err := Put(tx, c, "n", rec); err != nil {
				return err
			}
		}
		return nil
	}

	done := make(chan struct{})
	go func() {
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				assert.NoError(t, s.Update(ctx, bump, Users, Consoles))
			}()
			go func() {
				defer wg.Done()
				assert.NoError(t, s.Update(ctx, bump, Consoles, Users))
			}()
		}
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("updates deadlocked")
	}

	users, err := Load[item](ctx, s, Users)
	require.NoError(t, err)
	consoles, err := Load[item](ctx, s, Consoles)
	require.NoError(t, err)
	assert.Equal(t, 40, users["n"].Count)
	assert.Equal(t, 40, consoles["n"].Count)
}

// flakyBackend fails writes of one collection.
type flakyBackend struct {
	Backend
	failOn Collection
}

func (b *flakyBackend) Begin(ctx context.Context, collections []Collection) (Session, error) {
	sess, err := b.Backend.Begin(ctx, collections)
	if err != nil {
		return nil, err
	}
	return &flakySession{Session: sess, failOn: b.failOn}, nil
}

type flakySession struct {
	Session
	failOn Collection
}

func (s *flakySession) Write(ctx context.Context, name Collection, doc []byte) error {
	if name == s.failOn {
		return fmt.Errorf("disk full")
	}
	return s.Session.Write(ctx, name, doc)
}

func TestPartialCommitIsReported(t *testing.T) {
	ctx := context.Background()
	files, err := NewFileBackend(t.TempDir())
	require.NoError(t, err)

	t.Run("after an earlier collection was written", func(t *testing.T) {
		s := New(&flakyBackend{Backend: files, failOn: Rentals})
		err := s.Update(ctx, func(tx *Tx) error {
			require.NoError(t, Put(tx, Consoles, "c", item{ID: "c"}))
			return Put(tx, Rentals, "r", item{ID: "r"})
		}, Rentals, Consoles)
		assert.ErrorIs(t, err, ErrPartialCommit)
	})

	t.Run("first write fails", func(t *testing.T) {
		s := New(&flakyBackend{Backend: files, failOn: Consoles})
		err := s.Update(ctx, func(tx *Tx) error {
			require.NoError(t, Put(tx, Consoles, "c", item{ID: "c"}))
			return Put(tx, Rentals, "r", item{ID: "r"})
		}, Consoles, Rentals)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrPartialCommit)
	})
}

func TestPartialCommitReleasesLocks(t *testing.T) {
	ctx := context.Background()
	files, err := NewFileBackend(t.TempDir())
	require.NoError(t, err)

	s := New(&flakyBackend{Backend: files, failOn: Rentals})
	err = s.Update(ctx, func(tx *Tx) error {
		return Put(tx, Rentals, "r", item{ID: "r"})
	}, Rentals)
	require.Error(t, err)

	other := New(files)
	timeout, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	assert.NoError(t, other.Update(timeout, func(tx *Tx) error {
		return Put(tx, Rentals, "r", item{ID: "r"})
	}, Rentals))
}

func newStoreOver(t *testing.T, dir string) *Store {
	t.Helper()
	backend, err := NewFileBackend(dir)
	require.NoError(t, err)
	return New(backend)
}

func TestStoresSharingADirectoryDoNotLoseUpdates(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	stores := []*Store{newStoreOver(t, dir), newStoreOver(t, dir)}
	const workers = 40

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(s *Store) {
			defer wg.Done()
			err := s.Update(ctx, func(tx *Tx) error {
				rec, _, err := Get[item](tx, Rentals, "counter")
				if err != nil {
					return err
				}
				rec.ID = "counter"
				rec.Count++
				return Put(tx, Rentals, "counter", rec)
			}, Rentals)
			assert.NoError(t, err)
		}(stores[i%2])
	}
	wg.Wait()

	records, err := Load[item](ctx, stores[0], Rentals)
	require.NoError(t, err)
	assert.Equal(t, workers, records["counter"].Count)
}

func TestUpdateWaitsForAnotherStoreHoldingTheLock(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	first, second := newStoreOver(t, dir), newStoreOver(t, dir)

	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- first.Update(ctx, func(tx *Tx) error {
			close(entered)
			<-release
			return Put(tx, Rentals, "a", item{ID: "a", Count: 1})
		}, Rentals)
	}()
	<-entered

	timeout, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	err := second.Update(timeout, func(tx *Tx) error {
		return Put(tx, Rentals, "b", item{ID: "b"})
	}, Rentals)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// Other collections stay free.
	assert.NoError(t, second.Update(ctx, func(tx *Tx) error {
		return Put(tx, Consoles, "c", item{ID: "c"})
	}, Consoles))

	close(release)
	require.NoError(t, <-done)

	require.NoError(t, second.Update(ctx, func(tx *Tx) error {
		rec, ok, err := Get[item](tx, Rentals, "a")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 1, rec.Count)
		return Put(tx, Rentals, "b", item{ID: "b"})
	}, Rentals))
}

func TestLoadNeverSeesAPartialDocument(t *testing.T) {
	ctx := context.Background()
	s, _ := newFileStore(t)

	small := map[string]item{"a": {ID: "a", Count: 1}}
	large := make(map[string]item, 500)
	for i := 0; i < 500; i++ {
		id := fmt.Sprintf("item-%03d", i)
		large[id] = item{ID: id, Count: i}
	}

	stop := make(chan struct{})
	readErr := make(chan error, 1)
	go func() {
		defer close(readErr)
		for {
			select {
			case <-stop:
				return
			default:
			}
			records, err := Load[item](ctx, s, Consoles)
			if err != nil {
				readErr <- err
				return
			}
			if n := len(records); n != 0 && n != 1 && n != 500 {
				readErr <- fmt.Errorf("read %d records", n)
				return
			}
		}
	}()

	for i := 0; i < 100; i++ {
		next := small
		if i%2 == 0 {
			next = large
		}
		require.NoError(t, s.Update(ctx, func(tx *Tx) error {
			current, err := Table[item](tx, Consoles)
			if err != nil {
				return err
			}
			for id := range current {
				if err := Remove[item](tx, Consoles, id); err != nil {
					return err
				}
			}
			for id, rec := range next {
				if err := Put(tx, Consoles, id, rec); err != nil {
					return err
				}
			}
			return nil
		}, Consoles))
	}
	close(stop)

	assert.NoError(t, <-readErr)
}
