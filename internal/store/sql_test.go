package store

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLBackendPostgresQueries(t *testing.T) {
	ctx := context.Background()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	backend, err := NewSQLBackend(db, DialectPostgres)
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT document FROM collections WHERE name = $1")).
		WithArgs("consoles").
		WillReturnRows(sqlmock.NewRows([]string{"document"}).AddRow(`{"a":{"id":"a","count":7}}`))

	s := New(backend)
	records, err := Load[item](ctx, s, Consoles)
	require.NoError(t, err)
	assert.Equal(t, 7, records["a"].Count)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock(hashtext($1))")).
		WithArgs("rentals").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT document FROM collections WHERE name = $1")).
		WithArgs("rentals").
		WillReturnRows(sqlmock.NewRows([]string{"document"}))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO collections (name, document, updated_at) VALUES ($1, $2, $3) ON CONFLICT (name) DO UPDATE")).
		WithArgs("rentals", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = s.Update(ctx, func(tx *Tx) error {
		return Put(tx, Rentals, "r", item{ID: "r"})
	}, Rentals)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLBackendPostgresRollsBack(t *testing.T) {
	ctx := context.Background()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	backend, err := NewSQLBackend(db, DialectPostgres)
	require.NoError(t, err)
	s := New(backend)

	t.Run("callback fails", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock(hashtext($1))")).
			WithArgs("consoles").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		err := s.Update(ctx, func(tx *Tx) error {
			return errors.New("console busy")
		}, Consoles)
		assert.EqualError(t, err, "console busy")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("second write fails", func(t *testing.T) {
		mock.ExpectBegin()
		for _, c := range []string{"consoles", "rentals"} {
			mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock(hashtext($1))")).
				WithArgs(c).
				WillReturnResult(sqlmock.NewResult(0, 0))
		}
		for _, c := range []string{"consoles", "rentals"} {
			mock.ExpectQuery(regexp.QuoteMeta("SELECT document FROM collections WHERE name = $1")).
				WithArgs(c).
				WillReturnRows(sqlmock.NewRows([]string{"document"}))
		}
		mock.ExpectExec("INSERT INTO collections").
			WithArgs("consoles", sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO collections").
			WithArgs("rentals", sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnError(errors.New("connection reset"))
		mock.ExpectRollback()

		err := s.Update(ctx, func(tx *Tx) error {
			if err := Put(tx, Consoles, "c", item{ID: "c"}); err != nil {
				return err
			}
			return Put(tx, Rentals, "r", item{ID: "r"})
		}, Rentals, Consoles)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrPartialCommit, "the transaction undoes the first write")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSQLBackendRejectsUnknownDialect(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	_, err = NewSQLBackend(db, Dialect("mysql"))
	assert.Error(t, err)
}

func TestSQLBackendSQLite(t *testing.T) {
	ctx := context.Background()
	db, err := OpenDatabase(DialectSQLite, filepath.Join(t.TempDir(), "rental.db"))
	require.NoError(t, err)
	defer db.Close()

	backend, err := NewSQLBackend(db, DialectSQLite)
	require.NoError(t, err)
	require.NoError(t, backend.EnsureSchema(ctx))
	require.NoError(t, backend.EnsureSchema(ctx))

	s := New(backend)
	empty, err := Load[item](ctx, s, Users)
	require.NoError(t, err)
	assert.Empty(t, empty)

	for i := 1; i <= 2; i++ {
		err := s.Update(ctx, func(tx *Tx) error {
			rec, _, err := Get[item](tx, Users, "u")
			if err != nil {
				return err
			}
			rec.ID = "u"
			rec.Count++
			return Put(tx, Users, "u", rec)
		}, Users)
		require.NoError(t, err)
	}

	users, err := Load[item](ctx, s, Users)
	require.NoError(t, err)
	assert.Equal(t, 2, users["u"].Count)
}

func TestSQLBackendSQLiteStoresDoNotLoseUpdates(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "rental.db")

	var stores []*Store
	for i := 0; i < 2; i++ {
		db, err := OpenDatabase(DialectSQLite, path)
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() })
		backend, err := NewSQLBackend(db, DialectSQLite)
		require.NoError(t, err)
		require.NoError(t, backend.EnsureSchema(ctx))
		stores = append(stores, New(backend))
	}

	const workers = 20
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

	records, err := Load[item](ctx, stores[1], Rentals)
	require.NoError(t, err)
	assert.Equal(t, workers, records["counter"].Count)
}

func TestSQLiteDSN(t *testing.T) {
	assert.Equal(t, "rental.db?_pragma=busy_timeout%285000%29&_pragma=journal_mode%28WAL%29", sqliteDSN("rental.db"))
	assert.Contains(t, sqliteDSN("rental.db?cache=shared"), "rental.db?cache=shared&_pragma=")
}
