package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// SQLBackend keeps every collection as one row of the collections table.
// Each Update runs in one database transaction, so its writes land together
// and concurrent writers in other processes wait for it.
type SQLBackend struct {
	db      *sql.DB
	dialect Dialect
}

func NewSQLBackend(db *sql.DB, dialect Dialect) (*SQLBackend, error) {
	if dialect != DialectPostgres && dialect != DialectSQLite {
		return nil, fmt.Errorf("unsupported sql dialect %q", dialect)
	}
	return &SQLBackend{db: db, dialect: dialect}, nil
}

// sqlitePragmas run on every new connection of the pool.
var sqlitePragmas = []string{"busy_timeout(5000)", "journal_mode(WAL)"}

// OpenDatabase opens a connection pool for the dialect. SQLite connections get
// WAL mode and a busy timeout.
func OpenDatabase(dialect Dialect, dsn string) (*sql.DB, error) {
	if dialect == DialectSQLite {
		dsn = sqliteDSN(dsn)
	}
	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return db, nil
}

func sqliteDSN(path string) string {
	q := url.Values{}
	for _, p := range sqlitePragmas {
		q.Add("_pragma", p)
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + q.Encode()
}

const createCollectionsTable = `CREATE TABLE IF NOT EXISTS collections (
	name TEXT PRIMARY KEY,
	document TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
)`

func (b *SQLBackend) EnsureSchema(ctx context.Context) error {
	if _, err := b.db.ExecContext(ctx, createCollectionsTable); err != nil {
		return fmt.Errorf("creating collections table: %w", err)
	}
	return nil
}

func (b *SQLBackend) placeholder(n int) string {
	if b.dialect == DialectPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (b *SQLBackend) Read(ctx context.Context, name Collection) ([]byte, error) {
	return b.read(ctx, b.db, name)
}

func (b *SQLBackend) read(ctx context.Context, q querier, name Collection) ([]byte, error) {
	query := "SELECT document FROM collections WHERE name = " + b.placeholder(1)
	var doc string
	err := q.QueryRowContext(ctx, query, string(name)).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []byte(doc), nil
}

func (b *SQLBackend) write(ctx context.Context, q querier, name Collection, doc []byte) error {
	query := fmt.Sprintf(
		"INSERT INTO collections (name, document, updated_at) VALUES (%s, %s, %s) "+
			"ON CONFLICT (name) DO UPDATE SET document = excluded.document, updated_at = excluded.updated_at",
		b.placeholder(1), b.placeholder(2), b.placeholder(3),
	)
	_, err := q.ExecContext(ctx, query, string(name), string(doc), time.Now().UTC())
	return err
}

// Begin opens the transaction for one Update. Postgres takes a
// transaction-scoped advisory lock per collection, which also covers rows
// that do not exist yet. SQLite takes the database write lock up front.
func (b *SQLBackend) Begin(ctx context.Context, collections []Collection) (Session, error) {
	if b.dialect == DialectSQLite {
		return b.beginSQLite(ctx)
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	for _, c := range collections {
		if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", string(c)); err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("locking %s: %w", c, err)
		}
	}
	return &sqlSession{backend: b, q: tx, commit: tx.Commit, rollback: tx.Rollback}, nil
}

// beginSQLite pins one connection and opens an IMMEDIATE transaction on it;
// database/sql transactions always start DEFERRED.
func (b *SQLBackend) beginSQLite(ctx context.Context) (Session, error) {
	conn, err := b.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring connection: %w", err)
	}
	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	end := func(stmt string) error {
		_, err := conn.ExecContext(context.Background(), stmt)
		if err != nil && stmt == "COMMIT" {
			conn.ExecContext(context.Background(), "ROLLBACK")
		}
		return errors.Join(err, conn.Close())
	}
	return &sqlSession{
		backend:  b,
		q:        conn,
		commit:   func() error { return end("COMMIT") },
		rollback: func() error { return end("ROLLBACK") },
	}, nil
}

type sqlSession struct {
	backend  *SQLBackend
	q        querier
	commit   func() error
	rollback func() error
}

func (s *sqlSession) Read(ctx context.Context, name Collection) ([]byte, error) {
	return s.backend.read(ctx, s.q, name)
}

func (s *sqlSession) Write(ctx context.Context, name Collection, doc []byte) error {
	return s.backend.write(ctx, s.q, name, doc)
}

func (s *sqlSession) Commit() error   { return s.commit() }
func (s *sqlSession) Rollback() error { return s.rollback() }
func (s *sqlSession) Atomic() bool    { return true }
