package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"sort"
	"sync"

	"console-rental-backend/internal/logger"
)

// Collection names one persisted document.
type Collection string

const (
	Settings             Collection = "settings"
	Discounts            Collection = "discounts"
	Consoles             Collection = "consoles"
	Rentals              Collection = "rentals"
	RentalRequests       Collection = "rental_requests"
	Users                Collection = "users"
	VerificationRequests Collection = "verification_requests"
	StaffAccounts        Collection = "staff_accounts"
)

// lockOrder is the single global acquisition order. Every Update locks and
// commits its collections in this order.
var lockOrder = []Collection{
	Settings,
	Discounts,
	Consoles,
	Rentals,
	RentalRequests,
	Users,
	VerificationRequests,
	StaffAccounts,
}

var (
	ErrMalformed     = errors.New("malformed collection")
	ErrNotLocked     = errors.New("collection not locked by transaction")
	ErrPartialCommit = errors.New("partial commit")
	ErrUnknown       = errors.New("unknown collection")
)

// Backend persists whole collection documents. Read returns nil, nil for a
// collection that was never written.
type Backend interface {
	Read(ctx context.Context, name Collection) ([]byte, error)
	// Begin excludes every other process from the named collections until the
	// session ends. Collections arrive in lock order.
	Begin(ctx context.Context, collections []Collection) (Session, error)
}

// Session is one Update's exclusive view of the backend. Each Write must
// replace its document atomically.
type Session interface {
	Read(ctx context.Context, name Collection) ([]byte, error)
	Write(ctx context.Context, name Collection, doc []byte) error
	Commit() error
	Rollback() error
	// Atomic reports whether Commit applies every write or none.
	Atomic() bool
}

type reader interface {
	Read(ctx context.Context, name Collection) ([]byte, error)
}

type validator interface {
	Validate() error
}

// Store serializes writers per collection: the mutexes order goroutines of
// this process and the backend session orders processes. Readers go straight
// to the backend.
type Store struct {
	backend Backend
	locks   map[Collection]*sync.Mutex
}

func New(backend Backend) *Store {
	locks := make(map[Collection]*sync.Mutex, len(lockOrder))
	for _, c := range lockOrder {
		locks[c] = &sync.Mutex{}
	}
	return &Store{backend: backend, locks: locks}
}

// Tx is the view of the store handed to an Update callback.
type Tx struct {
	ctx    context.Context
	sess   Session
	locked map[Collection]bool
	tables map[Collection]any
	dirty  map[Collection]bool
}

// Update locks the named collections, runs fn and, if fn returns nil, writes
// every collection fn modified. Nothing is written when fn fails.
func (s *Store) Update(ctx context.Context, fn func(tx *Tx) error, collections ...Collection) error {
	ordered, err := sortCollections(collections)
	if err != nil {
		return err
	}

	for _, c := range ordered {
		s.locks[c].Lock()
	}
	defer func() {
		for i := len(ordered) - 1; i >= 0; i-- {
			s.locks[ordered[i]].Unlock()
		}
	}()

	sess, err := s.backend.Begin(ctx, ordered)
	if err != nil {
		return fmt.Errorf("locking %v: %w", ordered, err)
	}

	tx := &Tx{
		ctx:    ctx,
		sess:   sess,
		locked: make(map[Collection]bool, len(ordered)),
		tables: make(map[Collection]any),
		dirty:  make(map[Collection]bool),
	}
	for _, c := range ordered {
		tx.locked[c] = true
	}

	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	if err := ctx.Err(); err != nil {
		tx.rollback()
		return err
	}
	return tx.commit(ordered)
}

func (tx *Tx) rollback() {
	if err := tx.sess.Rollback(); err != nil {
		logger.Warn("Store rollback failed", "error", err)
	}
}

func (tx *Tx) commit(ordered []Collection) error {
	var written []Collection
	for _, c := range ordered {
		if !tx.dirty[c] {
			continue
		}
		doc, err := json.MarshalIndent(tx.tables[c], "", "  ")
		if err == nil {
			logger.StoreCall("write", string(c), "bytes", len(doc))
			err = tx.sess.Write(tx.ctx, c, doc)
			logger.StoreResult("write", string(c), err)
		}
		if err != nil {
			tx.rollback()
			if len(written) > 0 && !tx.sess.Atomic() {
				logger.Error("Store left partially committed",
					"failed", c, "committed", written, "error", err)
				return fmt.Errorf("writing %s after %v: %w: %w", c, written, ErrPartialCommit, err)
			}
			return fmt.Errorf("writing %s: %w", c, err)
		}
		written = append(written, c)
	}

	if err := tx.sess.Commit(); err != nil {
		if tx.sess.Atomic() {
			return fmt.Errorf("committing %v: %w", written, err)
		}
		// Every document is already in place; only releasing the locks failed.
		logger.Error("Store lock release failed", "collections", ordered, "error", err)
	}
	return nil
}

func sortCollections(collections []Collection) ([]Collection, error) {
	rank := make(map[Collection]int, len(lockOrder))
	for i, c := range lockOrder {
		rank[c] = i
	}
	seen := make(map[Collection]bool, len(collections))
	var out []Collection
	for _, c := range collections {
		if _, ok := rank[c]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknown, c)
		}
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return rank[out[i]] < rank[out[j]] })
	return out, nil
}

// Load reads a collection without locking. A collection that was never
// written loads as an empty map.
func Load[T any](ctx context.Context, s *Store, c Collection) (map[string]T, error) {
	return load[T](ctx, s.backend, c)
}

func load[T any](ctx context.Context, r reader, c Collection) (map[string]T, error) {
	logger.StoreCall("read", string(c))
	doc, err := r.Read(ctx, c)
	logger.StoreResult("read", string(c), err)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", c, err)
	}
	return decode[T](c, doc)
}

func decode[T any](c Collection, doc []byte) (map[string]T, error) {
	records := make(map[string]T)
	if len(doc) == 0 {
		return records, nil
	}
	if err := json.Unmarshal(doc, &records); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, c, err)
	}
	for id, rec := range records {
		if v, ok := any(rec).(validator); ok {
			if err := v.Validate(); err != nil {
				return nil, fmt.Errorf("%w: %s[%s]: %v", ErrMalformed, c, id, err)
			}
		}
	}
	return records, nil
}

// table returns the transaction's working copy of c, loading it on first use.
func table[T any](tx *Tx, c Collection) (map[string]T, error) {
	if !tx.locked[c] {
		return nil, fmt.Errorf("%w: %s", ErrNotLocked, c)
	}
	if cached, ok := tx.tables[c]; ok {
		records, ok := cached.(map[string]T)
		if !ok {
			return nil, fmt.Errorf("collection %s opened with two record types", c)
		}
		return records, nil
	}
	records, err := load[T](tx.ctx, tx.sess, c)
	if err != nil {
		return nil, err
	}
	tx.tables[c] = records
	return records, nil
}

// Table returns a snapshot of c as seen by the transaction, including its
// own earlier Put and Remove calls.
func Table[T any](tx *Tx, c Collection) (map[string]T, error) {
	records, err := table[T](tx, c)
	if err != nil {
		return nil, err
	}
	return maps.Clone(records), nil
}

// Get returns one record of c.
func Get[T any](tx *Tx, c Collection, id string) (T, bool, error) {
	var zero T
	records, err := table[T](tx, c)
	if err != nil {
		return zero, false, err
	}
	rec, ok := records[id]
	return rec, ok, nil
}

// Put stages rec under id. It is written when the transaction commits.
func Put[T any](tx *Tx, c Collection, id string, rec T) error {
	records, err := table[T](tx, c)
	if err != nil {
		return err
	}
	records[id] = rec
	tx.dirty[c] = true
	return nil
}

// Remove stages the deletion of id. Removing a missing id is a no-op.
func Remove[T any](tx *Tx, c Collection, id string) error {
	records, err := table[T](tx, c)
	if err != nil {
		return err
	}
	if _, ok := records[id]; !ok {
		return nil
	}
	delete(records, id)
	tx.dirty[c] = true
	return nil
}
