package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"console-rental-backend/internal/domain"
	"console-rental-backend/internal/logger"
	"console-rental-backend/internal/store"

	"github.com/google/uuid"
)

type consoleService struct {
	store *store.Store
	clock Clock
	log   *slog.Logger
}

func NewConsoleService(st *store.Store, clock Clock) ConsoleService {
	return &consoleService{
		store: st,
		clock: clock,
		log:   logger.WithService("console"),
	}
}

func (s *consoleService) CreateConsole(ctx context.Context, console *domain.Console) (*domain.Console, error) {
	if strings.TrimSpace(console.Name) == "" {
		return nil, fmt.Errorf("console name is required: %w", domain.ErrValidation)
	}
	created := *console
	created.ID = uuid.NewString()
	created.Status = domain.ConsoleStatusAvailable
	created.CreatedAt = s.clock.Now()
	created.UpdatedAt = nil
	if created.Games == nil {
		created.Games = []string{}
	}
	if err := created.Validate(); err != nil {
		return nil, err
	}

	err := s.store.Update(ctx, func(tx *store.Tx) error {
		return store.Put(tx, store.Consoles, created.ID, created)
	}, store.Consoles)
	if err != nil {
		return nil, err
	}
	s.log.InfoContext(ctx, "Console created", "console_id", created.ID, "name", created.Name)
	return &created, nil
}

// UpdateConsole replaces the descriptive fields. Status only ever changes
// through rentals.
func (s *consoleService) UpdateConsole(ctx context.Context, console *domain.Console) (*domain.Console, error) {
	var updated domain.Console
	err := s.store.Update(ctx, func(tx *store.Tx) error {
		current, ok, err := store.Get[domain.Console](tx, store.Consoles, console.ID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("console %s: %w", console.ID, domain.ErrNotFound)
		}
		updated = *console
		updated.Status = current.Status
		updated.CreatedAt = current.CreatedAt
		now := s.clock.Now()
		updated.UpdatedAt = &now
		if updated.Games == nil {
			updated.Games = []string{}
		}
		if err := updated.Validate(); err != nil {
			return err
		}
		return store.Put(tx, store.Consoles, updated.ID, updated)
	}, store.Consoles)
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *consoleService) DeleteConsole(ctx context.Context, id string) error {
	err := s.store.Update(ctx, func(tx *store.Tx) error {
		console, ok, err := store.Get[domain.Console](tx, store.Consoles, id)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("console %s: %w", id, domain.ErrNotFound)
		}
		if console.Status == domain.ConsoleStatusRented {
			return fmt.Errorf("console %s has an active rental: %w", id, domain.ErrConflict)
		}
		return store.Remove[domain.Console](tx, store.Consoles, id)
	}, store.Consoles)
	if err != nil {
		return err
	}
	s.log.InfoContext(ctx, "Console deleted", "console_id", id)
	return nil
}

func (s *consoleService) GetConsole(ctx context.Context, id string) (*domain.Console, error) {
	consoles, err := store.Load[domain.Console](ctx, s.store, store.Consoles)
	if err != nil {
		return nil, err
	}
	console, ok := consoles[id]
	if !ok {
		return nil, fmt.Errorf("console %s: %w", id, domain.ErrNotFound)
	}
	return &console, nil
}

func (s *consoleService) ListConsoles(ctx context.Context) ([]domain.Console, error) {
	consoles, err := store.Load[domain.Console](ctx, s.store, store.Consoles)
	if err != nil {
		return nil, err
	}
	return sortedConsoles(consoles, nil), nil
}

func (s *consoleService) ListAvailable(ctx context.Context) ([]domain.Console, error) {
	consoles, err := store.Load[domain.Console](ctx, s.store, store.Consoles)
	if err != nil {
		return nil, err
	}
	return sortedConsoles(consoles, func(c domain.Console) bool {
		return c.Status == domain.ConsoleStatusAvailable
	}), nil
}

func sortedConsoles(consoles map[string]domain.Console, keep func(domain.Console) bool) []domain.Console {
	out := make([]domain.Console, 0, len(consoles))
	for _, c := range consoles {
		if keep == nil || keep(c) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// setConsoleStatus moves a console between available and rented inside a
// rental transaction. The caller must hold the consoles lock.
func setConsoleStatus(tx *store.Tx, id string, status domain.ConsoleStatus) (*domain.Console, error) {
	console, ok, err := store.Get[domain.Console](tx, store.Consoles, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("console %s: %w", id, domain.ErrNotFound)
	}
	switch status {
	case domain.ConsoleStatusRented:
		err = console.Occupy()
	case domain.ConsoleStatusAvailable:
		err = console.Release()
	default:
		err = fmt.Errorf("console status %q: %w", status, domain.ErrValidation)
	}
	if err != nil {
		return nil, err
	}
	if err := store.Put(tx, store.Consoles, id, console); err != nil {
		return nil, err
	}
	return &console, nil
}
