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
)

// UserEntry is a customer with their rental history.
type UserEntry struct {
	domain.User
	Rentals     []domain.Rental `json:"rentals"`
	RentalCount int             `json:"rental_count"`
}

type userService struct {
	store *store.Store
	clock Clock
	log   *slog.Logger
}

func NewUserService(st *store.Store, clock Clock) UserService {
	return &userService{
		store: st,
		clock: clock,
		log:   logger.WithService("user"),
	}
}

// Register records a chat customer on first contact. Existing users are
// returned unchanged with created=false.
func (s *userService) Register(ctx context.Context, id, firstName, username string) (*domain.User, bool, error) {
	if strings.TrimSpace(id) == "" {
		return nil, false, fmt.Errorf("user id is required: %w", domain.ErrValidation)
	}

	var (
		user    domain.User
		created bool
	)
	err := s.store.Update(ctx, func(tx *store.Tx) error {
		existing, ok, err := store.Get[domain.User](tx, store.Users, id)
		if err != nil {
			return err
		}
		if ok {
			user = existing
			return nil
		}
		user = domain.User{
			ID:                 id,
			FirstName:          firstName,
			Username:           username,
			JoinedAt:           s.clock.Now(),
			VerificationStatus: domain.VerificationStatusNone,
		}
		created = true
		return store.Put(tx, store.Users, id, user)
	}, store.Users)
	if err != nil {
		return nil, false, err
	}
	if created {
		s.log.InfoContext(ctx, "User registered", "user_id", id, "username", username)
	}
	return &user, created, nil
}

func (s *userService) GetUser(ctx context.Context, id string) (*domain.User, error) {
	users, err := store.Load[domain.User](ctx, s.store, store.Users)
	if err != nil {
		return nil, err
	}
	user, ok := users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
	}
	return &user, nil
}

func (s *userService) ListUsers(ctx context.Context) ([]UserEntry, error) {
	users, err := store.Load[domain.User](ctx, s.store, store.Users)
	if err != nil {
		return nil, err
	}
	rentals, err := store.Load[domain.Rental](ctx, s.store, store.Rentals)
	if err != nil {
		return nil, err
	}

	byUser := make(map[string][]domain.Rental)
	for _, r := range rentals {
		byUser[r.UserID] = append(byUser[r.UserID], r)
	}

	out := make([]UserEntry, 0, len(users))
	for id, u := range users {
		history := byUser[id]
		sort.Slice(history, func(i, j int) bool { return history[i].StartTime.After(history[j].StartTime) })
		if history == nil {
			history = []domain.Rental{}
		}
		out = append(out, UserEntry{User: u, Rentals: history, RentalCount: len(history)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.After(out[j].JoinedAt) })
	return out, nil
}

func (s *userService) CanRent(ctx context.Context, id string) (bool, error) {
	user, err := s.GetUser(ctx, id)
	if err != nil {
		return false, err
	}
	return user.CanRent(), nil
}
