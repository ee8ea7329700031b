package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"console-rental-backend/internal/domain"
	"console-rental-backend/internal/logger"
	"console-rental-backend/internal/security"
	"console-rental-backend/internal/store"

	"github.com/google/uuid"
)

// StaffInput carries the editable fields of a staff account. On update an
// empty Password or Role keeps the current value.
type StaffInput struct {
	Username    string
	Password    string
	FullName    string
	Email       string
	Role        domain.StaffRole
	Permissions []string
}

type staffService struct {
	store *store.Store
	clock Clock
	log   *slog.Logger
}

func NewStaffService(st *store.Store, clock Clock) StaffService {
	return &staffService{
		store: st,
		clock: clock,
		log:   logger.WithService("staff"),
	}
}

func hashStaffPassword(password string) (string, error) {
	hash, err := security.HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("%v: %w", err, domain.ErrValidation)
	}
	return hash, nil
}

// EnsureOwner seeds an owner account when no owner exists. If username
// already belongs to a staff account, that account is promoted and keeps its
// password. It reports whether an owner was seeded or promoted.
func (s *staffService) EnsureOwner(ctx context.Context, username, password string) (bool, error) {
	if strings.TrimSpace(username) == "" || password == "" {
		return false, fmt.Errorf("owner username and password are required: %w", domain.ErrValidation)
	}
	hash, err := hashStaffPassword(password)
	if err != nil {
		return false, err
	}

	var (
		changed  bool
		promoted bool
	)
	err = s.store.Update(ctx, func(tx *store.Tx) error {
		accounts, err := store.Table[domain.StaffAccount](tx, store.StaffAccounts)
		if err != nil {
			return err
		}
		if ownerCount(accounts) > 0 {
			return nil
		}
		changed = true
		if existing, ok := findByUsername(accounts, username); ok {
			existing.Role = domain.StaffRoleOwner
			promoted = true
			return store.Put(tx, store.StaffAccounts, existing.ID, existing)
		}
		owner := domain.StaffAccount{
			ID:           uuid.NewString(),
			Username:     username,
			PasswordHash: hash,
			FullName:     "Owner",
			Role:         domain.StaffRoleOwner,
			Permissions:  []string{"all"},
			Stats:        domain.StaffStats{DailyActions: map[string]int{}},
			CreatedAt:    s.clock.Now(),
		}
		return store.Put(tx, store.StaffAccounts, owner.ID, owner)
	}, store.StaffAccounts)
	if err != nil {
		return false, err
	}
	switch {
	case promoted:
		s.log.WarnContext(ctx, "No owner account found, promoted existing staff", "username", username)
	case changed:
		s.log.InfoContext(ctx, "Owner account seeded", "username", username)
	}
	return changed, nil
}

func (s *staffService) Authenticate(ctx context.Context, username, password string) (*domain.StaffAccount, error) {
	accounts, err := store.Load[domain.StaffAccount](ctx, s.store, store.StaffAccounts)
	if err != nil {
		return nil, err
	}
	a, ok := findByUsername(accounts, username)
	if !ok {
		return nil, security.ErrInvalidCredentials
	}
	if err := security.CheckPassword(a.PasswordHash, password); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *staffService) CreateStaff(ctx context.Context, input StaffInput) (*domain.StaffAccount, error) {
	if strings.TrimSpace(input.Username) == "" || input.Password == "" {
		return nil, fmt.Errorf("username and password are required: %w", domain.ErrValidation)
	}
	role := input.Role
	if role == "" {
		role = domain.StaffRoleStaff
	}
	if !role.Valid() {
		return nil, fmt.Errorf("role %q: %w", role, domain.ErrValidation)
	}
	hash, err := hashStaffPassword(input.Password)
	if err != nil {
		return nil, err
	}

	account := domain.StaffAccount{
		ID:           uuid.NewString(),
		Username:     input.Username,
		PasswordHash: hash,
		FullName:     input.FullName,
		Email:        input.Email,
		Role:         role,
		Permissions:  input.Permissions,
		Stats:        domain.StaffStats{DailyActions: map[string]int{}},
		CreatedAt:    s.clock.Now(),
	}
	if account.Permissions == nil {
		account.Permissions = []string{}
	}

	err = s.store.Update(ctx, func(tx *store.Tx) error {
		accounts, err := store.Table[domain.StaffAccount](tx, store.StaffAccounts)
		if err != nil {
			return err
		}
		if usernameTaken(accounts, input.Username, "") {
			return fmt.Errorf("username %s is taken: %w", input.Username, domain.ErrConflict)
		}
		return store.Put(tx, store.StaffAccounts, account.ID, account)
	}, store.StaffAccounts)
	if err != nil {
		return nil, err
	}
	s.log.InfoContext(ctx, "Staff account created", "staff_id", account.ID, "username", account.Username, "role", role)
	return &account, nil
}

func (s *staffService) UpdateStaff(ctx context.Context, id string, input StaffInput) (*domain.StaffAccount, error) {
	if input.Role != "" && !input.Role.Valid() {
		return nil, fmt.Errorf("role %q: %w", input.Role, domain.ErrValidation)
	}
	var hash string
	if input.Password != "" {
		var err error
		if hash, err = hashStaffPassword(input.Password); err != nil {
			return nil, err
		}
	}

	var account domain.StaffAccount
	err := s.store.Update(ctx, func(tx *store.Tx) error {
		accounts, err := store.Table[domain.StaffAccount](tx, store.StaffAccounts)
		if err != nil {
			return err
		}
		current, ok := accounts[id]
		if !ok {
			return fmt.Errorf("staff %s: %w", id, domain.ErrNotFound)
		}
		if input.Username != "" && usernameTaken(accounts, input.Username, id) {
			return fmt.Errorf("username %s is taken: %w", input.Username, domain.ErrConflict)
		}
		if current.IsOwner() && input.Role == domain.StaffRoleStaff && ownerCount(accounts) == 1 {
			return fmt.Errorf("cannot demote the last owner: %w", domain.ErrConflict)
		}

		account = current
		if input.Username != "" {
			account.Username = input.Username
		}
		if input.Role != "" {
			account.Role = input.Role
		}
		if hash != "" {
			account.PasswordHash = hash
		}
		account.FullName = input.FullName
		account.Email = input.Email
		if input.Permissions != nil {
			account.Permissions = input.Permissions
		}
		return store.Put(tx, store.StaffAccounts, id, account)
	}, store.StaffAccounts)
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (s *staffService) UpdateProfile(ctx context.Context, id, fullName, bio, avatarURL string) (*domain.StaffAccount, error) {
	var account domain.StaffAccount
	err := s.store.Update(ctx, func(tx *store.Tx) error {
		current, ok, err := store.Get[domain.StaffAccount](tx, store.StaffAccounts, id)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("staff %s: %w", id, domain.ErrNotFound)
		}
		account = current
		account.FullName = fullName
		account.Bio = bio
		if avatarURL != "" {
			account.AvatarURL = avatarURL
		}
		return store.Put(tx, store.StaffAccounts, id, account)
	}, store.StaffAccounts)
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// DeleteStaff removes an account. The last owner cannot be removed.
func (s *staffService) DeleteStaff(ctx context.Context, id string) error {
	err := s.store.Update(ctx, func(tx *store.Tx) error {
		accounts, err := store.Table[domain.StaffAccount](tx, store.StaffAccounts)
		if err != nil {
			return err
		}
		account, ok := accounts[id]
		if !ok {
			return fmt.Errorf("staff %s: %w", id, domain.ErrNotFound)
		}
		if account.IsOwner() && ownerCount(accounts) == 1 {
			return fmt.Errorf("cannot delete the last owner: %w", domain.ErrConflict)
		}
		return store.Remove[domain.StaffAccount](tx, store.StaffAccounts, id)
	}, store.StaffAccounts)
	if err != nil {
		return err
	}
	s.log.InfoContext(ctx, "Staff account deleted", "staff_id", id)
	return nil
}

func (s *staffService) GetStaff(ctx context.Context, id string) (*domain.StaffAccount, error) {
	accounts, err := store.Load[domain.StaffAccount](ctx, s.store, store.StaffAccounts)
	if err != nil {
		return nil, err
	}
	account, ok := accounts[id]
	if !ok {
		return nil, fmt.Errorf("staff %s: %w", id, domain.ErrNotFound)
	}
	return &account, nil
}

func (s *staffService) ListStaff(ctx context.Context) ([]domain.StaffAccount, error) {
	accounts, err := store.Load[domain.StaffAccount](ctx, s.store, store.StaffAccounts)
	if err != nil {
		return nil, err
	}
	out := make([]domain.StaffAccount, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Usernames are unique and matched ignoring case.
func findByUsername(accounts map[string]domain.StaffAccount, username string) (domain.StaffAccount, bool) {
	for _, a := range accounts {
		if strings.EqualFold(a.Username, username) {
			return a, true
		}
	}
	return domain.StaffAccount{}, false
}

func usernameTaken(accounts map[string]domain.StaffAccount, username, exceptID string) bool {
	for id, a := range accounts {
		if id != exceptID && strings.EqualFold(a.Username, username) {
			return true
		}
	}
	return false
}

func ownerCount(accounts map[string]domain.StaffAccount) int {
	n := 0
	for _, a := range accounts {
		if a.IsOwner() {
			n++
		}
	}
	return n
}

