package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"console-rental-backend/internal/domain"
	"console-rental-backend/internal/logger"
	"console-rental-backend/internal/store"

	"github.com/google/uuid"
)

// RequestEntry is a rental request joined with its user and console.
type RequestEntry struct {
	domain.RentalRequest
	UserFirstName string `json:"user_first_name"`
	Username      string `json:"username"`
	ConsoleName   string `json:"console_name"`
}

type requestService struct {
	store    *store.Store
	clock    Clock
	notifier Notifier
	log      *slog.Logger
}

func NewRequestService(st *store.Store, clock Clock, notifier Notifier) RequestService {
	return &requestService{
		store:    st,
		clock:    clock,
		notifier: notifier,
		log:      logger.WithService("request"),
	}
}

func (s *requestService) Create(ctx context.Context, userID, consoleID string, hours int) (*domain.RentalRequest, error) {
	if hours <= 0 {
		return nil, fmt.Errorf("hours must be positive, got %d: %w", hours, domain.ErrValidation)
	}

	var (
		req     domain.RentalRequest
		user    domain.User
		console domain.Console
	)
	err := s.store.Update(ctx, func(tx *store.Tx) error {
		var ok bool
		var err error
		user, ok, err = store.Get[domain.User](tx, store.Users, userID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("user %s: %w", userID, domain.ErrNotFound)
		}
		console, ok, err = store.Get[domain.Console](tx, store.Consoles, consoleID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("console %s: %w", consoleID, domain.ErrNotFound)
		}
		if !user.CanRent() {
			return fmt.Errorf("user %s is not verified: %w", userID, domain.ErrConflict)
		}
		if console.Status != domain.ConsoleStatusAvailable {
			return fmt.Errorf("console %s is %s: %w", consoleID, console.Status, domain.ErrConflict)
		}
		day := today(s.clock)
		rule, err := ruleForDay(tx, day)
		if err != nil {
			return err
		}
		if rule.IsBlackout() {
			return blackoutError(day, rule)
		}

		req = domain.RentalRequest{
			ID:        uuid.NewString(),
			UserID:    userID,
			ConsoleID: consoleID,
			Hours:     hours,
			Status:    domain.RequestStatusPending,
			CreatedAt: s.clock.Now(),
		}
		return store.Put(tx, store.RentalRequests, req.ID, req)
	}, store.Discounts, store.Consoles, store.RentalRequests, store.Users)
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "Rental request created",
		"request_id", req.ID, "user_id", userID, "console_id", consoleID, "hours", hours)
	notifyStaff(ctx, s.notifier, s.log, fmt.Sprintf(
		"🎮 *New rental request*\n\nCustomer: %s (@%s)\nConsole: %s\nHours: %d",
		escape(user.FirstName), escape(user.Username), escape(console.Name), hours))
	return &req, nil
}

func (s *requestService) Resolve(ctx context.Context, requestID, decision, staffID string) (*domain.RentalRequest, *domain.Rental, error) {
	d, err := domain.ParseDecision(decision)
	if err != nil {
		return nil, nil, err
	}

	var (
		req     domain.RentalRequest
		rental  *domain.Rental
		console domain.Console
	)
	err = s.store.Update(ctx, func(tx *store.Tx) error {
		var ok bool
		var err error
		req, ok, err = store.Get[domain.RentalRequest](tx, store.RentalRequests, requestID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("rental request %s: %w", requestID, domain.ErrNotFound)
		}
		if req.Status != domain.RequestStatusPending {
			return fmt.Errorf("rental request %s already %s: %w", req.ID, req.Status, domain.ErrConflict)
		}
		console, _, err = store.Get[domain.Console](tx, store.Consoles, req.ConsoleID)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		if d == domain.DecisionApprove {
			rental, err = openRental(tx, s.clock, rentalParams{
				UserID:    req.UserID,
				ConsoleID: req.ConsoleID,
				RequestID: req.ID,
				Hours:     req.Hours,
				CreatedBy: staffID,
			})
			if err != nil {
				return err
			}
			err = req.Approve(staffID, rental.ID, now)
		} else {
			err = req.Reject(staffID, now)
		}
		if err != nil {
			return err
		}
		if err := store.Put(tx, store.RentalRequests, req.ID, req); err != nil {
			return err
		}
		return recordWorkflowActivity(ctx, tx, s.log, staffID, domain.ActivityRequest, today(s.clock))
	}, store.Discounts, store.Consoles, store.Rentals, store.RentalRequests, store.StaffAccounts)
	if err != nil {
		return nil, nil, err
	}

	s.log.InfoContext(ctx, "Rental request resolved",
		"request_id", req.ID, "decision", d, "staff_id", staffID, "rental_id", req.RentalID)
	if d == domain.DecisionApprove {
		notifyUser(ctx, s.notifier, s.log, req.UserID, fmt.Sprintf(
			"✅ Your request for %s was approved!\nThe rental has started.", escape(console.Name)))
	} else {
		notifyUser(ctx, s.notifier, s.log, req.UserID,
			"❌ Unfortunately, your rental request was rejected by the staff.")
	}
	return &req, rental, nil
}

// ListRequests returns every request, newest first.
func (s *requestService) ListRequests(ctx context.Context) ([]RequestEntry, error) {
	requests, err := store.Load[domain.RentalRequest](ctx, s.store, store.RentalRequests)
	if err != nil {
		return nil, err
	}
	users, err := store.Load[domain.User](ctx, s.store, store.Users)
	if err != nil {
		return nil, err
	}
	consoles, err := store.Load[domain.Console](ctx, s.store, store.Consoles)
	if err != nil {
		return nil, err
	}

	out := make([]RequestEntry, 0, len(requests))
	for _, r := range requests {
		u := users[r.UserID]
		out = append(out, RequestEntry{
			RentalRequest: r,
			UserFirstName: u.FirstName,
			Username:      u.Username,
			ConsoleName:   consoles[r.ConsoleID].Name,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
