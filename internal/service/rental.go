package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"console-rental-backend/internal/domain"
	"console-rental-backend/internal/logger"
	"console-rental-backend/internal/store"
	"console-rental-backend/internal/utils"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RentalEntry is a rental joined with its customer and console.
type RentalEntry struct {
	domain.Rental
	UserFirstName string `json:"user_first_name"`
	Username      string `json:"username"`
	ConsoleName   string `json:"console_name"`
}

// LedgerViolation describes a console whose status disagrees with its rentals.
type LedgerViolation struct {
	ConsoleID string   `json:"console_id"`
	Problem   string   `json:"problem"`
	RentalIDs []string `json:"rental_ids,omitempty"`
}

type rentalParams struct {
	UserID    string
	ConsoleID string
	RequestID string
	Hours     int
	CreatedBy string
}

type rentalService struct {
	store    *store.Store
	clock    Clock
	notifier Notifier
	log      *slog.Logger
}

func NewRentalService(st *store.Store, clock Clock, notifier Notifier) RentalService {
	return &rentalService{
		store:    st,
		clock:    clock,
		notifier: notifier,
		log:      logger.WithService("rental"),
	}
}

// openRental starts a rental inside a transaction holding the discounts,
// consoles and rentals locks. Every check runs before anything is staged.
func openRental(tx *store.Tx, clock Clock, p rentalParams) (*domain.Rental, error) {
	if p.Hours <= 0 {
		return nil, fmt.Errorf("hours must be positive, got %d: %w", p.Hours, domain.ErrValidation)
	}
	console, ok, err := store.Get[domain.Console](tx, store.Consoles, p.ConsoleID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("console %s: %w", p.ConsoleID, domain.ErrNotFound)
	}
	if console.Status != domain.ConsoleStatusAvailable {
		return nil, fmt.Errorf("console %s is %s: %w", p.ConsoleID, console.Status, domain.ErrConflict)
	}
	active, err := activeRentalFor(tx, p.ConsoleID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, fmt.Errorf("console %s already has active rental %s: %w", p.ConsoleID, active.ID, domain.ErrConflict)
	}

	now := clock.Now()
	day := utils.DayKey(now, now.Location())
	rule, err := ruleForDay(tx, day)
	if err != nil {
		return nil, err
	}
	if rule.IsBlackout() {
		return nil, blackoutError(day, rule)
	}

	rental := domain.Rental{
		ID:              uuid.NewString(),
		UserID:          p.UserID,
		ConsoleID:       p.ConsoleID,
		RequestID:       p.RequestID,
		StartTime:       now,
		ExpectedEndTime: now.Add(time.Duration(p.Hours) * time.Hour),
		Status:          domain.RentalStatusActive,
		DiscountPercent: rule.DiscountPercent(),
		HourlyPrice:     console.RentalPrice,
		BilledHours:     decimal.Zero,
		TotalCost:       decimal.Zero,
		CreatedBy:       p.CreatedBy,
	}
	if _, err := setConsoleStatus(tx, p.ConsoleID, domain.ConsoleStatusRented); err != nil {
		return nil, err
	}
	if err := store.Put(tx, store.Rentals, rental.ID, rental); err != nil {
		return nil, err
	}
	return &rental, nil
}

func activeRentalFor(tx *store.Tx, consoleID string) (*domain.Rental, error) {
	rentals, err := store.Table[domain.Rental](tx, store.Rentals)
	if err != nil {
		return nil, err
	}
	for _, r := range rentals {
		if r.ConsoleID == consoleID && r.Status == domain.RentalStatusActive {
			return &r, nil
		}
	}
	return nil, nil
}

func (s *rentalService) StartManual(ctx context.Context, consoleID string, hours int, staffID string) (*domain.Rental, error) {
	var rental *domain.Rental
	err := s.store.Update(ctx, func(tx *store.Tx) error {
		var err error
		rental, err = openRental(tx, s.clock, rentalParams{
			UserID:    domain.ManualRentalUserID,
			ConsoleID: consoleID,
			Hours:     hours,
			CreatedBy: staffID,
		})
		return err
	}, store.Discounts, store.Consoles, store.Rentals)
	if err != nil {
		return nil, err
	}
	s.log.InfoContext(ctx, "Manual rental started",
		"rental_id", rental.ID, "console_id", consoleID, "hours", hours, "staff_id", staffID)
	return rental, nil
}

// Terminate closes the console's active rental and bills it from the prices
// captured when it was opened.
func (s *rentalService) Terminate(ctx context.Context, consoleID string) (*domain.Rental, error) {
	var (
		rental      *domain.Rental
		consoleName string
	)
	err := s.store.Update(ctx, func(tx *store.Tx) error {
		var err error
		rental, err = activeRentalFor(tx, consoleID)
		if err != nil {
			return err
		}
		if rental == nil {
			return fmt.Errorf("no active rental for console %s: %w", consoleID, domain.ErrNotFound)
		}

		now := s.clock.Now()
		bill := utils.CalculateRentalCost(rental.StartTime, now, rental.HourlyPrice, rental.DiscountPercent)
		if err := rental.Complete(now, bill.BilledHours, bill.TotalCost); err != nil {
			return err
		}
		if err := store.Put(tx, store.Rentals, rental.ID, *rental); err != nil {
			return err
		}

		console, ok, err := store.Get[domain.Console](tx, store.Consoles, consoleID)
		if err != nil {
			return err
		}
		if !ok {
			s.log.WarnContext(ctx, "Terminated rental references missing console", "rental_id", rental.ID, "console_id", consoleID)
			return nil
		}
		if err := console.Release(); err != nil {
			s.log.WarnContext(ctx, "Console was not marked rented", "console_id", consoleID, "status", console.Status)
			console.Status = domain.ConsoleStatusAvailable
		}
		consoleName = console.Name
		return store.Put(tx, store.Consoles, consoleID, console)
	}, store.Consoles, store.Rentals)
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "Rental terminated",
		"rental_id", rental.ID, "console_id", consoleID,
		"billed_hours", rental.BilledHours.String(), "total_cost", rental.TotalCost.StringFixed(2))
	notifyUser(ctx, s.notifier, s.log, rental.UserID, fmt.Sprintf(
		"🏁 Your rental of %s has ended.\n\nBilled hours: %s\nTotal: %s",
		escape(consoleName), rental.BilledHours.StringFixed(2), rental.TotalCost.StringFixed(2)))
	return rental, nil
}

func (s *rentalService) ActiveRental(ctx context.Context, consoleID string) (*domain.Rental, error) {
	rentals, err := store.Load[domain.Rental](ctx, s.store, store.Rentals)
	if err != nil {
		return nil, err
	}
	for _, r := range rentals {
		if r.ConsoleID == consoleID && r.Status == domain.RentalStatusActive {
			return &r, nil
		}
	}
	return nil, fmt.Errorf("no active rental for console %s: %w", consoleID, domain.ErrNotFound)
}

// History returns every rental, newest first.
func (s *rentalService) History(ctx context.Context) ([]RentalEntry, error) {
	rentals, err := store.Load[domain.Rental](ctx, s.store, store.Rentals)
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
	return rentalEntries(rentals, users, consoles), nil
}

func rentalEntries(rentals map[string]domain.Rental, users map[string]domain.User, consoles map[string]domain.Console) []RentalEntry {
	out := make([]RentalEntry, 0, len(rentals))
	for _, r := range rentals {
		u := users[r.UserID]
		out = append(out, RentalEntry{
			Rental:        r,
			UserFirstName: u.FirstName,
			Username:      u.Username,
			ConsoleName:   consoles[r.ConsoleID].Name,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	return out
}

// Audit checks that every rented console has exactly one active rental and
// every available console has none.
func (s *rentalService) Audit(ctx context.Context) ([]LedgerViolation, error) {
	var violations []LedgerViolation
	err := s.store.Update(ctx, func(tx *store.Tx) error {
		consoles, err := store.Table[domain.Console](tx, store.Consoles)
		if err != nil {
			return err
		}
		rentals, err := store.Table[domain.Rental](tx, store.Rentals)
		if err != nil {
			return err
		}
		violations = auditLedger(consoles, rentals)
		return nil
	}, store.Consoles, store.Rentals)
	if err != nil {
		return nil, err
	}
	for _, v := range violations {
		s.log.ErrorContext(ctx, "Ledger invariant violated",
			"console_id", v.ConsoleID, "problem", v.Problem, "rental_ids", v.RentalIDs)
	}
	return violations, nil
}

func auditLedger(consoles map[string]domain.Console, rentals map[string]domain.Rental) []LedgerViolation {
	active := make(map[string][]string)
	for _, r := range rentals {
		if r.Status == domain.RentalStatusActive {
			active[r.ConsoleID] = append(active[r.ConsoleID], r.ID)
		}
	}

	var out []LedgerViolation
	for id, c := range consoles {
		ids := active[id]
		sort.Strings(ids)
		switch {
		case len(ids) > 1:
			out = append(out, LedgerViolation{ConsoleID: id, Problem: "multiple active rentals", RentalIDs: ids})
		case c.Status == domain.ConsoleStatusRented && len(ids) == 0:
			out = append(out, LedgerViolation{ConsoleID: id, Problem: "rented without an active rental"})
		case c.Status == domain.ConsoleStatusAvailable && len(ids) == 1:
			out = append(out, LedgerViolation{ConsoleID: id, Problem: "available with an active rental", RentalIDs: ids})
		}
	}
	for id, ids := range active {
		if _, ok := consoles[id]; !ok {
			sort.Strings(ids)
			out = append(out, LedgerViolation{ConsoleID: id, Problem: "active rental for unknown console", RentalIDs: ids})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConsoleID < out[j].ConsoleID })
	return out
}

// RemindOverdue notifies the customer of every active rental past its
// expected end. Each rental is reminded at most once.
func (s *rentalService) RemindOverdue(ctx context.Context) (int, error) {
	consoles, err := store.Load[domain.Console](ctx, s.store, store.Consoles)
	if err != nil {
		return 0, err
	}

	var overdue []domain.Rental
	err = s.store.Update(ctx, func(tx *store.Tx) error {
		rentals, err := store.Table[domain.Rental](tx, store.Rentals)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		for _, r := range rentals {
			if !r.Overdue(now) || r.OverdueNotifiedAt != nil {
				continue
			}
			r.OverdueNotifiedAt = &now
			if err := store.Put(tx, store.Rentals, r.ID, r); err != nil {
				return err
			}
			overdue = append(overdue, r)
		}
		return nil
	}, store.Rentals)
	if err != nil {
		return 0, err
	}

	for _, r := range overdue {
		name := escape(consoles[r.ConsoleID].Name)
		if r.IsManual() {
			notifyStaff(ctx, s.notifier, s.log, fmt.Sprintf(
				"⏰ Counter rental of %s passed its expected end (%s).", name, r.ExpectedEndTime.Format("15:04")))
			continue
		}
		notifyUser(ctx, s.notifier, s.log, r.UserID, fmt.Sprintf(
			"⏰ Your rental of %s was due at %s. Please return the console or contact us to extend.",
			name, r.ExpectedEndTime.Format("15:04")))
	}
	if len(overdue) > 0 {
		s.log.InfoContext(ctx, "Overdue reminders sent", "count", len(overdue))
	}
	return len(overdue), nil
}
