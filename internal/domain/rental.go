package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type RentalStatus string

const (
	RentalStatusActive    RentalStatus = "active"
	RentalStatusCompleted RentalStatus = "completed"
)

func (s RentalStatus) Valid() bool {
	return s == RentalStatusActive || s == RentalStatusCompleted
}

// ManualRentalUserID marks rentals booked by staff at the counter, without a chat customer.
const ManualRentalUserID = "admin_manual"

type Rental struct {
	ID              string       `json:"id"`
	UserID          string       `json:"user_id"`
	ConsoleID       string       `json:"console_id"`
	RequestID       string       `json:"request_id,omitempty"`
	StartTime       time.Time    `json:"start_time"`
	ExpectedEndTime time.Time    `json:"expected_end_time"`
	EndTime         *time.Time   `json:"end_time,omitempty"`
	Status          RentalStatus `json:"status"`
	// Price snapshot fields, captured at creation. Termination bills from
	// these, never from the live console or calendar.
	DiscountPercent   int             `json:"discount_percent"`
	HourlyPrice       decimal.Decimal `json:"hourly_price"`
	BilledHours       decimal.Decimal `json:"billed_hours"`
	TotalCost         decimal.Decimal `json:"total_cost"`
	CreatedBy         string          `json:"created_by,omitempty"`
	OverdueNotifiedAt *time.Time      `json:"overdue_notified_at,omitempty"`
}

func (r Rental) Validate() error {
	if r.ID == "" || r.ConsoleID == "" {
		return fmt.Errorf("rental %q: missing id or console: %w", r.ID, ErrValidation)
	}
	if !r.Status.Valid() {
		return fmt.Errorf("rental %s: unknown status %q: %w", r.ID, r.Status, ErrValidation)
	}
	if r.DiscountPercent < 0 || r.DiscountPercent > 100 {
		return fmt.Errorf("rental %s: discount %d out of range: %w", r.ID, r.DiscountPercent, ErrValidation)
	}
	return nil
}

func (r Rental) IsManual() bool {
	return r.UserID == ManualRentalUserID
}

// Overdue reports whether an active rental ran past its expected end.
func (r Rental) Overdue(now time.Time) bool {
	return r.Status == RentalStatusActive && now.After(r.ExpectedEndTime)
}

// Complete closes an active rental with its final charge.
func (r *Rental) Complete(end time.Time, billedHours, total decimal.Decimal) error {
	if r.Status != RentalStatusActive {
		return fmt.Errorf("rental %s already %s: %w", r.ID, r.Status, ErrConflict)
	}
	r.Status = RentalStatusCompleted
	r.EndTime = &end
	r.BilledHours = billedHours
	r.TotalCost = total
	return nil
}
