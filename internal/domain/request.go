package domain

import (
	"fmt"
	"time"
)

type RequestStatus string

const (
	RequestStatusPending  RequestStatus = "pending"
	RequestStatusApproved RequestStatus = "approved"
	RequestStatusRejected RequestStatus = "rejected"
)

func (s RequestStatus) Valid() bool {
	return s == RequestStatusPending || s == RequestStatusApproved || s == RequestStatusRejected
}

// RentalRequest is a customer's proposal for a rental. Immutable once resolved.
type RentalRequest struct {
	ID          string        `json:"id"`
	UserID      string        `json:"user_id"`
	ConsoleID   string        `json:"console_id"`
	Hours       int           `json:"selected_hours"`
	Status      RequestStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   *time.Time    `json:"updated_at,omitempty"`
	ProcessedBy string        `json:"processed_by,omitempty"`
	RentalID    string        `json:"rental_id,omitempty"`
}

func (r RentalRequest) Validate() error {
	if r.ID == "" || r.UserID == "" || r.ConsoleID == "" {
		return fmt.Errorf("rental request %q: missing id, user or console: %w", r.ID, ErrValidation)
	}
	if !r.Status.Valid() {
		return fmt.Errorf("rental request %s: unknown status %q: %w", r.ID, r.Status, ErrValidation)
	}
	return nil
}

func (r *RentalRequest) Approve(staffID, rentalID string, at time.Time) error {
	if err := r.ensurePending(); err != nil {
		return err
	}
	r.Status = RequestStatusApproved
	r.RentalID = rentalID
	r.ProcessedBy = staffID
	r.UpdatedAt = &at
	return nil
}

func (r *RentalRequest) Reject(staffID string, at time.Time) error {
	if err := r.ensurePending(); err != nil {
		return err
	}
	r.Status = RequestStatusRejected
	r.ProcessedBy = staffID
	r.UpdatedAt = &at
	return nil
}

func (r *RentalRequest) ensurePending() error {
	if r.Status != RequestStatusPending {
		return fmt.Errorf("rental request %s already %s: %w", r.ID, r.Status, ErrConflict)
	}
	return nil
}
