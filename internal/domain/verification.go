package domain

import (
	"fmt"
	"time"
)

type VerificationRequestStatus string

const (
	VerificationRequestPending  VerificationRequestStatus = "pending"
	VerificationRequestApproved VerificationRequestStatus = "approved"
	VerificationRequestRejected VerificationRequestStatus = "rejected"
)

func (s VerificationRequestStatus) Valid() bool {
	return s == VerificationRequestPending || s == VerificationRequestApproved || s == VerificationRequestRejected
}

type VerificationRequest struct {
	ID          string                    `json:"id"`
	UserID      string                    `json:"user_id"`
	PhotoURL    string                    `json:"photo_url"`
	Status      VerificationRequestStatus `json:"status"`
	AdminNote   string                    `json:"admin_note,omitempty"`
	ProcessedBy string                    `json:"processed_by,omitempty"`
	CreatedAt   time.Time                 `json:"timestamp"`
	ProcessedAt *time.Time                `json:"processed_at,omitempty"`
}

func (r VerificationRequest) Validate() error {
	if r.ID == "" || r.UserID == "" {
		return fmt.Errorf("verification request %q: missing id or user id: %w", r.ID, ErrValidation)
	}
	if !r.Status.Valid() {
		return fmt.Errorf("verification request %s: unknown status %q: %w", r.ID, r.Status, ErrValidation)
	}
	return nil
}

// Resolve records a staff decision. Only pending requests can be resolved.
func (r *VerificationRequest) Resolve(d Decision, note, staffID string, at time.Time) error {
	if r.Status != VerificationRequestPending {
		return fmt.Errorf("verification request %s already %s: %w", r.ID, r.Status, ErrConflict)
	}
	if d == DecisionApprove {
		r.Status = VerificationRequestApproved
	} else {
		r.Status = VerificationRequestRejected
	}
	r.AdminNote = note
	r.ProcessedBy = staffID
	r.ProcessedAt = &at
	return nil
}
