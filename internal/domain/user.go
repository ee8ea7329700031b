package domain

import (
	"fmt"
	"time"
)

type VerificationStatus string

const (
	VerificationStatusNone     VerificationStatus = "none"
	VerificationStatusPending  VerificationStatus = "pending"
	VerificationStatusVerified VerificationStatus = "verified"
	VerificationStatusRejected VerificationStatus = "rejected"
)

func (s VerificationStatus) Valid() bool {
	switch s {
	case VerificationStatusNone, VerificationStatusPending, VerificationStatusVerified, VerificationStatusRejected:
		return true
	}
	return false
}

// User is a chat customer, keyed by the transport-level chat id.
type User struct {
	ID                 string             `json:"id"`
	FirstName          string             `json:"first_name"`
	Username           string             `json:"username"`
	JoinedAt           time.Time          `json:"joined_at"`
	VerificationStatus VerificationStatus `json:"kyc_status"`
	VerificationNote   string             `json:"kyc_note,omitempty"`
}

func (u User) Validate() error {
	if u.ID == "" {
		return fmt.Errorf("user: missing id: %w", ErrValidation)
	}
	// Users created before verification existed carry no status at all.
	if u.VerificationStatus != "" && !u.VerificationStatus.Valid() {
		return fmt.Errorf("user %s: unknown verification status %q: %w", u.ID, u.VerificationStatus, ErrValidation)
	}
	return nil
}

// Verification returns the effective status, treating an unset one as none.
func (u User) Verification() VerificationStatus {
	if u.VerificationStatus == "" {
		return VerificationStatusNone
	}
	return u.VerificationStatus
}

func (u User) CanRent() bool {
	return u.Verification() == VerificationStatusVerified
}

// BeginVerification moves the user to pending. Allowed from none and rejected only.
func (u *User) BeginVerification() error {
	switch u.Verification() {
	case VerificationStatusNone, VerificationStatusRejected:
		u.VerificationStatus = VerificationStatusPending
		return nil
	}
	return fmt.Errorf("user %s verification is %s: %w", u.ID, u.Verification(), ErrConflict)
}

// FinishVerification applies a staff decision to a pending user.
func (u *User) FinishVerification(d Decision, note string) error {
	if u.Verification() != VerificationStatusPending {
		return fmt.Errorf("user %s verification is %s: %w", u.ID, u.Verification(), ErrConflict)
	}
	if d == DecisionApprove {
		u.VerificationStatus = VerificationStatusVerified
	} else {
		u.VerificationStatus = VerificationStatusRejected
	}
	u.VerificationNote = note
	return nil
}
