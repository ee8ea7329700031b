package domain

import (
	"fmt"
	"time"
)

type StaffRole string

const (
	StaffRoleOwner StaffRole = "owner"
	StaffRoleStaff StaffRole = "staff"
)

func (r StaffRole) Valid() bool {
	return r == StaffRoleOwner || r == StaffRoleStaff
}

type ActivityKind string

const (
	ActivityRequest      ActivityKind = "request"
	ActivityVerification ActivityKind = "verification"
)

func (k ActivityKind) Valid() bool {
	return k == ActivityRequest || k == ActivityVerification
}

// StaffStats holds additive action counters. They are never decremented.
type StaffStats struct {
	TotalProcessedRequests      int            `json:"total_processed_requests"`
	TotalProcessedVerifications int            `json:"total_processed_kyc"`
	DailyActions                map[string]int `json:"daily_actions"`
}

// Record counts one action of kind on the given calendar day.
func (s *StaffStats) Record(kind ActivityKind, day string) {
	switch kind {
	case ActivityRequest:
		s.TotalProcessedRequests++
	case ActivityVerification:
		s.TotalProcessedVerifications++
	}
	if s.DailyActions == nil {
		s.DailyActions = make(map[string]int)
	}
	s.DailyActions[day]++
}

type StaffAccount struct {
	ID           string     `json:"id"`
	Username     string     `json:"username"`
	PasswordHash string     `json:"password_hash"`
	FullName     string     `json:"full_name"`
	Email        string     `json:"email,omitempty"`
	Role         StaffRole  `json:"role"`
	Permissions  []string   `json:"permissions"`
	AvatarURL    string     `json:"avatar_url,omitempty"`
	Bio          string     `json:"bio"`
	Stats        StaffStats `json:"stats"`
	CreatedAt    time.Time  `json:"created_at"`
}

func (a StaffAccount) Validate() error {
	if a.ID == "" || a.Username == "" {
		return fmt.Errorf("staff account %q: missing id or username: %w", a.ID, ErrValidation)
	}
	if !a.Role.Valid() {
		return fmt.Errorf("staff account %s: unknown role %q: %w", a.ID, a.Role, ErrValidation)
	}
	return nil
}

func (a StaffAccount) IsOwner() bool {
	return a.Role == StaffRoleOwner
}
