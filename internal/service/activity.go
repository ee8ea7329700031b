package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"console-rental-backend/internal/domain"
	"console-rental-backend/internal/logger"
	"console-rental-backend/internal/store"
)

// ActivityReportEntry is one staff member's line in the activity report.
type ActivityReportEntry struct {
	StaffID                     string           `json:"staff_id"`
	Username                    string           `json:"username"`
	FullName                    string           `json:"full_name"`
	Role                        domain.StaffRole `json:"role"`
	TotalProcessedRequests      int              `json:"total_processed_requests"`
	TotalProcessedVerifications int              `json:"total_processed_kyc"`
	Today                       int              `json:"today"`
}

type activityService struct {
	store *store.Store
	clock Clock
	log   *slog.Logger
}

func NewActivityService(st *store.Store, clock Clock) ActivityService {
	return &activityService{
		store: st,
		clock: clock,
		log:   logger.WithService("activity"),
	}
}

func (s *activityService) Record(ctx context.Context, staffID string, kind domain.ActivityKind) error {
	if !kind.Valid() {
		return fmt.Errorf("activity kind %q: %w", kind, domain.ErrValidation)
	}
	return s.store.Update(ctx, func(tx *store.Tx) error {
		found, err := recordActivity(tx, staffID, kind, today(s.clock))
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("staff %s: %w", staffID, domain.ErrNotFound)
		}
		return nil
	}, store.StaffAccounts)
}

func (s *activityService) Report(ctx context.Context) ([]ActivityReportEntry, error) {
	accounts, err := store.Load[domain.StaffAccount](ctx, s.store, store.StaffAccounts)
	if err != nil {
		return nil, err
	}
	day := today(s.clock)
	out := make([]ActivityReportEntry, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, ActivityReportEntry{
			StaffID:                     a.ID,
			Username:                    a.Username,
			FullName:                    a.FullName,
			Role:                        a.Role,
			TotalProcessedRequests:      a.Stats.TotalProcessedRequests,
			TotalProcessedVerifications: a.Stats.TotalProcessedVerifications,
			Today:                       a.Stats.DailyActions[day],
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

// recordActivity bumps the counters of staffID inside a transaction holding
// the staff_accounts lock. It reports false when the account does not exist.
func recordActivity(tx *store.Tx, staffID string, kind domain.ActivityKind, day string) (bool, error) {
	account, ok, err := store.Get[domain.StaffAccount](tx, store.StaffAccounts, staffID)
	if err != nil || !ok {
		return false, err
	}
	account.Stats.Record(kind, day)
	return true, store.Put(tx, store.StaffAccounts, staffID, account)
}

// recordWorkflowActivity is recordActivity for workflows, where an unknown
// staff id must not block the decision itself.
func recordWorkflowActivity(ctx context.Context, tx *store.Tx, log *slog.Logger, staffID string, kind domain.ActivityKind, day string) error {
	found, err := recordActivity(tx, staffID, kind, day)
	if err != nil {
		return err
	}
	if !found {
		log.WarnContext(ctx, "Activity not recorded for unknown staff", "staff_id", staffID, "kind", kind)
	}
	return nil
}
