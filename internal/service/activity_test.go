package service_test

import (
	"testing"
	"time"

	"console-rental-backend/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActivityService_Record(t *testing.T) {
	f := newFixture(t, nil)
	f.seedStaff(t, "s1", domain.StaffRoleStaff)

	require.NoError(t, f.activity.Record(f.ctx, "s1", domain.ActivityRequest))
	require.NoError(t, f.activity.Record(f.ctx, "s1", domain.ActivityVerification))
	f.clock.Advance(24 * time.Hour)
	require.NoError(t, f.activity.Record(f.ctx, "s1", domain.ActivityRequest))

	stats := f.staffAccount(t, "s1").Stats
	assert.Equal(t, 2, stats.TotalProcessedRequests)
	assert.Equal(t, 1, stats.TotalProcessedVerifications)
	assert.Equal(t, map[string]int{"2024-05-01": 2, "2024-05-02": 1}, stats.DailyActions)

	assert.ErrorIs(t, f.activity.Record(f.ctx, "ghost", domain.ActivityRequest), domain.ErrNotFound)
	assert.ErrorIs(t, f.activity.Record(f.ctx, "s1", "coffee"), domain.ErrValidation)
}

func TestActivityService_Report(t *testing.T) {
	f := newFixture(t, nil)
	f.seedStaff(t, "a", domain.StaffRoleOwner)
	f.seedStaff(t, "b", domain.StaffRoleStaff)

	require.NoError(t, f.activity.Record(f.ctx, "b", domain.ActivityRequest))
	f.clock.Advance(24 * time.Hour)
	require.NoError(t, f.activity.Record(f.ctx, "b", domain.ActivityVerification))
	require.NoError(t, f.activity.Record(f.ctx, "b", domain.ActivityRequest))

	report, err := f.activity.Report(f.ctx)
	require.NoError(t, err)
	require.Len(t, report, 2)

	assert.Equal(t, "staff-a", report[0].Username)
	assert.Equal(t, 0, report[0].Today)

	assert.Equal(t, "staff-b", report[1].Username)
	assert.Equal(t, 2, report[1].TotalProcessedRequests)
	assert.Equal(t, 1, report[1].TotalProcessedVerifications)
	assert.Equal(t, 2, report[1].Today)
}
