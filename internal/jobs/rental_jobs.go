package jobs

import (
	"context"

	"console-rental-backend/internal/logger"
)

// SendOverdueReminders notifies renters whose expected end time has passed.
// Each rental is reminded at most once.
func (jr *JobRunner) SendOverdueReminders() {
	jr.runWithRecovery("SendOverdueReminders", func() {
		ctx := context.Background()

		count, err := jr.services.Rental.RemindOverdue(ctx)
		if err != nil {
			logger.Error("Failed to send overdue reminders", "error", err)
			return
		}
		logger.Info("Sent overdue reminders", "count", count)
	})
}

// AuditLedger checks that every console's status agrees with its active rentals
func (jr *JobRunner) AuditLedger() {
	jr.runWithRecovery("AuditLedger", func() {
		ctx := context.Background()

		violations, err := jr.services.Rental.Audit(ctx)
		if err != nil {
			logger.Error("Failed to audit rental ledger", "error", err)
			return
		}
		if len(violations) > 0 {
			logger.Error("Rental ledger audit found violations", "count", len(violations))
			return
		}
		logger.Info("Rental ledger is consistent")
	})
}
