package jobs

import (
	"context"
	"fmt"
	"strings"

	"console-rental-backend/internal/domain"
	"console-rental-backend/internal/logger"
	"console-rental-backend/internal/service"
)

// SendActivityReport e-mails the staff activity report to every owner with an e-mail address
func (jr *JobRunner) SendActivityReport() {
	jr.runWithRecovery("SendActivityReport", func() {
		if jr.mailer == nil {
			logger.Debug("E-mail not configured, skipping activity report")
			return
		}
		ctx := context.Background()

		report, err := jr.services.Activity.Report(ctx)
		if err != nil {
			logger.Error("Failed to build activity report", "error", err)
			return
		}

		accounts, err := jr.services.Staff.ListStaff(ctx)
		if err != nil {
			logger.Error("Failed to list staff accounts", "error", err)
			return
		}

		day := jr.services.Clock.Now().Format(domain.DateLayout)
		subject := fmt.Sprintf("Staff activity for %s", day)
		body := formatActivityReport(day, report)

		sent := 0
		for _, a := range accounts {
			if !a.IsOwner() || a.Email == "" {
				continue
			}
			if err := jr.mailer.Send(ctx, a.Email, a.FullName, subject, body); err != nil {
				logger.Error("Failed to send activity report", "staff_id", a.ID, "error", err)
				continue
			}
			sent++
		}
		logger.Info("Sent activity reports", "count", sent)
	})
}

func formatActivityReport(day string, entries []service.ActivityReportEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Staff activity for %s\n\n", day)
	if len(entries) == 0 {
		b.WriteString("No staff accounts.\n")
		return b.String()
	}
	for _, e := range entries {
		name := e.FullName
		if name == "" {
			name = e.Username
		}
		fmt.Fprintf(&b, "%s (%s): today %d, requests %d, verifications %d\n",
			name, e.Role, e.Today, e.TotalProcessedRequests, e.TotalProcessedVerifications)
	}
	return b.String()
}
