package jobs

import (
	"console-rental-backend/internal/config"
	"console-rental-backend/internal/logger"
	"console-rental-backend/internal/notify"
	"console-rental-backend/internal/service"
)

// JobRunner coordinates all scheduled jobs
type JobRunner struct {
	services *Services
	mailer   notify.Mailer
	config   *config.Config
}

// Services holds all service dependencies needed by jobs
type Services struct {
	Rental   service.RentalService
	Activity service.ActivityService
	Staff    service.StaffService
	// Clock should be the one the services use; it defaults to the system
	// clock in the business time zone.
	Clock service.Clock
}

// NewJobRunner creates a new job runner. mailer may be nil when e-mail is not configured.
func NewJobRunner(services *Services, mailer notify.Mailer, cfg *config.Config) *JobRunner {
	if services.Clock == nil {
		services.Clock = service.SystemClock{Location: cfg.BusinessLocation()}
	}
	return &JobRunner{
		services: services,
		mailer:   mailer,
		config:   cfg,
	}
}

// Config returns the configuration the runner was built with
func (jr *JobRunner) Config() *config.Config {
	return jr.config
}

// runWithRecovery wraps job execution with panic recovery
func (jr *JobRunner) runWithRecovery(jobName string, jobFunc func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Job panicked", "job", jobName, "panic", r)
		}
	}()

	logger.Info("Starting job", "job", jobName)
	jobFunc()
	logger.Info("Job completed", "job", jobName)
}

// RunAll runs every job once (for manual execution)
func (jr *JobRunner) RunAll() {
	jr.AuditLedger()
	jr.SendOverdueReminders()
	jr.SendActivityReport()
}
