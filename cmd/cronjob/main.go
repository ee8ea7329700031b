package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"console-rental-backend/internal/config"
	"console-rental-backend/internal/jobs"
	"console-rental-backend/internal/logger"
	"console-rental-backend/internal/notify"
	"console-rental-backend/internal/scheduler"
	"console-rental-backend/internal/service"
	"console-rental-backend/internal/store"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	runOnce := flag.String("run-once", "", "Run a specific job once and exit (e.g., 'audit-ledger', 'all')")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting console rental cronjob runner...",
		"log_level", cfg.Log.Level, "storage", cfg.Storage.Driver, "timezone", cfg.Business.Timezone)

	ctx := context.Background()

	// Initialize record store
	backend, closeBackend, err := openBackend(ctx, cfg)
	if err != nil {
		logger.Error("Failed to open record store", "error", err)
		log.Fatalf("Failed to open record store: %v", err)
	}
	defer closeBackend()
	st := store.New(backend)
	logger.Info("Record store ready", "driver", cfg.Storage.Driver)

	// Initialize Services
	clock := service.SystemClock{Location: cfg.BusinessLocation()}
	settingsService := service.NewSettingsService(st)
	notifier := notify.NewSupervisor(settingsService, notify.NewTelegramSender)

	rentalService := service.NewRentalService(st, clock, notifier)
	activityService := service.NewActivityService(st, clock)
	staffService := service.NewStaffService(st, clock)

	if cfg.Owner.Username != "" {
		created, err := staffService.EnsureOwner(ctx, cfg.Owner.Username, cfg.Owner.Password)
		if err != nil {
			logger.Error("Failed to seed owner account", "error", err)
			log.Fatalf("Failed to seed owner account: %v", err)
		}
		if created {
			logger.Info("Owner account created", "username", cfg.Owner.Username)
		}
	}

	var mailer notify.Mailer
	if cfg.Email.Provider != "" {
		mailer, err = notify.NewMailer(notify.MailerConfig{
			Provider:       cfg.Email.Provider,
			From:           cfg.Email.From,
			FromName:       cfg.Email.FromName,
			SendGridAPIKey: cfg.Email.SendGridAPIKey,
			SMTPHost:       cfg.Email.SMTP.Host,
			SMTPPort:       cfg.Email.SMTP.Port,
			SMTPUser:       cfg.Email.SMTP.User,
			SMTPPassword:   cfg.Email.SMTP.Password,
		})
		if err != nil {
			log.Fatalf("Failed to configure mailer: %v", err)
		}
	}

	jobServices := &jobs.Services{
		Rental:   rentalService,
		Activity: activityService,
		Staff:    staffService,
		Clock:    clock,
	}

	// Initialize Job Runner
	jobRunner := jobs.NewJobRunner(jobServices, mailer, cfg)

	// Check if running a single job
	if *runOnce != "" {
		logger.Info("Running job once", "job", *runOnce)
		runJobOnce(jobRunner, *runOnce)
		logger.Info("Job execution completed", "job", *runOnce)
		return
	}

	// Initialize Scheduler
	cronScheduler := scheduler.NewScheduler(jobRunner)

	// Start scheduler
	cronScheduler.Start()
	logger.Info("Cronjob scheduler is running. Press Ctrl+C to stop.")

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	// Graceful shutdown
	logger.Info("Shutting down cronjob scheduler...")
	cronScheduler.Stop()
	logger.Info("Cronjob scheduler stopped. Goodbye!")
}

// openBackend builds the record store backend selected by storage.driver
func openBackend(ctx context.Context, cfg *config.Config) (store.Backend, func(), error) {
	switch cfg.Storage.Driver {
	case "file":
		b, err := store.NewFileBackend(cfg.Storage.DataDir)
		return b, func() {}, err
	case "postgres", "sqlite":
		dialect := store.Dialect(cfg.Storage.Driver)
		if dialect == store.DialectSQLite {
			if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
				return nil, nil, fmt.Errorf("creating sqlite directory: %w", err)
			}
		}
		db, err := store.OpenDatabase(dialect, cfg.GetDatabaseConnectionString())
		if err != nil {
			return nil, nil, err
		}
		closeDB := func() { db.Close() }
		b, err := store.NewSQLBackend(db, dialect)
		if err != nil {
			closeDB()
			return nil, nil, err
		}
		if err := b.EnsureSchema(ctx); err != nil {
			closeDB()
			return nil, nil, err
		}
		return b, closeDB, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

// runJobOnce runs a specific job once and exits
func runJobOnce(jobRunner *jobs.JobRunner, jobName string) {
	switch jobName {
	case "send-overdue-reminders":
		jobRunner.SendOverdueReminders()
	case "audit-ledger":
		jobRunner.AuditLedger()
	case "send-activity-report":
		jobRunner.SendActivityReport()
	case "all":
		jobRunner.RunAll()
	default:
		logger.Error("Unknown job name", "job", jobName)
		fmt.Printf("Available jobs:\n")
		fmt.Printf("  - send-overdue-reminders\n")
		fmt.Printf("  - audit-ledger\n")
		fmt.Printf("  - send-activity-report\n")
		fmt.Printf("  - all\n")
		os.Exit(1)
	}
}
