package service

import (
	"context"
	"log/slog"
	"time"

	"console-rental-backend/internal/domain"
	"console-rental-backend/internal/utils"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type ConsoleService interface {
	CreateConsole(ctx context.Context, console *domain.Console) (*domain.Console, error)
	UpdateConsole(ctx context.Context, console *domain.Console) (*domain.Console, error)
	DeleteConsole(ctx context.Context, id string) error
	GetConsole(ctx context.Context, id string) (*domain.Console, error)
	ListConsoles(ctx context.Context) ([]domain.Console, error)
	ListAvailable(ctx context.Context) ([]domain.Console, error)
}

type DiscountService interface {
	RuleFor(ctx context.Context, date string) (domain.PriceRule, error)
	Today(ctx context.Context) (domain.PriceRule, error)
	ListRules(ctx context.Context) ([]domain.DiscountRule, error)
	SetRule(ctx context.Context, rule *domain.DiscountRule) (*domain.DiscountRule, error)
	DeleteRule(ctx context.Context, date string) error
}

type VerificationService interface {
	Submit(ctx context.Context, userID, photoURL string) (*domain.VerificationRequest, error)
	Resolve(ctx context.Context, requestID, decision, note, staffID string) (*domain.VerificationRequest, error)
	ListVerifications(ctx context.Context) ([]VerificationEntry, error)
}

type RequestService interface {
	Create(ctx context.Context, userID, consoleID string, hours int) (*domain.RentalRequest, error)
	// Resolve returns the rental opened by an approval, nil on rejection.
	Resolve(ctx context.Context, requestID, decision, staffID string) (*domain.RentalRequest, *domain.Rental, error)
	ListRequests(ctx context.Context) ([]RequestEntry, error)
}

type RentalService interface {
	StartManual(ctx context.Context, consoleID string, hours int, staffID string) (*domain.Rental, error)
	Terminate(ctx context.Context, consoleID string) (*domain.Rental, error)
	ActiveRental(ctx context.Context, consoleID string) (*domain.Rental, error)
	History(ctx context.Context) ([]RentalEntry, error)
	Audit(ctx context.Context) ([]LedgerViolation, error)
	RemindOverdue(ctx context.Context) (int, error)
}

type ActivityService interface {
	Record(ctx context.Context, staffID string, kind domain.ActivityKind) error
	Report(ctx context.Context) ([]ActivityReportEntry, error)
}

type UserService interface {
	Register(ctx context.Context, id, firstName, username string) (*domain.User, bool, error)
	GetUser(ctx context.Context, id string) (*domain.User, error)
	ListUsers(ctx context.Context) ([]UserEntry, error)
	CanRent(ctx context.Context, id string) (bool, error)
}

type StaffService interface {
	EnsureOwner(ctx context.Context, username, password string) (bool, error)
	Authenticate(ctx context.Context, username, password string) (*domain.StaffAccount, error)
	CreateStaff(ctx context.Context, input StaffInput) (*domain.StaffAccount, error)
	UpdateStaff(ctx context.Context, id string, input StaffInput) (*domain.StaffAccount, error)
	UpdateProfile(ctx context.Context, id, fullName, bio, avatarURL string) (*domain.StaffAccount, error)
	DeleteStaff(ctx context.Context, id string) error
	GetStaff(ctx context.Context, id string) (*domain.StaffAccount, error)
	ListStaff(ctx context.Context) ([]domain.StaffAccount, error)
}

type SettingsService interface {
	Get(ctx context.Context) (*domain.Settings, error)
	Update(ctx context.Context, patch SettingsPatch) (*domain.Settings, error)
}

type StatsService interface {
	Dashboard(ctx context.Context) (*Dashboard, error)
}

// Notifier delivers chat messages. Workflows treat every failure as best effort.
type Notifier interface {
	NotifyUser(ctx context.Context, userID, text string) error
	NotifyStaff(ctx context.Context, text string) error
}

type Clock interface {
	Now() time.Time
}

// SystemClock reports wall-clock time in the business time zone.
type SystemClock struct {
	Location *time.Location
}

func (c SystemClock) Now() time.Time {
	if c.Location == nil {
		return time.Now().UTC()
	}
	return time.Now().In(c.Location)
}

// today is the calendar day of now in the clock's own zone.
func today(clock Clock) string {
	now := clock.Now()
	return utils.DayKey(now, now.Location())
}

// escape quotes a user-supplied value for the Markdown that chat messages are
// rendered with. An unmatched _ or * makes the chat API reject the message.
func escape(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdown, s)
}

func notifyUser(ctx context.Context, n Notifier, log *slog.Logger, userID, text string) {
	if n == nil || userID == "" || userID == domain.ManualRentalUserID {
		return
	}
	if err := n.NotifyUser(ctx, userID, text); err != nil {
		log.WarnContext(ctx, "User notification failed", "user_id", userID, "error", err)
	}
}

func notifyStaff(ctx context.Context, n Notifier, log *slog.Logger, text string) {
	if n == nil {
		return
	}
	if err := n.NotifyStaff(ctx, text); err != nil {
		log.WarnContext(ctx, "Staff notification failed", "error", err)
	}
}
