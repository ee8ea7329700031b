package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"console-rental-backend/internal/domain"
	"console-rental-backend/internal/logger"
)

var (
	ErrNoTransport = errors.New("chat transport not configured")
	ErrNoStaffChat = errors.New("staff chat not configured")
)

// Sender posts one message to a chat.
type Sender interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// SenderFactory builds a Sender for a bot token.
type SenderFactory func(token string) (Sender, error)

// SettingsProvider is the source of the bot token and staff chat id.
type SettingsProvider interface {
	Get(ctx context.Context) (*domain.Settings, error)
}

// Supervisor owns the live chat transport. It re-reads settings on every send
// and rebuilds the transport when the bot token changes.
type Supervisor struct {
	settings SettingsProvider
	factory  SenderFactory
	log      *slog.Logger

	mu     sync.Mutex
	token  string
	sender Sender
}

func NewSupervisor(settings SettingsProvider, factory SenderFactory) *Supervisor {
	return &Supervisor{
		settings: settings,
		factory:  factory,
		log:      logger.WithService("notify"),
	}
}

func (s *Supervisor) transport(ctx context.Context) (Sender, *domain.Settings, error) {
	settings, err := s.settings.Get(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("loading settings: %w", err)
	}
	if settings.BotToken == "" {
		return nil, settings, ErrNoTransport
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sender == nil || s.token != settings.BotToken {
		sender, err := s.factory(settings.BotToken)
		if err != nil {
			return nil, settings, fmt.Errorf("building chat transport: %w", err)
		}
		if s.sender != nil {
			s.log.InfoContext(ctx, "Chat transport rebuilt after token change")
		}
		s.sender = sender
		s.token = settings.BotToken
	}
	return s.sender, settings, nil
}

func (s *Supervisor) NotifyUser(ctx context.Context, userID, text string) error {
	chatID, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return fmt.Errorf("user %s has no chat id: %w", userID, err)
	}
	sender, _, err := s.transport(ctx)
	if err != nil {
		return err
	}
	logger.ExternalServiceCall("telegram", "send_user", "chat_id", chatID)
	err = sender.Send(ctx, chatID, text)
	logger.ExternalServiceResult("telegram", "send_user", err, "chat_id", chatID)
	return err
}

// NotifyStaff posts to the staff chat. It is a no-op while staff
// notifications are switched off in settings.
func (s *Supervisor) NotifyStaff(ctx context.Context, text string) error {
	sender, settings, err := s.transport(ctx)
	if settings != nil && !settings.NotificationsEnabled {
		return nil
	}
	if err != nil {
		return err
	}
	if settings.AdminChatID == "" {
		return ErrNoStaffChat
	}
	chatID, err := strconv.ParseInt(settings.AdminChatID, 10, 64)
	if err != nil {
		return fmt.Errorf("staff chat id %q: %w", settings.AdminChatID, err)
	}
	logger.ExternalServiceCall("telegram", "send_staff", "chat_id", chatID)
	err = sender.Send(ctx, chatID, text)
	logger.ExternalServiceResult("telegram", "send_staff", err, "chat_id", chatID)
	return err
}
