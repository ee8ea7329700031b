package service

import (
	"context"
	"log/slog"

	"console-rental-backend/internal/domain"
	"console-rental-backend/internal/logger"
	"console-rental-backend/internal/store"
)

// SettingsPatch changes only the fields that are set.
type SettingsPatch struct {
	BotToken             *string `json:"bot_token,omitempty"`
	AdminChatID          *string `json:"admin_chat_id,omitempty"`
	RequireApproval      *bool   `json:"require_approval,omitempty"`
	NotificationsEnabled *bool   `json:"notifications_enabled,omitempty"`
	HelpText             *string `json:"help_text,omitempty"`
	HelpButtonText       *string `json:"help_button_text,omitempty"`
}

func (p SettingsPatch) apply(s *domain.Settings) {
	if p.BotToken != nil {
		s.BotToken = *p.BotToken
	}
	if p.AdminChatID != nil {
		s.AdminChatID = *p.AdminChatID
	}
	if p.RequireApproval != nil {
		s.RequireApproval = *p.RequireApproval
	}
	if p.NotificationsEnabled != nil {
		s.NotificationsEnabled = *p.NotificationsEnabled
	}
	if p.HelpText != nil {
		s.HelpText = *p.HelpText
	}
	if p.HelpButtonText != nil {
		s.HelpButtonText = *p.HelpButtonText
	}
}

type settingsService struct {
	store *store.Store
	log   *slog.Logger
}

func NewSettingsService(st *store.Store) SettingsService {
	return &settingsService{
		store: st,
		log:   logger.WithService("settings"),
	}
}

// Get returns the stored settings, or the defaults when none were saved.
func (s *settingsService) Get(ctx context.Context) (*domain.Settings, error) {
	all, err := store.Load[domain.Settings](ctx, s.store, store.Settings)
	if err != nil {
		return nil, err
	}
	settings, ok := all[domain.SettingsKey]
	if !ok {
		settings = domain.DefaultSettings()
	}
	return &settings, nil
}

func (s *settingsService) Update(ctx context.Context, patch SettingsPatch) (*domain.Settings, error) {
	var settings domain.Settings
	err := s.store.Update(ctx, func(tx *store.Tx) error {
		current, ok, err := store.Get[domain.Settings](tx, store.Settings, domain.SettingsKey)
		if err != nil {
			return err
		}
		if !ok {
			current = domain.DefaultSettings()
		}
		patch.apply(&current)
		settings = current
		return store.Put(tx, store.Settings, domain.SettingsKey, settings)
	}, store.Settings)
	if err != nil {
		return nil, err
	}
	s.log.InfoContext(ctx, "Settings updated", "bot_token_changed", patch.BotToken != nil)
	return &settings, nil
}
