package domain

// SettingsKey is the id of the single record in the settings collection.
const SettingsKey = "default"

type Settings struct {
	BotToken             string `json:"bot_token"`
	AdminChatID          string `json:"admin_chat_id"`
	RequireApproval      bool   `json:"require_approval"`
	NotificationsEnabled bool   `json:"notifications_enabled"`
	HelpText             string `json:"help_text"`
	HelpButtonText       string `json:"help_button_text"`
}

func DefaultSettings() Settings {
	return Settings{
		RequireApproval:      true,
		NotificationsEnabled: true,
		HelpText:             "Help text has not been configured yet.",
		HelpButtonText:       "ℹ️ Help",
	}
}
