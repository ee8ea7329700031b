package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMailer(t *testing.T) {
	m, err := NewMailer(MailerConfig{Provider: "sendgrid", SendGridAPIKey: "key", From: "desk@example.com"})
	require.NoError(t, err)
	assert.IsType(t, &SendGridMailer{}, m)

	m, err = NewMailer(MailerConfig{Provider: "smtp", SMTPHost: "localhost", SMTPPort: 1025, From: "desk@example.com"})
	require.NoError(t, err)
	assert.IsType(t, &SMTPMailer{}, m)

	_, err = NewMailer(MailerConfig{Provider: "pigeon"})
	assert.Error(t, err)
}
