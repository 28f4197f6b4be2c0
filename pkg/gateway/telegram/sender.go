// Package telegram sends outbound messages through the Telegram Bot API.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/vantagecrm/cadence/pkg/gateway"
	"github.com/vantagecrm/cadence/pkg/models"
)

const defaultAPIBase = "https://api.telegram.org"

type Sender struct {
	apiBase  string
	botToken string
	client   *gateway.HTTPClient
	logger   *slog.Logger
}

// NewSender creates a Telegram sender. An empty apiBase uses the public Bot
// API endpoint.
func NewSender(apiBase, botToken string, client *gateway.HTTPClient, logger *slog.Logger) *Sender {
	if apiBase == "" {
		apiBase = defaultAPIBase
	}

	return &Sender{
		apiBase:  strings.TrimSuffix(apiBase, "/"),
		botToken: botToken,
		client:   client,
		logger:   logger.With("module", "telegram_sender"),
	}
}

func (s *Sender) Kind() models.ChannelKind {
	return models.ChannelTelegram
}

func (s *Sender) Send(ctx context.Context, contact *models.Contact, script string) error {
	username, ok := contact.IdentifierFor(models.ChannelTelegram)
	if !ok {
		return gateway.ErrMissingIdentifier
	}

	if !strings.HasPrefix(username, "@") {
		username = "@" + username
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", s.apiBase, s.botToken)

	payload := map[string]any{
		"chat_id": username,
		"text":    script,
	}

	err := s.client.PostJSON(ctx, url, nil, payload)
	if err != nil {
		return fmt.Errorf("telegram send to %s failed: %w", username, err)
	}

	s.logger.InfoContext(ctx, "Telegram message sent", "contact_id", contact.ID)

	return nil
}
