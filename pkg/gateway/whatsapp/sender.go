// Package whatsapp sends outbound messages through the WhatsApp Cloud API.
package whatsapp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/vantagecrm/cadence/pkg/gateway"
	"github.com/vantagecrm/cadence/pkg/models"
)

const defaultAPIBase = "https://graph.facebook.com/v19.0"

type Sender struct {
	apiBase       string
	phoneNumberID string
	accessToken   string
	client        *gateway.HTTPClient
	logger        *slog.Logger
}

func NewSender(apiBase, phoneNumberID, accessToken string, client *gateway.HTTPClient, logger *slog.Logger) *Sender {
	if apiBase == "" {
		apiBase = defaultAPIBase
	}

	return &Sender{
		apiBase:       strings.TrimSuffix(apiBase, "/"),
		phoneNumberID: phoneNumberID,
		accessToken:   accessToken,
		client:        client,
		logger:        logger.With("module", "whatsapp_sender"),
	}
}

func (s *Sender) Kind() models.ChannelKind {
	return models.ChannelWhatsApp
}

func (s *Sender) Send(ctx context.Context, contact *models.Contact, script string) error {
	number, ok := contact.IdentifierFor(models.ChannelWhatsApp)
	if !ok {
		return gateway.ErrMissingIdentifier
	}

	url := fmt.Sprintf("%s/%s/messages", s.apiBase, s.phoneNumberID)

	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                number,
		"type":              "text",
		"text":              map[string]string{"body": script},
	}

	headers := map[string]string{"Authorization": "Bearer " + s.accessToken}

	err := s.client.PostJSON(ctx, url, headers, payload)
	if err != nil {
		return fmt.Errorf("whatsapp send to %s failed: %w", number, err)
	}

	s.logger.InfoContext(ctx, "WhatsApp message sent", "contact_id", contact.ID)

	return nil
}
