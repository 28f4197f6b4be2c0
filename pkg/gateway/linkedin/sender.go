// Package linkedin sends outreach messages through the LinkedIn automation
// service, which owns the browser sessions and rate limits.
package linkedin

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/vantagecrm/cadence/pkg/gateway"
	"github.com/vantagecrm/cadence/pkg/models"
)

type Sender struct {
	serviceURL string
	apiKey     string
	client     *gateway.HTTPClient
	logger     *slog.Logger
}

func NewSender(serviceURL, apiKey string, client *gateway.HTTPClient, logger *slog.Logger) *Sender {
	return &Sender{
		serviceURL: strings.TrimSuffix(serviceURL, "/"),
		apiKey:     apiKey,
		client:     client,
		logger:     logger.With("module", "linkedin_sender"),
	}
}

func (s *Sender) Kind() models.ChannelKind {
	return models.ChannelLinkedIn
}

func (s *Sender) Send(ctx context.Context, contact *models.Contact, script string) error {
	profileURL, ok := contact.IdentifierFor(models.ChannelLinkedIn)
	if !ok {
		return gateway.ErrMissingIdentifier
	}

	payload := map[string]any{
		"profile_url": profileURL,
		"message":     script,
	}

	headers := map[string]string{"X-Api-Key": s.apiKey}

	err := s.client.PostJSON(ctx, s.serviceURL+"/messages", headers, payload)
	if err != nil {
		return fmt.Errorf("linkedin send to %s failed: %w", profileURL, err)
	}

	s.logger.InfoContext(ctx, "LinkedIn message sent", "contact_id", contact.ID)

	return nil
}
