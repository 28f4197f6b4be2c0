// Package voicecall initiates outbound AI voice calls through the calling
// provider. A send succeeds once the call is initiated, not when it
// completes.
package voicecall

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/vantagecrm/cadence/pkg/gateway"
	"github.com/vantagecrm/cadence/pkg/models"
)

type Sender struct {
	apiBase string
	apiKey  string
	agentID string
	client  *gateway.HTTPClient
	logger  *slog.Logger
}

func NewSender(apiBase, apiKey, agentID string, client *gateway.HTTPClient, logger *slog.Logger) *Sender {
	return &Sender{
		apiBase: strings.TrimSuffix(apiBase, "/"),
		apiKey:  apiKey,
		agentID: agentID,
		client:  client,
		logger:  logger.With("module", "voicecall_sender"),
	}
}

func (s *Sender) Kind() models.ChannelKind {
	return models.ChannelVoiceCall
}

func (s *Sender) Send(ctx context.Context, contact *models.Contact, script string) error {
	phone, ok := contact.IdentifierFor(models.ChannelVoiceCall)
	if !ok {
		return gateway.ErrMissingIdentifier
	}

	payload := map[string]any{
		"agent_id": s.agentID,
		"to":       phone,
		"prompt":   script,
	}

	headers := map[string]string{"Authorization": "Bearer " + s.apiKey}

	err := s.client.PostJSON(ctx, s.apiBase+"/calls", headers, payload)
	if err != nil {
		return fmt.Errorf("voice call to %s failed: %w", phone, err)
	}

	s.logger.InfoContext(ctx, "Voice call initiated", "contact_id", contact.ID)

	return nil
}
