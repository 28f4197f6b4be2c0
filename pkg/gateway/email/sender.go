// Package email sends outbound mail through the mail relay service and polls
// its mailbox endpoint for replies. Unlike the chat channels, email has no
// independent inbound listener, so the engine drives the poll itself.
package email

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/vantagecrm/cadence/pkg/gateway"
	"github.com/vantagecrm/cadence/pkg/inbox"
	"github.com/vantagecrm/cadence/pkg/models"
)

type Sender struct {
	relayURL    string
	apiKey      string
	fromAddress string
	client      *gateway.HTTPClient
	logger      *slog.Logger
}

func NewSender(relayURL, apiKey, fromAddress string, client *gateway.HTTPClient, logger *slog.Logger) *Sender {
	return &Sender{
		relayURL:    strings.TrimSuffix(relayURL, "/"),
		apiKey:      apiKey,
		fromAddress: fromAddress,
		client:      client,
		logger:      logger.With("module", "email_sender"),
	}
}

func (s *Sender) Kind() models.ChannelKind {
	return models.ChannelEmail
}

func (s *Sender) Send(ctx context.Context, contact *models.Contact, script string) error {
	address, ok := contact.IdentifierFor(models.ChannelEmail)
	if !ok {
		return gateway.ErrMissingIdentifier
	}

	payload := map[string]any{
		"from": s.fromAddress,
		"to":   address,
		"body": script,
	}

	headers := map[string]string{"X-Api-Key": s.apiKey}

	err := s.client.PostJSON(ctx, s.relayURL+"/send", headers, payload)
	if err != nil {
		return fmt.Errorf("email send to %s failed: %w", address, err)
	}

	s.logger.InfoContext(ctx, "Email sent", "contact_id", contact.ID)

	return nil
}

// MailboxClient implements inbox.Mailbox against the relay's mailbox
// endpoint.
type MailboxClient struct {
	relayURL string
	apiKey   string
	client   *gateway.HTTPClient
}

func NewMailboxClient(relayURL, apiKey string, client *gateway.HTTPClient) *MailboxClient {
	return &MailboxClient{
		relayURL: strings.TrimSuffix(relayURL, "/"),
		apiKey:   apiKey,
		client:   client,
	}
}

type mailboxResponse struct {
	Messages []struct {
		From       string    `json:"from"`
		Subject    string    `json:"subject"`
		Body       string    `json:"body"`
		ReceivedAt time.Time `json:"received_at"`
	} `json:"messages"`
}

func (c *MailboxClient) FetchSince(ctx context.Context, address string, since time.Time) ([]inbox.MailMessage, error) {
	query := url.Values{}
	query.Set("from", address)
	query.Set("since", since.UTC().Format(time.RFC3339))

	endpoint := c.relayURL + "/messages?" + query.Encode()
	headers := map[string]string{"X-Api-Key": c.apiKey}

	var resp mailboxResponse
	if err := c.client.GetJSON(ctx, endpoint, headers, &resp); err != nil {
		return nil, fmt.Errorf("mailbox fetch for %s failed: %w", address, err)
	}

	messages := make([]inbox.MailMessage, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		messages = append(messages, inbox.MailMessage{
			From:       m.From,
			Subject:    m.Subject,
			Body:       m.Body,
			ReceivedAt: m.ReceivedAt,
		})
	}

	return messages, nil
}
