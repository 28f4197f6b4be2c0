package inbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vantagecrm/cadence/pkg/models"
	"github.com/vantagecrm/cadence/pkg/persistence"
)

// MailMessage is one message fetched from the contact's mailbox thread.
type MailMessage struct {
	From       string
	Subject    string
	Body       string
	ReceivedAt time.Time
}

// Mailbox fetches messages received from an address after a point in time.
// The email gateway provides the production implementation.
type Mailbox interface {
	FetchSince(ctx context.Context, address string, since time.Time) ([]MailMessage, error)
}

// Poller copies newly arrived mailbox messages into the inbound store. Email
// has no push listener, so the engine invokes this after an email node's wait
// elapses, before checking for a reply.
type Poller struct {
	mailbox Mailbox
	inbound persistence.InboundRepository
	logger  *slog.Logger
}

func NewPoller(mailbox Mailbox, inbound persistence.InboundRepository, logger *slog.Logger) *Poller {
	return &Poller{
		mailbox: mailbox,
		inbound: inbound,
		logger:  logger.With("module", "mailbox_poller"),
	}
}

// Poll fetches replies from the contact's address since the node executed and
// inserts them as inbound messages attributed to the campaign.
func (p *Poller) Poll(ctx context.Context, campaignID string, contact *models.Contact, since time.Time) error {
	address, ok := contact.IdentifierFor(models.ChannelEmail)
	if !ok {
		return nil
	}

	messages, err := p.mailbox.FetchSince(ctx, address, since)
	if err != nil {
		return fmt.Errorf("failed to poll mailbox for %s: %w", contact.ID, err)
	}

	for _, message := range messages {
		inboundMessage := &models.InboundMessage{
			Platform:   models.ChannelEmail,
			ContactID:  contact.ID,
			Identifier: address,
			CampaignID: campaignID,
			Content:    message.Body,
			CreatedAt:  message.ReceivedAt,
		}

		if err := p.inbound.InsertInbound(ctx, inboundMessage); err != nil {
			return fmt.Errorf("failed to store polled mail for %s: %w", contact.ID, err)
		}

		p.logger.InfoContext(ctx, "Stored polled mailbox reply",
			"campaign_id", campaignID, "contact_id", contact.ID)
	}

	return nil
}
