// Package inbox decides whether a contact replied to a node by querying the
// shared inbound-message store.
package inbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/vantagecrm/cadence/pkg/models"
	"github.com/vantagecrm/cadence/pkg/persistence"
)

// ResponseWindow is the symmetric tolerance around a node's execution time.
// Listener inserts can land slightly before the walker's own wait started, so
// the window extends backwards as well.
const ResponseWindow = 5 * time.Minute

const (
	queryAttempts   = 3
	queryRetryDelay = 500 * time.Millisecond
)

// Reader matches inbound messages against a node execution.
type Reader struct {
	inbound persistence.InboundRepository
	clock   clockwork.Clock
	logger  *slog.Logger
}

func NewReader(inbound persistence.InboundRepository, clock clockwork.Clock, logger *slog.Logger) *Reader {
	return &Reader{
		inbound: inbound,
		clock:   clock,
		logger:  logger.With("module", "inbox_reader"),
	}
}

// Matches reports whether the contact replied on the channel within the
// window around executedAt. Matching policies, first hit wins:
//
//  1. contact id + campaign id
//  2. contact id, message unassigned to any campaign (listener could not
//     resolve the owning campaign)
//  3. raw channel identifier + campaign id (listener only knew the sender
//     identifier)
//
// Store failures degrade to "no response" after bounded retries.
func (r *Reader) Matches(ctx context.Context, campaignID, contactID string, channel models.ChannelKind, executedAt time.Time, contact *models.Contact) bool {
	since := executedAt.Add(-ResponseWindow)
	until := executedAt.Add(ResponseWindow)

	filters := []persistence.InboundFilter{
		{Platform: channel, ContactID: contactID, CampaignID: campaignID, Since: since, Until: until},
		{Platform: channel, ContactID: contactID, OnlyUnassigned: true, Since: since, Until: until},
	}

	if identifier, ok := contact.IdentifierFor(channel); ok {
		filters = append(filters, persistence.InboundFilter{
			Platform: channel, Identifier: identifier, CampaignID: campaignID, Since: since, Until: until,
		})
	}

	for _, filter := range filters {
		messages, err := r.queryWithRetry(ctx, filter)
		if err != nil {
			r.logger.WarnContext(ctx, "Inbound store query failed, treating as no response",
				"campaign_id", campaignID, "contact_id", contactID, "channel", channel, "error", err)

			continue
		}

		if len(messages) > 0 {
			return true
		}
	}

	return false
}

func (r *Reader) queryWithRetry(ctx context.Context, filter persistence.InboundFilter) ([]*models.InboundMessage, error) {
	var lastErr error

	delay := queryRetryDelay

	for attempt := 1; attempt <= queryAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-r.clock.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}

			delay *= 2
		}

		messages, err := r.inbound.QueryInbound(ctx, filter)
		if err == nil {
			return messages, nil
		}

		lastErr = err
	}

	return nil, lastErr
}
