// Package gateway exposes a uniform send capability per messaging channel.
// Each channel kind has one sender implementation registered in a Registry;
// the engine never branches on channel strings itself.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"
	"github.com/vantagecrm/cadence/pkg/models"
	"github.com/vantagecrm/cadence/pkg/persistence"
)

var (
	// ErrMissingIdentifier is returned when the contact has no identifier for
	// the sender's channel. Callers treat it as a failed send, not a fault.
	ErrMissingIdentifier = errors.New("contact has no identifier for channel")

	// ErrChannelNotRegistered is returned for channel kinds without a sender.
	ErrChannelNotRegistered = errors.New("no sender registered for channel")
)

// ChannelSender delivers one outbound message (or initiates one call) on a
// single channel. Implementations return ErrMissingIdentifier when the
// contact cannot be addressed on their channel.
type ChannelSender interface {
	Kind() models.ChannelKind
	Send(ctx context.Context, contact *models.Contact, script string) error
}

// Registry dispatches sends by channel kind and records the sent audit entry
// on success for message channels. Voice calls are initiated, not delivered,
// so they produce no audit entry.
type Registry struct {
	senders map[models.ChannelKind]ChannelSender
	audit   persistence.AuditRepository
	clock   clockwork.Clock
	logger  *slog.Logger
}

func NewRegistry(audit persistence.AuditRepository, clock clockwork.Clock, logger *slog.Logger) *Registry {
	return &Registry{
		senders: make(map[models.ChannelKind]ChannelSender),
		audit:   audit,
		clock:   clock,
		logger:  logger.With("module", "gateway"),
	}
}

// Register adds a sender. The last registration for a kind wins.
func (r *Registry) Register(sender ChannelSender) {
	r.senders[sender.Kind()] = sender
}

// Kinds returns the registered channel kinds.
func (r *Registry) Kinds() []models.ChannelKind {
	kinds := make([]models.ChannelKind, 0, len(r.senders))
	for kind := range r.senders {
		kinds = append(kinds, kind)
	}

	return kinds
}

// Send delivers the script to the contact over the given channel. Any error
// means the message is undeliverable; the run proceeds regardless, since a
// missed send only makes a reply impossible.
func (r *Registry) Send(ctx context.Context, kind models.ChannelKind, campaignID string, contact *models.Contact, script string) error {
	sender, ok := r.senders[kind]
	if !ok {
		return fmt.Errorf("%w: %s", ErrChannelNotRegistered, kind)
	}

	err := sender.Send(ctx, contact, script)
	if err != nil {
		return err
	}

	if kind.IsMessageChannel() {
		record := &models.SentRecord{
			CampaignID: campaignID,
			ContactID:  contact.ID,
			Channel:    kind,
			SentAt:     r.clock.Now().UTC(),
		}

		if err := r.audit.RecordSent(ctx, record); err != nil {
			// Reporting must not affect delivery semantics.
			r.logger.WarnContext(ctx, "Failed to record sent audit entry",
				"campaign_id", campaignID, "contact_id", contact.ID, "channel", kind, "error", err)
		}
	}

	return nil
}
