package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vantagecrm/cadence/pkg/models"
	"github.com/vantagecrm/cadence/pkg/persistence"
)

// InboundRepository reads and writes the shared inbound-message table.
type InboundRepository struct {
	db *sql.DB
}

func NewInboundRepository(db *sql.DB) *InboundRepository {
	return &InboundRepository{db: db}
}

func (r *InboundRepository) InsertInbound(ctx context.Context, message *models.InboundMessage) error {
	if message.ID == "" {
		message.ID = uuid.New().String()
	}

	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO inbound_messages (id, platform, contact_id, identifier, campaign_id, content, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`, message.ID, message.Platform, nullable(message.ContactID), nullable(message.Identifier),
		nullable(message.CampaignID), message.Content, message.CreatedAt)
	if err != nil {
		return persistence.NewStoreError("InsertInbound", "inbound message", message.ID, err)
	}

	return nil
}

func (r *InboundRepository) QueryInbound(ctx context.Context, filter persistence.InboundFilter) ([]*models.InboundMessage, error) {
	var (
		where []string
		args  []any
	)

	arg := func(v any) string {
		args = append(args, v)

		return "$" + strconv.Itoa(len(args))
	}

	if filter.Platform != "" {
		where = append(where, "platform = "+arg(string(filter.Platform)))
	}

	if filter.ContactID != "" {
		where = append(where, "contact_id = "+arg(filter.ContactID))
	}

	if filter.Identifier != "" {
		where = append(where, "identifier = "+arg(filter.Identifier))
	}

	if filter.OnlyUnassigned {
		where = append(where, "campaign_id IS NULL")
	} else if filter.CampaignID != "" {
		where = append(where, "campaign_id = "+arg(filter.CampaignID))
	}

	if !filter.Since.IsZero() {
		where = append(where, "created_at >= "+arg(filter.Since))
	}

	if !filter.Until.IsZero() {
		where = append(where, "created_at <= "+arg(filter.Until))
	}

	query := "SELECT id, platform, contact_id, identifier, campaign_id, content, created_at FROM inbound_messages"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	query += " ORDER BY created_at"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query inbound messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*models.InboundMessage, 0)

	for rows.Next() {
		var (
			message    models.InboundMessage
			contactID  sql.NullString
			identifier sql.NullString
			campaignID sql.NullString
		)

		err := rows.Scan(&message.ID, &message.Platform, &contactID, &identifier, &campaignID,
			&message.Content, &message.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan inbound message row: %w", err)
		}

		message.ContactID = contactID.String
		message.Identifier = identifier.String
		message.CampaignID = campaignID.String

		messages = append(messages, &message)
	}

	return messages, rows.Err()
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
