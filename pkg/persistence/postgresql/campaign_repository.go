package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vantagecrm/cadence/pkg/models"
	"github.com/vantagecrm/cadence/pkg/persistence"
)

// CampaignRepository stores campaigns as JSONB documents.
type CampaignRepository struct {
	db       *sql.DB
	contacts *ContactRepository
}

func NewCampaignRepository(db *sql.DB, contacts *ContactRepository) *CampaignRepository {
	return &CampaignRepository{db: db, contacts: contacts}
}

func (r *CampaignRepository) CampaignByID(ctx context.Context, id string) (*models.Campaign, error) {
	var data []byte

	err := r.db.QueryRowContext(ctx, "SELECT data FROM campaigns WHERE id = $1", id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.ErrCampaignNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to scan campaign %s: %w", id, err)
	}

	var campaign models.Campaign
	if err := json.Unmarshal(data, &campaign); err != nil {
		return nil, fmt.Errorf("failed to unmarshal campaign %s: %w", id, err)
	}

	return &campaign, nil
}

func (r *CampaignRepository) SaveCampaign(ctx context.Context, campaign *models.Campaign) error {
	if campaign.ID == "" {
		campaign.ID = uuid.New().String()
	}

	now := time.Now().UTC()
	if campaign.CreatedAt.IsZero() {
		campaign.CreatedAt = now
	}

	campaign.UpdatedAt = now

	data, err := json.Marshal(campaign)
	if err != nil {
		return fmt.Errorf("failed to marshal campaign %s: %w", campaign.ID, err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO campaigns (id, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET data = $2, updated_at = $4
	`, campaign.ID, data, campaign.CreatedAt, campaign.UpdatedAt)
	if err != nil {
		return persistence.NewStoreError("SaveCampaign", "campaign", campaign.ID, err)
	}

	return nil
}

func (r *CampaignRepository) Campaigns(ctx context.Context) ([]*models.Campaign, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT data FROM campaigns ORDER BY created_at")
	if err != nil {
		return nil, fmt.Errorf("failed to query campaigns: %w", err)
	}
	defer rows.Close()

	campaigns := make([]*models.Campaign, 0)

	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan campaign row: %w", err)
		}

		var campaign models.Campaign
		if err := json.Unmarshal(data, &campaign); err != nil {
			return nil, fmt.Errorf("failed to unmarshal campaign row: %w", err)
		}

		campaigns = append(campaigns, &campaign)
	}

	return campaigns, rows.Err()
}

// ContactsByCampaign resolves the campaign's contact ids, skipping contacts
// that no longer exist.
func (r *CampaignRepository) ContactsByCampaign(ctx context.Context, campaignID string) ([]*models.Contact, error) {
	campaign, err := r.CampaignByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	contacts := make([]*models.Contact, 0, len(campaign.ContactIDs))

	for _, contactID := range campaign.ContactIDs {
		contact, err := r.contacts.ContactByID(ctx, contactID)
		if err != nil {
			if errors.Is(err, persistence.ErrContactNotFound) {
				continue
			}

			return nil, err
		}

		contacts = append(contacts, contact)
	}

	return contacts, nil
}

// ContactRepository stores contacts as JSONB documents.
type ContactRepository struct {
	db *sql.DB
}

func NewContactRepository(db *sql.DB) *ContactRepository {
	return &ContactRepository{db: db}
}

func (r *ContactRepository) ContactByID(ctx context.Context, id string) (*models.Contact, error) {
	var data []byte

	err := r.db.QueryRowContext(ctx, "SELECT data FROM contacts WHERE id = $1", id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.ErrContactNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to scan contact %s: %w", id, err)
	}

	var contact models.Contact
	if err := json.Unmarshal(data, &contact); err != nil {
		return nil, fmt.Errorf("failed to unmarshal contact %s: %w", id, err)
	}

	return &contact, nil
}

func (r *ContactRepository) SaveContact(ctx context.Context, contact *models.Contact) error {
	if contact.ID == "" {
		contact.ID = uuid.New().String()
	}

	now := time.Now().UTC()
	if contact.CreatedAt.IsZero() {
		contact.CreatedAt = now
	}

	contact.UpdatedAt = now

	data, err := json.Marshal(contact)
	if err != nil {
		return fmt.Errorf("failed to marshal contact %s: %w", contact.ID, err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO contacts (id, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET data = $2, updated_at = $4
	`, contact.ID, data, contact.CreatedAt, contact.UpdatedAt)
	if err != nil {
		return persistence.NewStoreError("SaveContact", "contact", contact.ID, err)
	}

	return nil
}
