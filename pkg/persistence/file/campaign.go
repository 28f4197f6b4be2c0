package file

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/vantagecrm/cadence/pkg/models"
	"github.com/vantagecrm/cadence/pkg/persistence"
)

// CampaignRepository stores campaigns as JSON documents and resolves their
// contact lists through the contact repository.
type CampaignRepository struct {
	dir      string
	contacts *ContactRepository
}

func NewCampaignRepository(root string, contacts *ContactRepository) *CampaignRepository {
	return &CampaignRepository{dir: filepath.Join(root, "campaigns"), contacts: contacts}
}

func (r *CampaignRepository) CampaignByID(_ context.Context, id string) (*models.Campaign, error) {
	var campaign models.Campaign
	if err := readDocument(r.dir, id, &campaign, persistence.ErrCampaignNotFound); err != nil {
		return nil, err
	}

	return &campaign, nil
}

func (r *CampaignRepository) SaveCampaign(_ context.Context, campaign *models.Campaign) error {
	if campaign.ID == "" {
		campaign.ID = uuid.New().String()
	}

	now := time.Now().UTC()
	if campaign.CreatedAt.IsZero() {
		campaign.CreatedAt = now
	}

	campaign.UpdatedAt = now

	return writeDocument(r.dir, campaign.ID, campaign)
}

func (r *CampaignRepository) Campaigns(ctx context.Context) ([]*models.Campaign, error) {
	ids, err := listDocumentIDs(r.dir)
	if err != nil {
		return nil, err
	}

	campaigns := make([]*models.Campaign, 0, len(ids))

	for _, id := range ids {
		campaign, err := r.CampaignByID(ctx, id)
		if err != nil {
			return nil, err
		}

		campaigns = append(campaigns, campaign)
	}

	return campaigns, nil
}

// ContactsByCampaign resolves the campaign's contact ids. Unknown contacts
// are skipped rather than failing the whole dispatch.
func (r *CampaignRepository) ContactsByCampaign(ctx context.Context, campaignID string) ([]*models.Contact, error) {
	campaign, err := r.CampaignByID(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to load campaign %s: %w", campaignID, err)
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

// ContactRepository stores contacts as JSON documents.
type ContactRepository struct {
	dir string
}

func NewContactRepository(root string) *ContactRepository {
	return &ContactRepository{dir: filepath.Join(root, "contacts")}
}

func (r *ContactRepository) ContactByID(_ context.Context, id string) (*models.Contact, error) {
	var contact models.Contact
	if err := readDocument(r.dir, id, &contact, persistence.ErrContactNotFound); err != nil {
		return nil, err
	}

	return &contact, nil
}

func (r *ContactRepository) SaveContact(_ context.Context, contact *models.Contact) error {
	if contact.ID == "" {
		contact.ID = uuid.New().String()
	}

	now := time.Now().UTC()
	if contact.CreatedAt.IsZero() {
		contact.CreatedAt = now
	}

	contact.UpdatedAt = now

	return writeDocument(r.dir, contact.ID, contact)
}
