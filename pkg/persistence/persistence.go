// Package persistence provides the storage abstraction layer for campaigns,
// contacts, workflows, inbound messages, sent audits and run state.
package persistence

import (
	"context"
	"time"

	"github.com/vantagecrm/cadence/pkg/models"
)

// WorkflowRepository stores workflow definitions.
type WorkflowRepository interface {
	WorkflowByID(ctx context.Context, id string) (*models.Workflow, error)
	WorkflowByFunctionName(ctx context.Context, name string) (*models.Workflow, error)
	SaveWorkflow(ctx context.Context, workflow *models.Workflow) error
	Workflows(ctx context.Context) ([]*models.Workflow, error)
}

// CampaignRepository stores campaigns and resolves their contact lists.
type CampaignRepository interface {
	CampaignByID(ctx context.Context, id string) (*models.Campaign, error)
	SaveCampaign(ctx context.Context, campaign *models.Campaign) error
	Campaigns(ctx context.Context) ([]*models.Campaign, error)
	ContactsByCampaign(ctx context.Context, campaignID string) ([]*models.Contact, error)
}

// ContactRepository stores contacts.
type ContactRepository interface {
	ContactByID(ctx context.Context, id string) (*models.Contact, error)
	SaveContact(ctx context.Context, contact *models.Contact) error
}

// InboundFilter selects inbound messages. Zero-valued fields are ignored,
// except OnlyUnassigned which restricts matches to messages whose listener
// could not resolve an owning campaign.
type InboundFilter struct {
	Platform       models.ChannelKind
	ContactID      string
	Identifier     string
	CampaignID     string
	OnlyUnassigned bool
	Since          time.Time
	Until          time.Time
}

// InboundRepository reads and writes the shared inbound-message store. The
// engine only inserts for the email mailbox poll; chat listeners write their
// own events elsewhere.
type InboundRepository interface {
	QueryInbound(ctx context.Context, filter InboundFilter) ([]*models.InboundMessage, error)
	InsertInbound(ctx context.Context, message *models.InboundMessage) error
}

// AuditRepository records successful sends for reporting.
type AuditRepository interface {
	RecordSent(ctx context.Context, record *models.SentRecord) error
	SentCount(ctx context.Context, campaignID string) (int64, error)
}

// RunStateRepository persists run state after every transition so
// non-terminal runs survive a restart.
type RunStateRepository interface {
	SaveRunState(ctx context.Context, state *models.RunState) error
	RunStateByKey(ctx context.Context, campaignID, contactID string) (*models.RunState, error)
	DeleteRunState(ctx context.Context, campaignID, contactID string) error
	ActiveRunStates(ctx context.Context) ([]*models.RunState, error)
}

// Persistence aggregates the repositories backing one storage provider.
type Persistence interface {
	WorkflowRepository() WorkflowRepository
	CampaignRepository() CampaignRepository
	ContactRepository() ContactRepository
	InboundRepository() InboundRepository
	AuditRepository() AuditRepository
	RunStateRepository() RunStateRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
