package models

import "time"

// CampaignStatus represents the lifecycle state of a campaign.
type CampaignStatus string

const (
	CampaignStatusDraft   CampaignStatus = "draft"
	CampaignStatusActive  CampaignStatus = "active"
	CampaignStatusPaused  CampaignStatus = "paused"
	CampaignStatusDeleted CampaignStatus = "deleted"
)

// Campaign groups a set of contacts with the sequence used to reach them.
// It references a workflow by id or by function name; when neither is set,
// ChannelSequence holds a legacy fixed channel list with no branching.
type Campaign struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"    validate:"required,min=3"`
	UserID          string         `json:"user_id" validate:"required"`
	Status          CampaignStatus `json:"status"`
	WorkflowID      string         `json:"workflow_id,omitempty"`
	FunctionName    string         `json:"function_name,omitempty"`
	ChannelSequence []ChannelKind  `json:"channel_sequence,omitempty"`
	DefaultScript   string         `json:"default_script"`
	ContactIDs      []string       `json:"contact_ids"`
	Schedule        string         `json:"schedule,omitempty"` // cron expression, empty means manual launch
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// HasWorkflowReference reports whether the campaign points at a stored
// workflow rather than a legacy channel sequence.
func (c *Campaign) HasWorkflowReference() bool {
	return c.WorkflowID != "" || c.FunctionName != ""
}
