package models

import "time"

// InboundMessage is a recorded reply from a contact, written by an external
// listener (webhook, bot session) or by the engine's own mailbox poll for
// email. The engine only reads these to decide branches.
type InboundMessage struct {
	ID         string      `json:"id"`
	Platform   ChannelKind `json:"platform"`
	ContactID  string      `json:"contact_id,omitempty"`
	Identifier string      `json:"identifier,omitempty"` // raw sender identifier when the listener could not resolve a contact
	CampaignID string      `json:"campaign_id,omitempty"`
	Content    string      `json:"content"`
	CreatedAt  time.Time   `json:"created_at"`
}

// SentRecord is the lightweight audit entry written after each successful
// send on a message channel, for downstream reporting.
type SentRecord struct {
	ID         string      `json:"id"`
	CampaignID string      `json:"campaign_id"`
	ContactID  string      `json:"contact_id"`
	Channel    ChannelKind `json:"channel"`
	SentAt     time.Time   `json:"sent_at"`
}
