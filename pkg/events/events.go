// Package events defines event types for campaign dispatch and run lifecycle
// notifications.
package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/vantagecrm/cadence/pkg/models"
)

type EventType string

// Topic carries every cadence event.
const Topic = "cadence.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Dispatch events.
	CampaignDispatchedEvent EventType = "campaign.dispatched"
	CampaignPausedEvent     EventType = "campaign.paused"

	// Run lifecycle events.
	RunStartedEvent  EventType = "run.started"
	RunFinishedEvent EventType = "run.finished"

	// Node-level events.
	NodeExecutedEvent EventType = "node.executed"
	MessageSentEvent  EventType = "message.sent"

	// Inbound reply recorded by a listener or the mailbox poll. Waiting runs
	// use this to wake before their timer fires.
	InboundReceivedEvent EventType = "inbound.received"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	CampaignID string         `json:"campaign_id"`
	WorkerID   string         `json:"worker_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// NewBaseEvent stamps a fresh event envelope.
func NewBaseEvent(eventType EventType, campaignID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		CampaignID: campaignID,
	}
}

// CampaignPaused is published when a campaign is paused. Workers cancel the
// campaign's in-flight runs when they see it.
type CampaignPaused struct {
	BaseEvent
}

func (e CampaignPaused) GetType() EventType {
	return CampaignPausedEvent
}

// CampaignDispatched is published when a campaign's contacts are fanned out
// to runs. API and scheduler publish it; the worker consumes it.
type CampaignDispatched struct {
	BaseEvent

	WorkflowID string `json:"workflow_id,omitempty"`
}

func (e CampaignDispatched) GetType() EventType {
	return CampaignDispatchedEvent
}

type RunStarted struct {
	BaseEvent

	ContactID  string `json:"contact_id"`
	WorkflowID string `json:"workflow_id"`
}

func (e RunStarted) GetType() EventType {
	return RunStartedEvent
}

// RunOutcome describes why a run ended.
type RunOutcome string

const (
	RunOutcomeCompleted RunOutcome = "completed"     // no further edge to follow
	RunOutcomeCycle     RunOutcome = "cycle_guard"   // revisited node
	RunOutcomeDangling  RunOutcome = "dangling_edge" // edge target missing
	RunOutcomeCancelled RunOutcome = "cancelled"
)

type RunFinished struct {
	BaseEvent

	ContactID string        `json:"contact_id"`
	Outcome   RunOutcome    `json:"outcome"`
	Duration  time.Duration `json:"duration"`
}

func (e RunFinished) GetType() EventType {
	return RunFinishedEvent
}

// NodeExecuted closes out one node of a run. Sent reports whether the
// outbound message was handed to the channel gateway by this process; nodes
// replayed after a restart carry false.
type NodeExecuted struct {
	BaseEvent

	ContactID string             `json:"contact_id"`
	NodeID    string             `json:"node_id"`
	Channel   models.ChannelKind `json:"channel"`
	Sent      bool               `json:"sent"`
	Replied   bool               `json:"replied"`
}

func (e NodeExecuted) GetType() EventType {
	return NodeExecutedEvent
}

type MessageSent struct {
	BaseEvent

	ContactID string             `json:"contact_id"`
	NodeID    string             `json:"node_id"`
	Channel   models.ChannelKind `json:"channel"`
}

func (e MessageSent) GetType() EventType {
	return MessageSentEvent
}

type InboundReceived struct {
	BaseEvent

	ContactID  string             `json:"contact_id,omitempty"`
	Identifier string             `json:"identifier,omitempty"`
	Platform   models.ChannelKind `json:"platform"`
}

func (e InboundReceived) GetType() EventType {
	return InboundReceivedEvent
}
