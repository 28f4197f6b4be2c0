package models

import "time"

// RunStatus is the lifecycle state of one workflow run. A cancelled run
// keeps the running status: it is suspended, and workers resume it on start
// unless its campaign is paused.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusFinished RunStatus = "finished"
)

// RunState is the durable state of one run of a workflow for one contact
// within one campaign. It is persisted after every transition so runs can be
// resumed after a restart.
type RunState struct {
	CampaignID     string    `json:"campaign_id"`
	ContactID      string    `json:"contact_id"`
	WorkflowID     string    `json:"workflow_id"`
	CurrentNodeID  string    `json:"current_node_id"`
	VisitedNodeIDs []string  `json:"visited_node_ids"`
	LastExecutedAt time.Time `json:"last_executed_at"`
	Status         RunStatus `json:"status"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// RunKey identifies a run. There is at most one live run per
// (campaign, contact) pair.
func RunKey(campaignID, contactID string) string {
	return campaignID + ":" + contactID
}

// Key returns the run's identity key.
func (s *RunState) Key() string {
	return RunKey(s.CampaignID, s.ContactID)
}

// Visited reports whether the node was already executed in this run. Visited
// nodes are never executed again; a back-edge into one terminates the run.
func (s *RunState) Visited(nodeID string) bool {
	for _, id := range s.VisitedNodeIDs {
		if id == nodeID {
			return true
		}
	}

	return false
}

// MarkVisited appends the node to the visited set.
func (s *RunState) MarkVisited(nodeID string) {
	if !s.Visited(nodeID) {
		s.VisitedNodeIDs = append(s.VisitedNodeIDs, nodeID)
	}
}
