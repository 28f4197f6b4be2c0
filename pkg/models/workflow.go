package models

import (
	"strconv"
	"time"
)

// EdgeLabel marks a connection as the branch taken when a contact replied
// ("yes") or stayed silent ("no").
type EdgeLabel string

const (
	EdgeYes EdgeLabel = "yes"
	EdgeNo  EdgeLabel = "no"
)

// DefaultMaxWaitSeconds is applied when a node does not configure its own
// response window.
const DefaultMaxWaitSeconds = 60

// NodeScript is a per-campaign override of the outbound text sent at a node.
type NodeScript struct {
	CampaignID string `json:"campaign_id"`
	Script     string `json:"script"`
}

// WorkflowNode is one step of an outreach sequence, bound to a single channel.
type WorkflowNode struct {
	ID             string       `json:"id"               validate:"required"`
	Channel        ChannelKind  `json:"channel"          validate:"required"`
	MaxWaitSeconds int          `json:"max_wait_seconds"`
	Scripts        []NodeScript `json:"scripts,omitempty"`
}

// WaitDuration returns the configured response window, falling back to the
// default when unset or invalid.
func (n *WorkflowNode) WaitDuration() time.Duration {
	seconds := n.MaxWaitSeconds
	if seconds <= 0 {
		seconds = DefaultMaxWaitSeconds
	}

	return time.Duration(seconds) * time.Second
}

// Connection is a directed, labeled edge between two workflow nodes.
type Connection struct {
	ID           string    `json:"id"`
	SourceNodeID string    `json:"source_node_id" validate:"required"`
	TargetNodeID string    `json:"target_node_id" validate:"required"`
	Label        EdgeLabel `json:"label"          validate:"required,oneof=yes no"`
}

// Workflow is a directed graph of channel nodes. It is owned by a user and
// referenced by campaigns either by id or by function name.
type Workflow struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"          validate:"required,min=3"`
	FunctionName string          `json:"function_name,omitempty"`
	Owner        string          `json:"owner"`
	Nodes        []*WorkflowNode `json:"nodes"`
	Connections  []*Connection   `json:"connections"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// NodeByID returns the node with the given id, or nil.
func (w *Workflow) NodeByID(id string) *WorkflowNode {
	for _, node := range w.Nodes {
		if node.ID == id {
			return node
		}
	}

	return nil
}

// StartNode selects the entry node: the first declared node with no incoming
// connections, falling back to the first declared node when every node has an
// incoming edge.
func (w *Workflow) StartNode() *WorkflowNode {
	if len(w.Nodes) == 0 {
		return nil
	}

	incoming := make(map[string]bool, len(w.Connections))
	for _, conn := range w.Connections {
		incoming[conn.TargetNodeID] = true
	}

	for _, node := range w.Nodes {
		if !incoming[node.ID] {
			return node
		}
	}

	return w.Nodes[0]
}

// NextNodeID returns the target of the first declared connection leaving the
// node with the given label. The empty string means no such edge exists,
// which ends the run.
func (w *Workflow) NextNodeID(nodeID string, label EdgeLabel) string {
	for _, conn := range w.Connections {
		if conn.SourceNodeID == nodeID && conn.Label == label {
			return conn.TargetNodeID
		}
	}

	return ""
}

// SequenceWorkflow builds a degenerate workflow from a legacy fixed channel
// list: one node per channel, chained with both yes and no edges so the run
// always advances regardless of replies.
func SequenceWorkflow(id string, channels []ChannelKind) *Workflow {
	workflow := &Workflow{
		ID:    id,
		Name:  "legacy sequence " + id,
		Nodes: make([]*WorkflowNode, 0, len(channels)),
	}

	for i, channel := range channels {
		node := &WorkflowNode{
			ID:      "seq-" + strconv.Itoa(i+1),
			Channel: channel,
		}
		workflow.Nodes = append(workflow.Nodes, node)
	}

	for i := 0; i+1 < len(workflow.Nodes); i++ {
		source := workflow.Nodes[i].ID
		target := workflow.Nodes[i+1].ID
		workflow.Connections = append(workflow.Connections,
			&Connection{SourceNodeID: source, TargetNodeID: target, Label: EdgeYes},
			&Connection{SourceNodeID: source, TargetNodeID: target, Label: EdgeNo},
		)
	}

	return workflow
}
