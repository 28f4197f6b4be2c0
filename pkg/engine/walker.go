package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/vantagecrm/cadence/pkg/eventbus"
	"github.com/vantagecrm/cadence/pkg/events"
	"github.com/vantagecrm/cadence/pkg/gateway"
	"github.com/vantagecrm/cadence/pkg/inbox"
	"github.com/vantagecrm/cadence/pkg/models"
	"github.com/vantagecrm/cadence/pkg/persistence"
	"github.com/vantagecrm/cadence/pkg/scripts"
)

// Walker owns one run of a workflow graph for one contact: it executes the
// current node, waits out the response window, asks the inbox reader whether
// the contact replied and follows the matching labeled edge. All errors are
// absorbed inside the run; nothing propagates to the dispatcher.
type Walker struct {
	gateway   *gateway.Registry
	reader    *inbox.Reader
	poller    *inbox.Poller // nil when no mailbox is configured
	runStates persistence.RunStateRepository
	publisher eventbus.EventPublisher
	clock     clockwork.Clock
	logger    *slog.Logger
}

func NewWalker(
	gatewayRegistry *gateway.Registry,
	reader *inbox.Reader,
	poller *inbox.Poller,
	runStates persistence.RunStateRepository,
	publisher eventbus.EventPublisher,
	clock clockwork.Clock,
	logger *slog.Logger,
) *Walker {
	return &Walker{
		gateway:   gatewayRegistry,
		reader:    reader,
		poller:    poller,
		runStates: runStates,
		publisher: publisher,
		clock:     clock,
		logger:    logger.With("module", "graph_walker"),
	}
}

// RunParams carries everything one run needs. State is nil for fresh runs
// and a rehydrated snapshot when resuming after a restart. Wake prompts an
// early reply check during the response wait; it may be nil.
type RunParams struct {
	Workflow      *models.Workflow
	Campaign      *models.Campaign
	Contact       *models.Contact
	DefaultScript string
	State         *models.RunState
	Wake          <-chan struct{}
}

// Run walks the graph until a terminal condition: no further edge with the
// required label, a revisited node, a dangling edge target, or cancellation.
func (w *Walker) Run(ctx context.Context, params RunParams) {
	workflow := params.Workflow
	campaign := params.Campaign
	contact := params.Contact

	logger := w.logger.With(
		"campaign_id", campaign.ID,
		"contact_id", contact.ID,
		"workflow_id", workflow.ID,
	)

	startedAt := w.clock.Now()

	state := params.State
	resuming := false

	var node *models.WorkflowNode

	if state == nil {
		node = workflow.StartNode()
		if node == nil {
			logger.InfoContext(ctx, "Workflow has no nodes, nothing to run")

			return
		}

		state = &models.RunState{
			CampaignID: campaign.ID,
			ContactID:  contact.ID,
			WorkflowID: workflow.ID,
			Status:     models.RunStatusRunning,
		}
	} else {
		node = workflow.NodeByID(state.CurrentNodeID)
		if node == nil {
			node = workflow.StartNode()
		}

		// The current node was already executed before the restart; skip
		// straight to its branching decision instead of re-sending.
		resuming = node != nil && state.Visited(node.ID)

		logger.InfoContext(ctx, "Resuming run", "current_node_id", state.CurrentNodeID)
	}

	w.publish(ctx, campaign.ID, events.RunStarted{
		BaseEvent:  events.NewBaseEvent(events.RunStartedEvent, campaign.ID),
		ContactID:  contact.ID,
		WorkflowID: workflow.ID,
	})

	outcome := events.RunOutcomeCompleted

walk:
	for node != nil {
		nodeLogger := logger.With("node_id", node.ID, "channel", node.Channel)

		var replied, sent bool

		if resuming {
			resuming = false
			replied = w.checkReply(ctx, node, campaign, contact, state.LastExecutedAt)
		} else {
			if state.Visited(node.ID) {
				nodeLogger.WarnContext(ctx, "Node already visited, terminating run to avoid a loop")

				outcome = events.RunOutcomeCycle

				break
			}

			state.MarkVisited(node.ID)
			state.CurrentNodeID = node.ID
			state.LastExecutedAt = w.clock.Now().UTC()
			w.saveState(ctx, state, nodeLogger)

			script := scripts.Resolve(node, campaign.ID, params.DefaultScript)

			err := w.gateway.Send(ctx, node.Channel, campaign.ID, contact, script)

			switch {
			case err == nil:
				sent = true

				nodeLogger.InfoContext(ctx, "Outbound message sent")
				w.publish(ctx, campaign.ID, events.MessageSent{
					BaseEvent: events.NewBaseEvent(events.MessageSentEvent, campaign.ID),
					ContactID: contact.ID,
					NodeID:    node.ID,
					Channel:   node.Channel,
				})
			case errors.Is(err, gateway.ErrMissingIdentifier):
				// Undeliverable, not fatal: the run still waits, the reply
				// just never comes and the "no" branch is taken.
				nodeLogger.InfoContext(ctx, "Contact not reachable on channel, continuing without send")
			default:
				nodeLogger.WarnContext(ctx, "Send failed, continuing", "error", err)
			}

			var cancelled bool

			replied, cancelled = w.awaitReply(ctx, node, campaign, contact, state.LastExecutedAt, params.Wake)
			if cancelled {
				nodeLogger.InfoContext(ctx, "Run cancelled during response wait")

				outcome = events.RunOutcomeCancelled

				break
			}
		}

		w.publish(ctx, campaign.ID, events.NodeExecuted{
			BaseEvent: events.NewBaseEvent(events.NodeExecutedEvent, campaign.ID),
			ContactID: contact.ID,
			NodeID:    node.ID,
			Channel:   node.Channel,
			Sent:      sent,
			Replied:   replied,
		})

		label := models.EdgeNo
		if replied {
			label = models.EdgeYes
		}

		nextID := workflow.NextNodeID(node.ID, label)
		if nextID == "" {
			// Last node in the sequence for this branch; a normal end state.
			nodeLogger.InfoContext(ctx, "No further edge, run complete", "replied", replied)

			break walk
		}

		next := workflow.NodeByID(nextID)
		if next == nil {
			nodeLogger.WarnContext(ctx, "Edge targets a missing node, terminating run", "target_node_id", nextID)

			outcome = events.RunOutcomeDangling

			break
		}

		node = next
	}

	// A cancelled run keeps the running status: it is suspended and gets
	// resumed on the next worker start unless its campaign is paused.
	if outcome != events.RunOutcomeCancelled {
		state.Status = models.RunStatusFinished
	}

	// The run context may already be cancelled; the terminal state still has
	// to reach the store and the bus.
	finishCtx := context.WithoutCancel(ctx)

	w.saveState(finishCtx, state, logger)

	w.publish(finishCtx, campaign.ID, events.RunFinished{
		BaseEvent: events.NewBaseEvent(events.RunFinishedEvent, campaign.ID),
		ContactID: contact.ID,
		Outcome:   outcome,
		Duration:  w.clock.Since(startedAt),
	})

	logger.InfoContext(finishCtx, "Run finished", "outcome", outcome)
}

// awaitReply blocks out the node's response window. A wake signal triggers an
// early reply check; when the check comes up empty the wait continues on the
// same timer, so an unattributed reply from another contact cannot shorten
// this run's window. Cancellation is the only way out before the deadline
// without a matching reply.
func (w *Walker) awaitReply(ctx context.Context, node *models.WorkflowNode, campaign *models.Campaign, contact *models.Contact, executedAt time.Time, wake <-chan struct{}) (replied, cancelled bool) {
	timer := w.clock.NewTimer(node.WaitDuration())
	defer timer.Stop()

	for {
		select {
		case <-timer.Chan():
			return w.checkReply(ctx, node, campaign, contact, executedAt), false
		case <-wake:
			if w.checkReply(ctx, node, campaign, contact, executedAt) {
				return true, false
			}
		case <-ctx.Done():
			return false, true
		}
	}
}

// checkReply polls the mailbox for email nodes, then asks the reader whether
// the contact replied within the window around executedAt.
func (w *Walker) checkReply(ctx context.Context, node *models.WorkflowNode, campaign *models.Campaign, contact *models.Contact, executedAt time.Time) bool {
	if node.Channel == models.ChannelEmail && w.poller != nil {
		err := w.poller.Poll(ctx, campaign.ID, contact, executedAt)
		if err != nil {
			w.logger.WarnContext(ctx, "Mailbox poll failed",
				"campaign_id", campaign.ID, "contact_id", contact.ID, "error", err)
		}
	}

	return w.reader.Matches(ctx, campaign.ID, contact.ID, node.Channel, executedAt, contact)
}

func (w *Walker) saveState(ctx context.Context, state *models.RunState, logger *slog.Logger) {
	if err := w.runStates.SaveRunState(ctx, state); err != nil {
		logger.WarnContext(ctx, "Failed to persist run state", "error", err)
	}
}

func (w *Walker) publish(ctx context.Context, key string, event eventbus.Event) {
	if w.publisher == nil {
		return
	}

	if err := w.publisher.Publish(ctx, key, event); err != nil {
		w.logger.WarnContext(ctx, "Failed to publish event", "event_type", event.GetType(), "error", err)
	}
}
