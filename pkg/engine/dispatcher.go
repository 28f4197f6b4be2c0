package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vantagecrm/cadence/pkg/eventbus"
	"github.com/vantagecrm/cadence/pkg/events"
	"github.com/vantagecrm/cadence/pkg/models"
	"github.com/vantagecrm/cadence/pkg/otelhelper"
	"github.com/vantagecrm/cadence/pkg/persistence"
)

// DefaultMaxConcurrentRuns bounds simultaneous runs across all campaigns so a
// large contact list cannot outpace the channel gateways.
const DefaultMaxConcurrentRuns = 64

// Dispatcher fans a campaign out into one independent run per contact. Runs
// never block each other and a panic inside one run does not abort its
// siblings. The dispatcher holds the run registry used for pausing and for
// waking waits early when replies arrive.
type Dispatcher struct {
	workerID    string
	persistence persistence.Persistence
	walker      *Walker
	eventBus    eventbus.EventBus
	registry    *runRegistry
	semaphore   chan struct{}
	tracer      trace.Tracer
	logger      *slog.Logger
	baseCtx     context.Context
	wg          sync.WaitGroup
}

func NewDispatcher(
	workerID string,
	store persistence.Persistence,
	walker *Walker,
	eventBus eventbus.EventBus,
	maxConcurrentRuns int,
	logger *slog.Logger,
) *Dispatcher {
	if maxConcurrentRuns <= 0 {
		maxConcurrentRuns = DefaultMaxConcurrentRuns
	}

	return &Dispatcher{
		workerID:    workerID,
		persistence: store,
		walker:      walker,
		eventBus:    eventBus,
		registry:    newRunRegistry(),
		semaphore:   make(chan struct{}, maxConcurrentRuns),
		tracer:      otel.Tracer("cadence.engine"),
		logger:      logger.With("module", "campaign_dispatcher", "worker_id", workerID),
		baseCtx:     context.Background(),
	}
}

// Start subscribes the dispatcher to the event bus: campaign dispatch
// requests start runs, inbound notifications wake waiting runs.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.baseCtx = context.WithoutCancel(ctx)

	err := d.eventBus.Handle(events.CampaignDispatchedEvent, d.handleCampaignDispatched)
	if err != nil {
		return err
	}

	err = d.eventBus.Handle(events.CampaignPausedEvent, d.handleCampaignPaused)
	if err != nil {
		return err
	}

	err = d.eventBus.Handle(events.InboundReceivedEvent, d.handleInboundReceived)
	if err != nil {
		return err
	}

	return d.eventBus.Subscribe(ctx)
}

func (d *Dispatcher) handleCampaignPaused(ctx context.Context, event any) error {
	paused, ok := event.(*events.CampaignPaused)
	if !ok {
		d.logger.ErrorContext(ctx, "Invalid event payload for campaign pause")

		return nil
	}

	d.PauseCampaign(paused.CampaignID)

	return nil
}

func (d *Dispatcher) handleCampaignDispatched(ctx context.Context, event any) error {
	dispatched, ok := event.(*events.CampaignDispatched)
	if !ok {
		d.logger.ErrorContext(ctx, "Invalid event payload for campaign dispatch")

		return nil
	}

	ctx, span := otelhelper.StartSpan(ctx, d.tracer, "dispatcher.dispatch_campaign",
		attribute.String(otelhelper.CampaignIDKey, dispatched.CampaignID),
		attribute.String(otelhelper.WorkerIDKey, d.workerID),
	)
	defer span.End()

	err := d.DispatchCampaign(ctx, dispatched.CampaignID)
	if err != nil {
		otelhelper.SetError(span, err)
		d.logger.ErrorContext(ctx, "Failed to dispatch campaign",
			"campaign_id", dispatched.CampaignID, "error", err)
	}

	// Dispatch failures are not retried through the bus; the campaign can be
	// launched again from the API.
	return nil
}

func (d *Dispatcher) handleInboundReceived(ctx context.Context, event any) error {
	inbound, ok := event.(*events.InboundReceived)
	if !ok {
		d.logger.ErrorContext(ctx, "Invalid event payload for inbound notification")

		return nil
	}

	d.registry.wake(inbound.CampaignID, inbound.ContactID)

	return nil
}

// DispatchCampaign loads the campaign, resolves its workflow and contacts and
// fans out the runs.
func (d *Dispatcher) DispatchCampaign(ctx context.Context, campaignID string) error {
	campaign, err := d.persistence.CampaignRepository().CampaignByID(ctx, campaignID)
	if err != nil {
		return fmt.Errorf("failed to load campaign %s: %w", campaignID, err)
	}

	workflow, err := d.ResolveWorkflow(ctx, campaign)
	if err != nil {
		return err
	}

	contacts, err := d.persistence.CampaignRepository().ContactsByCampaign(ctx, campaignID)
	if err != nil {
		return fmt.Errorf("failed to load contacts for campaign %s: %w", campaignID, err)
	}

	d.Dispatch(ctx, workflow, campaign, contacts, campaign.DefaultScript)

	return nil
}

// ResolveWorkflow returns the campaign's workflow: by id, by function name,
// or a generated always-advance sequence for legacy channel-list campaigns.
func (d *Dispatcher) ResolveWorkflow(ctx context.Context, campaign *models.Campaign) (*models.Workflow, error) {
	repo := d.persistence.WorkflowRepository()

	if campaign.WorkflowID != "" {
		workflow, err := repo.WorkflowByID(ctx, campaign.WorkflowID)
		if err != nil {
			return nil, fmt.Errorf("failed to load workflow %s: %w", campaign.WorkflowID, err)
		}

		return workflow, nil
	}

	if campaign.FunctionName != "" {
		workflow, err := repo.WorkflowByFunctionName(ctx, campaign.FunctionName)
		if err != nil {
			return nil, fmt.Errorf("failed to load workflow %q: %w", campaign.FunctionName, err)
		}

		return workflow, nil
	}

	return models.SequenceWorkflow(campaign.ID, campaign.ChannelSequence), nil
}

// Dispatch launches one run per contact. It is fire-and-forget: the caller
// gets no per-run result beyond logs and bus events.
func (d *Dispatcher) Dispatch(ctx context.Context, workflow *models.Workflow, campaign *models.Campaign, contacts []*models.Contact, defaultScript string) {
	logger := d.logger.With("campaign_id", campaign.ID, "workflow_id", workflow.ID)

	if len(workflow.Nodes) == 0 {
		logger.InfoContext(ctx, "Workflow has no nodes, nothing to dispatch")

		return
	}

	if len(contacts) == 0 {
		logger.InfoContext(ctx, "Campaign has no contacts, nothing to dispatch")

		return
	}

	logger.InfoContext(ctx, "Dispatching campaign", "contacts", len(contacts))

	for _, contact := range contacts {
		d.launch(workflow, campaign, contact, defaultScript, nil)
	}
}

// Resume rehydrates every persisted non-terminal run and continues it from
// its saved position instead of discarding it.
func (d *Dispatcher) Resume(ctx context.Context) error {
	states, err := d.persistence.RunStateRepository().ActiveRunStates(ctx)
	if err != nil {
		return fmt.Errorf("failed to load active run states: %w", err)
	}

	if len(states) == 0 {
		return nil
	}

	d.logger.InfoContext(ctx, "Resuming persisted runs", "count", len(states))

	for _, state := range states {
		campaign, err := d.persistence.CampaignRepository().CampaignByID(ctx, state.CampaignID)
		if err != nil {
			d.logger.WarnContext(ctx, "Skipping run resume, campaign missing",
				"campaign_id", state.CampaignID, "error", err)

			continue
		}

		if campaign.Status == models.CampaignStatusPaused || campaign.Status == models.CampaignStatusDeleted {
			continue
		}

		workflow, err := d.ResolveWorkflow(ctx, campaign)
		if err != nil {
			d.logger.WarnContext(ctx, "Skipping run resume, workflow missing",
				"campaign_id", state.CampaignID, "error", err)

			continue
		}

		contact, err := d.persistence.ContactRepository().ContactByID(ctx, state.ContactID)
		if err != nil {
			if !errors.Is(err, persistence.ErrContactNotFound) {
				d.logger.WarnContext(ctx, "Failed to load contact for run resume",
					"contact_id", state.ContactID, "error", err)
			}

			continue
		}

		d.launch(workflow, campaign, contact, campaign.DefaultScript, state)
	}

	return nil
}

// launch spawns the run goroutine. Concurrency is bounded by the semaphore;
// panics are contained so one bad run cannot take down its siblings.
func (d *Dispatcher) launch(workflow *models.Workflow, campaign *models.Campaign, contact *models.Contact, defaultScript string, state *models.RunState) {
	runCtx, cancel := context.WithCancel(d.baseCtx)
	handle := d.registry.add(campaign.ID, contact.ID, cancel)

	d.wg.Add(1)

	go func() {
		defer d.wg.Done()
		defer cancel()
		defer d.registry.remove(handle)

		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("Run panicked",
					"campaign_id", campaign.ID, "contact_id", contact.ID, "panic", r)
			}
		}()

		select {
		case d.semaphore <- struct{}{}:
		case <-runCtx.Done():
			return
		}
		defer func() { <-d.semaphore }()

		d.walker.Run(runCtx, RunParams{
			Workflow:      workflow,
			Campaign:      campaign,
			Contact:       contact,
			DefaultScript: defaultScript,
			State:         state,
			Wake:          handle.wake,
		})
	}()
}

// PauseCampaign cooperatively cancels every in-flight run of the campaign.
func (d *Dispatcher) PauseCampaign(campaignID string) int {
	cancelled := d.registry.cancelCampaign(campaignID)

	d.logger.Info("Paused campaign runs", "campaign_id", campaignID, "cancelled", cancelled)

	return cancelled
}

// ActiveRuns reports live runs, optionally for a single campaign.
func (d *Dispatcher) ActiveRuns(campaignID string) int {
	return d.registry.activeCount(campaignID)
}

// Wait blocks until every launched run has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Shutdown cancels every live run and drains the goroutines. Cancelled runs
// persist their state, so Resume continues them on the next start.
func (d *Dispatcher) Shutdown() {
	d.registry.cancelAll()
	d.wg.Wait()
}
