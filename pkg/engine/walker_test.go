package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vantagecrm/cadence/pkg/eventbus"
	"github.com/vantagecrm/cadence/pkg/events"
	"github.com/vantagecrm/cadence/pkg/gateway"
	"github.com/vantagecrm/cadence/pkg/inbox"
	"github.com/vantagecrm/cadence/pkg/log"
	"github.com/vantagecrm/cadence/pkg/models"
	"github.com/vantagecrm/cadence/pkg/persistence"
	"github.com/vantagecrm/cadence/pkg/persistence/file"
)

type fakeSender struct {
	kind models.ChannelKind
	err  error

	mu      sync.Mutex
	scripts []string
}

func (s *fakeSender) Kind() models.ChannelKind { return s.kind }

func (s *fakeSender) Send(_ context.Context, _ *models.Contact, script string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}

	s.scripts = append(s.scripts, script)

	return nil
}

func (s *fakeSender) sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string(nil), s.scripts...)
}

type capturePublisher struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (p *capturePublisher) Publish(_ context.Context, _ string, event eventbus.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.events = append(p.events, event)

	return nil
}

func (p *capturePublisher) byType(eventType events.EventType) []eventbus.Event {
	p.mu.Lock()
	defer p.mu.Unlock()

	var matched []eventbus.Event

	for _, event := range p.events {
		if event.GetType() == eventType {
			matched = append(matched, event)
		}
	}

	return matched
}

type walkerFixture struct {
	walker    *Walker
	store     *file.Persistence
	clock     *clockwork.FakeClock
	publisher *capturePublisher
	senders   map[models.ChannelKind]*fakeSender
}

func newWalkerFixture(t *testing.T, kinds ...models.ChannelKind) *walkerFixture {
	t.Helper()

	log.Setup("error", "text")
	logger := log.WithModule("test")
	store := file.NewPersistence(t.TempDir())
	clock := clockwork.NewFakeClock()
	publisher := &capturePublisher{}

	registry := gateway.NewRegistry(store.AuditRepository(), clock, logger)
	senders := make(map[models.ChannelKind]*fakeSender)

	for _, kind := range kinds {
		sender := &fakeSender{kind: kind}
		senders[kind] = sender
		registry.Register(sender)
	}

	reader := inbox.NewReader(store.InboundRepository(), clock, logger)
	walker := NewWalker(registry, reader, nil, store.RunStateRepository(), publisher, clock, logger)

	return &walkerFixture{
		walker:    walker,
		store:     store,
		clock:     clock,
		publisher: publisher,
		senders:   senders,
	}
}

func testContact() *models.Contact {
	return &models.Contact{
		ID:               "contact-1",
		Name:             "Ada",
		TelegramUsername: "ada",
		WhatsAppNumber:   "+15550001111",
		Email:            "ada@example.com",
	}
}

func testCampaign() *models.Campaign {
	return &models.Campaign{
		ID:     "campaign-1",
		Name:   "Q3 outreach",
		Status: models.CampaignStatusActive,
	}
}

// runToCompletion executes the walker in a goroutine and advances the fake
// clock through the expected number of response waits.
func (f *walkerFixture) runToCompletion(t *testing.T, ctx context.Context, params RunParams, waits int) {
	t.Helper()

	done := make(chan struct{})

	go func() {
		defer close(done)
		f.walker.Run(ctx, params)
	}()

	for i := 0; i < waits; i++ {
		blockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := f.clock.BlockUntilContext(blockCtx, 1)
		cancel()
		require.NoError(t, err)

		f.clock.Advance(models.DefaultMaxWaitSeconds*time.Second + time.Second)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("walker run did not finish")
	}
}

func (f *walkerFixture) insertReply(t *testing.T, channel models.ChannelKind, createdAt time.Time) {
	t.Helper()

	err := f.store.InboundRepository().InsertInbound(context.Background(), &models.InboundMessage{
		Platform:   channel,
		ContactID:  "contact-1",
		CampaignID: "campaign-1",
		Content:    "sounds interesting",
		CreatedAt:  createdAt,
	})
	require.NoError(t, err)
}

func TestWalkerEmptyWorkflowIsNoOp(t *testing.T) {
	fixture := newWalkerFixture(t)

	workflow := &models.Workflow{ID: "wf-empty"}

	fixture.walker.Run(context.Background(), RunParams{
		Workflow: workflow,
		Campaign: testCampaign(),
		Contact:  testContact(),
	})

	_, err := fixture.store.RunStateRepository().RunStateByKey(context.Background(), "campaign-1", "contact-1")
	assert.Error(t, err, "an empty workflow must not persist any run state")
	assert.Empty(t, fixture.publisher.byType(events.RunFinishedEvent))
}

func TestWalkerSingleNodeNoReplyCompletes(t *testing.T) {
	fixture := newWalkerFixture(t, models.ChannelTelegram)

	workflow := &models.Workflow{
		ID:    "wf-1",
		Nodes: []*models.WorkflowNode{{ID: "a", Channel: models.ChannelTelegram}},
	}

	fixture.runToCompletion(t, context.Background(), RunParams{
		Workflow:      workflow,
		Campaign:      testCampaign(),
		Contact:       testContact(),
		DefaultScript: "hello there",
	}, 1)

	assert.Equal(t, []string{"hello there"}, fixture.senders[models.ChannelTelegram].sent())

	state, err := fixture.store.RunStateRepository().RunStateByKey(context.Background(), "campaign-1", "contact-1")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFinished, state.Status)
	assert.True(t, state.Visited("a"))

	finished := fixture.publisher.byType(events.RunFinishedEvent)
	require.Len(t, finished, 1)
	assert.Equal(t, events.RunOutcomeCompleted, finished[0].(events.RunFinished).Outcome)

	executed := fixture.publisher.byType(events.NodeExecutedEvent)
	require.Len(t, executed, 1)
	assert.True(t, executed[0].(events.NodeExecuted).Sent)
	assert.False(t, executed[0].(events.NodeExecuted).Replied)
}

func TestWalkerFollowsYesBranchOnReply(t *testing.T) {
	fixture := newWalkerFixture(t, models.ChannelTelegram, models.ChannelWhatsApp)

	workflow := &models.Workflow{
		ID: "wf-branch",
		Nodes: []*models.WorkflowNode{
			{ID: "a", Channel: models.ChannelTelegram},
			{ID: "yes-next", Channel: models.ChannelWhatsApp},
			{ID: "no-next", Channel: models.ChannelWhatsApp},
		},
		Connections: []*models.Connection{
			{SourceNodeID: "a", TargetNodeID: "yes-next", Label: models.EdgeYes},
			{SourceNodeID: "a", TargetNodeID: "no-next", Label: models.EdgeNo},
		},
	}

	// The reply lands inside the response window of node "a".
	fixture.insertReply(t, models.ChannelTelegram, fixture.clock.Now().UTC().Add(time.Minute))

	fixture.runToCompletion(t, context.Background(), RunParams{
		Workflow:      workflow,
		Campaign:      testCampaign(),
		Contact:       testContact(),
		DefaultScript: "hi",
	}, 2)

	assert.Len(t, fixture.senders[models.ChannelTelegram].sent(), 1)
	assert.Len(t, fixture.senders[models.ChannelWhatsApp].sent(), 1)

	state, err := fixture.store.RunStateRepository().RunStateByKey(context.Background(), "campaign-1", "contact-1")
	require.NoError(t, err)
	assert.True(t, state.Visited("yes-next"))
	assert.False(t, state.Visited("no-next"))
}

func TestWalkerFollowsNoBranchWithoutReply(t *testing.T) {
	fixture := newWalkerFixture(t, models.ChannelTelegram, models.ChannelWhatsApp)

	workflow := &models.Workflow{
		ID: "wf-branch",
		Nodes: []*models.WorkflowNode{
			{ID: "a", Channel: models.ChannelTelegram},
			{ID: "no-next", Channel: models.ChannelWhatsApp},
		},
		Connections: []*models.Connection{
			{SourceNodeID: "a", TargetNodeID: "no-next", Label: models.EdgeNo},
		},
	}

	fixture.runToCompletion(t, context.Background(), RunParams{
		Workflow: workflow,
		Campaign: testCampaign(),
		Contact:  testContact(),
	}, 2)

	assert.Len(t, fixture.senders[models.ChannelWhatsApp].sent(), 1)

	state, err := fixture.store.RunStateRepository().RunStateByKey(context.Background(), "campaign-1", "contact-1")
	require.NoError(t, err)
	assert.True(t, state.Visited("no-next"))
}

func TestWalkerReplyOutsideWindowIsIgnored(t *testing.T) {
	fixture := newWalkerFixture(t, models.ChannelTelegram, models.ChannelWhatsApp)

	workflow := &models.Workflow{
		ID: "wf-window",
		Nodes: []*models.WorkflowNode{
			{ID: "a", Channel: models.ChannelTelegram},
			{ID: "yes-next", Channel: models.ChannelWhatsApp},
		},
		Connections: []*models.Connection{
			{SourceNodeID: "a", TargetNodeID: "yes-next", Label: models.EdgeYes},
		},
	}

	// Six minutes past execution time sits outside the five minute window.
	fixture.insertReply(t, models.ChannelTelegram, fixture.clock.Now().UTC().Add(6*time.Minute))

	fixture.runToCompletion(t, context.Background(), RunParams{
		Workflow: workflow,
		Campaign: testCampaign(),
		Contact:  testContact(),
	}, 1)

	assert.Empty(t, fixture.senders[models.ChannelWhatsApp].sent())
}

func TestWalkerCycleGuardTerminatesRun(t *testing.T) {
	fixture := newWalkerFixture(t, models.ChannelTelegram)

	workflow := &models.Workflow{
		ID:    "wf-cycle",
		Nodes: []*models.WorkflowNode{{ID: "a", Channel: models.ChannelTelegram}},
		Connections: []*models.Connection{
			{SourceNodeID: "a", TargetNodeID: "a", Label: models.EdgeNo},
		},
	}

	fixture.runToCompletion(t, context.Background(), RunParams{
		Workflow: workflow,
		Campaign: testCampaign(),
		Contact:  testContact(),
	}, 1)

	assert.Len(t, fixture.senders[models.ChannelTelegram].sent(), 1, "a node must never execute twice")

	finished := fixture.publisher.byType(events.RunFinishedEvent)
	require.Len(t, finished, 1)
	assert.Equal(t, events.RunOutcomeCycle, finished[0].(events.RunFinished).Outcome)
}

func TestWalkerDanglingEdgeTerminatesRun(t *testing.T) {
	fixture := newWalkerFixture(t, models.ChannelTelegram)

	workflow := &models.Workflow{
		ID:    "wf-dangling",
		Nodes: []*models.WorkflowNode{{ID: "a", Channel: models.ChannelTelegram}},
		Connections: []*models.Connection{
			{SourceNodeID: "a", TargetNodeID: "ghost", Label: models.EdgeNo},
		},
	}

	fixture.runToCompletion(t, context.Background(), RunParams{
		Workflow: workflow,
		Campaign: testCampaign(),
		Contact:  testContact(),
	}, 1)

	finished := fixture.publisher.byType(events.RunFinishedEvent)
	require.Len(t, finished, 1)
	assert.Equal(t, events.RunOutcomeDangling, finished[0].(events.RunFinished).Outcome)
}

func TestWalkerMissingIdentifierStillWaitsAndBranches(t *testing.T) {
	fixture := newWalkerFixture(t, models.ChannelTelegram, models.ChannelWhatsApp)
	fixture.senders[models.ChannelTelegram].err = gateway.ErrMissingIdentifier

	workflow := &models.Workflow{
		ID: "wf-unreachable",
		Nodes: []*models.WorkflowNode{
			{ID: "a", Channel: models.ChannelTelegram},
			{ID: "no-next", Channel: models.ChannelWhatsApp},
		},
		Connections: []*models.Connection{
			{SourceNodeID: "a", TargetNodeID: "no-next", Label: models.EdgeNo},
		},
	}

	fixture.runToCompletion(t, context.Background(), RunParams{
		Workflow: workflow,
		Campaign: testCampaign(),
		Contact:  testContact(),
	}, 2)

	// The undeliverable node still waits and takes the no branch.
	assert.Len(t, fixture.senders[models.ChannelWhatsApp].sent(), 1)

	executed := fixture.publisher.byType(events.NodeExecutedEvent)
	require.Len(t, executed, 2)
	assert.False(t, executed[0].(events.NodeExecuted).Sent, "an unreachable contact means nothing was sent")
	assert.True(t, executed[1].(events.NodeExecuted).Sent)
}

func TestWalkerCancelledDuringWait(t *testing.T) {
	fixture := newWalkerFixture(t, models.ChannelTelegram)

	workflow := &models.Workflow{
		ID:    "wf-cancel",
		Nodes: []*models.WorkflowNode{{ID: "a", Channel: models.ChannelTelegram}},
	}

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})

	go func() {
		defer close(done)
		fixture.walker.Run(ctx, RunParams{
			Workflow: workflow,
			Campaign: testCampaign(),
			Contact:  testContact(),
		})
	}()

	blockCtx, blockCancel := context.WithTimeout(context.Background(), 5*time.Second)
	require.NoError(t, fixture.clock.BlockUntilContext(blockCtx, 1))
	blockCancel()

	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("walker run did not finish after cancellation")
	}

	// The run stays resumable: suspended in the running state.
	state, err := fixture.store.RunStateRepository().RunStateByKey(context.Background(), "campaign-1", "contact-1")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusRunning, state.Status)
	assert.True(t, state.Visited("a"))

	finished := fixture.publisher.byType(events.RunFinishedEvent)
	require.Len(t, finished, 1)
	assert.Equal(t, events.RunOutcomeCancelled, finished[0].(events.RunFinished).Outcome)
}

func TestWalkerWakeWithMatchingReplyCutsWaitShort(t *testing.T) {
	fixture := newWalkerFixture(t, models.ChannelTelegram)

	workflow := &models.Workflow{
		ID:    "wf-wake",
		Nodes: []*models.WorkflowNode{{ID: "a", Channel: models.ChannelTelegram}},
	}

	fixture.insertReply(t, models.ChannelTelegram, fixture.clock.Now().UTC())

	wake := make(chan struct{}, 1)

	done := make(chan struct{})

	go func() {
		defer close(done)
		fixture.walker.Run(context.Background(), RunParams{
			Workflow: workflow,
			Campaign: testCampaign(),
			Contact:  testContact(),
			Wake:     wake,
		})
	}()

	blockCtx, blockCancel := context.WithTimeout(context.Background(), 5*time.Second)
	require.NoError(t, fixture.clock.BlockUntilContext(blockCtx, 1))
	blockCancel()

	// The clock never advances; the wake finds the stored reply and ends the
	// wait early.
	wake <- struct{}{}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("wake signal did not cut the wait short")
	}

	state, err := fixture.store.RunStateRepository().RunStateByKey(context.Background(), "campaign-1", "contact-1")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFinished, state.Status)
}

// countingInboundRepository signals every reply-store query so tests can tell
// when a reply check has run.
type countingInboundRepository struct {
	persistence.InboundRepository

	queried chan struct{}
}

func (r *countingInboundRepository) QueryInbound(ctx context.Context, filter persistence.InboundFilter) ([]*models.InboundMessage, error) {
	defer func() { r.queried <- struct{}{} }()

	return r.InboundRepository.QueryInbound(ctx, filter)
}

func TestWalkerSpuriousWakeKeepsWaiting(t *testing.T) {
	log.Setup("error", "text")
	logger := log.WithModule("test")
	store := file.NewPersistence(t.TempDir())
	clock := clockwork.NewFakeClock()
	publisher := &capturePublisher{}

	registry := gateway.NewRegistry(store.AuditRepository(), clock, logger)
	telegram := &fakeSender{kind: models.ChannelTelegram}
	whatsapp := &fakeSender{kind: models.ChannelWhatsApp}
	registry.Register(telegram)
	registry.Register(whatsapp)

	inboundRepo := &countingInboundRepository{
		InboundRepository: store.InboundRepository(),
		queried:           make(chan struct{}, 64),
	}
	reader := inbox.NewReader(inboundRepo, clock, logger)
	walker := NewWalker(registry, reader, nil, store.RunStateRepository(), publisher, clock, logger)

	workflow := &models.Workflow{
		ID: "wf-spurious",
		Nodes: []*models.WorkflowNode{
			{ID: "a", Channel: models.ChannelTelegram},
			{ID: "yes-next", Channel: models.ChannelWhatsApp},
		},
		Connections: []*models.Connection{
			{SourceNodeID: "a", TargetNodeID: "yes-next", Label: models.EdgeYes},
		},
	}

	wake := make(chan struct{}, 1)

	done := make(chan struct{})

	go func() {
		defer close(done)
		walker.Run(context.Background(), RunParams{
			Workflow: workflow,
			Campaign: testCampaign(),
			Contact:  testContact(),
			Wake:     wake,
		})
	}()

	blockCtx, blockCancel := context.WithTimeout(context.Background(), 5*time.Second)
	require.NoError(t, clock.BlockUntilContext(blockCtx, 1))
	blockCancel()

	// Another contact's unattributed reply woke the whole campaign; nothing
	// in the store matches this run.
	wake <- struct{}{}

	// The reply check runs all three matching filters and comes up empty.
	for i := 0; i < 3; i++ {
		select {
		case <-inboundRepo.queried:
		case <-time.After(5 * time.Second):
			t.Fatal("reply check did not reach the store")
		}
	}

	select {
	case <-done:
		t.Fatal("a wake without a matching reply must not end the response wait")
	default:
	}

	// The real reply lands inside the window; the next wake takes the yes
	// branch that a premature timeout would have lost.
	err := store.InboundRepository().InsertInbound(context.Background(), &models.InboundMessage{
		Platform:   models.ChannelTelegram,
		ContactID:  "contact-1",
		CampaignID: "campaign-1",
		Content:    "tell me more",
		CreatedAt:  clock.Now().UTC().Add(30 * time.Second),
	})
	require.NoError(t, err)

	wake <- struct{}{}

	require.Eventually(t, func() bool {
		return len(whatsapp.sent()) == 1
	}, 5*time.Second, 10*time.Millisecond, "the matched wake must advance the run to the yes branch")

	// Node yes-next waits out its own window.
	blockCtx, blockCancel = context.WithTimeout(context.Background(), 5*time.Second)
	require.NoError(t, clock.BlockUntilContext(blockCtx, 1))
	blockCancel()
	clock.Advance(models.DefaultMaxWaitSeconds*time.Second + time.Second)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("walker run did not finish")
	}

	assert.Len(t, telegram.sent(), 1)

	state, err := store.RunStateRepository().RunStateByKey(context.Background(), "campaign-1", "contact-1")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFinished, state.Status)
	assert.True(t, state.Visited("yes-next"))
}

func TestWalkerResumeSkipsExecutedNode(t *testing.T) {
	fixture := newWalkerFixture(t, models.ChannelTelegram, models.ChannelWhatsApp)

	workflow := &models.Workflow{
		ID: "wf-resume",
		Nodes: []*models.WorkflowNode{
			{ID: "a", Channel: models.ChannelTelegram},
			{ID: "no-next", Channel: models.ChannelWhatsApp},
		},
		Connections: []*models.Connection{
			{SourceNodeID: "a", TargetNodeID: "no-next", Label: models.EdgeNo},
		},
	}

	state := &models.RunState{
		CampaignID:     "campaign-1",
		ContactID:      "contact-1",
		WorkflowID:     "wf-resume",
		CurrentNodeID:  "a",
		VisitedNodeIDs: []string{"a"},
		LastExecutedAt: fixture.clock.Now().UTC(),
		Status:         models.RunStatusRunning,
	}

	// Node "a" already executed before the restart; only "no-next" waits.
	fixture.runToCompletion(t, context.Background(), RunParams{
		Workflow: workflow,
		Campaign: testCampaign(),
		Contact:  testContact(),
		State:    state,
	}, 1)

	assert.Empty(t, fixture.senders[models.ChannelTelegram].sent(), "the resumed node must not send again")
	assert.Len(t, fixture.senders[models.ChannelWhatsApp].sent(), 1)
}

func TestWalkerUsesNodeScriptOverride(t *testing.T) {
	fixture := newWalkerFixture(t, models.ChannelTelegram)

	workflow := &models.Workflow{
		ID: "wf-script",
		Nodes: []*models.WorkflowNode{{
			ID:      "a",
			Channel: models.ChannelTelegram,
			Scripts: []models.NodeScript{{CampaignID: "campaign-1", Script: "custom pitch"}},
		}},
	}

	fixture.runToCompletion(t, context.Background(), RunParams{
		Workflow:      workflow,
		Campaign:      testCampaign(),
		Contact:       testContact(),
		DefaultScript: "default pitch",
	}, 1)

	assert.Equal(t, []string{"custom pitch"}, fixture.senders[models.ChannelTelegram].sent())
}
