package file

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vantagecrm/cadence/pkg/models"
	"github.com/vantagecrm/cadence/pkg/persistence"
)

func TestWorkflowRepositoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewWorkflowRepository(t.TempDir())

	workflow := &models.Workflow{
		Name:         "Cold outreach",
		FunctionName: "cold_outreach",
		Nodes: []*models.WorkflowNode{
			{ID: "n1", Channel: models.ChannelTelegram, MaxWaitSeconds: 30},
		},
		Connections: []*models.Connection{},
	}

	require.NoError(t, repo.SaveWorkflow(ctx, workflow))
	require.NotEmpty(t, workflow.ID)

	byID, err := repo.WorkflowByID(ctx, workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, "Cold outreach", byID.Name)
	require.Len(t, byID.Nodes, 1)
	assert.Equal(t, models.ChannelTelegram, byID.Nodes[0].Channel)

	byName, err := repo.WorkflowByFunctionName(ctx, "cold_outreach")
	require.NoError(t, err)
	assert.Equal(t, workflow.ID, byName.ID)

	_, err = repo.WorkflowByFunctionName(ctx, "missing")
	assert.ErrorIs(t, err, persistence.ErrWorkflowNotFound)
}

func TestCampaignContactsSkipsMissing(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	contacts := NewContactRepository(root)
	campaigns := NewCampaignRepository(root, contacts)

	contact := &models.Contact{ID: "p1", Name: "Ada", Email: "ada@example.com"}
	require.NoError(t, contacts.SaveContact(ctx, contact))

	campaign := &models.Campaign{
		ID:         "c1",
		Name:       "Q3 launch",
		UserID:     "u1",
		ContactIDs: []string{"p1", "ghost"},
	}
	require.NoError(t, campaigns.SaveCampaign(ctx, campaign))

	resolved, err := campaigns.ContactsByCampaign(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, resolved, 1)
	assert.Equal(t, "p1", resolved[0].ID)
}

func TestInboundQueryFilters(t *testing.T) {
	ctx := context.Background()
	repo := NewInboundRepository(t.TempDir())

	now := time.Now().UTC()

	messages := []*models.InboundMessage{
		{ID: "m1", Platform: models.ChannelTelegram, ContactID: "p1", CampaignID: "c1", CreatedAt: now},
		{ID: "m2", Platform: models.ChannelTelegram, ContactID: "p1", CreatedAt: now},
		{ID: "m3", Platform: models.ChannelEmail, Identifier: "ada@example.com", CampaignID: "c1", CreatedAt: now.Add(-10 * time.Minute)},
	}
	for _, message := range messages {
		require.NoError(t, repo.InsertInbound(ctx, message))
	}

	found, err := repo.QueryInbound(ctx, persistence.InboundFilter{
		Platform:   models.ChannelTelegram,
		ContactID:  "p1",
		CampaignID: "c1",
	})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "m1", found[0].ID)

	unassigned, err := repo.QueryInbound(ctx, persistence.InboundFilter{
		Platform:       models.ChannelTelegram,
		ContactID:      "p1",
		OnlyUnassigned: true,
	})
	require.NoError(t, err)
	require.Len(t, unassigned, 1)
	assert.Equal(t, "m2", unassigned[0].ID)

	// m3 is outside the window.
	windowed, err := repo.QueryInbound(ctx, persistence.InboundFilter{
		Platform: models.ChannelEmail,
		Since:    now.Add(-5 * time.Minute),
		Until:    now.Add(5 * time.Minute),
	})
	require.NoError(t, err)
	assert.Empty(t, windowed)
}

func TestRunStateLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewRunStateRepository(t.TempDir())

	state := &models.RunState{
		CampaignID:     "c1",
		ContactID:      "p1",
		CurrentNodeID:  "n1",
		VisitedNodeIDs: []string{"n1"},
		Status:         models.RunStatusRunning,
	}
	require.NoError(t, repo.SaveRunState(ctx, state))

	finished := &models.RunState{
		CampaignID: "c1",
		ContactID:  "p2",
		Status:     models.RunStatusFinished,
	}
	require.NoError(t, repo.SaveRunState(ctx, finished))

	active, err := repo.ActiveRunStates(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "p1", active[0].ContactID)

	loaded, err := repo.RunStateByKey(ctx, "c1", "p1")
	require.NoError(t, err)
	assert.Equal(t, "n1", loaded.CurrentNodeID)

	require.NoError(t, repo.DeleteRunState(ctx, "c1", "p1"))

	_, err = repo.RunStateByKey(ctx, "c1", "p1")
	assert.ErrorIs(t, err, persistence.ErrRunStateNotFound)

	// Deleting a missing state is not an error.
	require.NoError(t, repo.DeleteRunState(ctx, "c1", "p1"))
}

func TestAuditSentCount(t *testing.T) {
	ctx := context.Background()
	repo := NewAuditRepository(t.TempDir())

	for range 3 {
		require.NoError(t, repo.RecordSent(ctx, &models.SentRecord{
			CampaignID: "c1", ContactID: "p1", Channel: models.ChannelTelegram,
		}))
	}

	require.NoError(t, repo.RecordSent(ctx, &models.SentRecord{
		CampaignID: "c2", ContactID: "p1", Channel: models.ChannelEmail,
	}))

	count, err := repo.SentCount(ctx, "c1")
	require.NoError(t, err)
	assert.EqualValues(t, 3, count)
}
