package scheduler

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vantagecrm/cadence/pkg/eventbus"
	"github.com/vantagecrm/cadence/pkg/events"
	"github.com/vantagecrm/cadence/pkg/log"
	"github.com/vantagecrm/cadence/pkg/models"
	"github.com/vantagecrm/cadence/pkg/persistence/file"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, event eventbus.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.events = append(p.events, event)

	return nil
}

func newSchedulerFixture(t *testing.T) (*Scheduler, *file.Persistence, *recordingPublisher) {
	t.Helper()

	log.Setup("error", "text")

	store := file.NewPersistence(t.TempDir())
	publisher := &recordingPublisher{}

	return NewScheduler(store, publisher, log.WithModule("test")), store, publisher
}

func saveCampaign(t *testing.T, store *file.Persistence, campaign *models.Campaign) {
	t.Helper()
	require.NoError(t, store.CampaignRepository().SaveCampaign(context.Background(), campaign))
}

func TestSyncSchedulesActiveCampaigns(t *testing.T) {
	scheduler, store, _ := newSchedulerFixture(t)

	saveCampaign(t, store, &models.Campaign{
		ID: "campaign-1", Name: "daily", UserID: "user-1",
		Status: models.CampaignStatusActive, Schedule: "0 9 * * *",
	})
	saveCampaign(t, store, &models.Campaign{
		ID: "campaign-2", Name: "manual", UserID: "user-1",
		Status: models.CampaignStatusActive,
	})
	saveCampaign(t, store, &models.Campaign{
		ID: "campaign-3", Name: "paused", UserID: "user-1",
		Status: models.CampaignStatusPaused, Schedule: "0 9 * * *",
	})

	require.NoError(t, scheduler.Sync(context.Background()))

	assert.ElementsMatch(t, []string{"campaign-1"}, scheduler.ScheduledCampaigns())
}

func TestSyncDropsPausedCampaigns(t *testing.T) {
	scheduler, store, _ := newSchedulerFixture(t)

	campaign := &models.Campaign{
		ID: "campaign-1", Name: "daily", UserID: "user-1",
		Status: models.CampaignStatusActive, Schedule: "0 9 * * *",
	}
	saveCampaign(t, store, campaign)
	require.NoError(t, scheduler.Sync(context.Background()))
	require.Len(t, scheduler.ScheduledCampaigns(), 1)

	campaign.Status = models.CampaignStatusPaused
	saveCampaign(t, store, campaign)
	require.NoError(t, scheduler.Sync(context.Background()))

	assert.Empty(t, scheduler.ScheduledCampaigns())
}

func TestSyncSkipsInvalidSchedule(t *testing.T) {
	scheduler, store, _ := newSchedulerFixture(t)

	saveCampaign(t, store, &models.Campaign{
		ID: "campaign-1", Name: "broken", UserID: "user-1",
		Status: models.CampaignStatusActive, Schedule: "not a cron spec",
	})

	require.NoError(t, scheduler.Sync(context.Background()))

	assert.Empty(t, scheduler.ScheduledCampaigns())
}

func TestDispatchJobPublishesEvent(t *testing.T) {
	scheduler, _, publisher := newSchedulerFixture(t)

	scheduler.dispatchJob("campaign-1")()

	publisher.mu.Lock()
	defer publisher.mu.Unlock()

	require.Len(t, publisher.events, 1)

	dispatched, ok := publisher.events[0].(events.CampaignDispatched)
	require.True(t, ok)
	assert.Equal(t, "campaign-1", dispatched.CampaignID)
	assert.Equal(t, events.CampaignDispatchedEvent, dispatched.GetType())
}
