// Package scheduler launches campaigns on their cron schedules by publishing
// dispatch events onto the bus; the worker's dispatcher does the rest.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/vantagecrm/cadence/pkg/eventbus"
	"github.com/vantagecrm/cadence/pkg/events"
	"github.com/vantagecrm/cadence/pkg/models"
	"github.com/vantagecrm/cadence/pkg/persistence"
)

// resyncSpec controls how often the campaign table is re-read so schedule
// edits take effect without a restart.
const resyncSpec = "@every 1m"

type scheduledEntry struct {
	entryID  cron.EntryID
	schedule string
}

// Scheduler keeps one cron entry per active campaign with a schedule. Each
// firing publishes a CampaignDispatched event.
type Scheduler struct {
	persistence persistence.Persistence
	publisher   eventbus.EventPublisher
	cron        *cron.Cron
	logger      *slog.Logger

	mu      sync.Mutex
	entries map[string]scheduledEntry // campaign id → entry
}

func NewScheduler(store persistence.Persistence, publisher eventbus.EventPublisher, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		persistence: store,
		publisher:   publisher,
		cron:        cron.New(),
		logger:      logger.With("module", "campaign_scheduler"),
		entries:     make(map[string]scheduledEntry),
	}
}

// Start syncs the entries, starts the cron loop and blocks until the context
// is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.Sync(ctx); err != nil {
		return err
	}

	_, err := s.cron.AddFunc(resyncSpec, func() {
		if err := s.Sync(ctx); err != nil {
			s.logger.ErrorContext(ctx, "Failed to resync campaign schedules", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to register resync job: %w", err)
	}

	s.cron.Start()
	s.logger.InfoContext(ctx, "Campaign scheduler started")

	<-ctx.Done()

	stopCtx := s.cron.Stop()
	<-stopCtx.Done()

	return nil
}

// Sync reconciles cron entries with the campaign table: schedules new
// campaigns, reschedules edited ones and drops paused or deleted ones.
func (s *Scheduler) Sync(ctx context.Context) error {
	campaigns, err := s.persistence.CampaignRepository().Campaigns(ctx)
	if err != nil {
		return fmt.Errorf("failed to load campaigns: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool, len(campaigns))

	for _, campaign := range campaigns {
		if campaign.Schedule == "" || campaign.Status != models.CampaignStatusActive {
			continue
		}

		seen[campaign.ID] = true

		existing, ok := s.entries[campaign.ID]
		if ok && existing.schedule == campaign.Schedule {
			continue
		}

		if ok {
			s.cron.Remove(existing.entryID)
		}

		entryID, err := s.cron.AddFunc(campaign.Schedule, s.dispatchJob(campaign.ID))
		if err != nil {
			s.logger.WarnContext(ctx, "Invalid campaign schedule, skipping",
				"campaign_id", campaign.ID, "schedule", campaign.Schedule, "error", err)

			delete(s.entries, campaign.ID)

			continue
		}

		s.entries[campaign.ID] = scheduledEntry{entryID: entryID, schedule: campaign.Schedule}
		s.logger.InfoContext(ctx, "Scheduled campaign",
			"campaign_id", campaign.ID, "schedule", campaign.Schedule)
	}

	for campaignID, entry := range s.entries {
		if !seen[campaignID] {
			s.cron.Remove(entry.entryID)
			delete(s.entries, campaignID)
			s.logger.InfoContext(ctx, "Unscheduled campaign", "campaign_id", campaignID)
		}
	}

	return nil
}

// ScheduledCampaigns returns the ids currently held by the cron loop.
func (s *Scheduler) ScheduledCampaigns() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}

	return ids
}

func (s *Scheduler) dispatchJob(campaignID string) func() {
	return func() {
		ctx := context.Background()

		event := events.CampaignDispatched{
			BaseEvent: events.NewBaseEvent(events.CampaignDispatchedEvent, campaignID),
		}

		if err := s.publisher.Publish(ctx, campaignID, event); err != nil {
			s.logger.ErrorContext(ctx, "Failed to publish campaign dispatch",
				"campaign_id", campaignID, "error", err)

			return
		}

		s.logger.InfoContext(ctx, "Campaign dispatch published", "campaign_id", campaignID)
	}
}
