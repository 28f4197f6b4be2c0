// Package redisstore provides Redis-backed storage for the hot paths of the
// engine: run state written after every transition and per-campaign sent
// counters. Slower-moving business entities stay in the document store.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/vantagecrm/cadence/pkg/models"
	"github.com/vantagecrm/cadence/pkg/persistence"
)

const (
	runStateKeyPrefix = "cadence:runstate:"
	sentCountPrefix   = "cadence:sentcount:"
	sentRecordPrefix  = "cadence:sent:"

	// Sent audit entries are kept for 90 days; counters persist.
	sentRecordTTL = 90 * 24 * time.Hour
)

// NewClient parses a redis URL and returns a connected client.
func NewClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return client, nil
}

// RunStateRepository keeps run state as JSON values under one key per run.
type RunStateRepository struct {
	client redis.UniversalClient
}

func NewRunStateRepository(client redis.UniversalClient) *RunStateRepository {
	return &RunStateRepository{client: client}
}

func (r *RunStateRepository) SaveRunState(ctx context.Context, state *models.RunState) error {
	state.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal run state %s: %w", state.Key(), err)
	}

	err = r.client.Set(ctx, runStateKeyPrefix+state.Key(), data, 0).Err()
	if err != nil {
		return persistence.NewStoreError("SaveRunState", "run state", state.Key(), err)
	}

	return nil
}

func (r *RunStateRepository) RunStateByKey(ctx context.Context, campaignID, contactID string) (*models.RunState, error) {
	key := models.RunKey(campaignID, contactID)

	data, err := r.client.Get(ctx, runStateKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, persistence.ErrRunStateNotFound
	}

	if err != nil {
		return nil, persistence.NewStoreError("RunStateByKey", "run state", key, err)
	}

	var state models.RunState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run state %s: %w", key, err)
	}

	return &state, nil
}

func (r *RunStateRepository) DeleteRunState(ctx context.Context, campaignID, contactID string) error {
	key := models.RunKey(campaignID, contactID)

	err := r.client.Del(ctx, runStateKeyPrefix+key).Err()
	if err != nil {
		return persistence.NewStoreError("DeleteRunState", "run state", key, err)
	}

	return nil
}

// ActiveRunStates scans the run-state keyspace and returns runs still marked
// running.
func (r *RunStateRepository) ActiveRunStates(ctx context.Context) ([]*models.RunState, error) {
	states := make([]*models.RunState, 0)

	iter := r.client.Scan(ctx, 0, runStateKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		data, err := r.client.Get(ctx, iter.Val()).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}

		if err != nil {
			return nil, persistence.NewStoreError("ActiveRunStates", "run state", iter.Val(), err)
		}

		var state models.RunState
		if err := json.Unmarshal(data, &state); err != nil {
			return nil, fmt.Errorf("failed to unmarshal run state %s: %w", iter.Val(), err)
		}

		if state.Status == models.RunStatusRunning {
			states = append(states, &state)
		}
	}

	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan run states: %w", err)
	}

	return states, nil
}

// AuditRepository stores sent records with a TTL and keeps a per-campaign
// counter for cheap reporting reads.
type AuditRepository struct {
	client redis.UniversalClient
}

func NewAuditRepository(client redis.UniversalClient) *AuditRepository {
	return &AuditRepository{client: client}
}

func (r *AuditRepository) RecordSent(ctx context.Context, record *models.SentRecord) error {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}

	if record.SentAt.IsZero() {
		record.SentAt = time.Now().UTC()
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal sent record %s: %w", record.ID, err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, sentRecordPrefix+record.ID, data, sentRecordTTL)
	pipe.Incr(ctx, sentCountPrefix+record.CampaignID)

	if _, err := pipe.Exec(ctx); err != nil {
		return persistence.NewStoreError("RecordSent", "sent record", record.ID, err)
	}

	return nil
}

func (r *AuditRepository) SentCount(ctx context.Context, campaignID string) (int64, error) {
	count, err := r.client.Get(ctx, sentCountPrefix+campaignID).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}

	if err != nil {
		return 0, persistence.NewStoreError("SentCount", "sent count", campaignID, err)
	}

	return count, nil
}
