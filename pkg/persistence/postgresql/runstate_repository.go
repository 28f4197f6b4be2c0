package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vantagecrm/cadence/pkg/models"
	"github.com/vantagecrm/cadence/pkg/persistence"
)

// RunStateRepository persists run state keyed by (campaign_id, contact_id).
type RunStateRepository struct {
	db *sql.DB
}

func NewRunStateRepository(db *sql.DB) *RunStateRepository {
	return &RunStateRepository{db: db}
}

func (r *RunStateRepository) SaveRunState(ctx context.Context, state *models.RunState) error {
	state.UpdatedAt = time.Now().UTC()

	visited, err := json.Marshal(state.VisitedNodeIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal visited nodes for run %s: %w", state.Key(), err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO run_states (campaign_id, contact_id, workflow_id, current_node_id, visited_node_ids, last_executed_at, status, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (campaign_id, contact_id) DO UPDATE SET
			workflow_id = $3, current_node_id = $4, visited_node_ids = $5,
			last_executed_at = $6, status = $7, updated_at = $8
	`, state.CampaignID, state.ContactID, state.WorkflowID, state.CurrentNodeID,
		visited, nullableTime(state.LastExecutedAt), state.Status, state.UpdatedAt)
	if err != nil {
		return persistence.NewStoreError("SaveRunState", "run state", state.Key(), err)
	}

	return nil
}

func (r *RunStateRepository) RunStateByKey(ctx context.Context, campaignID, contactID string) (*models.RunState, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT campaign_id, contact_id, workflow_id, current_node_id, visited_node_ids, last_executed_at, status, updated_at
		FROM run_states WHERE campaign_id = $1 AND contact_id = $2
	`, campaignID, contactID)

	state, err := scanRunState(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.ErrRunStateNotFound
	}

	return state, err
}

func (r *RunStateRepository) DeleteRunState(ctx context.Context, campaignID, contactID string) error {
	_, err := r.db.ExecContext(ctx,
		"DELETE FROM run_states WHERE campaign_id = $1 AND contact_id = $2", campaignID, contactID)
	if err != nil {
		return persistence.NewStoreError("DeleteRunState", "run state", models.RunKey(campaignID, contactID), err)
	}

	return nil
}

func (r *RunStateRepository) ActiveRunStates(ctx context.Context) ([]*models.RunState, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT campaign_id, contact_id, workflow_id, current_node_id, visited_node_ids, last_executed_at, status, updated_at
		FROM run_states WHERE status = $1
	`, models.RunStatusRunning)
	if err != nil {
		return nil, fmt.Errorf("failed to query active run states: %w", err)
	}
	defer rows.Close()

	states := make([]*models.RunState, 0)

	for rows.Next() {
		state, err := scanRunState(rows.Scan)
		if err != nil {
			return nil, err
		}

		states = append(states, state)
	}

	return states, rows.Err()
}

func scanRunState(scan func(...any) error) (*models.RunState, error) {
	var (
		state          models.RunState
		visited        []byte
		lastExecutedAt sql.NullTime
	)

	err := scan(&state.CampaignID, &state.ContactID, &state.WorkflowID, &state.CurrentNodeID,
		&visited, &lastExecutedAt, &state.Status, &state.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(visited, &state.VisitedNodeIDs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal visited nodes for run %s: %w", state.Key(), err)
	}

	state.LastExecutedAt = lastExecutedAt.Time

	return &state, nil
}

func nullableTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

// AuditRepository stores one row per successful message-channel send.
type AuditRepository struct {
	db *sql.DB
}

func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) RecordSent(ctx context.Context, record *models.SentRecord) error {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}

	if record.SentAt.IsZero() {
		record.SentAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sent_records (id, campaign_id, contact_id, channel, sent_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`, record.ID, record.CampaignID, record.ContactID, record.Channel, record.SentAt)
	if err != nil {
		return persistence.NewStoreError("RecordSent", "sent record", record.ID, err)
	}

	return nil
}

func (r *AuditRepository) SentCount(ctx context.Context, campaignID string) (int64, error) {
	var count int64

	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sent_records WHERE campaign_id = $1", campaignID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count sent records for campaign %s: %w", campaignID, err)
	}

	return count, nil
}
