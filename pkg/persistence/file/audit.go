package file

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vantagecrm/cadence/pkg/models"
)

// AuditRepository stores sent-audit records as JSON documents.
type AuditRepository struct {
	dir string
	mu  sync.RWMutex
}

func NewAuditRepository(root string) *AuditRepository {
	return &AuditRepository{dir: filepath.Join(root, "audits")}
}

func (r *AuditRepository) RecordSent(_ context.Context, record *models.SentRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if record.ID == "" {
		record.ID = uuid.New().String()
	}

	if record.SentAt.IsZero() {
		record.SentAt = time.Now().UTC()
	}

	return writeDocument(r.dir, record.ID, record)
}

func (r *AuditRepository) SentCount(_ context.Context, campaignID string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids, err := listDocumentIDs(r.dir)
	if err != nil {
		return 0, err
	}

	var count int64

	for _, id := range ids {
		var record models.SentRecord
		if err := readDocument(r.dir, id, &record, nil); err != nil {
			return 0, err
		}

		if record.CampaignID == campaignID {
			count++
		}
	}

	return count, nil
}
