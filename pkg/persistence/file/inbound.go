package file

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vantagecrm/cadence/pkg/models"
	"github.com/vantagecrm/cadence/pkg/persistence"
)

// InboundRepository stores inbound messages as JSON documents. Queries scan
// the directory; this is acceptable at dev/test scale.
type InboundRepository struct {
	dir string
	mu  sync.RWMutex
}

func NewInboundRepository(root string) *InboundRepository {
	return &InboundRepository{dir: filepath.Join(root, "inbound")}
}

func (r *InboundRepository) InsertInbound(_ context.Context, message *models.InboundMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if message.ID == "" {
		message.ID = uuid.New().String()
	}

	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}

	return writeDocument(r.dir, message.ID, message)
}

func (r *InboundRepository) QueryInbound(_ context.Context, filter persistence.InboundFilter) ([]*models.InboundMessage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids, err := listDocumentIDs(r.dir)
	if err != nil {
		return nil, err
	}

	matches := make([]*models.InboundMessage, 0)

	for _, id := range ids {
		var message models.InboundMessage
		if err := readDocument(r.dir, id, &message, nil); err != nil {
			return nil, err
		}

		if matchesFilter(&message, filter) {
			matches = append(matches, &message)
		}
	}

	return matches, nil
}

func matchesFilter(message *models.InboundMessage, filter persistence.InboundFilter) bool {
	if filter.Platform != "" && message.Platform != filter.Platform {
		return false
	}

	if filter.ContactID != "" && message.ContactID != filter.ContactID {
		return false
	}

	if filter.Identifier != "" && message.Identifier != filter.Identifier {
		return false
	}

	if filter.OnlyUnassigned {
		if message.CampaignID != "" {
			return false
		}
	} else if filter.CampaignID != "" && message.CampaignID != filter.CampaignID {
		return false
	}

	if !filter.Since.IsZero() && message.CreatedAt.Before(filter.Since) {
		return false
	}

	if !filter.Until.IsZero() && message.CreatedAt.After(filter.Until) {
		return false
	}

	return true
}
