package file

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vantagecrm/cadence/pkg/models"
	"github.com/vantagecrm/cadence/pkg/persistence"
)

// RunStateRepository persists run state as one JSON document per run key.
type RunStateRepository struct {
	dir string
	mu  sync.RWMutex
}

func NewRunStateRepository(root string) *RunStateRepository {
	return &RunStateRepository{dir: filepath.Join(root, "runstates")}
}

func (r *RunStateRepository) SaveRunState(_ context.Context, state *models.RunState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	state.UpdatedAt = time.Now().UTC()

	return writeDocument(r.dir, state.Key(), state)
}

func (r *RunStateRepository) RunStateByKey(_ context.Context, campaignID, contactID string) (*models.RunState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var state models.RunState

	key := models.RunKey(campaignID, contactID)
	if err := readDocument(r.dir, key, &state, persistence.ErrRunStateNotFound); err != nil {
		return nil, err
	}

	return &state, nil
}

func (r *RunStateRepository) DeleteRunState(_ context.Context, campaignID, contactID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	path := filepath.Join(r.dir, models.RunKey(campaignID, contactID)+".json")

	err := os.Remove(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	return nil
}

// ActiveRunStates returns every persisted run still in the running state, for
// rehydration after a restart.
func (r *RunStateRepository) ActiveRunStates(_ context.Context) ([]*models.RunState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids, err := listDocumentIDs(r.dir)
	if err != nil {
		return nil, err
	}

	states := make([]*models.RunState, 0, len(ids))

	for _, id := range ids {
		var state models.RunState
		if err := readDocument(r.dir, id, &state, nil); err != nil {
			return nil, err
		}

		if state.Status == models.RunStatusRunning {
			stateCopy := state
			states = append(states, &stateCopy)
		}
	}

	return states, nil
}
