package engine

import (
	"context"
	"sync"

	"github.com/vantagecrm/cadence/pkg/models"
)

// runHandle holds the cooperative controls of one live run: its cancel func
// and a wake channel that cuts the response wait short when a matching reply
// arrives.
type runHandle struct {
	campaignID string
	contactID  string
	cancel     context.CancelFunc
	wake       chan struct{}
}

// notifyWake signals the run without blocking. A run that is not currently
// waiting simply finds the buffered signal on its next wait.
func (h *runHandle) notifyWake() {
	select {
	case h.wake <- struct{}{}:
	default:
	}
}

// runRegistry tracks live runs so a campaign pause can cancel them and
// inbound events can wake them.
type runRegistry struct {
	mu   sync.Mutex
	runs map[string]*runHandle // run key → handle
}

func newRunRegistry() *runRegistry {
	return &runRegistry{runs: make(map[string]*runHandle)}
}

// add registers a run, cancelling any stale handle under the same key.
func (r *runRegistry) add(campaignID, contactID string, cancel context.CancelFunc) *runHandle {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := models.RunKey(campaignID, contactID)

	if stale, ok := r.runs[key]; ok {
		stale.cancel()
	}

	handle := &runHandle{
		campaignID: campaignID,
		contactID:  contactID,
		cancel:     cancel,
		wake:       make(chan struct{}, 1),
	}
	r.runs[key] = handle

	return handle
}

// remove retires the handle. A relaunch may have replaced the map entry
// already, so only the currently registered handle is deleted; a stale
// goroutine retiring late must not evict its successor.
func (r *runRegistry) remove(handle *runHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := models.RunKey(handle.campaignID, handle.contactID)
	if r.runs[key] == handle {
		delete(r.runs, key)
	}
}

// wake signals the run for (campaignID, contactID). When contactID is empty
// the listener only knew the raw sender identifier, so every run in the
// campaign is woken; they each re-check the store and go back to sleep if the
// reply was not theirs.
func (r *runRegistry) wake(campaignID, contactID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if contactID != "" {
		if handle, ok := r.runs[models.RunKey(campaignID, contactID)]; ok {
			handle.notifyWake()
		}

		return
	}

	for _, handle := range r.runs {
		if handle.campaignID == campaignID {
			handle.notifyWake()
		}
	}
}

// cancelCampaign cancels every live run of the campaign and returns how many
// were signalled.
func (r *runRegistry) cancelCampaign(campaignID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cancelled := 0

	for _, handle := range r.runs {
		if handle.campaignID == campaignID {
			handle.cancel()
			cancelled++
		}
	}

	return cancelled
}

// cancelAll cancels every live run across campaigns.
func (r *runRegistry) cancelAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, handle := range r.runs {
		handle.cancel()
	}
}

// activeCount returns the number of live runs, optionally scoped to one
// campaign.
func (r *runRegistry) activeCount(campaignID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if campaignID == "" {
		return len(r.runs)
	}

	count := 0

	for _, handle := range r.runs {
		if handle.campaignID == campaignID {
			count++
		}
	}

	return count
}
