package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistryRelaunchCancelsStaleHandle(t *testing.T) {
	registry := newRunRegistry()

	var firstCancelled, secondCancelled bool

	first := registry.add("campaign-1", "contact-1", func() { firstCancelled = true })
	second := registry.add("campaign-1", "contact-1", func() { secondCancelled = true })

	assert.True(t, firstCancelled, "relaunching the same run must cancel the stale handle")
	assert.False(t, secondCancelled)
	assert.Equal(t, 1, registry.activeCount("campaign-1"))

	// The stale goroutine retires after the relaunch; the live run must stay
	// reachable for pauses and wakes.
	registry.remove(first)

	assert.Equal(t, 1, registry.activeCount("campaign-1"))
	assert.Equal(t, 1, registry.cancelCampaign("campaign-1"))
	assert.True(t, secondCancelled)

	registry.remove(second)
	assert.Zero(t, registry.activeCount(""))
}

func TestRegistryWakeByContactAndByCampaign(t *testing.T) {
	registry := newRunRegistry()

	a := registry.add("campaign-1", "contact-1", func() {})
	b := registry.add("campaign-1", "contact-2", func() {})
	other := registry.add("campaign-2", "contact-3", func() {})

	registry.wake("campaign-1", "contact-1")

	assert.Len(t, a.wake, 1)
	assert.Empty(t, b.wake)

	// An identifier-only inbound event carries no contact id; the whole
	// campaign is woken and each run re-checks the store itself.
	registry.wake("campaign-1", "")

	assert.Len(t, a.wake, 1, "the wake signal is level-triggered, not counted")
	assert.Len(t, b.wake, 1)
	assert.Empty(t, other.wake)
}
