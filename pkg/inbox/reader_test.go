package inbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vantagecrm/cadence/pkg/log"
	"github.com/vantagecrm/cadence/pkg/models"
	"github.com/vantagecrm/cadence/pkg/persistence"
	"github.com/vantagecrm/cadence/pkg/persistence/file"
)

func newReaderFixture(t *testing.T) (*Reader, persistence.InboundRepository, *clockwork.FakeClock) {
	t.Helper()

	log.Setup("error", "text")

	inbound := file.NewInboundRepository(t.TempDir())
	clock := clockwork.NewFakeClock()
	reader := NewReader(inbound, clock, log.WithModule("test"))

	return reader, inbound, clock
}

func TestReaderMatchesByContactAndCampaign(t *testing.T) {
	reader, inbound, clock := newReaderFixture(t)

	executedAt := clock.Now().UTC()

	require.NoError(t, inbound.InsertInbound(context.Background(), &models.InboundMessage{
		Platform:   models.ChannelTelegram,
		ContactID:  "contact-1",
		CampaignID: "campaign-1",
		Content:    "tell me more",
		CreatedAt:  executedAt.Add(2 * time.Minute),
	}))

	contact := &models.Contact{ID: "contact-1", TelegramUsername: "ada"}

	assert.True(t, reader.Matches(context.Background(), "campaign-1", "contact-1", models.ChannelTelegram, executedAt, contact))
	assert.False(t, reader.Matches(context.Background(), "campaign-2", "contact-1", models.ChannelTelegram, executedAt, contact),
		"a reply assigned to another campaign must not match")
}

func TestReaderMatchesUnassignedMessage(t *testing.T) {
	reader, inbound, clock := newReaderFixture(t)

	executedAt := clock.Now().UTC()

	// The listener stored the reply without resolving the owning campaign.
	require.NoError(t, inbound.InsertInbound(context.Background(), &models.InboundMessage{
		Platform:  models.ChannelWhatsApp,
		ContactID: "contact-1",
		Content:   "yes please",
		CreatedAt: executedAt.Add(time.Minute),
	}))

	contact := &models.Contact{ID: "contact-1", WhatsAppNumber: "+15550001111"}

	assert.True(t, reader.Matches(context.Background(), "campaign-1", "contact-1", models.ChannelWhatsApp, executedAt, contact))
}

func TestReaderMatchesByRawIdentifier(t *testing.T) {
	reader, inbound, clock := newReaderFixture(t)

	executedAt := clock.Now().UTC()

	// The listener only knew the sender's handle, not the contact id.
	require.NoError(t, inbound.InsertInbound(context.Background(), &models.InboundMessage{
		Platform:   models.ChannelTelegram,
		Identifier: "ada",
		CampaignID: "campaign-1",
		Content:    "who is this",
		CreatedAt:  executedAt.Add(time.Minute),
	}))

	contact := &models.Contact{ID: "contact-1", TelegramUsername: "ada"}

	assert.True(t, reader.Matches(context.Background(), "campaign-1", "contact-1", models.ChannelTelegram, executedAt, contact))

	stranger := &models.Contact{ID: "contact-2", TelegramUsername: "grace"}
	assert.False(t, reader.Matches(context.Background(), "campaign-1", "contact-2", models.ChannelTelegram, executedAt, stranger))
}

func TestReaderIgnoresRepliesOutsideWindow(t *testing.T) {
	reader, inbound, clock := newReaderFixture(t)

	executedAt := clock.Now().UTC()

	for _, offset := range []time.Duration{-6 * time.Minute, 6 * time.Minute} {
		require.NoError(t, inbound.InsertInbound(context.Background(), &models.InboundMessage{
			Platform:   models.ChannelTelegram,
			ContactID:  "contact-1",
			CampaignID: "campaign-1",
			CreatedAt:  executedAt.Add(offset),
		}))
	}

	contact := &models.Contact{ID: "contact-1", TelegramUsername: "ada"}

	assert.False(t, reader.Matches(context.Background(), "campaign-1", "contact-1", models.ChannelTelegram, executedAt, contact))
}

func TestReaderIgnoresOtherChannels(t *testing.T) {
	reader, inbound, clock := newReaderFixture(t)

	executedAt := clock.Now().UTC()

	require.NoError(t, inbound.InsertInbound(context.Background(), &models.InboundMessage{
		Platform:   models.ChannelWhatsApp,
		ContactID:  "contact-1",
		CampaignID: "campaign-1",
		CreatedAt:  executedAt.Add(time.Minute),
	}))

	contact := &models.Contact{ID: "contact-1", TelegramUsername: "ada", WhatsAppNumber: "+15550001111"}

	assert.False(t, reader.Matches(context.Background(), "campaign-1", "contact-1", models.ChannelTelegram, executedAt, contact))
}

type failingInboundRepository struct {
	mu    sync.Mutex
	calls int
}

func (r *failingInboundRepository) QueryInbound(context.Context, persistence.InboundFilter) ([]*models.InboundMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls++

	return nil, errors.New("store unavailable")
}

func (r *failingInboundRepository) InsertInbound(context.Context, *models.InboundMessage) error {
	return errors.New("store unavailable")
}

func (r *failingInboundRepository) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.calls
}

func TestReaderStoreFailureDegradesToNoResponse(t *testing.T) {
	log.Setup("error", "text")

	inbound := &failingInboundRepository{}
	clock := clockwork.NewFakeClock()
	reader := NewReader(inbound, clock, log.WithModule("test"))

	// No telegram handle on the contact, so only the two contact-id filters
	// run: three attempts each with a backoff wait between attempts.
	contact := &models.Contact{ID: "contact-1"}

	result := make(chan bool, 1)

	go func() {
		result <- reader.Matches(context.Background(), "campaign-1", "contact-1", models.ChannelTelegram, clock.Now().UTC(), contact)
	}()

	for i := 0; i < 4; i++ {
		blockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		require.NoError(t, clock.BlockUntilContext(blockCtx, 1))
		cancel()

		clock.Advance(2 * time.Second)
	}

	select {
	case matched := <-result:
		assert.False(t, matched)
	case <-time.After(5 * time.Second):
		t.Fatal("reader did not return after exhausting retries")
	}

	assert.Equal(t, 6, inbound.callCount())
}

type fakeMailbox struct {
	messages []MailMessage
	err      error
}

func (m *fakeMailbox) FetchSince(context.Context, string, time.Time) ([]MailMessage, error) {
	if m.err != nil {
		return nil, m.err
	}

	return m.messages, nil
}

func TestPollerStoresMailboxReplies(t *testing.T) {
	log.Setup("error", "text")

	inbound := file.NewInboundRepository(t.TempDir())
	receivedAt := time.Now().UTC()

	mailbox := &fakeMailbox{messages: []MailMessage{
		{From: "ada@example.com", Subject: "Re: intro", Body: "happy to chat", ReceivedAt: receivedAt},
	}}

	poller := NewPoller(mailbox, inbound, log.WithModule("test"))

	contact := &models.Contact{ID: "contact-1", Email: "ada@example.com"}

	require.NoError(t, poller.Poll(context.Background(), "campaign-1", contact, receivedAt.Add(-time.Minute)))

	stored, err := inbound.QueryInbound(context.Background(), persistence.InboundFilter{
		Platform:   models.ChannelEmail,
		ContactID:  "contact-1",
		CampaignID: "campaign-1",
	})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "happy to chat", stored[0].Content)
	assert.Equal(t, "ada@example.com", stored[0].Identifier)
}

func TestPollerSkipsContactsWithoutEmail(t *testing.T) {
	log.Setup("error", "text")

	mailbox := &fakeMailbox{err: errors.New("should not be called")}
	poller := NewPoller(mailbox, file.NewInboundRepository(t.TempDir()), log.WithModule("test"))

	assert.NoError(t, poller.Poll(context.Background(), "campaign-1", &models.Contact{ID: "contact-1"}, time.Now()))
}
