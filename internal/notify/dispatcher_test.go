package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/equiloan-api/internal/models"
	"github.com/noah-isme/equiloan-api/pkg/jobs"
)

type channelStub struct {
	name     string
	failures int

	mu       sync.Mutex
	attempts int
	sent     []Message
}

func (c *channelStub) Name() string { return c.name }

func (c *channelStub) Send(ctx context.Context, msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts++
	if c.failures > 0 {
		c.failures--
		return errors.New("transient delivery failure")
	}
	c.sent = append(c.sent, msg)
	return nil
}

func (c *channelStub) delivered() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.sent))
	copy(out, c.sent)
	return out
}

type metricsStub struct {
	mu      sync.Mutex
	ok      int
	failed  int
	channel string
}

func (m *metricsStub) RecordNotification(channel string, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channel = channel
	if ok {
		m.ok++
	} else {
		m.failed++
	}
}

func startDispatcher(t *testing.T, channels []Channel, metrics deliveryMetrics) *Dispatcher {
	t.Helper()
	d := NewDispatcher(Config{
		FormBaseURL: "https://loans.campus.example/response-forms",
		SlipBaseURL: "https://loans.campus.example/api/v1/slips",
	}, channels, metrics, nil, jobs.QueueConfig{Workers: 1, MaxRetries: 3, RetryDelay: 5 * time.Millisecond})
	d.Start(context.Background())
	t.Cleanup(d.Stop)
	return d
}

func TestDispatcherSendsFormLinkPerToken(t *testing.T) {
	email := &channelStub{name: ChannelEmail}
	d := startDispatcher(t, []Channel{email}, nil)

	request := &models.Request{ID: "req-1"}
	tokens := []models.ResponseToken{
		{RequestID: "req-1", BuildingID: "bld-a", Secret: "secret-a", ExpiresAt: time.Date(2026, 3, 6, 0, 0, 0, 0, time.UTC)},
		{RequestID: "req-1", BuildingID: "bld-b", Secret: "secret-b", ExpiresAt: time.Date(2026, 3, 6, 0, 0, 0, 0, time.UTC)},
	}
	buildings := map[string]models.Building{
		"bld-a": {ID: "bld-a", Name: "North Hall", ContactEmail: "north@campus.example"},
		"bld-b": {ID: "bld-b", Name: "South Hall", ContactEmail: "south@campus.example"},
	}
	d.RequestApproved(request, tokens, buildings)

	require.Eventually(t, func() bool { return len(email.delivered()) == 2 }, time.Second, 5*time.Millisecond)
	sent := email.delivered()
	bodies := sent[0].Body + sent[1].Body
	assert.Contains(t, bodies, "https://loans.campus.example/response-forms/secret-a")
	assert.Contains(t, bodies, "https://loans.campus.example/response-forms/secret-b")
	assert.Equal(t, EventRequestApproved, sent[0].Event)
}

func TestDispatcherRetriesFailedDelivery(t *testing.T) {
	email := &channelStub{name: ChannelEmail, failures: 1}
	metrics := &metricsStub{}
	d := startDispatcher(t, []Channel{email}, metrics)

	d.RequestRejected(&models.Request{ID: "req-1"}, &models.User{Email: "dana@campus.example", FullName: "Dana Lee"}, "venue conflict")

	require.Eventually(t, func() bool { return len(email.delivered()) == 1 }, time.Second, 5*time.Millisecond)
	email.mu.Lock()
	attempts := email.attempts
	email.mu.Unlock()
	assert.Equal(t, 2, attempts)

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	assert.Equal(t, 1, metrics.failed)
	assert.Equal(t, 1, metrics.ok)
	assert.Equal(t, ChannelEmail, metrics.channel)
}

func TestDispatcherSkipsChannelsWithoutAddress(t *testing.T) {
	email := &channelStub{name: ChannelEmail}
	line := &channelStub{name: ChannelLine}
	d := startDispatcher(t, []Channel{email, line}, nil)

	// The building has no LINE account, so only e-mail carries the message.
	d.RequestApproved(&models.Request{ID: "req-1"},
		[]models.ResponseToken{{RequestID: "req-1", BuildingID: "bld-a", Secret: "secret-a"}},
		map[string]models.Building{"bld-a": {ID: "bld-a", Name: "North Hall", ContactEmail: "north@campus.example"}})

	require.Eventually(t, func() bool { return len(email.delivered()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, line.delivered())
}

func TestDispatcherCompletionCarriesSlipLink(t *testing.T) {
	email := &channelStub{name: ChannelEmail}
	d := startDispatcher(t, []Channel{email}, nil)

	d.RequestCompleted(&models.Request{ID: "req-1"},
		&models.User{Email: "dana@campus.example", FullName: "Dana Lee"}, "slip-token-xyz")

	require.Eventually(t, func() bool { return len(email.delivered()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Contains(t, email.delivered()[0].Body, "https://loans.campus.example/api/v1/slips/slip-token-xyz")
}

func TestDispatcherNoRecipientIsDropped(t *testing.T) {
	email := &channelStub{name: ChannelEmail}
	d := startDispatcher(t, []Channel{email}, nil)

	d.RequestCompleted(&models.Request{ID: "req-1"}, nil, "slip-token")
	d.RequestExpired(&models.Request{ID: "req-1"}, nil)

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, email.delivered())
}
