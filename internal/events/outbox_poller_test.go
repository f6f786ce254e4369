package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"lab-booking/internal/core"
	"lab-booking/internal/storage/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type MockPublisher struct {
	Published  [][]core.OutboxEvent
	PublishErr error
	Closed     bool
}

func (m *MockPublisher) Publish(_ context.Context, events []core.OutboxEvent) error {
	if m.PublishErr != nil {
		return m.PublishErr
	}
	m.Published = append(m.Published, events)
	return nil
}

func (m *MockPublisher) Close() error {
	m.Closed = true
	return nil
}

type failingRepo struct {
	events  []core.OutboxEvent
	markErr error
	listErr error
}

func (r *failingRepo) UnpublishedEvents(context.Context, int) ([]core.OutboxEvent, error) {
	return r.events, r.listErr
}

func (r *failingRepo) MarkPublished(context.Context, []int64, time.Time) error {
	return r.markErr
}

func seedEvents(t *testing.T, store *memory.Store, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		err := store.EnqueueEvent(context.Background(), &core.OutboxEvent{
			TenantID:    1,
			EventType:   core.EventReservationConfirmed,
			AggregateID: "group-a",
			Payload:     []byte(`{"booking_group_id":"group-a"}`),
			CreatedAt:   time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC),
		})
		require.NoError(t, err)
	}
}

func TestProcessOnce_PublishesAndMarks(t *testing.T) {
	store := memory.New()
	seedEvents(t, store, 3)
	pub := &MockPublisher{}
	poller := NewOutboxPoller(store, pub, time.Second, zaptest.NewLogger(t))

	assert.Equal(t, 3, poller.ProcessOnce(context.Background()))
	require.Len(t, pub.Published, 1)
	assert.Len(t, pub.Published[0], 3)

	for _, e := range store.Events() {
		assert.NotNil(t, e.PublishedAt)
	}
	assert.Equal(t, 0, poller.ProcessOnce(context.Background()), "nothing left to publish")
	assert.Len(t, pub.Published, 1)
}

func TestProcessOnce_BatchLimit(t *testing.T) {
	store := memory.New()
	seedEvents(t, store, 5)
	pub := &MockPublisher{}
	poller := NewOutboxPoller(store, pub, time.Second, zaptest.NewLogger(t))
	poller.batch = 2

	assert.Equal(t, 2, poller.ProcessOnce(context.Background()))
	assert.Equal(t, 2, poller.ProcessOnce(context.Background()))
	assert.Equal(t, 1, poller.ProcessOnce(context.Background()))
	assert.Equal(t, 0, poller.ProcessOnce(context.Background()))
}

func TestProcessOnce_PublishFailureKeepsEvents(t *testing.T) {
	store := memory.New()
	seedEvents(t, store, 2)
	pub := &MockPublisher{PublishErr: errors.New("broker unreachable")}
	poller := NewOutboxPoller(store, pub, time.Second, zaptest.NewLogger(t))

	assert.Equal(t, 0, poller.ProcessOnce(context.Background()))
	for _, e := range store.Events() {
		assert.Nil(t, e.PublishedAt)
	}

	pub.PublishErr = nil
	assert.Equal(t, 2, poller.ProcessOnce(context.Background()), "retried on the next tick")
}

func TestProcessOnce_RepoFailures(t *testing.T) {
	pub := &MockPublisher{}

	listFail := NewOutboxPoller(&failingRepo{listErr: errors.New("timeout")}, pub, time.Second, zaptest.NewLogger(t))
	assert.Equal(t, 0, listFail.ProcessOnce(context.Background()))
	assert.Empty(t, pub.Published)

	markFail := NewOutboxPoller(&failingRepo{
		events:  []core.OutboxEvent{{ID: 1, AggregateID: "g"}},
		markErr: errors.New("timeout"),
	}, pub, time.Second, zaptest.NewLogger(t))
	assert.Equal(t, 0, markFail.ProcessOnce(context.Background()))
	assert.Len(t, pub.Published, 1)
}

func TestRun_StopsOnCancel(t *testing.T) {
	store := memory.New()
	seedEvents(t, store, 1)
	pub := &MockPublisher{}
	poller := NewOutboxPoller(store, pub, 10*time.Millisecond, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		poller.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return store.Events()[0].PublishedAt != nil
	}, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop")
	}
}

func TestNewOutboxPoller_NonPositiveTick(t *testing.T) {
	poller := NewOutboxPoller(memory.New(), &MockPublisher{}, 0, zaptest.NewLogger(t))
	assert.Equal(t, defaultTick, poller.tick)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NotPanics(t, func() { poller.Run(ctx) })
}

func TestToMessage(t *testing.T) {
	e := core.OutboxEvent{
		ID:          9,
		EventType:   core.EventReservationCancelled,
		AggregateID: "group-b",
		Payload:     []byte(`{}`),
		CreatedAt:   time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	}
	msg := toMessage(e)

	assert.Equal(t, []byte("group-b"), msg.Key)
	assert.Equal(t, []byte(`{}`), msg.Value)
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "event_type", msg.Headers[0].Key)
	assert.Equal(t, []byte(core.EventReservationCancelled), msg.Headers[0].Value)
	assert.Equal(t, e.CreatedAt, msg.Time)
}
