package ingress_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/jmharper/taskhub/internal/app/ingress"
	"github.com/jmharper/taskhub/internal/app/realtime/delivery"
	"github.com/jmharper/taskhub/internal/domain/models"
)

// fakeSource serves a fixed set of events once, then blocks until the
// consumer stops. It records acks.
type fakeSource struct {
	mu      sync.Mutex
	pending []ingress.Event
	acked   map[string]int
	pullErr error
}

func newFakeSource(events ...ingress.Event) *fakeSource {
	return &fakeSource{pending: events, acked: map[string]int{}}
}

func (s *fakeSource) Pull(ctx context.Context, max int) ([]ingress.Event, error) {
	s.mu.Lock()
	if s.pullErr != nil {
		err := s.pullErr
		s.pullErr = nil
		s.mu.Unlock()
		return nil, err
	}
	n := len(s.pending)
	if n == 0 {
		s.mu.Unlock()
		// Empty queue: block like the Redis source does.
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(10 * time.Millisecond):
			return nil, nil
		}
	}
	if n > max {
		n = max
	}
	batch := s.pending[:n]
	s.pending = s.pending[n:]
	s.mu.Unlock()
	return batch, nil
}

func (s *fakeSource) Ack(_ context.Context, ids ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.acked[id]++
	}
	return nil
}

func (s *fakeSource) ackCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.acked)
}

// fakeDispatcher records dispatches and can fail per user, optionally only
// a limited number of times (to exercise retry).
type fakeDispatcher struct {
	mu         sync.Mutex
	dispatched []string // user ids in completion order
	inFlight   int
	maxSeen    int
	failFor    map[string]int // user id -> remaining failures
	hold       time.Duration
}

func (d *fakeDispatcher) DispatchNotification(ctx context.Context, userID, title, message string, typ models.NotificationType, relatedEntityID string) (models.Notification, error) {
	d.mu.Lock()
	d.inFlight++
	if d.inFlight > d.maxSeen {
		d.maxSeen = d.inFlight
	}
	remaining := d.failFor[userID]
	if remaining > 0 {
		d.failFor[userID] = remaining - 1
	}
	hold := d.hold
	d.mu.Unlock()

	if hold > 0 {
		time.Sleep(hold)
	}

	d.mu.Lock()
	d.inFlight--
	d.mu.Unlock()

	if !models.IsValidNotificationType(typ) {
		return models.Notification{}, fmt.Errorf("%w: bad type", delivery.ErrInvalidInput)
	}
	if remaining > 0 {
		return models.Notification{}, fmt.Errorf("%w: injected", delivery.ErrStorage)
	}

	d.mu.Lock()
	d.dispatched = append(d.dispatched, userID)
	d.mu.Unlock()
	return models.Notification{ID: primitive.NewObjectID()}, nil
}

func (d *fakeDispatcher) dispatchedCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.dispatched)
}

func event(user string) ingress.Event {
	return ingress.Event{
		ID:     primitive.NewObjectID().Hex(),
		UserID: user,
		Title:  "Task assigned",
		Type:   models.NotifyTaskAssigned,
	}
}

func runConsumer(t *testing.T, src ingress.Source, disp ingress.Dispatcher, cfg ingress.Config, until func() bool) {
	t.Helper()
	c := ingress.NewConsumer(src, disp, cfg, zap.NewNop())
	c.Start()
	defer c.Stop()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if until() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("consumer did not reach expected state in time")
}

func TestConsumer_DispatchesAndAcksEveryEvent(t *testing.T) {
	src := newFakeSource(event("u1"), event("u2"), event("u3"))
	disp := &fakeDispatcher{failFor: map[string]int{}}

	runConsumer(t, src, disp, ingress.Config{BatchSize: 3, Concurrency: 2}, func() bool {
		return disp.dispatchedCount() == 3 && src.ackCount() == 3
	})
}

func TestConsumer_ConcurrencyBounded(t *testing.T) {
	src := newFakeSource(event("u1"), event("u2"), event("u3"), event("u4"), event("u5"))
	disp := &fakeDispatcher{failFor: map[string]int{}, hold: 20 * time.Millisecond}

	runConsumer(t, src, disp, ingress.Config{BatchSize: 5, Concurrency: 2}, func() bool {
		return disp.dispatchedCount() == 5
	})

	disp.mu.Lock()
	maxSeen := disp.maxSeen
	disp.mu.Unlock()
	if maxSeen > 2 {
		t.Errorf("in-flight dispatches: saw %d, limit 2", maxSeen)
	}
	// Completion order is unspecified and may interleave, including between
	// two events for the same user; the only invariant is that all five
	// completed.
}

func TestConsumer_SameUserEventsInOneBatchBothDispatched(t *testing.T) {
	// Two events for one user pulled in a single batch with concurrency 2
	// run in parallel: their completion order may interleave, but both must
	// be dispatched and acked.
	src := newFakeSource(event("u1"), event("u1"))
	disp := &fakeDispatcher{failFor: map[string]int{}, hold: 10 * time.Millisecond}

	runConsumer(t, src, disp, ingress.Config{BatchSize: 2, Concurrency: 2}, func() bool {
		return disp.dispatchedCount() == 2 && src.ackCount() == 2
	})

	disp.mu.Lock()
	defer disp.mu.Unlock()
	for _, user := range disp.dispatched {
		if user != "u1" {
			t.Errorf("dispatched for %q, want only u1", user)
		}
	}
}

func TestConsumer_OneFailureDoesNotAbortSiblings(t *testing.T) {
	bad := event("broken")
	bad.Type = models.NotificationType("not-a-real-type") // terminal validation failure
	src := newFakeSource(event("u1"), bad, event("u2"))
	disp := &fakeDispatcher{failFor: map[string]int{}}

	runConsumer(t, src, disp, ingress.Config{BatchSize: 3, Concurrency: 3}, func() bool {
		// Siblings dispatched; all three acked, including the terminal one.
		return disp.dispatchedCount() == 2 && src.ackCount() == 3
	})
}

func TestConsumer_TransientFailureRetriedThenSucceeds(t *testing.T) {
	src := newFakeSource(event("flaky"))
	disp := &fakeDispatcher{failFor: map[string]int{"flaky": 2}}

	runConsumer(t, src, disp,
		ingress.Config{BatchSize: 1, Concurrency: 1, MaxRetries: 3, RetryDelay: time.Millisecond},
		func() bool { return disp.dispatchedCount() == 1 && src.ackCount() == 1 })
}

func TestConsumer_RetryBudgetExhaustedIsTerminalAndAcked(t *testing.T) {
	src := newFakeSource(event("always-broken"))
	disp := &fakeDispatcher{failFor: map[string]int{"always-broken": 100}}

	runConsumer(t, src, disp,
		ingress.Config{BatchSize: 1, Concurrency: 1, MaxRetries: 2, RetryDelay: time.Millisecond},
		func() bool { return src.ackCount() == 1 })

	if disp.dispatchedCount() != 0 {
		t.Error("exhausted event must not count as dispatched")
	}
}

func TestConsumer_PullErrorRetriedNotFatal(t *testing.T) {
	src := newFakeSource(event("u1"))
	src.pullErr = errors.New("connection reset")
	disp := &fakeDispatcher{failFor: map[string]int{}}

	runConsumer(t, src, disp,
		ingress.Config{BatchSize: 1, Concurrency: 1, RetryDelay: time.Millisecond},
		func() bool { return disp.dispatchedCount() == 1 })
}
