// internal/app/system/workers/overduesweep.go
package workers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/jmharper/taskhub/internal/app/ingress"
	"github.com/jmharper/taskhub/internal/domain/models"
)

// OverdueLister yields unfinished tasks whose due date has passed.
type OverdueLister interface {
	ListOverdue(ctx context.Context, now time.Time) ([]models.Task, error)
}

// Notifier enqueues a notification request onto the delivery queue.
type Notifier interface {
	Publish(ctx context.Context, e ingress.Event) error
}

// OverdueSweep is a background worker that periodically scans for overdue
// tasks and publishes a task-overdue notification to each assignee, once
// per task while it stays overdue.
type OverdueSweep struct {
	tasks    OverdueLister
	notify   Notifier
	log      *zap.Logger
	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup

	// notified holds task ids already announced. Entries are dropped when a
	// task leaves the overdue set (finished, deleted, or due date moved), so
	// a task that becomes overdue again is announced again.
	notified map[primitive.ObjectID]struct{}
}

// NewOverdueSweep creates the worker. It does not start sweeping until
// Start is called.
func NewOverdueSweep(tasks OverdueLister, notify Notifier, logger *zap.Logger, interval time.Duration) *OverdueSweep {
	return &OverdueSweep{
		tasks:    tasks,
		notify:   notify,
		log:      logger,
		interval: interval,
		stopCh:   make(chan struct{}),
		notified: make(map[primitive.ObjectID]struct{}),
	}
}

// Start begins the background sweep loop.
func (w *OverdueSweep) Start() {
	w.wg.Add(1)
	go w.run()
	w.log.Info("overdue sweep worker started", zap.Duration("interval", w.interval))
}

// Stop signals the worker to stop and waits for an in-flight sweep to
// finish.
func (w *OverdueSweep) Stop() {
	close(w.stopCh)
	w.wg.Wait()
	w.log.Info("overdue sweep worker stopped")
}

func (w *OverdueSweep) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			w.Sweep(ctx, time.Now().UTC())
			cancel()
		}
	}
}

// Sweep runs one pass: every assigned task overdue as of now that has not
// been announced yet gets a task-overdue notification published for its
// assignee. Unassigned tasks are skipped; there is nobody to tell.
func (w *OverdueSweep) Sweep(ctx context.Context, now time.Time) {
	overdue, err := w.tasks.ListOverdue(ctx, now)
	if err != nil {
		w.log.Error("overdue sweep query failed", zap.Error(err))
		return
	}

	current := make(map[primitive.ObjectID]struct{}, len(overdue))
	announced := 0
	for _, task := range overdue {
		current[task.ID] = struct{}{}
		if task.AssigneeID == nil {
			continue
		}
		if _, done := w.notified[task.ID]; done {
			continue
		}

		err := w.notify.Publish(ctx, ingress.Event{
			UserID:          task.AssigneeID.Hex(),
			Title:           "Task overdue",
			Message:         fmt.Sprintf("%q is past its due date", task.Title),
			Type:            models.NotifyTaskOverdue,
			RelatedEntityID: task.ID.Hex(),
		})
		if err != nil {
			// Left unmarked; the next sweep retries.
			w.log.Warn("overdue notification publish failed",
				zap.String("task_id", task.ID.Hex()),
				zap.Error(err))
			continue
		}
		w.notified[task.ID] = struct{}{}
		announced++
	}

	// Forget tasks no longer overdue so re-slipping tasks announce again.
	for id := range w.notified {
		if _, still := current[id]; !still {
			delete(w.notified, id)
		}
	}

	if announced > 0 {
		w.log.Info("announced overdue tasks", zap.Int("count", announced))
	}
}
