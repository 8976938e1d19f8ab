package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/noahxzhu/annual-alarm/internal/model"
	"github.com/noahxzhu/annual-alarm/internal/pushover"
	"github.com/noahxzhu/annual-alarm/internal/storage"
)

type Sender interface {
	SendMessage(ctx context.Context, title, message string) error
}

// SenderFactory builds a Sender from the current settings.
type SenderFactory func(settings model.Settings) Sender

// PushoverSenders returns a factory backed by one rate-limited client whose
// credentials follow the settings.
func PushoverSenders(ratePerSec int) SenderFactory {
	client := pushover.NewClient("", "", ratePerSec)
	return func(settings model.Settings) Sender {
		client.Token = settings.PushoverToken
		client.User = settings.PushoverUser
		return client
	}
}

// Worker delivers one push per alarm firing, retrying failed sends.
type Worker struct {
	store      storage.Store
	senders    SenderFactory
	updateChan chan struct{}
	onUpdate   func(model.Delivery) // Callback when a delivery changes

	mu      sync.Mutex
	pending []*model.Delivery
}

func NewWorker(store storage.Store, senders SenderFactory) *Worker {
	return &Worker{
		store:      store,
		senders:    senders,
		updateChan: make(chan struct{}, 1),
	}
}

// SetOnUpdate sets a callback function that will be called when a delivery is updated
func (w *Worker) SetOnUpdate(fn func(model.Delivery)) {
	w.onUpdate = fn
}

// Fire queues a push for a firing of the alarm at firedAt.
func (w *Worker) Fire(firedAt time.Time) {
	d := &model.Delivery{
		ID:      uuid.New().String(),
		FiredAt: firedAt,
		Status:  model.StatusPending,
	}
	w.mu.Lock()
	w.pending = append(w.pending, d)
	w.mu.Unlock()
	slog.Info("Delivery queued", "id", d.ID, "fired_at", firedAt)
	w.Refresh()
}

// Refresh signals the worker to re-evaluate the queue immediately
func (w *Worker) Refresh() {
	select {
	case w.updateChan <- struct{}{}:
	default:
		// Channel already has a pending signal, no need to block
	}
}

// Pending returns the number of deliveries not yet done or failed.
func (w *Worker) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

func (w *Worker) Start(ctx context.Context) {
	slog.Info("Worker started (Event-Driven)")

	timer := time.NewTimer(time.Hour) // Initial long duration
	timer.Stop()                      // Stop immediately, we'll reset it

	for {
		// 1. Process due items and calculate next run time
		nextRun := w.checkAndProcess(ctx)

		// 2. Set timer
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		if nextRun.IsZero() {
			slog.Debug("No pending deliveries. Worker idle.")
		} else {
			duration := time.Until(nextRun)
			if duration < 0 {
				duration = 0 // Run immediately
			}
			timer.Reset(duration)
			slog.Info("Next retry scheduled", "in", duration, "at", nextRun.Format("15:04:05"))
		}

		// 3. Wait for event
		select {
		case <-ctx.Done():
			slog.Info("Worker stopped")
			return
		case <-w.updateChan:
			// Continue loop -> re-check
		case <-timer.C:
			// Timer fired -> Continue loop -> re-check
		}
	}
}

// checkAndProcess sends due deliveries and returns the time of the next retry
func (w *Worker) checkAndProcess(ctx context.Context) time.Time {
	w.mu.Lock()
	queue := make([]*model.Delivery, len(w.pending))
	copy(queue, w.pending)
	w.mu.Unlock()
	if len(queue) == 0 {
		return time.Time{}
	}

	settings, err := storage.GetSettings(ctx, w.store)
	if err != nil {
		slog.Error("Failed to load settings", "error", err)
	}

	// If credentials missing, we can't send; wait for a settings update
	if settings.PushoverToken == "" || settings.PushoverUser == "" {
		slog.Warn("Pushover credentials missing, deliveries on hold", "pending", len(queue))
		return time.Time{}
	}

	retryInterval, err := time.ParseDuration(settings.RetryInterval)
	if err != nil || retryInterval <= 0 {
		retryInterval = 30 * time.Second
	}

	sender := w.senders(settings)
	now := time.Now()
	var earliestNext time.Time

	for _, d := range queue {
		nextSendTime := d.FiredAt
		if d.Attempts > 0 {
			nextSendTime = d.LastPushTime.Add(retryInterval)
		}

		if now.Before(nextSendTime) {
			if earliestNext.IsZero() || nextSendTime.Before(earliestNext) {
				earliestNext = nextSendTime
			}
			continue
		}

		d.Attempts++
		d.LastPushTime = now
		slog.Info("Sending notification", "id", d.ID, "attempt", d.Attempts, "max", settings.MaxRetries, "fired_at", d.FiredAt, "delay", now.Sub(d.FiredAt))
		if err := sender.SendMessage(ctx, settings.Title, settings.Message); err != nil {
			slog.Error("Failed to send pushover message", "id", d.ID, "error", err)
			d.LastError = err.Error()
			if d.Attempts >= settings.MaxRetries {
				d.Status = model.StatusFailed
				slog.Warn("Delivery gave up", "id", d.ID, "attempts", d.Attempts)
			} else {
				next := now.Add(retryInterval)
				if earliestNext.IsZero() || next.Before(earliestNext) {
					earliestNext = next
				}
			}
		} else {
			d.Status = model.StatusDone
			d.LastError = ""
			slog.Info("Delivery marked as Done", "id", d.ID)
		}
		w.record(ctx, *d)
	}

	w.mu.Lock()
	kept := w.pending[:0]
	for _, d := range w.pending {
		if d.Status == model.StatusPending {
			kept = append(kept, d)
		}
	}
	w.pending = kept
	w.mu.Unlock()

	return earliestNext
}

func (w *Worker) record(ctx context.Context, d model.Delivery) {
	if err := w.store.Save(ctx, storage.KeyLastDelivery, d); err != nil {
		slog.Error("Failed to save delivery", "id", d.ID, "error", err)
	}
	if w.onUpdate != nil {
		w.onUpdate(d)
	}
}
