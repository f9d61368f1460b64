package worker

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/notewell/notewell/internal/models"
	"github.com/notewell/notewell/internal/services"
	"github.com/stripe/stripe-go/v79"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Job is one accepted webhook delivery handed off by the HTTP handler after
// it has already acknowledged receipt to the provider.
type Job struct {
	Event          *stripe.Event
	SignatureValid bool
}

// Queue decouples webhook acknowledgment from reconciliation work. The
// handler responds to the provider immediately and enqueues; a single
// goroutine drains the channel, records an audit row per event, and runs the
// reconciler. Failures are logged and not retried; the provider's redelivery
// is the healing mechanism.
type Queue struct {
	db            *gorm.DB
	subscriptions *services.SubscriptionService
	jobs          chan Job
	wg            sync.WaitGroup
}

func NewQueue(db *gorm.DB, subscriptions *services.SubscriptionService, buffer int) *Queue {
	if buffer <= 0 {
		buffer = 64
	}
	return &Queue{
		db:            db,
		subscriptions: subscriptions,
		jobs:          make(chan Job, buffer),
	}
}

func (q *Queue) Start() {
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		for job := range q.jobs {
			q.process(job)
		}
	}()
}

// Enqueue hands a job to the worker without blocking the request path and
// reports whether it was accepted. A full queue refuses the job; the webhook
// handler turns that into a retryable response for the provider.
func (q *Queue) Enqueue(job Job) bool {
	select {
	case q.jobs <- job:
		return true
	default:
		slog.Error("webhook queue full, dropping event",
			"event_id", job.Event.ID, "event_type", job.Event.Type)
		return false
	}
}

// Stop closes intake and drains everything already queued.
func (q *Queue) Stop() {
	close(q.jobs)
	q.wg.Wait()
}

func (q *Queue) process(job Job) {
	event := job.Event

	// Unverified deliveries may arrive without a data envelope.
	var payload datatypes.JSON
	if event.Data != nil {
		payload = datatypes.JSON(event.Data.Raw)
	}

	record := models.WebhookEvent{
		ID:              uuid.New(),
		Provider:        "stripe",
		ProviderEventID: event.ID,
		EventType:       string(event.Type),
		Payload:         payload,
		SignatureValid:  job.SignatureValid,
	}
	if err := q.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider_event_id"}},
		DoNothing: true,
	}).Create(&record).Error; err != nil {
		slog.Error("failed to record webhook event", "event_id", event.ID, "error", err)
	}

	if err := q.subscriptions.ApplyEvent(event); err != nil {
		slog.Error("webhook reconciliation failed",
			"event_id", event.ID, "event_type", event.Type, "error", err)
		if uerr := q.db.Model(&models.WebhookEvent{}).
			Where("provider_event_id = ?", event.ID).
			Update("processing_error", err.Error()).Error; uerr != nil {
			slog.Error("failed to record processing error", "event_id", event.ID, "error", uerr)
		}
		return
	}

	now := time.Now().UTC()
	if err := q.db.Model(&models.WebhookEvent{}).
		Where("provider_event_id = ?", event.ID).
		Update("processed_at", now).Error; err != nil {
		slog.Error("failed to mark webhook processed", "event_id", event.ID, "error", err)
	}

	slog.Info("webhook processed", "event_id", event.ID, "event_type", event.Type)
}
