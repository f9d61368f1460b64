package worker

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/notewell/notewell/internal/billing"
	"github.com/notewell/notewell/internal/models"
	"github.com/notewell/notewell/internal/plans"
	"github.com/notewell/notewell/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type stubProvider struct {
	info        *billing.SubscriptionInfo
	retrieveErr error
}

func (s *stubProvider) CreateCustomer(email, name, userID string) (string, error) {
	return "cus_stub", nil
}

func (s *stubProvider) RetrieveSubscription(id string) (*billing.SubscriptionInfo, error) {
	if s.retrieveErr != nil {
		return nil, s.retrieveErr
	}
	return s.info, nil
}

func (s *stubProvider) CancelSubscription(id string) error { return nil }

func (s *stubProvider) NewCheckoutSession(p billing.CheckoutParams) (*billing.CheckoutSession, error) {
	return nil, errors.New("not implemented")
}

func (s *stubProvider) NewPortalSession(customerID, returnURL string) (string, error) {
	return "", errors.New("not implemented")
}

func newTestQueue(t *testing.T, provider billing.Provider) (*Queue, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.Subscription{}, &models.WebhookEvent{}))

	return NewQueue(db, services.NewSubscriptionService(db, provider), 8), db
}

func checkoutJob(eventID string, userID uuid.UUID) Job {
	payload := fmt.Sprintf(
		`{"id":"cs_1","customer":"cus_1","subscription":"sub_1","metadata":{"userId":%q,"planId":"pro"}}`,
		userID.String(),
	)
	return Job{
		Event: &stripe.Event{
			ID:   eventID,
			Type: "checkout.session.completed",
			Data: &stripe.EventData{Raw: json.RawMessage(payload)},
		},
		SignatureValid: true,
	}
}

func TestQueueProcessesAndAudits(t *testing.T) {
	provider := &stubProvider{info: &billing.SubscriptionInfo{
		ID:               "sub_1",
		CustomerID:       "cus_1",
		Status:           models.SubscriptionStatusActive,
		PlanID:           plans.PlanPro,
		CurrentPeriodEnd: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}}
	q, db := newTestQueue(t, provider)

	userID := uuid.New()
	q.Start()
	assert.True(t, q.Enqueue(checkoutJob("evt_1", userID)))
	q.Stop()

	var record models.WebhookEvent
	require.NoError(t, db.First(&record, "provider_event_id = ?", "evt_1").Error)
	assert.Equal(t, "stripe", record.Provider)
	assert.Equal(t, "checkout.session.completed", record.EventType)
	assert.True(t, record.SignatureValid)
	assert.NotNil(t, record.ProcessedAt)
	assert.Empty(t, record.ProcessingError)

	var sub models.Subscription
	require.NoError(t, db.First(&sub, "user_id = ?", userID).Error)
	assert.Equal(t, plans.PlanPro, sub.Plan)
}

func TestQueueRecordsProcessingError(t *testing.T) {
	provider := &stubProvider{retrieveErr: errors.New("stripe unavailable")}
	q, db := newTestQueue(t, provider)

	q.Start()
	q.Enqueue(checkoutJob("evt_err", uuid.New()))
	q.Stop()

	var record models.WebhookEvent
	require.NoError(t, db.First(&record, "provider_event_id = ?", "evt_err").Error)
	assert.Nil(t, record.ProcessedAt)
	assert.Contains(t, record.ProcessingError, "stripe unavailable")

	var count int64
	require.NoError(t, db.Model(&models.Subscription{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestQueueReplayKeepsSingleAuditRow(t *testing.T) {
	provider := &stubProvider{info: &billing.SubscriptionInfo{
		ID:               "sub_1",
		CustomerID:       "cus_1",
		Status:           models.SubscriptionStatusActive,
		PlanID:           plans.PlanPro,
		CurrentPeriodEnd: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}}
	q, db := newTestQueue(t, provider)

	job := checkoutJob("evt_dup", uuid.New())
	q.Start()
	q.Enqueue(job)
	q.Enqueue(job)
	q.Stop()

	var count int64
	require.NoError(t, db.Model(&models.WebhookEvent{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestQueueSurvivesEventWithoutPayload(t *testing.T) {
	provider := &stubProvider{info: &billing.SubscriptionInfo{
		ID:               "sub_1",
		CustomerID:       "cus_1",
		Status:           models.SubscriptionStatusActive,
		PlanID:           plans.PlanPro,
		CurrentPeriodEnd: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}}
	q, db := newTestQueue(t, provider)

	// Unverified development-mode deliveries are arbitrary JSON, so an event
	// can arrive with no data envelope at all.
	q.Start()
	q.Enqueue(Job{Event: &stripe.Event{ID: "evt_nodata", Type: "checkout.session.completed"}})
	q.Enqueue(checkoutJob("evt_after", uuid.New()))
	q.Stop()

	var record models.WebhookEvent
	require.NoError(t, db.First(&record, "provider_event_id = ?", "evt_nodata").Error)
	assert.Nil(t, record.ProcessedAt)
	assert.Contains(t, record.ProcessingError, "no data payload")

	// The worker goroutine is still alive and processed the next event.
	var after models.WebhookEvent
	require.NoError(t, db.First(&after, "provider_event_id = ?", "evt_after").Error)
	assert.NotNil(t, after.ProcessedAt)
	assert.Empty(t, after.ProcessingError)
}

func TestQueueStopDrainsBacklog(t *testing.T) {
	provider := &stubProvider{info: &billing.SubscriptionInfo{
		ID:               "sub_1",
		CustomerID:       "cus_1",
		Status:           models.SubscriptionStatusActive,
		PlanID:           plans.PlanPro,
		CurrentPeriodEnd: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}}
	q, db := newTestQueue(t, provider)

	// Enqueue before the worker starts so everything sits in the buffer.
	for i := 0; i < 5; i++ {
		require.True(t, q.Enqueue(checkoutJob(fmt.Sprintf("evt_%d", i), uuid.New())))
	}
	q.Start()
	q.Stop()

	var count int64
	require.NoError(t, db.Model(&models.WebhookEvent{}).Count(&count).Error)
	assert.Equal(t, int64(5), count)
}
