package handlers

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/notewell/notewell/internal/billing"
	"github.com/notewell/notewell/internal/config"
	"github.com/notewell/notewell/internal/models"
	"github.com/notewell/notewell/internal/plans"
	"github.com/notewell/notewell/internal/services"
	"github.com/notewell/notewell/internal/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type stubProvider struct{}

func (stubProvider) CreateCustomer(email, name, userID string) (string, error) {
	return "cus_stub", nil
}

func (stubProvider) RetrieveSubscription(id string) (*billing.SubscriptionInfo, error) {
	return &billing.SubscriptionInfo{
		ID:               id,
		CustomerID:       "cus_1",
		Status:           models.SubscriptionStatusActive,
		PlanID:           plans.PlanPro,
		CurrentPeriodEnd: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}, nil
}

func (stubProvider) CancelSubscription(id string) error { return nil }

func (stubProvider) NewCheckoutSession(p billing.CheckoutParams) (*billing.CheckoutSession, error) {
	return nil, errors.New("not implemented")
}

func (stubProvider) NewPortalSession(customerID, returnURL string) (string, error) {
	return "", errors.New("not implemented")
}

type webhookFixture struct {
	app      *fiber.App
	queue    *worker.Queue
	db       *gorm.DB
	stopOnce sync.Once
}

// drain stops the worker so queued jobs are fully processed before asserting
// on database state. Safe to call more than once.
func (fx *webhookFixture) drain() {
	fx.stopOnce.Do(fx.queue.Stop)
}

func newWebhookFixture(t *testing.T, cfg *config.Config) *webhookFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.Subscription{}, &models.WebhookEvent{}))

	queue := worker.NewQueue(db, services.NewSubscriptionService(db, stubProvider{}), 8)
	queue.Start()

	app := fiber.New()
	app.Post("/webhooks/stripe", NewWebhookHandler(queue, cfg).HandleStripe)

	fx := &webhookFixture{app: app, queue: queue, db: db}
	t.Cleanup(fx.drain)
	return fx
}

func checkoutPayload(eventID string) []byte {
	inner := fmt.Sprintf(
		`{"id":"cs_1","customer":"cus_1","subscription":"sub_1","metadata":{"userId":%q,"planId":"pro"}}`,
		uuid.New().String(),
	)
	return []byte(fmt.Sprintf(
		`{"id":%q,"type":"checkout.session.completed","data":{"object":%s}}`,
		eventID, inner,
	))
}

// signPayload produces a Stripe-Signature header value for the payload using
// the documented t=...,v1=HMAC-SHA256(secret, "t.payload") scheme.
func signPayload(payload []byte, secret string) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func postWebhook(t *testing.T, app *fiber.App, payload []byte, signature string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set("Stripe-Signature", signature)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func TestWebhookUnverifiedModeInDevelopment(t *testing.T) {
	fx := newWebhookFixture(t, &config.Config{AppEnv: "development"})

	resp := postWebhook(t, fx.app, checkoutPayload("evt_dev"), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var ack map[string]bool
	require.NoError(t, json.Unmarshal(body, &ack))
	assert.True(t, ack["received"])

	fx.drain()

	var record models.WebhookEvent
	require.NoError(t, fx.db.First(&record, "provider_event_id = ?", "evt_dev").Error)
	assert.False(t, record.SignatureValid)
	assert.NotNil(t, record.ProcessedAt)
}

func TestWebhookRefusedInProductionWithoutSecret(t *testing.T) {
	fx := newWebhookFixture(t, &config.Config{AppEnv: "production"})

	resp := postWebhook(t, fx.app, checkoutPayload("evt_prod"), "")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	fx.drain()
	var count int64
	require.NoError(t, fx.db.Model(&models.WebhookEvent{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	fx := newWebhookFixture(t, &config.Config{
		AppEnv:              "development",
		StripeWebhookSecret: "whsec_test",
	})

	payload := checkoutPayload("evt_bad")
	resp := postWebhook(t, fx.app, payload, signPayload(payload, "whsec_wrong"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	fx.drain()
	var count int64
	require.NoError(t, fx.db.Model(&models.WebhookEvent{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestWebhookAcceptsValidSignature(t *testing.T) {
	fx := newWebhookFixture(t, &config.Config{
		AppEnv:              "production",
		StripeWebhookSecret: "whsec_test",
	})

	payload := checkoutPayload("evt_signed")
	resp := postWebhook(t, fx.app, payload, signPayload(payload, "whsec_test"))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	fx.drain()

	var record models.WebhookEvent
	require.NoError(t, fx.db.First(&record, "provider_event_id = ?", "evt_signed").Error)
	assert.True(t, record.SignatureValid)
	assert.NotNil(t, record.ProcessedAt)
	assert.Empty(t, record.ProcessingError)
}

func TestWebhookRejectsEventWithoutData(t *testing.T) {
	fx := newWebhookFixture(t, &config.Config{AppEnv: "development"})

	resp := postWebhook(t, fx.app, []byte(`{"id":"evt_nodata","type":"checkout.session.completed"}`), "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	fx.drain()
	var count int64
	require.NoError(t, fx.db.Model(&models.WebhookEvent{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestWebhookFullQueueRefusesDelivery(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.Subscription{}, &models.WebhookEvent{}))

	// Capacity one and no worker running, so the second delivery has nowhere
	// to go.
	queue := worker.NewQueue(db, services.NewSubscriptionService(db, stubProvider{}), 1)

	app := fiber.New()
	app.Post("/webhooks/stripe", NewWebhookHandler(queue, &config.Config{AppEnv: "development"}).HandleStripe)

	first := postWebhook(t, app, checkoutPayload("evt_q1"), "")
	assert.Equal(t, http.StatusOK, first.StatusCode)

	second := postWebhook(t, app, checkoutPayload("evt_q2"), "")
	assert.Equal(t, http.StatusServiceUnavailable, second.StatusCode)
}

func TestWebhookRejectsOversizedPayload(t *testing.T) {
	fx := newWebhookFixture(t, &config.Config{AppEnv: "development"})

	payload := bytes.Repeat([]byte("x"), maxWebhookBody+1)
	resp := postWebhook(t, fx.app, payload, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
