package handlers

import (
	"encoding/json"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/notewell/notewell/internal/config"
	"github.com/notewell/notewell/internal/dto"
	"github.com/notewell/notewell/internal/worker"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

// maxWebhookBody caps the payload read from the provider.
const maxWebhookBody = 64 * 1024

type WebhookHandler struct {
	queue *worker.Queue
	cfg   *config.Config
}

func NewWebhookHandler(queue *worker.Queue, cfg *config.Config) *WebhookHandler {
	return &WebhookHandler{queue: queue, cfg: cfg}
}

// HandleStripe verifies the delivery, acknowledges it immediately, and hands
// the event to the worker queue. The provider's delivery timeout is therefore
// decoupled from the reconciliation work.
func (h *WebhookHandler) HandleStripe(c *fiber.Ctx) error {
	body := c.Body()
	if len(body) > maxWebhookBody {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Payload too large",
		})
	}

	var event stripe.Event
	signatureValid := false

	if h.cfg.StripeWebhookSecret != "" {
		verified, err := webhook.ConstructEventWithOptions(
			body,
			c.Get("Stripe-Signature"),
			h.cfg.StripeWebhookSecret,
			webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true},
		)
		if err != nil {
			slog.Error("webhook signature verification failed", "error", err)
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
				Error: true, Message: "Signature verification failed",
			})
		}
		event = verified
		signatureValid = true
	} else {
		// Unverified mode exists for local development only; a deployed
		// instance without a webhook secret refuses deliveries outright.
		if h.cfg.IsProduction() {
			slog.Error("webhook secret missing in production")
			return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
				Error: true, Message: "Webhook not configured",
			})
		}
		if err := json.Unmarshal(body, &event); err != nil || event.Data == nil {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
				Error: true, Message: "Invalid webhook payload",
			})
		}
		slog.Warn("processing unverified webhook event", "event_type", event.Type)
	}

	// A full queue means the event will never be processed; refusing the
	// delivery lets the provider redeliver it later.
	if !h.queue.Enqueue(worker.Job{Event: &event, SignatureValid: signatureValid}) {
		return c.Status(fiber.StatusServiceUnavailable).JSON(dto.ErrorResponse{
			Error: true, Message: "Event queue full, retry delivery",
		})
	}

	return c.JSON(fiber.Map{"received": true})
}
