package handlers

import (
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/notewell/notewell/internal/auth"
	"github.com/notewell/notewell/internal/billing"
	"github.com/notewell/notewell/internal/config"
	"github.com/notewell/notewell/internal/dto"
	"github.com/notewell/notewell/internal/models"
	"github.com/notewell/notewell/internal/plans"
	"github.com/notewell/notewell/internal/services"
)

type BillingHandler struct {
	subscriptions *services.SubscriptionService
	authService   *services.AuthService
	provider      billing.Provider
	cfg           *config.Config
}

func NewBillingHandler(
	subscriptions *services.SubscriptionService,
	authService *services.AuthService,
	provider billing.Provider,
	cfg *config.Config,
) *BillingHandler {
	return &BillingHandler{
		subscriptions: subscriptions,
		authService:   authService,
		provider:      provider,
		cfg:           cfg,
	}
}

// CreateCheckout starts checkout for a configured plan, routing subscription
// changes through the billing portal when possible.
func (h *BillingHandler) CreateCheckout(c *fiber.Ctx) error {
	user, resp := h.currentUser(c)
	if user == nil {
		return resp
	}

	var req dto.CreateCheckoutRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid request body",
		})
	}

	if req.PlanID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Plan ID is required",
		})
	}
	if !plans.IsValid(req.PlanID) {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid plan selected",
		})
	}

	customerID, err := h.subscriptions.EnsureCustomer(user)
	if err != nil {
		slog.Error("failed to prepare billing", "user_id", user.ID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Failed to prepare billing",
		})
	}

	baseURL := strings.TrimRight(h.cfg.BaseURL, "/")
	successURL := baseURL + "/settings?success=true&plan=" + req.PlanID
	cancelURL := baseURL + "/settings?canceled=true"

	// Plan changes go through the portal when a subscription already exists;
	// portal failures fall through to a regular checkout session.
	if req.IsSubscriptionChange {
		sub, found, err := h.subscriptions.GetByUser(user.ID)
		if err != nil {
			slog.Error("failed to load subscription for plan change, using checkout",
				"user_id", user.ID, "error", err)
		}
		if err == nil && found && sub.StripeSubscriptionID != nil && *sub.StripeSubscriptionID != "" {
			if url, portalErr := h.provider.NewPortalSession(customerID, successURL); portalErr == nil {
				return c.JSON(dto.CheckoutResponse{URL: url})
			} else {
				slog.Error("portal access failed, falling back to checkout",
					"user_id", user.ID, "error", portalErr)
			}
		}
	}

	priceID := plans.PriceID(h.cfg, req.PlanID, req.Interval)
	if priceID == "" {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Billing not configured for this plan",
		})
	}

	sess, err := h.provider.NewCheckoutSession(billing.CheckoutParams{
		CustomerID: customerID,
		PriceID:    priceID,
		UserID:     user.ID.String(),
		PlanID:     req.PlanID,
		Interval:   req.Interval,
		SuccessURL: successURL,
		CancelURL:  cancelURL,
	})
	if err != nil {
		slog.Error("checkout session failed", "user_id", user.ID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Failed to create checkout session",
		})
	}

	return c.JSON(dto.CheckoutResponse{SessionID: sess.ID, URL: sess.URL})
}

// Checkout starts a session for an explicit price ID.
func (h *BillingHandler) Checkout(c *fiber.Ctx) error {
	user, resp := h.currentUser(c)
	if user == nil {
		return resp
	}

	var req dto.CheckoutRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid request body",
		})
	}

	if req.PriceID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Price ID is required",
		})
	}

	customerID, err := h.subscriptions.EnsureCustomer(user)
	if err != nil {
		slog.Error("failed to prepare billing", "user_id", user.ID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Failed to prepare billing",
		})
	}

	baseURL := strings.TrimRight(h.cfg.BaseURL, "/")
	sess, err := h.provider.NewCheckoutSession(billing.CheckoutParams{
		CustomerID: customerID,
		PriceID:    req.PriceID,
		UserID:     user.ID.String(),
		PlanID:     req.PlanID,
		SuccessURL: baseURL + "/settings?success=true",
		CancelURL:  baseURL + "/settings?canceled=true",
	})
	if err != nil {
		slog.Error("checkout session failed", "user_id", user.ID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Failed to create checkout session",
		})
	}

	return c.JSON(dto.CheckoutResponse{SessionID: sess.ID, URL: sess.URL})
}

// Portal opens a billing portal session for the stored customer.
func (h *BillingHandler) Portal(c *fiber.Ctx) error {
	userID, err := auth.GetUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
			Error: true, Message: "Unauthorized",
		})
	}

	sub, found, err := h.subscriptions.GetByUser(userID)
	if err != nil {
		return storeError(c, err, "Failed to load customer")
	}
	if !found || sub.StripeCustomerID == "" {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
			Error: true, Message: "No subscription found",
		})
	}

	baseURL := strings.TrimRight(h.cfg.BaseURL, "/")
	url, err := h.provider.NewPortalSession(sub.StripeCustomerID, baseURL+"/dashboard")
	if err != nil {
		slog.Error("portal session failed", "user_id", userID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Failed to create billing portal session",
		})
	}

	return c.JSON(dto.PortalResponse{URL: url})
}

// CancelSubscription cancels in Stripe and downgrades the local record. An
// already-gone provider subscription counts as success.
func (h *BillingHandler) CancelSubscription(c *fiber.Ctx) error {
	userID, err := auth.GetUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
			Error: true, Message: "Unauthorized",
		})
	}

	message, err := h.subscriptions.Cancel(userID)
	if err != nil {
		slog.Error("subscription cancel failed", "user_id", userID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Failed to cancel subscription",
		})
	}

	return c.JSON(dto.CancelSubscriptionResponse{Success: true, Message: message})
}

// GetSubscription reports the user's effective entitlement. No row means the
// free plan, not an error.
func (h *BillingHandler) GetSubscription(c *fiber.Ctx) error {
	userID, err := auth.GetUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
			Error: true, Message: "Unauthorized",
		})
	}

	sub, err := h.subscriptions.Entitlement(userID)
	if err != nil {
		return storeError(c, err, "Failed to load subscription")
	}

	resp := dto.SubscriptionResponse{
		Plan:              sub.Plan,
		Status:            sub.Status,
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}
	if sub.CurrentPeriodEnd != nil {
		resp.CurrentPeriodEnd = sub.CurrentPeriodEnd.UTC().Format(time.RFC3339)
	}
	return c.JSON(resp)
}

// currentUser loads the authenticated user, or writes the error response and
// returns nil.
func (h *BillingHandler) currentUser(c *fiber.Ctx) (*models.User, error) {
	userID, err := auth.GetUserID(c)
	if err != nil {
		return nil, c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
			Error: true, Message: "Unauthorized",
		})
	}

	user, err := h.authService.GetUser(userID)
	if err != nil {
		return nil, c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
			Error: true, Message: "Unauthorized",
		})
	}
	return user, nil
}
