package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/notewell/notewell/internal/billing"
	"github.com/notewell/notewell/internal/models"
	"github.com/notewell/notewell/internal/plans"
	"github.com/stripe/stripe-go/v79"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SubscriptionService reconciles the local subscription record with the
// payment provider's view. Every transition is a full-field upsert keyed by
// user_id, so replaying an event is safe: last value wins. Stale events are
// not detected; a delayed "updated" arriving after "deleted" would resurrect
// the record. Stripe does not promise ordered delivery, so this is an
// accepted gap at this scope.
type SubscriptionService struct {
	db       *gorm.DB
	provider billing.Provider
}

func NewSubscriptionService(db *gorm.DB, provider billing.Provider) *SubscriptionService {
	return &SubscriptionService{db: db, provider: provider}
}

// ApplyEvent maps one provider event onto the local record. Unknown event
// types are ignored.
func (s *SubscriptionService) ApplyEvent(event *stripe.Event) error {
	if event.Data == nil {
		return fmt.Errorf("event %s has no data payload", event.ID)
	}

	switch event.Type {
	case "checkout.session.completed":
		return s.handleCheckoutCompleted(event)
	case "invoice.payment_succeeded":
		return s.handlePaymentSucceeded(event)
	case "customer.subscription.updated":
		return s.handleSubscriptionUpdated(event)
	case "customer.subscription.deleted":
		return s.handleSubscriptionDeleted(event)
	default:
		return nil
	}
}

func (s *SubscriptionService) handleCheckoutCompleted(event *stripe.Event) error {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return fmt.Errorf("invalid checkout session payload: %w", err)
	}

	// Sessions without a subscription (one-off payments) carry nothing to
	// reconcile.
	if sess.Subscription == nil || sess.Customer == nil {
		return nil
	}

	info, err := s.provider.RetrieveSubscription(sess.Subscription.ID)
	if err != nil {
		return fmt.Errorf("failed to retrieve subscription %s: %w", sess.Subscription.ID, err)
	}

	planID := info.PlanID
	if planID == "" {
		planID = sess.Metadata["planId"]
	}
	if planID == "" {
		planID = plans.PlanPro
	}

	userID, err := s.resolveUser(sess.Metadata["userId"], sess.Customer.ID)
	if err != nil {
		return err
	}

	periodEnd := info.CurrentPeriodEnd
	return s.upsert(models.Subscription{
		UserID:               userID,
		StripeCustomerID:     sess.Customer.ID,
		StripeSubscriptionID: &info.ID,
		Plan:                 planID,
		Status:               info.Status,
		CurrentPeriodEnd:     &periodEnd,
		CancelAtPeriodEnd:    info.CancelAtPeriodEnd,
	})
}

func (s *SubscriptionService) handlePaymentSucceeded(event *stripe.Event) error {
	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		return fmt.Errorf("invalid invoice payload: %w", err)
	}

	if invoice.Subscription == nil || invoice.Customer == nil {
		return nil
	}

	info, err := s.provider.RetrieveSubscription(invoice.Subscription.ID)
	if err != nil {
		return fmt.Errorf("failed to retrieve subscription %s: %w", invoice.Subscription.ID, err)
	}

	periodEnd := info.CurrentPeriodEnd
	return s.updateByCustomer(invoice.Customer.ID, map[string]interface{}{
		"status":               info.Status,
		"current_period_end":   periodEnd,
		"cancel_at_period_end": info.CancelAtPeriodEnd,
	})
}

func (s *SubscriptionService) handleSubscriptionUpdated(event *stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return fmt.Errorf("invalid subscription payload: %w", err)
	}

	if sub.Customer == nil {
		return nil
	}

	planID := sub.Metadata["planId"]
	if planID == "" {
		if sub.Status == stripe.SubscriptionStatusActive {
			planID = plans.PlanPro
		} else {
			planID = plans.PlanFree
		}
	}
	if sub.Status == stripe.SubscriptionStatusCanceled {
		planID = plans.PlanFree
	}

	periodEnd := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
	return s.updateByCustomer(sub.Customer.ID, map[string]interface{}{
		"stripe_subscription_id": sub.ID,
		"plan":                   planID,
		"status":                 string(sub.Status),
		"current_period_end":     periodEnd,
		"cancel_at_period_end":   sub.CancelAtPeriodEnd,
	})
}

func (s *SubscriptionService) handleSubscriptionDeleted(event *stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return fmt.Errorf("invalid subscription payload: %w", err)
	}

	if sub.Customer == nil {
		return nil
	}

	return s.updateByCustomer(sub.Customer.ID, map[string]interface{}{
		"stripe_subscription_id": nil,
		"plan":                   plans.PlanFree,
		"status":                 models.SubscriptionStatusCanceled,
	})
}

// resolveUser prefers the userId carried in checkout metadata and falls back
// to the row previously stubbed out for the customer at checkout start.
func (s *SubscriptionService) resolveUser(metaUserID, customerID string) (uuid.UUID, error) {
	if metaUserID != "" {
		if id, err := uuid.Parse(metaUserID); err == nil {
			return id, nil
		}
	}

	var sub models.Subscription
	if err := s.db.Where("stripe_customer_id = ?", customerID).First(&sub).Error; err != nil {
		return uuid.Nil, fmt.Errorf("no user known for customer %s: %w", customerID, err)
	}
	return sub.UserID, nil
}

func (s *SubscriptionService) upsert(sub models.Subscription) error {
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"stripe_customer_id", "stripe_subscription_id", "plan", "status",
			"current_period_end", "cancel_at_period_end", "updated_at",
		}),
	}).Create(&sub).Error
}

func (s *SubscriptionService) updateByCustomer(customerID string, fields map[string]interface{}) error {
	return s.db.Model(&models.Subscription{}).
		Where("stripe_customer_id = ?", customerID).
		Updates(fields).Error
}

// GetByUser returns the user's subscription row and whether one exists. A
// missing row is a normal state, not an error: it means the free plan.
func (s *SubscriptionService) GetByUser(userID uuid.UUID) (*models.Subscription, bool, error) {
	var sub models.Subscription
	err := s.db.Where("user_id = ?", userID).First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return &sub, true, nil
}

// Entitlement resolves the effective plan and status for a user, treating the
// absence of a row identically to an active free subscription.
func (s *SubscriptionService) Entitlement(userID uuid.UUID) (models.Subscription, error) {
	sub, found, err := s.GetByUser(userID)
	if err != nil {
		return models.Subscription{}, err
	}
	if !found {
		return models.Subscription{
			UserID: userID,
			Plan:   plans.PlanFree,
			Status: models.SubscriptionStatusActive,
		}, nil
	}
	return *sub, nil
}

// EnsureCustomer returns the user's Stripe customer ID, creating the customer
// and stubbing out a free subscription row on first contact with billing.
func (s *SubscriptionService) EnsureCustomer(user *models.User) (string, error) {
	sub, found, err := s.GetByUser(user.ID)
	if err != nil {
		return "", err
	}
	if found && sub.StripeCustomerID != "" {
		return sub.StripeCustomerID, nil
	}

	customerID, err := s.provider.CreateCustomer(user.Email, user.Name, user.ID.String())
	if err != nil {
		return "", err
	}

	if err := s.upsert(models.Subscription{
		UserID:           user.ID,
		StripeCustomerID: customerID,
		Plan:             plans.PlanFree,
		Status:           models.SubscriptionStatusActive,
	}); err != nil {
		return "", err
	}
	return customerID, nil
}

// Cancel tears down the user's paid subscription. A missing local row or a
// provider-side "resource missing" both count as success: the end state is
// the free plan either way.
func (s *SubscriptionService) Cancel(userID uuid.UUID) (string, error) {
	sub, found, err := s.GetByUser(userID)
	if err != nil {
		return "", err
	}

	if !found || sub.StripeSubscriptionID == nil || *sub.StripeSubscriptionID == "" {
		if err := s.upsert(models.Subscription{
			UserID: userID,
			Plan:   plans.PlanFree,
			Status: models.SubscriptionStatusCanceled,
		}); err != nil {
			return "", err
		}
		return "Set to free plan", nil
	}

	if err := s.provider.CancelSubscription(*sub.StripeSubscriptionID); err != nil {
		if !errors.Is(err, billing.ErrResourceMissing) {
			return "", err
		}
	}

	err = s.db.Model(&models.Subscription{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"plan":   plans.PlanFree,
			"status": models.SubscriptionStatusCanceled,
		}).Error
	if err != nil {
		return "", err
	}
	return "Subscription successfully canceled", nil
}
