package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	SubscriptionStatusActive            = "active"
	SubscriptionStatusTrialing          = "trialing"
	SubscriptionStatusPastDue           = "past_due"
	SubscriptionStatusCanceled          = "canceled"
	SubscriptionStatusIncomplete        = "incomplete"
	SubscriptionStatusIncompleteExpired = "incomplete_expired"
	SubscriptionStatusUnpaid            = "unpaid"
)

// Subscription mirrors the Stripe view of a user's billing state. Exactly one
// row exists per user; every reconciliation writes the full field set keyed by
// user_id, so replayed webhook events are safe (last value wins). The absence
// of a row is a valid state and means the free plan.
type Subscription struct {
	ID                   uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID               uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex" json:"user_id"`
	StripeCustomerID     string     `gorm:"size:255;index" json:"stripe_customer_id"`
	StripeSubscriptionID *string    `gorm:"size:255" json:"stripe_subscription_id"`
	Plan                 string     `gorm:"size:50;not null;default:'free'" json:"plan"`
	Status               string     `gorm:"size:50;not null;default:'active'" json:"status"`
	CurrentPeriodEnd     *time.Time `json:"current_period_end,omitempty"`
	CancelAtPeriodEnd    bool       `gorm:"default:false" json:"cancel_at_period_end"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}
