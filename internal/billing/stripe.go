package billing

import (
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v79"
	portalsession "github.com/stripe/stripe-go/v79/billingportal/session"
	"github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/customer"
	"github.com/stripe/stripe-go/v79/subscription"
)

// ErrResourceMissing marks provider-side "already gone" failures, which
// callers treat as success-equivalent.
var ErrResourceMissing = errors.New("billing resource missing")

// SubscriptionInfo is the slice of a provider subscription the reconciler
// cares about.
type SubscriptionInfo struct {
	ID                string
	CustomerID        string
	Status            string
	PlanID            string
	CurrentPeriodEnd  time.Time
	CancelAtPeriodEnd bool
}

type CheckoutParams struct {
	CustomerID string
	PriceID    string
	UserID     string
	PlanID     string
	Interval   string
	SuccessURL string
	CancelURL  string
}

type CheckoutSession struct {
	ID  string
	URL string
}

// Provider abstracts the payment API surface the handlers and the reconciler
// call. The Stripe implementation lives below; tests substitute a fake.
type Provider interface {
	CreateCustomer(email, name, userID string) (string, error)
	RetrieveSubscription(id string) (*SubscriptionInfo, error)
	CancelSubscription(id string) error
	NewCheckoutSession(p CheckoutParams) (*CheckoutSession, error)
	NewPortalSession(customerID, returnURL string) (string, error)
}

// StripeProvider talks to the live Stripe API using the process-wide key.
type StripeProvider struct{}

// NewStripeProvider wires the Stripe API key and returns the live provider.
func NewStripeProvider(secretKey string) *StripeProvider {
	stripe.Key = secretKey
	return &StripeProvider{}
}

func (p *StripeProvider) CreateCustomer(email, name, userID string) (string, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(email),
		Name:  stripe.String(name),
	}
	params.AddMetadata("userId", userID)

	cust, err := customer.New(params)
	if err != nil {
		return "", fmt.Errorf("failed to create stripe customer: %w", err)
	}
	return cust.ID, nil
}

func (p *StripeProvider) RetrieveSubscription(id string) (*SubscriptionInfo, error) {
	params := &stripe.SubscriptionParams{}
	params.AddExpand("items.data.price.product")

	sub, err := subscription.Get(id, params)
	if err != nil {
		return nil, translateStripeErr(err)
	}

	info := &SubscriptionInfo{
		ID:                sub.ID,
		Status:            string(sub.Status),
		PlanID:            sub.Metadata["planId"],
		CurrentPeriodEnd:  time.Unix(sub.CurrentPeriodEnd, 0).UTC(),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}
	if sub.Customer != nil {
		info.CustomerID = sub.Customer.ID
	}
	if info.PlanID == "" {
		info.PlanID = productPlan(sub)
	}
	return info, nil
}

// productPlan reads the plan tier from the expanded product's metadata.
func productPlan(sub *stripe.Subscription) string {
	if sub.Items == nil || len(sub.Items.Data) == 0 {
		return ""
	}
	price := sub.Items.Data[0].Price
	if price == nil || price.Product == nil {
		return ""
	}
	if plan := price.Product.Metadata["planId"]; plan != "" {
		return plan
	}
	return price.Product.Metadata["plan"]
}

func (p *StripeProvider) CancelSubscription(id string) error {
	if _, err := subscription.Cancel(id, nil); err != nil {
		return translateStripeErr(err)
	}
	return nil
}

func (p *StripeProvider) NewCheckoutSession(cp CheckoutParams) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:     stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer: stripe.String(cp.CustomerID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(cp.PriceID), Quantity: stripe.Int64(1)},
		},
		SuccessURL:          stripe.String(cp.SuccessURL),
		CancelURL:           stripe.String(cp.CancelURL),
		AllowPromotionCodes: stripe.Bool(true),
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{
				"userId": cp.UserID,
				"planId": cp.PlanID,
			},
		},
	}
	params.AddMetadata("userId", cp.UserID)
	params.AddMetadata("planId", cp.PlanID)
	params.AddMetadata("billingInterval", cp.Interval)

	sess, err := session.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}
	return &CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

func (p *StripeProvider) NewPortalSession(customerID, returnURL string) (string, error) {
	sess, err := portalsession.New(&stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	})
	if err != nil {
		return "", translateStripeErr(err)
	}
	return sess.URL, nil
}

func translateStripeErr(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodeResourceMissing {
		return fmt.Errorf("%w: %s", ErrResourceMissing, stripeErr.Msg)
	}
	return err
}
