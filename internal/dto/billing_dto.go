package dto

type CreateCheckoutRequest struct {
	PlanID               string `json:"plan_id"`
	Interval             string `json:"interval"`
	IsSubscriptionChange bool   `json:"is_subscription_change"`
}

type CheckoutRequest struct {
	PriceID string `json:"price_id"`
	PlanID  string `json:"plan_id"`
}

type CheckoutResponse struct {
	SessionID string `json:"session_id,omitempty"`
	URL       string `json:"url,omitempty"`
}

type PortalResponse struct {
	URL string `json:"url"`
}

type CancelSubscriptionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type SubscriptionResponse struct {
	Plan              string `json:"plan"`
	Status            string `json:"status"`
	CurrentPeriodEnd  string `json:"current_period_end,omitempty"`
	CancelAtPeriodEnd bool   `json:"cancel_at_period_end"`
}
