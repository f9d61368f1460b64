package plans

import "github.com/notewell/notewell/internal/config"

const (
	PlanFree     = "free"
	PlanPro      = "pro"
	PlanBusiness = "business"
)

const (
	IntervalMonthly = "monthly"
	IntervalYearly  = "yearly"
)

type Feature struct {
	Name     string `json:"name"`
	Included bool   `json:"included"`
}

type Plan struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	PriceMonthly   float64   `json:"price_monthly"`
	PriceYearly    float64   `json:"price_yearly"`
	MaxNotes       int       `json:"max_notes"`
	MaxStorageInMB int       `json:"max_storage_in_mb"`
	Features       []Feature `json:"features"`
}

var All = map[string]Plan{
	PlanFree: {
		ID:             PlanFree,
		Name:           "Free",
		Description:    "For individual note-taking",
		PriceMonthly:   0,
		PriceYearly:    0,
		MaxNotes:       5,
		MaxStorageInMB: 50,
		Features: []Feature{
			{Name: "Up to 5 notes", Included: true},
			{Name: "Basic formatting", Included: true},
			{Name: "50MB storage", Included: true},
			{Name: "Access on all devices", Included: true},
			{Name: "Note sharing", Included: true},
			{Name: "Collaboration features", Included: false},
			{Name: "Priority support", Included: false},
		},
	},
	PlanPro: {
		ID:             PlanPro,
		Name:           "Pro",
		Description:    "For power users",
		PriceMonthly:   9.99,
		PriceYearly:    99.99,
		MaxNotes:       100,
		MaxStorageInMB: 1000,
		Features: []Feature{
			{Name: "Up to 100 notes", Included: true},
			{Name: "Advanced formatting", Included: true},
			{Name: "1GB storage", Included: true},
			{Name: "Access on all devices", Included: true},
			{Name: "Note sharing", Included: true},
			{Name: "Collaboration features", Included: true},
			{Name: "Priority support", Included: false},
		},
	},
	PlanBusiness: {
		ID:             PlanBusiness,
		Name:           "Business",
		Description:    "For teams and businesses",
		PriceMonthly:   19.99,
		PriceYearly:    199.99,
		MaxNotes:       500,
		MaxStorageInMB: 10000,
		Features: []Feature{
			{Name: "Unlimited notes", Included: true},
			{Name: "Advanced formatting", Included: true},
			{Name: "10GB storage", Included: true},
			{Name: "Access on all devices", Included: true},
			{Name: "Note sharing", Included: true},
			{Name: "Collaboration features", Included: true},
			{Name: "Priority support", Included: true},
		},
	},
}

// ByID resolves a plan identifier, falling back to the free plan for unknown
// values so entitlement reads never fail on a bad string.
func ByID(id string) Plan {
	if p, ok := All[id]; ok {
		return p
	}
	return All[PlanFree]
}

// IsValid reports whether id names a configured plan.
func IsValid(id string) bool {
	_, ok := All[id]
	return ok
}

// PriceID returns the configured Stripe price for a paid plan and billing
// interval. Empty when the plan is free or the price is not configured.
func PriceID(cfg *config.Config, planID, interval string) string {
	yearly := interval == IntervalYearly
	switch planID {
	case PlanPro:
		if yearly {
			return cfg.PriceProYearly
		}
		return cfg.PriceProMonthly
	case PlanBusiness:
		if yearly {
			return cfg.PriceBusinessYearly
		}
		return cfg.PriceBusinessMonthly
	}
	return ""
}
