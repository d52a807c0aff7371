// Package policy decides whether a subscription record grants paid access.
package policy

import (
	"time"

	"entitlement-workers/internal/models"
)

// GracePeriod keeps a subscription active for one day past its billing period end,
// covering renewal webhooks that land late.
const GracePeriod = 24 * time.Hour

// Decision reasons.
const (
	ReasonNoRecord         = "no_record"
	ReasonMissingPrice     = "missing_price"
	ReasonMissingPeriodEnd = "missing_period_end"
	ReasonExpired          = "expired"
	ReasonActive           = "active"
)

type Decision struct {
	Active bool
	Reason string
}

// Evaluator applies the activity rule with the fixed GracePeriod. Now defaults to the wall clock.
type Evaluator struct {
	Now func() time.Time
}

func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// IsActive reports whether sub grants access right now.
func (e *Evaluator) IsActive(sub *models.Subscription) bool {
	return e.Evaluate(sub).Active
}

// Evaluate applies the rule and explains the outcome. A subscription is active iff it has a
// price, a period end, and periodEnd + grace is strictly after now.
func (e *Evaluator) Evaluate(sub *models.Subscription) Decision {
	switch {
	case sub == nil:
		return Decision{Reason: ReasonNoRecord}
	case sub.PriceID() == "":
		return Decision{Reason: ReasonMissingPrice}
	case sub.StripeCurrentPeriodEnd == nil:
		return Decision{Reason: ReasonMissingPeriodEnd}
	}

	if !sub.StripeCurrentPeriodEnd.Add(GracePeriod).After(e.now()) {
		return Decision{Reason: ReasonExpired}
	}
	return Decision{Active: true, Reason: ReasonActive}
}

func (e *Evaluator) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}
