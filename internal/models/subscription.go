package models

import "time"

// Subscription is the billing state of one user, as written by the payment webhook.
// Both Stripe fields are nullable in storage; a nil value means the field was never set.
type Subscription struct {
	UserID                 string     `json:"userId"`
	StripePriceID          *string    `json:"stripePriceId,omitempty"`
	StripeCurrentPeriodEnd *time.Time `json:"stripeCurrentPeriodEnd,omitempty"`
}

// PriceID returns the Stripe price identifier or "".
func (s *Subscription) PriceID() string {
	if s == nil || s.StripePriceID == nil {
		return ""
	}
	return *s.StripePriceID
}
