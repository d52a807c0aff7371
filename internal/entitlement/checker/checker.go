// Package checker answers whether a user currently has paid access.
//
// A check is one sequential chain: identity, record lookup, policy. The checker holds no
// mutable state, so a single instance serves concurrent requests and jobs.
package checker

import (
	"context"
	stderrors "errors"
	"time"

	apperrors "entitlement-workers/internal/common/errors"
	"entitlement-workers/internal/common/logger"
	"entitlement-workers/internal/common/metrics"
	"entitlement-workers/internal/common/observability"
	"entitlement-workers/internal/entitlement/audit"
	"entitlement-workers/internal/entitlement/credits"
	"entitlement-workers/internal/entitlement/identity"
	"entitlement-workers/internal/entitlement/policy"
	"entitlement-workers/internal/entitlement/subscription"
	"entitlement-workers/internal/models"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type Status string

const (
	StatusGranted     Status = "granted"
	StatusDenied      Status = "denied"
	StatusUnavailable Status = "unavailable"
)

// Check paths, used as metric and audit labels.
const (
	PathSubscription = "subscription"
	PathCredits      = "credits"
)

const (
	ReasonAnonymous           = "anonymous"
	ReasonUpstreamUnavailable = "upstream_unavailable"
)

// Result is the explicit outcome of a check. Entitled is true only for StatusGranted.
type Result struct {
	Entitled bool   `json:"isEntitled"`
	Status   Status `json:"status"`
	Reason   string `json:"reason"`
	UserID   string `json:"userId,omitempty"`
}

func granted(userID, reason string) Result {
	return Result{Entitled: true, Status: StatusGranted, Reason: reason, UserID: userID}
}

func denied(userID, reason string) Result {
	return Result{Status: StatusDenied, Reason: reason, UserID: userID}
}

func unavailable(userID string) Result {
	return Result{Status: StatusUnavailable, Reason: ReasonUpstreamUnavailable, UserID: userID}
}

type Dependencies struct {
	Identity      identity.Resolver
	Subscriptions subscription.Repository
	Policy        *policy.Evaluator
	Credits       credits.Repository
	CreditPolicy  credits.Evaluator
	Audit         audit.Recorder
	Observability *observability.Observability
	Logger        logger.Logger
}

type Checker struct {
	identity      identity.Resolver
	subscriptions subscription.Repository
	policy        *policy.Evaluator
	credits       credits.Repository
	creditPolicy  credits.Evaluator
	audit         audit.Recorder
	obs           *observability.Observability
	logger        logger.Logger
}

func New(deps Dependencies) *Checker {
	c := &Checker{
		identity:      deps.Identity,
		subscriptions: deps.Subscriptions,
		policy:        deps.Policy,
		credits:       deps.Credits,
		creditPolicy:  deps.CreditPolicy,
		audit:         deps.Audit,
		obs:           deps.Observability,
		logger:        deps.Logger,
	}
	if c.policy == nil {
		c.policy = &policy.Evaluator{}
	}
	if c.audit == nil {
		c.audit = audit.Nop()
	}
	if c.obs == nil {
		c.obs = observability.NewNop()
	}
	if c.logger == nil {
		c.logger = logger.NewNoOpLogger()
	}
	return c
}

// Check evaluates the subscription path for userID. Upstream failures return
// StatusUnavailable together with the typed error; the result is never entitled then.
func (c *Checker) Check(ctx context.Context, userID string) (Result, error) {
	start := time.Now()
	ctx, span := c.obs.StartSpan(ctx, "entitlement.check_subscription",
		attribute.String("entitlement.path", PathSubscription))
	defer span.End()

	if userID == "" {
		res := denied("", ReasonAnonymous)
		c.record(ctx, PathSubscription, res, nil, start)
		return res, nil
	}

	sub, err := c.subscriptions.FindByUserID(ctx, userID)
	if err != nil {
		err = asLookupError(err, userID, apperrors.NewSubscriptionLookupFailedError)
		span.RecordError(err)
		span.SetStatus(codes.Error, "subscription lookup failed")
		res := unavailable(userID)
		c.record(ctx, PathSubscription, res, err, start)
		return res, err
	}

	d := c.policy.Evaluate(sub)
	res := denied(userID, d.Reason)
	if d.Active {
		res = granted(userID, d.Reason)
	}
	span.SetAttributes(attribute.String("entitlement.status", string(res.Status)))
	c.record(ctx, PathSubscription, res, nil, start)
	return res, nil
}

// CheckSubscription is the fail-closed boolean form of Check: every error collapses to false.
func (c *Checker) CheckSubscription(ctx context.Context, userID string) bool {
	res, err := c.Check(ctx, userID)
	if err != nil {
		c.logger.Error("subscription check failed, denying access", map[string]interface{}{
			"userId": userID,
			"error":  err,
		})
		return false
	}
	return res.Entitled
}

// CheckCredits evaluates the credit path for userID.
func (c *Checker) CheckCredits(ctx context.Context, userID string) (Result, error) {
	start := time.Now()
	ctx, span := c.obs.StartSpan(ctx, "entitlement.check_credits",
		attribute.String("entitlement.path", PathCredits))
	defer span.End()

	if userID == "" {
		res := denied("", ReasonAnonymous)
		c.record(ctx, PathCredits, res, nil, start)
		return res, nil
	}

	rec, err := c.credits.FindByUserID(ctx, userID)
	if err != nil {
		err = asLookupError(err, userID, apperrors.NewCreditLookupFailedError)
		span.RecordError(err)
		span.SetStatus(codes.Error, "credit lookup failed")
		res := unavailable(userID)
		c.record(ctx, PathCredits, res, err, start)
		return res, err
	}

	res := c.creditResult(userID, rec)
	span.SetAttributes(attribute.String("entitlement.status", string(res.Status)))
	c.record(ctx, PathCredits, res, nil, start)
	return res, nil
}

// HasCredits is the fail-closed boolean form of CheckCredits.
func (c *Checker) HasCredits(ctx context.Context, userID string) bool {
	res, err := c.CheckCredits(ctx, userID)
	if err != nil {
		c.logger.Error("credit check failed, denying access", map[string]interface{}{
			"userId": userID,
			"error":  err,
		})
		return false
	}
	return res.Entitled
}

// ResolveUserID maps a credential to a user ID, or "" for an anonymous caller.
func (c *Checker) ResolveUserID(ctx context.Context, credential string) string {
	if c.identity == nil {
		return ""
	}
	return identity.UserIDOrAnonymous(ctx, c.identity, credential, c.logger)
}

// CheckCaller resolves the caller behind credential and checks their subscription. A caller
// that cannot be identified is denied with ReasonAnonymous.
func (c *Checker) CheckCaller(ctx context.Context, credential string) (Result, error) {
	return c.Check(ctx, c.ResolveUserID(ctx, credential))
}

func (c *Checker) creditResult(userID string, rec *models.CreditRecord) Result {
	reason := c.creditPolicy.Reason(rec)
	if c.creditPolicy.HasCredits(rec) {
		return granted(userID, reason)
	}
	return denied(userID, reason)
}

func (c *Checker) record(ctx context.Context, path string, res Result, err error, start time.Time) {
	elapsed := time.Since(start)

	metrics.EntitlementChecks.WithLabelValues(path, string(res.Status)).Inc()
	metrics.EntitlementCheckDuration.WithLabelValues(path).Observe(elapsed.Seconds())
	c.obs.RecordDecision(ctx, path, string(res.Status), elapsed)

	ev := audit.NewEvent(res.UserID, path, string(res.Status), res.Reason)
	if stdErr, ok := apperrors.AsStandard(err); ok {
		ev.ErrorCode = string(stdErr.Code)
	}
	c.audit.Record(ctx, ev)

	c.logger.Debug("entitlement decision", map[string]interface{}{
		"path":       path,
		"userId":     res.UserID,
		"status":     string(res.Status),
		"reason":     res.Reason,
		"durationMs": elapsed.Milliseconds(),
	})
}

// asLookupError keeps typed errors and wraps anything else with the path's lookup code.
func asLookupError(err error, userID string, wrap func(string, error) *apperrors.StandardError) error {
	var stdErr *apperrors.StandardError
	if stderrors.As(err, &stdErr) {
		return err
	}
	return wrap(userID, err)
}
