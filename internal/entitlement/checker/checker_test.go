package checker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	apperrors "entitlement-workers/internal/common/errors"
	"entitlement-workers/internal/common/logger"
	"entitlement-workers/internal/common/metrics"
	"entitlement-workers/internal/entitlement/audit"
	"entitlement-workers/internal/entitlement/credits"
	"entitlement-workers/internal/entitlement/identity"
	"entitlement-workers/internal/entitlement/policy"
	"entitlement-workers/internal/models"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// ==========================
// Mocks
// ==========================

type MockSubscriptions struct {
	mock.Mock
}

func (m *MockSubscriptions) FindByUserID(ctx context.Context, userID string) (*models.Subscription, error) {
	args := m.Called(ctx, userID)
	sub, _ := args.Get(0).(*models.Subscription)
	return sub, args.Error(1)
}

type MockCredits struct {
	mock.Mock
}

func (m *MockCredits) FindByUserID(ctx context.Context, userID string) (*models.CreditRecord, error) {
	args := m.Called(ctx, userID)
	rec, _ := args.Get(0).(*models.CreditRecord)
	return rec, args.Error(1)
}

type MockResolver struct {
	mock.Mock
}

func (m *MockResolver) Resolve(ctx context.Context, credential string) (identity.Identity, error) {
	args := m.Called(ctx, credential)
	return args.Get(0).(identity.Identity), args.Error(1)
}

type capturingRecorder struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *capturingRecorder) Record(_ context.Context, ev audit.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// ==========================
// Helpers
// ==========================

var fixedNow = time.Date(2024, 5, 20, 9, 0, 0, 0, time.UTC)

func subEndingAt(price string, end time.Time) *models.Subscription {
	s := &models.Subscription{UserID: "user_1", StripeCurrentPeriodEnd: &end}
	if price != "" {
		s.StripePriceID = &price
	}
	return s
}

type fixture struct {
	checker  *Checker
	subs     *MockSubscriptions
	credits  *MockCredits
	resolver *MockResolver
	audit    *capturingRecorder
}

func newFixture(t *testing.T, creditLimit int) *fixture {
	t.Helper()
	f := &fixture{
		subs:     new(MockSubscriptions),
		credits:  new(MockCredits),
		resolver: new(MockResolver),
		audit:    &capturingRecorder{},
	}
	f.checker = New(Dependencies{
		Identity:      f.resolver,
		Subscriptions: f.subs,
		Policy:        &policy.Evaluator{Now: func() time.Time { return fixedNow }},
		Credits:       f.credits,
		CreditPolicy:  credits.Evaluator{Limit: creditLimit},
		Audit:         f.audit,
		Logger:        logger.NewTestLogger(t),
	})
	return f
}

// ==========================
// Subscription path
// ==========================

func TestCheckSubscription(t *testing.T) {
	tests := []struct {
		name       string
		sub        *models.Subscription
		err        error
		want       bool
		wantStatus Status
		wantReason string
	}{
		{
			name:       "no subscription record",
			want:       false,
			wantStatus: StatusDenied,
			wantReason: policy.ReasonNoRecord,
		},
		{
			name:       "period ended more than a day ago",
			sub:        subEndingAt("price_pro", fixedNow.Add(-72*time.Hour)),
			wantStatus: StatusDenied,
			wantReason: policy.ReasonExpired,
		},
		{
			name:       "period ended 23 hours ago",
			sub:        subEndingAt("price_pro", fixedNow.Add(-23*time.Hour)),
			want:       true,
			wantStatus: StatusGranted,
			wantReason: policy.ReasonActive,
		},
		{
			name:       "period ended 25 hours ago",
			sub:        subEndingAt("price_pro", fixedNow.Add(-25*time.Hour)),
			wantStatus: StatusDenied,
			wantReason: policy.ReasonExpired,
		},
		{
			name:       "missing price with future period end",
			sub:        subEndingAt("", fixedNow.Add(30*24*time.Hour)),
			wantStatus: StatusDenied,
			wantReason: policy.ReasonMissingPrice,
		},
		{
			name:       "data layer failure",
			err:        apperrors.NewSubscriptionLookupFailedError("user_1", errors.New("connection refused")),
			wantStatus: StatusUnavailable,
			wantReason: ReasonUpstreamUnavailable,
		},
		{
			name:       "untyped data layer failure",
			err:        errors.New("driver: bad connection"),
			wantStatus: StatusUnavailable,
			wantReason: ReasonUpstreamUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 0)
			f.subs.On("FindByUserID", mock.Anything, "user_1").Return(tt.sub, tt.err)

			var got bool
			assert.NotPanics(t, func() {
				got = f.checker.CheckSubscription(context.Background(), "user_1")
			})
			assert.Equal(t, tt.want, got)

			res, err := f.checker.Check(context.Background(), "user_1")
			assert.Equal(t, tt.wantStatus, res.Status)
			assert.Equal(t, tt.wantReason, res.Reason)
			assert.Equal(t, tt.want, res.Entitled)

			if tt.err != nil {
				require.Error(t, err)
				stdErr, ok := apperrors.AsStandard(err)
				require.True(t, ok)
				assert.Equal(t, apperrors.ErrCodeSubscriptionLookupFailed, stdErr.Code)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCheckSubscription_EmptyUserIDSkipsLookup(t *testing.T) {
	f := newFixture(t, 0)

	assert.False(t, f.checker.CheckSubscription(context.Background(), ""))

	res, err := f.checker.Check(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, StatusDenied, res.Status)
	assert.Equal(t, ReasonAnonymous, res.Reason)

	f.subs.AssertNotCalled(t, "FindByUserID", mock.Anything, mock.Anything)
}

func TestCheck_RecordsAuditAndMetrics(t *testing.T) {
	f := newFixture(t, 0)
	f.subs.On("FindByUserID", mock.Anything, "user_1").
		Return(nil, apperrors.NewSubscriptionLookupFailedError("user_1", errors.New("timeout")))

	counter := metrics.EntitlementChecks.WithLabelValues(PathSubscription, string(StatusUnavailable))
	before := testutil.ToFloat64(counter)

	_, _ = f.checker.Check(context.Background(), "user_1")

	assert.Equal(t, before+1, testutil.ToFloat64(counter))
	require.Len(t, f.audit.events, 1)
	ev := f.audit.events[0]
	assert.Equal(t, "user_1", ev.UserID)
	assert.Equal(t, PathSubscription, ev.Path)
	assert.Equal(t, string(StatusUnavailable), ev.Status)
	assert.Equal(t, string(apperrors.ErrCodeSubscriptionLookupFailed), ev.ErrorCode)
}

func TestCheck_ConcurrentCallsAreIndependent(t *testing.T) {
	f := newFixture(t, 0)
	f.subs.On("FindByUserID", mock.Anything, "active").Return(subEndingAt("price_pro", fixedNow.Add(time.Hour)), nil)
	f.subs.On("FindByUserID", mock.Anything, "lapsed").Return(subEndingAt("price_pro", fixedNow.Add(-48*time.Hour)), nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.True(t, f.checker.CheckSubscription(context.Background(), "active"))
		}()
		go func() {
			defer wg.Done()
			assert.False(t, f.checker.CheckSubscription(context.Background(), "lapsed"))
		}()
	}
	wg.Wait()
}

// ==========================
// Credit path
// ==========================

func TestHasCredits(t *testing.T) {
	tests := []struct {
		name       string
		limit      int
		rec        *models.CreditRecord
		err        error
		want       bool
		wantStatus Status
	}{
		{"record with zero used credits", 0, &models.CreditRecord{UserID: "user_1"}, nil, true, StatusGranted},
		{"record with heavy usage", 0, &models.CreditRecord{UserID: "user_1", UsedCredits: 999}, nil, true, StatusGranted},
		{"no record", 0, nil, nil, false, StatusDenied},
		{"limit reached", 5, &models.CreditRecord{UserID: "user_1", UsedCredits: 5}, nil, false, StatusDenied},
		{"lookup failure", 0, nil, errors.New("pool exhausted"), false, StatusUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.limit)
			f.credits.On("FindByUserID", mock.Anything, "user_1").Return(tt.rec, tt.err)

			assert.Equal(t, tt.want, f.checker.HasCredits(context.Background(), "user_1"))

			res, err := f.checker.CheckCredits(context.Background(), "user_1")
			assert.Equal(t, tt.wantStatus, res.Status)
			if tt.err != nil {
				stdErr, ok := apperrors.AsStandard(err)
				require.True(t, ok)
				assert.Equal(t, apperrors.ErrCodeCreditLookupFailed, stdErr.Code)
			}
		})
	}
}

func TestHasCredits_EmptyUserID(t *testing.T) {
	f := newFixture(t, 0)
	assert.False(t, f.checker.HasCredits(context.Background(), ""))
	f.credits.AssertNotCalled(t, "FindByUserID", mock.Anything, mock.Anything)
}

// ==========================
// Caller path
// ==========================

func TestCheckCaller(t *testing.T) {
	f := newFixture(t, 0)
	f.resolver.On("Resolve", mock.Anything, "good-token").Return(identity.Identity{UserID: "user_1"}, nil)
	f.resolver.On("Resolve", mock.Anything, "expired-token").
		Return(identity.Identity{}, apperrors.NewTokenInvalidError("expired"))
	f.subs.On("FindByUserID", mock.Anything, "user_1").Return(subEndingAt("price_pro", fixedNow.Add(time.Hour)), nil)

	res, err := f.checker.CheckCaller(context.Background(), "good-token")
	require.NoError(t, err)
	assert.True(t, res.Entitled)
	assert.Equal(t, "user_1", res.UserID)

	res, err = f.checker.CheckCaller(context.Background(), "expired-token")
	require.NoError(t, err)
	assert.False(t, res.Entitled)
	assert.Equal(t, ReasonAnonymous, res.Reason)

	res, err = f.checker.CheckCaller(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, ReasonAnonymous, res.Reason)

	f.subs.AssertNumberOfCalls(t, "FindByUserID", 1)
}

func TestNew_Defaults(t *testing.T) {
	subs := new(MockSubscriptions)
	end := time.Now().Add(time.Hour)
	subs.On("FindByUserID", mock.Anything, "user_1").Return(subEndingAt("price_pro", end), nil)

	c := New(Dependencies{Subscriptions: subs})

	assert.True(t, c.CheckSubscription(context.Background(), "user_1"))
	assert.Equal(t, "", c.ResolveUserID(context.Background(), "tok"))
}
