package server

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"entitlement-workers/internal/common/errors"
	"entitlement-workers/internal/common/logger"
	"entitlement-workers/internal/common/metrics"
	"entitlement-workers/internal/entitlement/checker"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockChecker struct {
	mock.Mock
}

func (m *MockChecker) CheckCaller(ctx context.Context, credential string) (checker.Result, error) {
	args := m.Called(ctx, credential)
	return args.Get(0).(checker.Result), args.Error(1)
}

func (m *MockChecker) CheckCredits(ctx context.Context, userID string) (checker.Result, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(checker.Result), args.Error(1)
}

func (m *MockChecker) ResolveUserID(ctx context.Context, credential string) string {
	return m.Called(ctx, credential).String(0)
}

var (
	grantedResult   = checker.Result{Entitled: true, Status: checker.StatusGranted, Reason: "active", UserID: "user_1"}
	deniedResult    = checker.Result{Status: checker.StatusDenied, Reason: "expired", UserID: "user_1"}
	anonymousResult = checker.Result{Status: checker.StatusDenied, Reason: checker.ReasonAnonymous}
	lookupErr       = errors.NewSubscriptionLookupFailedError("user_1", stderrors.New("pq: connection refused on 10.0.0.5"))
)

func newTestServer(t *testing.T, mc *MockChecker, readiness map[string]Pinger) *Server {
	t.Helper()
	return New(Options{
		Checker:   mc,
		Readiness: readiness,
		Locales:   []string{"ar", "en"},
		Logger:    logger.NewTestLogger(t),
	})
}

func do(t *testing.T, s *Server, path string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealth(t *testing.T) {
	rec := do(t, newTestServer(t, &MockChecker{}, nil), "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode(t, rec)["status"])
}

func TestReady(t *testing.T) {
	ok := PingFunc(func(context.Context) error { return nil })
	failing := PingFunc(func(context.Context) error { return stderrors.New("dial tcp 10.0.0.7:6379: refused") })

	t.Run("all dependencies up", func(t *testing.T) {
		s := newTestServer(t, &MockChecker{}, map[string]Pinger{"postgres": ok, "redis": ok})
		rec := do(t, s, "/ready", nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		body := decode(t, rec)
		assert.Equal(t, "ready", body["status"])
		assert.Equal(t, map[string]interface{}{"postgres": "ok", "redis": "ok"}, body["checks"])
	})

	t.Run("one dependency down", func(t *testing.T) {
		s := newTestServer(t, &MockChecker{}, map[string]Pinger{"postgres": ok, "redis": failing})
		rec := do(t, s, "/ready", nil)

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		body := decode(t, rec)
		assert.Equal(t, "not_ready", body["status"])
		assert.Equal(t, "unavailable", body["checks"].(map[string]interface{})["redis"])
		assert.NotContains(t, rec.Body.String(), "10.0.0.7")
	})
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, &MockChecker{}, nil)
	do(t, s, "/health", nil)

	rec := do(t, s, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestMetrics_UnmatchedPathsShareOneSeries(t *testing.T) {
	s := newTestServer(t, &MockChecker{}, nil)
	unmatched := metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, unmatchedRoute, "404")
	before := testutil.ToFloat64(unmatched)
	// first scan may create the unmatched series itself
	do(t, s, "/scan/warmup", nil)
	seriesBefore := testutil.CollectAndCount(metrics.HTTPRequestsTotal)

	for i := 0; i < 50; i++ {
		rec := do(t, s, "/scan/"+strconv.Itoa(i), nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	}

	assert.Equal(t, seriesBefore, testutil.CollectAndCount(metrics.HTTPRequestsTotal))
	assert.Equal(t, before+51, testutil.ToFloat64(unmatched))
}

func TestSubscriptionEndpoint(t *testing.T) {
	tests := []struct {
		name       string
		result     checker.Result
		err        error
		lang       string
		wantStatus int
		wantBody   map[string]interface{}
	}{
		{
			name:       "granted",
			result:     grantedResult,
			wantStatus: http.StatusOK,
			wantBody:   map[string]interface{}{"isEntitled": true, "status": "granted", "reason": "active"},
		},
		{
			name:       "denied in english",
			result:     deniedResult,
			lang:       "en-US,en;q=0.9",
			wantStatus: http.StatusOK,
			wantBody: map[string]interface{}{
				"isEntitled": false, "status": "denied", "reason": "expired",
				"message": catalog["en"][msgSubscriptionRequired],
			},
		},
		{
			name:       "anonymous falls back to arabic",
			result:     anonymousResult,
			lang:       "fr-FR",
			wantStatus: http.StatusOK,
			wantBody: map[string]interface{}{
				"isEntitled": false, "status": "denied", "reason": "anonymous",
				"message": catalog["ar"][msgSignInRequired],
			},
		},
		{
			name:       "unavailable",
			result:     checker.Result{Status: checker.StatusUnavailable, Reason: checker.ReasonUpstreamUnavailable},
			err:        lookupErr,
			lang:       "en",
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   map[string]interface{}{"status": "unavailable", "message": catalog["en"][msgUnavailable]},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mc := &MockChecker{}
			mc.On("CheckCaller", mock.Anything, "tok").Return(tt.result, tt.err)

			rec := do(t, newTestServer(t, mc, nil), "/v1/entitlements/subscription", map[string]string{
				"Authorization":   "Bearer tok",
				"Accept-Language": tt.lang,
			})

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantBody, decode(t, rec))
			assert.NotContains(t, rec.Body.String(), "10.0.0.5")
			mc.AssertExpectations(t)
		})
	}
}

func TestCreditsEndpoint(t *testing.T) {
	t.Run("has credits", func(t *testing.T) {
		mc := &MockChecker{}
		mc.On("ResolveUserID", mock.Anything, "tok").Return("user_1")
		mc.On("CheckCredits", mock.Anything, "user_1").
			Return(checker.Result{Entitled: true, Status: checker.StatusGranted, Reason: "has_credits"}, nil)

		rec := do(t, newTestServer(t, mc, nil), "/v1/entitlements/credits", map[string]string{"Authorization": "Bearer tok"})

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, map[string]interface{}{"hasCredits": true, "status": "granted", "reason": "has_credits"}, decode(t, rec))
	})

	t.Run("no record", func(t *testing.T) {
		mc := &MockChecker{}
		mc.On("ResolveUserID", mock.Anything, "").Return("")
		mc.On("CheckCredits", mock.Anything, "").Return(anonymousResult, nil)

		rec := do(t, newTestServer(t, mc, nil), "/v1/entitlements/credits", map[string]string{"Accept-Language": "ar"})

		body := decode(t, rec)
		assert.Equal(t, false, body["hasCredits"])
		assert.Equal(t, catalog["ar"][msgSignInRequired], body["message"])
	})

	t.Run("lookup failure", func(t *testing.T) {
		mc := &MockChecker{}
		mc.On("ResolveUserID", mock.Anything, "tok").Return("user_1")
		mc.On("CheckCredits", mock.Anything, "user_1").
			Return(checker.Result{Status: checker.StatusUnavailable}, errors.NewCreditLookupFailedError("user_1", stderrors.New("boom")))

		rec := do(t, newTestServer(t, mc, nil), "/v1/entitlements/credits", map[string]string{"Authorization": "Bearer tok"})

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "30", rec.Header().Get("Retry-After"))
		assert.NotContains(t, rec.Body.String(), "boom")
	})
}

func TestRequireSubscription(t *testing.T) {
	tests := []struct {
		name       string
		result     checker.Result
		err        error
		wantStatus int
	}{
		{"granted", grantedResult, nil, http.StatusOK},
		{"anonymous", anonymousResult, nil, http.StatusUnauthorized},
		{"denied", deniedResult, nil, http.StatusPaymentRequired},
		{"unavailable", checker.Result{Status: checker.StatusUnavailable}, lookupErr, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mc := &MockChecker{}
			mc.On("CheckCaller", mock.Anything, "tok").Return(tt.result, tt.err)

			rec := do(t, newTestServer(t, mc, nil), "/v1/premium/access", map[string]string{"Authorization": "Bearer tok"})

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.NotContains(t, rec.Body.String(), "10.0.0.5")
		})
	}

	t.Run("stores the decision for downstream handlers", func(t *testing.T) {
		mc := &MockChecker{}
		mc.On("CheckCaller", mock.Anything, "tok").Return(grantedResult, nil)
		s := newTestServer(t, mc, nil)

		var got checker.Result
		h := s.RequireSubscription(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, _ = ResultFromContext(r.Context())
		}))
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer tok")
		h.ServeHTTP(httptest.NewRecorder(), req)

		assert.Equal(t, grantedResult, got)
	})

	t.Run("anonymous response asks for a bearer token", func(t *testing.T) {
		mc := &MockChecker{}
		mc.On("CheckCaller", mock.Anything, "").Return(anonymousResult, nil)

		rec := do(t, newTestServer(t, mc, nil), "/v1/premium/access", nil)

		assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
	})
}

func TestLocalizer(t *testing.T) {
	l := NewLocalizer([]string{"ar", "en"})

	assert.Equal(t, "ar", l.Language(""))
	assert.Equal(t, "en", l.Language("en-GB"))
	assert.Equal(t, "ar", l.Language("ar-EG,en;q=0.5"))
	assert.Equal(t, "ar", l.Language("de"))
	assert.Equal(t, "ar", l.Language(";;;garbage"))

	unsupported := NewLocalizer([]string{"xx"})
	assert.Equal(t, "en", unsupported.Language("fr"))
}
