package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"entitlement-workers/internal/common/metrics"
	"entitlement-workers/internal/entitlement/checker"
	"entitlement-workers/internal/entitlement/identity"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type ctxKey int

const resultKey ctxKey = iota

// ResultFromContext returns the decision stored by RequireSubscription.
func ResultFromContext(ctx context.Context) (checker.Result, bool) {
	res, ok := ctx.Value(resultKey).(checker.Result)
	return res, ok
}

// RequireSubscription lets a request through only for a caller with an active subscription.
// Anonymous callers get 401, denied callers 402 and upstream failures 503.
func (s *Server) RequireSubscription(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res, err := s.checker.CheckCaller(r.Context(), identity.BearerToken(r.Header.Get("Authorization")))
		lang := r.Header.Get("Accept-Language")

		switch {
		case err != nil:
			s.logger.Error("subscription gate failed", map[string]interface{}{
				"requestPath": r.URL.Path,
				"error":       err.Error(),
			})
			s.unavailable(w, r)
		case res.Reason == checker.ReasonAnonymous:
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"status":  string(res.Status),
				"message": s.localizer.Message(lang, msgSignInRequired),
			})
		case !res.Entitled:
			writeJSON(w, http.StatusPaymentRequired, map[string]string{
				"status":  string(res.Status),
				"reason":  res.Reason,
				"message": s.localizer.Message(lang, msgSubscriptionRequired),
			})
		default:
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), resultKey, res)))
		}
	})
}

// unmatchedRoute labels requests chi could not route, keeping the label set bounded.
const unmatchedRoute = "unmatched"

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			route := unmatchedRoute
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		}()

		next.ServeHTTP(ww, r)
	})
}
