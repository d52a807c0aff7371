package server

import (
	"net/http"

	"entitlement-workers/internal/entitlement/checker"
	"entitlement-workers/internal/entitlement/identity"
)

type subscriptionResponse struct {
	IsEntitled bool   `json:"isEntitled"`
	Status     string `json:"status"`
	Reason     string `json:"reason,omitempty"`
	Message    string `json:"message,omitempty"`
}

type creditsResponse struct {
	HasCredits bool   `json:"hasCredits"`
	Status     string `json:"status"`
	Reason     string `json:"reason,omitempty"`
	Message    string `json:"message,omitempty"`
}

// unavailable carries no reason, so nothing about the failing upstream reaches clients.
func (s *Server) unavailable(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Retry-After", "30")
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{
		"status":  string(checker.StatusUnavailable),
		"message": s.localizer.Message(r.Header.Get("Accept-Language"), msgUnavailable),
	})
}

func (s *Server) subscription(w http.ResponseWriter, r *http.Request) {
	res, err := s.checker.CheckCaller(r.Context(), identity.BearerToken(r.Header.Get("Authorization")))
	if err != nil {
		s.logger.Error("subscription check failed", map[string]interface{}{
			"requestPath": r.URL.Path,
			"error":       err.Error(),
		})
		s.unavailable(w, r)
		return
	}

	resp := subscriptionResponse{IsEntitled: res.Entitled, Status: string(res.Status), Reason: res.Reason}
	if !res.Entitled {
		resp.Message = s.denialMessage(r, res, msgSubscriptionRequired)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) credits(w http.ResponseWriter, r *http.Request) {
	userID := s.checker.ResolveUserID(r.Context(), identity.BearerToken(r.Header.Get("Authorization")))
	res, err := s.checker.CheckCredits(r.Context(), userID)
	if err != nil {
		s.logger.Error("credit check failed", map[string]interface{}{
			"userId": userID,
			"error":  err.Error(),
		})
		s.unavailable(w, r)
		return
	}

	resp := creditsResponse{HasCredits: res.Entitled, Status: string(res.Status), Reason: res.Reason}
	if !res.Entitled {
		resp.Message = s.denialMessage(r, res, msgNoCredits)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) denialMessage(r *http.Request, res checker.Result, fallback messageKey) string {
	key := fallback
	if res.Reason == checker.ReasonAnonymous {
		key = msgSignInRequired
	}
	return s.localizer.Message(r.Header.Get("Accept-Language"), key)
}

func (s *Server) premiumAccess(w http.ResponseWriter, r *http.Request) {
	res, _ := ResultFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"isEntitled": true,
		"userId":     res.UserID,
	})
}
