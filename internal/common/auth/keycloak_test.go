package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	apperrors "entitlement-workers/internal/common/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newIntrospectionServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/realms/docs/protocol/openid-connect/token/introspect", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "entitlement-workers", r.PostForm.Get("client_id"))
		assert.Equal(t, "s3cret", r.PostForm.Get("client_secret"))
		assert.Equal(t, "tok", r.PostForm.Get("token"))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestValidateToken(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantSub  string
		wantCode apperrors.ErrorCode
	}{
		{
			name:    "active token",
			status:  http.StatusOK,
			body:    `{"active":true,"sub":"user_2abc","username":"amal"}`,
			wantSub: "user_2abc",
		},
		{
			name:     "inactive token",
			status:   http.StatusOK,
			body:     `{"active":false}`,
			wantCode: apperrors.ErrCodeTokenInvalid,
		},
		{
			name:     "keycloak down",
			status:   http.StatusServiceUnavailable,
			body:     `unavailable`,
			wantCode: apperrors.ErrCodeIdentityResolutionFailed,
		},
		{
			name:     "client rejected",
			status:   http.StatusUnauthorized,
			body:     `{"error":"invalid_client"}`,
			wantCode: apperrors.ErrCodeAuthentication,
		},
		{
			name:     "garbage body",
			status:   http.StatusOK,
			body:     `<html>`,
			wantCode: apperrors.ErrCodeIdentityResolutionFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newIntrospectionServer(t, tt.status, tt.body)
			client := NewKeycloakClient(srv.URL+"/", "docs", "entitlement-workers", "s3cret")

			info, err := client.ValidateToken(context.Background(), "tok")
			if tt.wantCode == "" {
				require.NoError(t, err)
				assert.Equal(t, tt.wantSub, info.Sub)
				return
			}

			require.Error(t, err)
			stdErr, ok := apperrors.AsStandard(err)
			require.True(t, ok)
			assert.Equal(t, tt.wantCode, stdErr.Code)
		})
	}
}

func TestValidateToken_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewKeycloakClient(url, "docs", "c", "s").ValidateToken(context.Background(), "tok")
	require.Error(t, err)
	assert.True(t, apperrors.IsRetryable(err))
}
