// internal/common/auth/keycloak.go
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"entitlement-workers/internal/common/errors"
)

// KeycloakClient introspects access tokens issued by a Keycloak realm.
type KeycloakClient struct {
	baseURL      string
	realm        string
	clientID     string
	clientSecret string
	httpClient   *http.Client
}

// TokenInfo holds the information returned by the token introspection endpoint.
type TokenInfo struct {
	Active    bool   `json:"active"`
	Scope     string `json:"scope,omitempty"`
	ClientID  string `json:"client_id,omitempty"`
	Username  string `json:"username,omitempty"`
	TokenType string `json:"token_type,omitempty"`
	Exp       int64  `json:"exp,omitempty"`
	Iat       int64  `json:"iat,omitempty"`
	Sub       string `json:"sub,omitempty"` // external user identifier
	Iss       string `json:"iss,omitempty"`
}

// NewKeycloakClient creates a new instance of KeycloakClient.
func NewKeycloakClient(baseURL, realm, clientID, clientSecret string) *KeycloakClient {
	return &KeycloakClient{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		realm:        realm,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func (k *KeycloakClient) WithHTTPClient(c *http.Client) *KeycloakClient {
	k.httpClient = c
	return k
}

// ValidateToken checks if an access token is valid and active.
//
// An inactive token is a caller fault (TOKEN_INVALID). Transport failures and 5xx answers are
// provider faults (IDENTITY_RESOLUTION_FAILED) and are retryable.
func (k *KeycloakClient) ValidateToken(ctx context.Context, token string) (*TokenInfo, error) {
	introspectURL := fmt.Sprintf("%s/realms/%s/protocol/openid-connect/token/introspect", k.baseURL, k.realm)

	data := url.Values{}
	data.Set("token", token)
	data.Set("token_type_hint", "access_token")
	data.Set("client_id", k.clientID)
	data.Set("client_secret", k.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, introspectURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, errors.NewIdentityResolutionFailedError(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := k.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.NewTimeoutError("keycloak", err)
		}
		return nil, errors.NewIdentityResolutionFailedError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		cause := fmt.Errorf("introspection returned status %d: %s", resp.StatusCode, string(body))
		if isTransientHTTPError(resp.StatusCode) {
			return nil, errors.NewIdentityResolutionFailedError(cause)
		}
		return nil, errors.NewAuthenticationError(cause.Error())
	}

	var tokenInfo TokenInfo
	if err := json.NewDecoder(resp.Body).Decode(&tokenInfo); err != nil {
		return nil, errors.NewIdentityResolutionFailedError(fmt.Errorf("decode introspection response: %w", err))
	}

	if !tokenInfo.Active {
		return nil, errors.NewTokenInvalidError("the access token is expired, revoked or malformed")
	}

	return &tokenInfo, nil
}

// isTransientHTTPError returns true if the HTTP status code indicates a potentially transient error.
func isTransientHTTPError(statusCode int) bool {
	switch statusCode {
	case http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
