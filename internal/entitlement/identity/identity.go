// Package identity maps a caller credential onto the external user identifier that keys
// billing records.
package identity

import (
	"context"
	"errors"
	"strings"

	"entitlement-workers/internal/common/logger"
)

// ErrAnonymous means no identity could be derived from the credential.
var ErrAnonymous = errors.New("anonymous caller")

// Identity is the resolved caller. UserID is opaque and never interpreted here.
type Identity struct {
	UserID string
}

// Resolver turns a credential (bearer token) into an Identity.
type Resolver interface {
	Resolve(ctx context.Context, credential string) (Identity, error)
}

// UserIDOrAnonymous resolves credential and swallows every failure: any error, or an empty
// credential, yields "" and the caller is treated as anonymous.
func UserIDOrAnonymous(ctx context.Context, r Resolver, credential string, log logger.Logger) string {
	if strings.TrimSpace(credential) == "" {
		return ""
	}
	id, err := r.Resolve(ctx, credential)
	if err != nil {
		if !errors.Is(err, ErrAnonymous) {
			log.Warn("identity resolution failed, treating caller as anonymous", map[string]interface{}{
				"error": err,
			})
		}
		return ""
	}
	return id.UserID
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
