package identity

import (
	"context"

	"entitlement-workers/internal/common/auth"
)

// TokenValidator is the part of auth.KeycloakClient the resolver needs.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*auth.TokenInfo, error)
}

// KeycloakResolver resolves identities by token introspection. The user identifier is the
// token subject.
type KeycloakResolver struct {
	validator TokenValidator
}

func NewKeycloakResolver(v TokenValidator) *KeycloakResolver {
	return &KeycloakResolver{validator: v}
}

func (r *KeycloakResolver) Resolve(ctx context.Context, credential string) (Identity, error) {
	if credential == "" {
		return Identity{}, ErrAnonymous
	}
	info, err := r.validator.ValidateToken(ctx, credential)
	if err != nil {
		return Identity{}, err
	}
	if info.Sub == "" {
		return Identity{}, ErrAnonymous
	}
	return Identity{UserID: info.Sub}, nil
}
