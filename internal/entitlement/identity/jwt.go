package identity

import (
	"context"
	"fmt"

	apperrors "entitlement-workers/internal/common/errors"

	"github.com/golang-jwt/jwt/v5"
)

// JWTResolver verifies HS256 session tokens locally.
type JWTResolver struct {
	secret []byte
	parser *jwt.Parser
}

func NewJWTResolver(secret, issuer string) *JWTResolver {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	return &JWTResolver{secret: []byte(secret), parser: jwt.NewParser(opts...)}
}

func (r *JWTResolver) Resolve(_ context.Context, credential string) (Identity, error) {
	if credential == "" {
		return Identity{}, ErrAnonymous
	}

	var claims jwt.RegisteredClaims
	_, err := r.parser.ParseWithClaims(credential, &claims, func(*jwt.Token) (interface{}, error) {
		return r.secret, nil
	})
	if err != nil {
		return Identity{}, apperrors.NewTokenInvalidError(fmt.Sprintf("jwt: %v", err))
	}
	if claims.Subject == "" {
		return Identity{}, ErrAnonymous
	}
	return Identity{UserID: claims.Subject}, nil
}

// SignToken issues an HS256 token for subject. Used by local tooling and tests.
func SignToken(secret string, claims jwt.RegisteredClaims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
