package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/patrickmn/go-cache"
)

// CachingResolver memoizes successful resolutions in process so repeated requests with the
// same token skip the identity provider. Failures are never cached.
type CachingResolver struct {
	next  Resolver
	cache *cache.Cache
}

// NewCachingResolver returns next unwrapped when ttl is not positive, since go-cache treats
// such a TTL as "never expire".
func NewCachingResolver(next Resolver, ttl time.Duration) Resolver {
	if ttl <= 0 {
		return next
	}
	return &CachingResolver{
		next:  next,
		cache: cache.New(ttl, 2*ttl),
	}
}

func (r *CachingResolver) Resolve(ctx context.Context, credential string) (Identity, error) {
	key := tokenKey(credential)
	if cached, found := r.cache.Get(key); found {
		return cached.(Identity), nil
	}

	id, err := r.next.Resolve(ctx, credential)
	if err != nil {
		return Identity{}, err
	}
	r.cache.Set(key, id, cache.DefaultExpiration)
	return id, nil
}

// tokens are hashed so raw credentials never sit in memory longer than the request
func tokenKey(credential string) string {
	sum := sha256.Sum256([]byte(credential))
	return hex.EncodeToString(sum[:])
}
