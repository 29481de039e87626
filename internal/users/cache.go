package users

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/Napageneral/sdr/internal/db"
)

// TokenCache memoizes token lookups so authenticated requests skip the
// users table on the hot path. Rotated tokens stay valid until their entry
// expires unless Forget is called.
type TokenCache struct {
	q     db.Querier
	cache *ttlcache.Cache[string, User]
}

func NewTokenCache(q db.Querier, ttl time.Duration) *TokenCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &TokenCache{
		q: q,
		cache: ttlcache.New[string, User](
			ttlcache.WithTTL[string, User](ttl),
			ttlcache.WithDisableTouchOnHit[string, User](),
		),
	}
}

// Lookup resolves a token, consulting the cache first.
func (c *TokenCache) Lookup(ctx context.Context, token string) (User, error) {
	key := HashToken(token)
	if item := c.cache.Get(key); item != nil {
		return item.Value(), nil
	}
	u, err := GetByToken(ctx, c.q, token)
	if err != nil {
		return User{}, err
	}
	c.cache.Set(key, u, ttlcache.DefaultTTL)
	return u, nil
}

// Forget drops a token from the cache.
func (c *TokenCache) Forget(token string) {
	c.cache.Delete(HashToken(token))
}
