package auth

import (
	"crypto/sha256"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// TokenCache remembers tokens that already passed verification. It holds at
// most size entries, least recently used evicted first, and an entry is served
// only until the earlier of the token's expiry and the cache ttl.
type TokenCache struct {
	ttl time.Duration
	now func() time.Time
	lru *expirable.LRU[[sha256.Size]byte, cachedToken]
}

type cachedToken struct {
	claims  WebhookClaims
	expires time.Time
}

func NewTokenCache(size int, ttl time.Duration) *TokenCache {
	if size <= 0 {
		size = 4096
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &TokenCache{
		ttl: ttl,
		now: time.Now,
		lru: expirable.NewLRU[[sha256.Size]byte, cachedToken](size, nil, ttl),
	}
}

func (c *TokenCache) Get(token string) (WebhookClaims, bool) {
	key := sha256.Sum256([]byte(token))
	e, ok := c.lru.Get(key)
	if !ok {
		return WebhookClaims{}, false
	}
	if !c.now().Before(e.expires) {
		c.lru.Remove(key)
		return WebhookClaims{}, false
	}
	return e.claims, true
}

func (c *TokenCache) Put(token string, claims WebhookClaims) {
	now := c.now()
	expires := now.Add(c.ttl)
	if claims.ExpiresAt != nil && claims.ExpiresAt.Time.Before(expires) {
		expires = claims.ExpiresAt.Time
	}
	if !now.Before(expires) {
		return
	}
	c.lru.Add(sha256.Sum256([]byte(token)), cachedToken{claims: claims, expires: expires})
}

func (c *TokenCache) Len() int { return c.lru.Len() }
