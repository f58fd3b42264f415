package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// StateGuard remembers state tokens that already passed verification so
// a replayed callback is rejected. Entries live as long as the CSRF
// cookie that carried them.
type StateGuard struct {
	cache *ttlcache.Cache[string, struct{}]
}

// NewStateGuard creates a guard whose entries expire after ttl. A zero
// ttl uses the CSRF cookie lifetime.
func NewStateGuard(ttl time.Duration) *StateGuard {
	if ttl <= 0 {
		ttl = csrfExpiry
	}

	return &StateGuard{
		cache: ttlcache.New(
			ttlcache.WithTTL[string, struct{}](ttl),
			ttlcache.WithDisableTouchOnHit[string, struct{}](),
		),
	}
}

// Consume records state and reports whether this is its first use.
func (g *StateGuard) Consume(state string) bool {
	h := sha256.Sum256([]byte(state))

	_, seen := g.cache.GetOrSet(hex.EncodeToString(h[:]), struct{}{})

	return !seen
}

// Len returns the number of remembered states.
func (g *StateGuard) Len() int {
	return g.cache.Len()
}

// Run evicts expired entries until ctx is cancelled.
func (g *StateGuard) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		g.cache.Stop()
	}()

	g.cache.Start()

	return nil
}
