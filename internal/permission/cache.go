package permission

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crm_session_cache_hits_total",
		Help: "Total number of session cache hits.",
	})
	sessionCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crm_session_cache_misses_total",
		Help: "Total number of session cache misses.",
	})
	sessionCacheInvalidations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crm_session_cache_invalidations_total",
		Help: "Total number of explicit session invalidations.",
	})
)

// Loader resolves sessions once and keeps them for the configured TTL.
// A session is a snapshot: override changes made elsewhere become visible
// after the TTL, or immediately when written through Invalidate.
type Loader struct {
	resolver *Resolver
	cache    *expirable.LRU[string, *Session]
}

// NewLoader creates a Loader with a per-instance LRU of size entries.
func NewLoader(resolver *Resolver, size int, ttl time.Duration) *Loader {
	return &Loader{
		resolver: resolver,
		cache:    expirable.NewLRU[string, *Session](size, nil, ttl),
	}
}

// Session returns the cached session for userID, resolving it on a miss.
// Degraded sessions are returned but not cached.
func (l *Loader) Session(ctx context.Context, userID string) *Session {
	if s, ok := l.cache.Get(userID); ok {
		sessionCacheHits.Inc()
		return s
	}
	sessionCacheMisses.Inc()

	s := l.resolver.Load(ctx, userID)
	if !s.Degraded() {
		l.cache.Add(userID, s)
	}
	return s
}

// Invalidate drops the cached session for userID.
func (l *Loader) Invalidate(userID string) {
	if l.cache.Remove(userID) {
		sessionCacheInvalidations.Inc()
	}
}

// Len returns the number of cached sessions.
func (l *Loader) Len() int {
	return l.cache.Len()
}
