package ereport

import (
	"context"
	"log/slog"
	"time"

	"github.com/kiranshivaraju/errdigest/internal/cache"
	"github.com/kiranshivaraju/errdigest/internal/metrics"
)

// Gate is a per-signature rate limiter: the first report of a signature in a
// log interval is admitted, the rest are suppressed until the cache entry
// expires. It is best effort and fails open.
type Gate struct {
	cache    cache.Cache
	interval time.Duration
}

// NewGate creates a Gate with the given log interval.
func NewGate(c cache.Cache, interval time.Duration) *Gate {
	return &Gate{cache: c, interval: interval}
}

// Admit reports whether an occurrence of signature should be recorded.
func (g *Gate) Admit(ctx context.Context, signature string) bool {
	added, err := g.cache.AddIfAbsent(ctx, cache.DedupKey(signature), g.interval)
	if err != nil {
		slog.Warn("dedup gate unavailable, admitting report",
			"signature", signature,
			"error", err,
		)
		metrics.GateFailOpen.Inc()
		return true
	}
	return added
}

// Release drops the window of signature so the next occurrence is admitted.
func (g *Gate) Release(ctx context.Context, signature string) {
	if err := g.cache.Delete(ctx, cache.DedupKey(signature)); err != nil {
		slog.Warn("failed to release dedup gate", "signature", signature, "error", err)
	}
}
