package services

import (
	"context"
	"fmt"
	"time"

	"wisp/internal/cache"
	"wisp/internal/core"
	"wisp/internal/storage"
)

// PeriodResolver maps calendar dates to canonical monthly periods,
// creating period rows lazily on first reference. Resolved periods are
// immutable, so lookups are cached in a small LRU.
type PeriodResolver struct {
	store *storage.SQLiteRepository
	cache *cache.LRUCache[core.Period]
}

func NewPeriodResolver(store *storage.SQLiteRepository) *PeriodResolver {
	return &PeriodResolver{
		store: store,
		cache: cache.NewLRUCache[core.Period](64, 24*time.Hour),
	}
}

// Cache exposes the resolver's cache for lifecycle management.
func (r *PeriodResolver) Cache() *cache.LRUCache[core.Period] { return r.cache }

// Resolve returns the period of the month containing date. Idempotent:
// every date in the same month resolves to the same period row.
func (r *PeriodResolver) Resolve(ctx context.Context, date time.Time) (core.Period, error) {
	return r.ResolveToken(ctx, core.TokenForDate(date))
}

// ResolveToken finds or creates the period with the given token.
func (r *PeriodResolver) ResolveToken(ctx context.Context, token core.PeriodToken) (core.Period, error) {
	if p, ok := r.cache.Get(string(token)); ok {
		return p, nil
	}
	p, err := r.store.GetOrCreatePeriod(ctx, token)
	if err != nil {
		return core.Period{}, fmt.Errorf("resolve period %s: %w", token, err)
	}
	r.cache.Set(string(token), p)
	return p, nil
}

// Previous resolves the calendar month immediately before the given
// period, creating it if absent. A previous period with no salary data is
// a normal state, not an error.
func (r *PeriodResolver) Previous(ctx context.Context, p core.Period) (core.Period, error) {
	token, err := p.Token.Previous()
	if err != nil {
		return core.Period{}, err
	}
	return r.ResolveToken(ctx, token)
}
