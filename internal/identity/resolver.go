package identity

import (
	"context"
	"fmt"
	"time"

	"lol-dashboard/internal/api"
	"lol-dashboard/internal/cache"
	"lol-dashboard/internal/domain"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Upstream is the slice of the provider the resolver needs.
type Upstream interface {
	ResolveHandle(ctx context.Context, name, tag, region string) (*api.AccountResponse, error)
}

// Resolver maps (Riot ID, region) to a stable identity, durable-tier first.
// A durable entry is never refreshed opportunistically: the mapping is
// effectively permanent and re-resolving it is the most expensive provider
// call. Only Unlink removes one.
type Resolver struct {
	upstream Upstream
	cache    *cache.Manager
	group    singleflight.Group
	logger   zerolog.Logger
}

func NewResolver(upstream Upstream, cacheMgr *cache.Manager, logger zerolog.Logger) *Resolver {
	return &Resolver{upstream: upstream, cache: cacheMgr, logger: logger}
}

// Resolve returns the stable identity for a handle. fromCache reports whether
// the durable tier answered without a network call; the feed loader uses it
// to pick its fetch strategy.
func (r *Resolver) Resolve(ctx context.Context, name, tag, region string) (rec *domain.IdentityRecord, fromCache bool, err error) {
	key := cache.IdentityKey(name, tag, region)

	if cached, ok := cache.GetJSON[domain.IdentityRecord](ctx, r.cache, cache.TierDurable, key); ok {
		r.logger.Debug().Str("key", key).Str("puuid", cached.StableID).Msg("identity served from durable cache")
		return cached, true, nil
	}

	// Concurrent resolves for the same handle share one upstream call.
	v, err, _ := r.group.Do(key, func() (any, error) {
		return r.resolveUpstream(ctx, name, tag, region)
	})
	if err != nil {
		return nil, false, err
	}
	return v.(*domain.IdentityRecord), false, nil
}

func (r *Resolver) resolveUpstream(ctx context.Context, name, tag, region string) (*domain.IdentityRecord, error) {
	acc, err := r.upstream.ResolveHandle(ctx, name, tag, region)
	if err != nil {
		r.logger.Error().Err(err).Str("name", name).Str("tag", tag).Str("region", region).Msg("failed to resolve handle")
		return nil, fmt.Errorf("failed to resolve handle: %w", err)
	}

	rec := &domain.IdentityRecord{
		StableID:      acc.Puuid,
		Name:          acc.GameName,
		TagLine:       acc.TagLine,
		Region:        region,
		ProfileIconID: acc.ProfileIconID,
		Level:         acc.SummonerLevel,
		Rank:          acc.Rank,
		ResolvedAt:    time.Now(),
	}

	key := cache.IdentityKey(name, tag, region)
	if err := cache.SetJSON(ctx, r.cache, cache.TierDurable, key, rec, rec.ResolvedAt); err != nil {
		// A failed cache write costs a refetch next time, nothing more.
		r.logger.Warn().Err(err).Str("key", key).Msg("failed to cache identity")
	}

	r.logger.Info().Str("key", key).Str("puuid", rec.StableID).Msg("identity resolved")
	return rec, nil
}

// Unlink removes the durable entry, for the explicit "link a different
// account" user action.
func (r *Resolver) Unlink(ctx context.Context, name, tag, region string) error {
	return r.cache.Invalidate(ctx, cache.TierDurable, cache.IdentityKey(name, tag, region))
}
