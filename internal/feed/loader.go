package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"lol-dashboard/internal/api"
	"lol-dashboard/internal/cache"
	"lol-dashboard/internal/constants"
	"lol-dashboard/internal/domain"
	"lol-dashboard/internal/identity"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"
)

// Upstream is the slice of the provider the feed loader needs.
type Upstream interface {
	ResolveHandle(ctx context.Context, name, tag, region string) (*api.AccountResponse, error)
	ListMatches(ctx context.Context, puuid, region string, offset, limit int) (*api.MatchesResponse, error)
	GetAggregateStats(ctx context.Context, puuid, region string) (*api.StatsResponse, error)
}

// Loader produces and extends the dashboard snapshot for an identity.
// Pagination per identity is serialized through an in-flight guard, so the
// session-tier snapshot only ever has one writer at a time.
type Loader struct {
	upstream Upstream
	resolver *identity.Resolver
	cache    *cache.Manager
	logger   zerolog.Logger

	mu       sync.Mutex
	inFlight map[string]bool

	pageSize   int
	retryDelay time.Duration
}

func NewLoader(upstream Upstream, resolver *identity.Resolver, cacheMgr *cache.Manager, logger zerolog.Logger) *Loader {
	return &Loader{
		upstream:   upstream,
		resolver:   resolver,
		cache:      cacheMgr,
		logger:     logger,
		inFlight:   make(map[string]bool),
		pageSize:   constants.DefaultPageSize,
		retryDelay: constants.RateLimitRetryDelay,
	}
}

// LoadDashboard returns the snapshot for a handle, from the session tier when
// fresh, otherwise rebuilt from the provider. hardReload forces the session
// tier cold first: a user-initiated full reload means "give me current data".
func (l *Loader) LoadDashboard(ctx context.Context, name, tag, region string, hardReload bool) (*domain.DashboardSnapshot, error) {
	key := cache.DashboardKey(name, tag, region)

	if hardReload {
		l.cache.MarkHardReload()
	}
	if snap, ok := cache.GetJSON[domain.DashboardSnapshot](ctx, l.cache, cache.TierSession, key); ok {
		l.logger.Info().Str("key", key).Msg("returning cached snapshot")
		return snap, nil
	}

	rec, fromCache, err := l.resolver.Resolve(ctx, name, tag, region)
	if err != nil {
		return nil, err
	}

	var (
		page  []domain.MatchRecord
		stats *domain.AggregateStats
	)

	g, gCtx := errgroup.WithContext(ctx)

	if fromCache {
		// Fast path: the cached id is treated as good enough. Confirmation
		// runs alongside the data fetches and its failure is a soft warning,
		// never a failed load.
		g.Go(func() error {
			acc, err := l.upstream.ResolveHandle(gCtx, name, tag, region)
			if err != nil {
				l.logger.Warn().Err(err).Str("puuid", rec.StableID).Msg("identity confirmation failed, proceeding with cached id")
				return nil
			}
			if acc.Puuid != rec.StableID {
				l.logger.Warn().Str("cached", rec.StableID).Str("confirmed", acc.Puuid).Msg("identity confirmation mismatch, keeping cached id")
			}
			return nil
		})
	}

	g.Go(func() error {
		var err error
		page, err = l.fetchPage(gCtx, rec.StableID, region, 0, l.pageSize)
		return err
	})
	g.Go(func() error {
		var err error
		stats, err = l.fetchAggregates(gCtx, rec.StableID, region)
		return err
	})

	if err := g.Wait(); err != nil {
		l.logger.Error().Err(err).Str("puuid", rec.StableID).Msg("dashboard load failed")
		return nil, err
	}

	snap := &domain.DashboardSnapshot{
		Identity:   rec,
		Matches:    mergeMatches(nil, page),
		Aggregates: stats,
		HasMore:    len(page) > 0,
		CapturedAt: time.Now(),
	}

	if err := cache.SetJSON(ctx, l.cache, cache.TierSession, key, snap, snap.CapturedAt); err != nil {
		l.logger.Warn().Err(err).Str("key", key).Msg("failed to cache snapshot")
	}

	l.logger.Info().Str("puuid", rec.StableID).Int("matches", len(snap.Matches)).Msg("dashboard loaded")
	return snap, nil
}

// LoadMore extends the identity's snapshot by one page. A second call while
// one is running for the same identity is suppressed: the scroll trigger can
// fire twice for the same viewport position.
func (l *Loader) LoadMore(ctx context.Context, name, tag, region string) (*domain.DashboardSnapshot, error) {
	rec, _, err := l.resolver.Resolve(ctx, name, tag, region)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	if l.inFlight[rec.StableID] {
		l.mu.Unlock()
		l.logger.Debug().Str("puuid", rec.StableID).Msg("pagination already in flight, suppressing")
		return nil, domain.ErrLoadInFlight
	}
	l.inFlight[rec.StableID] = true
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		delete(l.inFlight, rec.StableID)
		l.mu.Unlock()
	}()

	key := cache.DashboardKey(name, tag, region)
	snap, ok := cache.GetJSON[domain.DashboardSnapshot](ctx, l.cache, cache.TierSession, key)
	if !ok {
		// Snapshot expired under us; rebuild from the first page.
		l.logger.Debug().Str("key", key).Msg("snapshot expired, rebuilding")
		return l.LoadDashboard(ctx, name, tag, region, false)
	}

	page, err := l.fetchPage(ctx, rec.StableID, region, len(snap.Matches), l.pageSize)
	if err != nil {
		return nil, err
	}

	if len(page) == 0 {
		snap.HasMore = false
	} else {
		if len(page) < constants.EndOfHistoryFloor {
			// Possible transient partial failure upstream; keep paging.
			l.logger.Debug().Int("returned", len(page)).Msg("short page, treating shortfall as transient")
		}
		snap.Matches = mergeMatches(snap.Matches, page)
		snap.HasMore = true
	}
	snap.CapturedAt = time.Now()

	if err := cache.SetJSON(ctx, l.cache, cache.TierSession, key, snap, snap.CapturedAt); err != nil {
		l.logger.Warn().Err(err).Str("key", key).Msg("failed to cache snapshot")
	}

	l.logger.Info().Str("puuid", rec.StableID).Int("added", len(page)).Int("total", len(snap.Matches)).Msg("snapshot extended")
	return snap, nil
}

// LoadPopup builds the small per-player hover summary, cached under its own
// session-tier key.
func (l *Loader) LoadPopup(ctx context.Context, name, tag, region string) (*domain.PlayerPopup, error) {
	key := cache.PopupKey(name, tag, region)
	if popup, ok := cache.GetJSON[domain.PlayerPopup](ctx, l.cache, cache.TierSession, key); ok {
		return popup, nil
	}

	rec, _, err := l.resolver.Resolve(ctx, name, tag, region)
	if err != nil {
		return nil, err
	}

	stats, err := l.fetchAggregates(ctx, rec.StableID, region)
	if err != nil {
		return nil, err
	}

	popup := &domain.PlayerPopup{
		Identity:   rec,
		Aggregates: stats,
		CapturedAt: time.Now(),
	}
	if err := cache.SetJSON(ctx, l.cache, cache.TierSession, key, popup, popup.CapturedAt); err != nil {
		l.logger.Warn().Err(err).Str("key", key).Msg("failed to cache popup")
	}
	return popup, nil
}

// fetchPage pulls one page of match history. A 429 is retried exactly once
// after a fixed delay; everything else surfaces immediately.
func (l *Loader) fetchPage(ctx context.Context, puuid, region string, offset, limit int) ([]domain.MatchRecord, error) {
	var resp *api.MatchesResponse
	backoff := retry.WithMaxRetries(1, retry.NewConstant(l.retryDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		resp, err = l.upstream.ListMatches(ctx, puuid, region, offset, limit)
		if errors.Is(err, domain.ErrRateLimited) {
			l.logger.Warn().Str("puuid", puuid).Int("offset", offset).Msg("rate limited, retrying once")
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch match page: %w", err)
	}

	records := make([]domain.MatchRecord, 0, len(resp.Data))
	for _, m := range resp.Data {
		records = append(records, m.ToRecord())
	}
	return records, nil
}

func (l *Loader) fetchAggregates(ctx context.Context, puuid, region string) (*domain.AggregateStats, error) {
	resp, err := l.upstream.GetAggregateStats(ctx, puuid, region)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch aggregate stats: %w", err)
	}

	stats := &domain.AggregateStats{
		TotalMatches: resp.TotalMatches,
		Wins:         resp.Wins,
		Losses:       resp.Losses,
		AvgKills:     resp.AvgKills,
		AvgDeaths:    resp.AvgDeaths,
		AvgAssists:   resp.AvgAssists,
	}
	if resp.TotalMatches > 0 {
		stats.WinRate = float64(resp.Wins) / float64(resp.TotalMatches)
	}
	if resp.AvgDeaths > 0 {
		stats.KDRatio = resp.AvgKills / resp.AvgDeaths
	} else {
		stats.KDRatio = resp.AvgKills
	}
	return stats, nil
}

// mergeMatches appends batch onto existing, dropping any matchId already
// present. The snapshot never holds a duplicate match.
func mergeMatches(existing, batch []domain.MatchRecord) []domain.MatchRecord {
	seen := make(map[string]bool, len(existing))
	for _, m := range existing {
		seen[m.MatchID] = true
	}
	merged := existing
	for _, m := range batch {
		if seen[m.MatchID] {
			continue
		}
		seen[m.MatchID] = true
		merged = append(merged, m)
	}
	return merged
}
