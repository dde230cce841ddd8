package feed

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"lol-dashboard/internal/api"
	"lol-dashboard/internal/cache"
	"lol-dashboard/internal/constants"
	"lol-dashboard/internal/database"
	"lol-dashboard/internal/domain"
	"lol-dashboard/internal/identity"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	mu           sync.Mutex
	resolveCalls int
	listCalls    int
	statsCalls   int

	resolveErr error
	listErrs   []error               // consumed one per ListMatches call
	pages      [][]api.ProviderMatch // consumed one per successful call
	stats      api.StatsResponse
	account    api.AccountResponse

	listGate    chan struct{} // when non-nil, ListMatches blocks until closed
	listEntered chan struct{} // closed when a gated call is inside
}

func (f *fakeProvider) ResolveHandle(ctx context.Context, name, tag, region string) (*api.AccountResponse, error) {
	f.mu.Lock()
	f.resolveCalls++
	err := f.resolveErr
	acc := f.account
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

func (f *fakeProvider) ListMatches(ctx context.Context, puuid, region string, offset, limit int) (*api.MatchesResponse, error) {
	f.mu.Lock()
	f.listCalls++
	entered := f.listEntered
	gate := f.listGate
	var err error
	if len(f.listErrs) > 0 {
		err = f.listErrs[0]
		f.listErrs = f.listErrs[1:]
	}
	var page []api.ProviderMatch
	if err == nil && len(f.pages) > 0 {
		page = f.pages[0]
		f.pages = f.pages[1:]
	}
	f.mu.Unlock()

	if entered != nil {
		select {
		case <-entered:
		default:
			close(entered)
		}
	}
	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	return &api.MatchesResponse{Data: page}, nil
}

func (f *fakeProvider) GetAggregateStats(ctx context.Context, puuid, region string) (*api.StatsResponse, error) {
	f.mu.Lock()
	f.statsCalls++
	stats := f.stats
	f.mu.Unlock()
	return &stats, nil
}

func (f *fakeProvider) counts() (resolve, list, stats int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resolveCalls, f.listCalls, f.statsCalls
}

func makePage(start, n int) []api.ProviderMatch {
	page := make([]api.ProviderMatch, 0, n)
	for i := 0; i < n; i++ {
		page = append(page, api.ProviderMatch{
			MatchID:   fmt.Sprintf("KR_%d", start+i),
			Champion:  "Azir",
			Queue:     "ranked_solo",
			Win:       i%2 == 0,
			Kills:     7,
			Deaths:    2,
			Assists:   9,
			StartedAt: time.Now().Add(-time.Duration(start+i) * time.Hour),
		})
	}
	return page
}

func newTestLoader(t *testing.T, fake *fakeProvider) (*Loader, *cache.Manager) {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "cache.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mgr, err := cache.NewManager(db, zerolog.Nop())
	require.NoError(t, err)

	resolver := identity.NewResolver(fake, mgr, zerolog.Nop())
	l := NewLoader(fake, resolver, mgr, zerolog.Nop())
	l.retryDelay = 5 * time.Millisecond
	return l, mgr
}

func defaultFake() *fakeProvider {
	return &fakeProvider{
		account: api.AccountResponse{Puuid: "puuid-faker", GameName: "Faker", TagLine: "KR1", SummonerLevel: 700},
		stats:   api.StatsResponse{TotalMatches: 1200, Wins: 700, Losses: 500, AvgKills: 6.2, AvgDeaths: 2.1, AvgAssists: 7.4},
		pages:   [][]api.ProviderMatch{makePage(0, constants.DefaultPageSize)},
	}
}

func TestColdPathLoadsIdentityFirst(t *testing.T) {
	fake := defaultFake()
	l, _ := newTestLoader(t, fake)

	snap, err := l.LoadDashboard(context.Background(), "Faker", "KR1", "kr", false)
	require.NoError(t, err)

	resolve, list, stats := fake.counts()
	assert.Equal(t, 1, resolve, "cold path resolves once")
	assert.Equal(t, 1, list)
	assert.Equal(t, 1, stats)

	assert.Len(t, snap.Matches, constants.DefaultPageSize)
	assert.True(t, snap.HasMore)
	assert.False(t, snap.CapturedAt.IsZero())
	assert.Equal(t, "puuid-faker", snap.Identity.StableID)
	assert.InDelta(t, 700.0/1200.0, snap.Aggregates.WinRate, 1e-9)
}

func TestCachedSnapshotServedWithoutNetwork(t *testing.T) {
	fake := defaultFake()
	l, _ := newTestLoader(t, fake)
	ctx := context.Background()

	_, err := l.LoadDashboard(ctx, "Faker", "KR1", "kr", false)
	require.NoError(t, err)
	_, err = l.LoadDashboard(ctx, "Faker", "KR1", "kr", false)
	require.NoError(t, err)

	resolve, list, stats := fake.counts()
	assert.Equal(t, 1, resolve)
	assert.Equal(t, 1, list)
	assert.Equal(t, 1, stats)
}

func TestHardReloadRefetchesUnexpiredSnapshot(t *testing.T) {
	fake := defaultFake()
	fake.pages = [][]api.ProviderMatch{makePage(0, 20), makePage(0, 20)}
	l, _ := newTestLoader(t, fake)
	ctx := context.Background()

	_, err := l.LoadDashboard(ctx, "Faker", "KR1", "kr", false)
	require.NoError(t, err)

	_, err = l.LoadDashboard(ctx, "Faker", "KR1", "kr", true)
	require.NoError(t, err)

	_, list, _ := fake.counts()
	assert.Equal(t, 2, list, "hard reload must bypass the unexpired snapshot")
}

func TestFastPathFiresConfirmationAlongsideData(t *testing.T) {
	fake := defaultFake()
	l, mgr := newTestLoader(t, fake)
	ctx := context.Background()

	// Seed the durable tier, then drop the session snapshot so the next
	// load takes the fast path.
	_, err := l.LoadDashboard(ctx, "Faker", "KR1", "kr", false)
	require.NoError(t, err)
	require.NoError(t, mgr.Invalidate(ctx, cache.TierSession, cache.DashboardKey("Faker", "KR1", "kr")))

	fake.mu.Lock()
	fake.pages = [][]api.ProviderMatch{makePage(0, 20)}
	fake.mu.Unlock()

	_, err = l.LoadDashboard(ctx, "Faker", "KR1", "kr", false)
	require.NoError(t, err)

	resolve, list, stats := fake.counts()
	assert.Equal(t, 2, resolve, "fast path fires one confirmation call")
	assert.Equal(t, 2, list)
	assert.Equal(t, 2, stats)
}

func TestFastPathToleratesConfirmationFailure(t *testing.T) {
	fake := defaultFake()
	l, mgr := newTestLoader(t, fake)
	ctx := context.Background()

	_, err := l.LoadDashboard(ctx, "Faker", "KR1", "kr", false)
	require.NoError(t, err)
	require.NoError(t, mgr.Invalidate(ctx, cache.TierSession, cache.DashboardKey("Faker", "KR1", "kr")))

	fake.mu.Lock()
	fake.resolveErr = domain.ErrUnavailable
	fake.pages = [][]api.ProviderMatch{makePage(0, 20)}
	fake.mu.Unlock()

	snap, err := l.LoadDashboard(ctx, "Faker", "KR1", "kr", false)
	require.NoError(t, err, "a failed confirmation must not fail the load")
	assert.Equal(t, "puuid-faker", snap.Identity.StableID)
	assert.Len(t, snap.Matches, 20)
}

func TestLoadMoreAppendsAndDeduplicates(t *testing.T) {
	fake := defaultFake()
	// Second page overlaps the first by five matches.
	fake.pages = [][]api.ProviderMatch{
		makePage(0, 20),
		append(makePage(15, 5), makePage(20, 15)...),
	}
	l, _ := newTestLoader(t, fake)
	ctx := context.Background()

	_, err := l.LoadDashboard(ctx, "Faker", "KR1", "kr", false)
	require.NoError(t, err)

	snap, err := l.LoadMore(ctx, "Faker", "KR1", "kr")
	require.NoError(t, err)

	assert.Len(t, snap.Matches, 35, "overlapping matches must merge once")
	seen := make(map[string]int)
	for _, m := range snap.Matches {
		seen[m.MatchID]++
	}
	for id, n := range seen {
		assert.Equal(t, 1, n, "duplicate match %s", id)
	}
	assert.True(t, snap.HasMore)
}

func TestLoadMoreShortPageKeepsPaging(t *testing.T) {
	fake := defaultFake()
	fake.pages = [][]api.ProviderMatch{makePage(0, 20), makePage(20, 3), makePage(23, 0)}
	l, _ := newTestLoader(t, fake)
	ctx := context.Background()

	_, err := l.LoadDashboard(ctx, "Faker", "KR1", "kr", false)
	require.NoError(t, err)

	snap, err := l.LoadMore(ctx, "Faker", "KR1", "kr")
	require.NoError(t, err)
	assert.True(t, snap.HasMore, "a 3-record page is a possible transient shortfall, not end of history")
	assert.Len(t, snap.Matches, 23)

	snap, err = l.LoadMore(ctx, "Faker", "KR1", "kr")
	require.NoError(t, err)
	assert.False(t, snap.HasMore, "an empty page is the end of history")
	assert.Len(t, snap.Matches, 23)
}

func TestLoadMoreSuppressedWhileInFlight(t *testing.T) {
	fake := defaultFake()
	l, _ := newTestLoader(t, fake)
	ctx := context.Background()

	_, err := l.LoadDashboard(ctx, "Faker", "KR1", "kr", false)
	require.NoError(t, err)

	fake.mu.Lock()
	fake.pages = [][]api.ProviderMatch{makePage(20, 20)}
	fake.listGate = make(chan struct{})
	fake.listEntered = make(chan struct{})
	fake.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		_, err := l.LoadMore(ctx, "Faker", "KR1", "kr")
		done <- err
	}()
	<-fake.listEntered

	_, err = l.LoadMore(ctx, "Faker", "KR1", "kr")
	assert.ErrorIs(t, err, domain.ErrLoadInFlight)

	close(fake.listGate)
	require.NoError(t, <-done)

	_, list, _ := fake.counts()
	assert.Equal(t, 2, list, "suppressed call must not reach the upstream")
}

func TestRateLimitedRetriesExactlyOnce(t *testing.T) {
	fake := defaultFake()
	fake.listErrs = []error{domain.ErrRateLimited}
	l, _ := newTestLoader(t, fake)

	snap, err := l.LoadDashboard(context.Background(), "Faker", "KR1", "kr", false)
	require.NoError(t, err, "a single 429 recovers after one retry")
	assert.Len(t, snap.Matches, 20)

	_, list, _ := fake.counts()
	assert.Equal(t, 2, list)
}

func TestPersistentRateLimitSurfaces(t *testing.T) {
	fake := defaultFake()
	fake.listErrs = []error{domain.ErrRateLimited, domain.ErrRateLimited}
	l, _ := newTestLoader(t, fake)

	_, err := l.LoadDashboard(context.Background(), "Faker", "KR1", "kr", false)
	assert.ErrorIs(t, err, domain.ErrRateLimited)

	_, list, _ := fake.counts()
	assert.Equal(t, 2, list, "exactly one retry, then surface")
}

func TestOtherFailuresSurfaceImmediately(t *testing.T) {
	fake := defaultFake()
	fake.listErrs = []error{domain.ErrUnavailable}
	l, _ := newTestLoader(t, fake)

	_, err := l.LoadDashboard(context.Background(), "Faker", "KR1", "kr", false)
	assert.ErrorIs(t, err, domain.ErrUnavailable)

	_, list, _ := fake.counts()
	assert.Equal(t, 1, list)
}

func TestFailedLoadMorePreservesSnapshot(t *testing.T) {
	fake := defaultFake()
	l, _ := newTestLoader(t, fake)
	ctx := context.Background()

	first, err := l.LoadDashboard(ctx, "Faker", "KR1", "kr", false)
	require.NoError(t, err)

	fake.mu.Lock()
	fake.listErrs = []error{domain.ErrUnavailable}
	fake.mu.Unlock()

	_, err = l.LoadMore(ctx, "Faker", "KR1", "kr")
	require.Error(t, err)

	again, err := l.LoadDashboard(ctx, "Faker", "KR1", "kr", false)
	require.NoError(t, err)
	assert.Len(t, again.Matches, len(first.Matches), "cached snapshot survives a failed extension")
}

func TestLoadPopupCachedSeparately(t *testing.T) {
	fake := defaultFake()
	l, _ := newTestLoader(t, fake)
	ctx := context.Background()

	popup, err := l.LoadPopup(ctx, "Faker", "KR1", "kr")
	require.NoError(t, err)
	assert.Equal(t, 1200, popup.Aggregates.TotalMatches)

	_, err = l.LoadPopup(ctx, "Faker", "KR1", "kr")
	require.NoError(t, err)

	_, _, stats := fake.counts()
	assert.Equal(t, 1, stats, "second popup load is served from the session tier")
}
