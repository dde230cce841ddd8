package identity

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"lol-dashboard/internal/api"
	"lol-dashboard/internal/cache"
	"lol-dashboard/internal/database"
	"lol-dashboard/internal/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUpstream struct {
	mu      sync.Mutex
	calls   int
	err     error
	account api.AccountResponse
	gate    chan struct{} // when non-nil, ResolveHandle blocks until closed
	entered chan struct{} // closed once the first call is inside
}

func (f *fakeUpstream) ResolveHandle(ctx context.Context, name, tag, region string) (*api.AccountResponse, error) {
	f.mu.Lock()
	f.calls++
	first := f.calls == 1
	f.mu.Unlock()

	if first && f.entered != nil {
		close(f.entered)
	}
	if f.gate != nil {
		<-f.gate
	}
	if f.err != nil {
		return nil, f.err
	}
	acc := f.account
	return &acc, nil
}

func (f *fakeUpstream) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestResolver(t *testing.T, upstream Upstream) *Resolver {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "cache.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mgr, err := cache.NewManager(db, zerolog.Nop())
	require.NoError(t, err)
	return NewResolver(upstream, mgr, zerolog.Nop())
}

func TestResolveSecondCallServedFromCache(t *testing.T) {
	fake := &fakeUpstream{account: api.AccountResponse{
		Puuid:         "puuid-1",
		GameName:      "Faker",
		TagLine:       "KR1",
		ProfileIconID: 42,
		SummonerLevel: 700,
	}}
	r := newTestResolver(t, fake)
	ctx := context.Background()

	rec, fromCache, err := r.Resolve(ctx, "Faker", "KR1", "kr")
	require.NoError(t, err)
	assert.False(t, fromCache)
	assert.Equal(t, "puuid-1", rec.StableID)
	assert.False(t, rec.ResolvedAt.IsZero())

	rec2, fromCache, err := r.Resolve(ctx, "Faker", "KR1", "kr")
	require.NoError(t, err)
	assert.True(t, fromCache)
	assert.Equal(t, rec.StableID, rec2.StableID)

	assert.Equal(t, 1, fake.callCount(), "second resolve must not hit the upstream")
}

func TestConcurrentResolvesShareOneCall(t *testing.T) {
	fake := &fakeUpstream{
		account: api.AccountResponse{Puuid: "puuid-1", GameName: "Faker", TagLine: "KR1"},
		gate:    make(chan struct{}),
		entered: make(chan struct{}),
	}
	r := newTestResolver(t, fake)
	ctx := context.Background()

	results := make(chan error, 2)
	go func() {
		_, _, err := r.Resolve(ctx, "Faker", "KR1", "kr")
		results <- err
	}()
	<-fake.entered
	go func() {
		_, _, err := r.Resolve(ctx, "Faker", "KR1", "kr")
		results <- err
	}()

	close(fake.gate)
	require.NoError(t, <-results)
	require.NoError(t, <-results)

	assert.Equal(t, 1, fake.callCount(), "in-flight resolves for the same handle must dedup")
}

func TestResolveNotFound(t *testing.T) {
	fake := &fakeUpstream{err: domain.ErrNotFound}
	r := newTestResolver(t, fake)

	_, _, err := r.Resolve(context.Background(), "NoSuch", "EUW", "euw")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUnlinkForcesReResolve(t *testing.T) {
	fake := &fakeUpstream{account: api.AccountResponse{Puuid: "puuid-1", GameName: "Faker", TagLine: "KR1"}}
	r := newTestResolver(t, fake)
	ctx := context.Background()

	_, _, err := r.Resolve(ctx, "Faker", "KR1", "kr")
	require.NoError(t, err)
	require.NoError(t, r.Unlink(ctx, "Faker", "KR1", "kr"))

	_, fromCache, err := r.Resolve(ctx, "Faker", "KR1", "kr")
	require.NoError(t, err)
	assert.False(t, fromCache)
	assert.Equal(t, 2, fake.callCount())
}

func TestRegionsAreDistinctIdentities(t *testing.T) {
	fake := &fakeUpstream{account: api.AccountResponse{Puuid: "puuid-1", GameName: "Faker", TagLine: "KR1"}}
	r := newTestResolver(t, fake)
	ctx := context.Background()

	_, _, err := r.Resolve(ctx, "Faker", "KR1", "kr")
	require.NoError(t, err)
	_, fromCache, err := r.Resolve(ctx, "Faker", "KR1", "na")
	require.NoError(t, err)

	assert.False(t, fromCache)
	assert.Equal(t, 2, fake.callCount())
}
