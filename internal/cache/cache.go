package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"lol-dashboard/internal/constants"

	"github.com/rs/zerolog"
)

// Tier is a storage bucket with its own persistence scope and TTL policy.
type Tier int

const (
	// TierSession holds dashboard snapshots and popup data. Persisted, but
	// wiped on every process start and expired after a few minutes.
	TierSession Tier = iota
	// TierDurable holds identity resolutions. Survives across sessions.
	TierDurable
	// TierMemory never outlives the process: analysis results and other
	// page-session state. No TTL.
	TierMemory
)

func (t Tier) String() string {
	switch t {
	case TierSession:
		return "session"
	case TierDurable:
		return "durable"
	case TierMemory:
		return "memory"
	}
	return "unknown"
}

func (t Tier) table() string {
	if t == TierSession {
		return "session_cache"
	}
	return "durable_cache"
}

// TTL is tier-specific, not key-specific.
func (t Tier) ttl() time.Duration {
	switch t {
	case TierSession:
		return constants.SessionCacheTTL
	case TierDurable:
		return constants.DurableCacheTTL
	}
	return 0
}

type memEntry struct {
	value      []byte
	capturedAt time.Time
}

// Manager provides get/set/invalidate over the three tiers. Persistent rows
// are untrusted input: expired or unreadable entries are evicted and reported
// absent, never surfaced as errors.
type Manager struct {
	db     *sql.DB
	logger zerolog.Logger

	mu                sync.Mutex
	mem               map[string]memEntry
	hardReloadPending bool

	now func() time.Time
}

// NewManager wipes the session tier: a new process is a new browsing session.
func NewManager(db *sql.DB, logger zerolog.Logger) (*Manager, error) {
	if _, err := db.Exec("DELETE FROM session_cache"); err != nil {
		return nil, fmt.Errorf("failed to clear session tier: %w", err)
	}

	return &Manager{
		db:     db,
		logger: logger,
		mem:    make(map[string]memEntry),
		now:    time.Now,
	}, nil
}

// MarkHardReload signals that the user forced a full reload. The next read
// of every session-tier key is treated as a miss even if its TTL has not
// elapsed; the flag clears once fresh data is written.
func (m *Manager) MarkHardReload() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hardReloadPending = true
	m.logger.Debug().Msg("hard reload marked, session tier treated as cold")
}

// IsHardReload reports whether a hard-reload signal is pending. Callers
// consult it before trusting a session-tier read.
func (m *Manager) IsHardReload() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hardReloadPending
}

// Get returns the cached value for key, or absent. Stale, corrupt and
// hard-reload-bypassed entries are evicted on the way out.
func (m *Manager) Get(ctx context.Context, tier Tier, key string) ([]byte, bool) {
	if tier == TierMemory {
		m.mu.Lock()
		defer m.mu.Unlock()
		e, ok := m.mem[key]
		if !ok {
			return nil, false
		}
		return e.value, true
	}

	if tier == TierSession && m.IsHardReload() {
		m.evict(ctx, tier, key)
		return nil, false
	}

	var value []byte
	var capturedAt time.Time
	query := fmt.Sprintf("SELECT value, captured_at FROM %s WHERE key = ?", tier.table())
	err := m.db.QueryRowContext(ctx, query, key).Scan(&value, &capturedAt)
	if err == sql.ErrNoRows {
		return nil, false
	}
	if err != nil {
		m.logger.Warn().Err(err).Str("tier", tier.String()).Str("key", key).Msg("cache read failed, treating as miss")
		return nil, false
	}

	if m.now().Sub(capturedAt) > tier.ttl() {
		m.logger.Debug().Str("tier", tier.String()).Str("key", key).Time("captured_at", capturedAt).Msg("cache entry expired, evicting")
		m.evict(ctx, tier, key)
		return nil, false
	}

	return value, true
}

// Set overwrites unconditionally. A session-tier write absorbs any pending
// hard-reload signal, since the caller just refetched.
func (m *Manager) Set(ctx context.Context, tier Tier, key string, value []byte, capturedAt time.Time) error {
	if tier == TierMemory {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.mem[key] = memEntry{value: value, capturedAt: capturedAt}
		return nil
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (key, value, captured_at) VALUES (?, ?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value, captured_at = excluded.captured_at",
		tier.table(),
	)
	if _, err := m.db.ExecContext(ctx, query, key, value, capturedAt); err != nil {
		return fmt.Errorf("failed to write %s cache: %w", tier.String(), err)
	}

	if tier == TierSession {
		m.mu.Lock()
		m.hardReloadPending = false
		m.mu.Unlock()
	}

	return nil
}

// Invalidate removes key explicitly, used on forced refresh and unlink.
func (m *Manager) Invalidate(ctx context.Context, tier Tier, key string) error {
	if tier == TierMemory {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.mem, key)
		return nil
	}
	m.evict(ctx, tier, key)
	return nil
}

func (m *Manager) evict(ctx context.Context, tier Tier, key string) {
	query := fmt.Sprintf("DELETE FROM %s WHERE key = ?", tier.table())
	if _, err := m.db.ExecContext(ctx, query, key); err != nil {
		m.logger.Warn().Err(err).Str("tier", tier.String()).Str("key", key).Msg("cache eviction failed")
	}
}

// GetJSON reads and decodes a cached value. A value that fails to decode is
// corrupt storage, not an error: it is evicted and reported absent.
func GetJSON[T any](ctx context.Context, m *Manager, tier Tier, key string) (*T, bool) {
	raw, ok := m.Get(ctx, tier, key)
	if !ok {
		return nil, false
	}

	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		m.logger.Warn().Err(err).Str("tier", tier.String()).Str("key", key).Msg("corrupt cache entry, evicting")
		_ = m.Invalidate(ctx, tier, key)
		return nil, false
	}
	return &v, true
}

// SetJSON encodes and stores v under key.
func SetJSON[T any](ctx context.Context, m *Manager, tier Tier, key string, v *T, capturedAt time.Time) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode cache value: %w", err)
	}
	return m.Set(ctx, tier, key, raw, capturedAt)
}
