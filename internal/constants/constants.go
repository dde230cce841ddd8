package constants

import "time"

const (
	// SessionCacheTTL bounds dashboard and popup snapshots.
	SessionCacheTTL = 5 * time.Minute
	// DurableCacheTTL bounds identity resolutions, which essentially never change.
	DurableCacheTTL = 7 * 24 * time.Hour
)

const (
	DefaultPageSize = 20

	// EndOfHistoryFloor is the shortfall below which a partial page is still
	// treated as transient rather than end-of-history. Only a zero-length
	// page stops pagination.
	EndOfHistoryFloor = 5

	RateLimitRetryDelay = 2 * time.Second
)

const (
	IdlePollInterval   = 30 * time.Second
	InGamePollInterval = 60 * time.Second
	ElapsedTick        = 1 * time.Second
)

const (
	ExternalAPITimeout = 10 * time.Second
	RequestTimeout     = 30 * time.Second
)

const (
	DBMaxOpenConns    = 100
	DBMaxIdleConns    = 10
	DBConnMaxLifetime = 1 * time.Hour
	DBMaxIdleTime     = 10 * time.Minute
)

const (
	ShutdownTimeout = 5 * time.Second
)
