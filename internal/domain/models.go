package domain

import (
	"time"
)

// IdentityRecord maps a Riot ID (name#tag in a region) to the stable PUUID
// issued by the upstream. Immutable once resolved; a PUUID never changes.
type IdentityRecord struct {
	StableID      string    `json:"stable_id"`
	Name          string    `json:"name"`
	TagLine       string    `json:"tag_line"`
	Region        string    `json:"region"`
	ProfileIconID int       `json:"profile_icon_id"`
	Level         int       `json:"level"`
	Rank          string    `json:"rank,omitempty"`
	ResolvedAt    time.Time `json:"resolved_at"`
}

type AnalysisState string

const (
	AnalysisNotStarted AnalysisState = "not_started"
	AnalysisProcessing AnalysisState = "processing"
	AnalysisCompleted  AnalysisState = "completed"
	AnalysisFailed     AnalysisState = "failed"
)

// MatchRecord is a frozen fact about a finished game. Only the analysis
// fields change after creation, as a projection of the matching AnalysisJob.
type MatchRecord struct {
	MatchID     string    `json:"match_id"`
	Champion    string    `json:"champion"`
	Queue       string    `json:"queue"`
	Win         bool      `json:"win"`
	Kills       int       `json:"kills"`
	Deaths      int       `json:"deaths"`
	Assists     int       `json:"assists"`
	DamageDealt int       `json:"damage_dealt"`
	DamageTaken int       `json:"damage_taken"`
	GoldEarned  int       `json:"gold_earned"`
	DurationSec int       `json:"duration_sec"`
	StartedAt   time.Time `json:"started_at"`

	AnalysisState AnalysisState `json:"analysis_state"`
	AnalysisJobID string        `json:"analysis_job_id,omitempty"`
	Score         int           `json:"score,omitempty"`
	ErrorCount    int           `json:"error_count,omitempty"`
}

type AggregateStats struct {
	TotalMatches int     `json:"total_matches"`
	Wins         int     `json:"wins"`
	Losses       int     `json:"losses"`
	WinRate      float64 `json:"win_rate"`
	KDRatio      float64 `json:"kd_ratio"`
	AvgKills     float64 `json:"avg_kills"`
	AvgDeaths    float64 `json:"avg_deaths"`
	AvgAssists   float64 `json:"avg_assists"`
}

// DashboardSnapshot is the session-tier cache unit: one identity's summary,
// its loaded match history so far, and the aggregate stats. Matches grows
// monotonically via loadMore; CapturedAt resets on every successful fetch.
type DashboardSnapshot struct {
	Identity   *IdentityRecord `json:"identity"`
	Matches    []MatchRecord   `json:"matches"`
	Aggregates *AggregateStats `json:"aggregates"`
	HasMore    bool            `json:"has_more"`
	CapturedAt time.Time       `json:"captured_at"`
}

// PlayerPopup is the small per-player hover summary, cached session-tier
// under its own key.
type PlayerPopup struct {
	Identity   *IdentityRecord `json:"identity"`
	Aggregates *AggregateStats `json:"aggregates"`
	CapturedAt time.Time       `json:"captured_at"`
}

type AnalysisMistake struct {
	AtSec       int    `json:"at_sec"`
	Severity    string `json:"severity"`
	Description string `json:"description"`
}

type AnalysisResult struct {
	MatchID     string            `json:"match_id"`
	Score       int               `json:"score"`
	ErrorCount  int               `json:"error_count"`
	Summary     string            `json:"summary"`
	Mistakes    []AnalysisMistake `json:"mistakes,omitempty"`
	GeneratedAt time.Time         `json:"generated_at"`
}

// AnalysisJob tracks one credit-gated analysis lifecycle for a match.
// CreditConsumed is set true only after the ledger confirms consumption.
type AnalysisJob struct {
	ID             string          `json:"id"`
	MatchID        string          `json:"match_id"`
	State          AnalysisState   `json:"state"`
	CreditConsumed bool            `json:"credit_consumed"`
	Result         *AnalysisResult `json:"result,omitempty"`
	StartedAt      time.Time       `json:"started_at"`
}

// LiveStatus is the poller's exposed view: a single flag plus the in-memory
// elapsed counter used for display while in a match.
type LiveStatus struct {
	InMatch    bool `json:"in_match"`
	ElapsedSec int  `json:"elapsed_sec"`
}
