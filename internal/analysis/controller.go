package analysis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"lol-dashboard/internal/api"
	"lol-dashboard/internal/cache"
	"lol-dashboard/internal/domain"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

// Ledger is the credit ledger surface the controller consumes. ConsumeCredit
// is the single point of truth for whether a credit was spent.
type Ledger interface {
	GetBalance(ctx context.Context, userID string) (int, error)
	ConsumeCredit(ctx context.Context, userID string) (*api.ConsumeResponse, error)
}

type Compute interface {
	SubmitAnalysis(ctx context.Context, matchID string, identity *domain.IdentityRecord) (*domain.AnalysisResult, error)
}

// Controller drives one analysis job per match through
// NotStarted -> Processing -> Completed|Failed. At most one job per match is
// processing at a time; a duplicate start is rejected locally before any
// network call. Completed results live in the memory tier for the page
// session, independent of the snapshot TTL.
type Controller struct {
	ledger  Ledger
	compute Compute
	cache   *cache.Manager
	logger  zerolog.Logger

	// retryFailed lets a failed job go back to NotStarted on a new user
	// action. Off by default: whether a failed job that already consumed a
	// credit should be retryable is an open product decision.
	retryFailed bool

	mu       sync.Mutex
	jobs     map[string]*domain.AnalysisJob
	inFlight map[string]bool
}

var errAlreadyCompleted = errors.New("analysis already completed")

func NewController(ledger Ledger, compute Compute, cacheMgr *cache.Manager, retryFailed bool, logger zerolog.Logger) *Controller {
	return &Controller{
		ledger:      ledger,
		compute:     compute,
		cache:       cacheMgr,
		logger:      logger,
		retryFailed: retryFailed,
		jobs:        make(map[string]*domain.AnalysisJob),
		inFlight:    make(map[string]bool),
	}
}

// Start runs one analysis for matchID on behalf of userID. Step order is
// strict: optimistic Processing transition, credit consumption, blocking
// analysis submission, terminal transition. If consumption fails the
// optimistic transition is rolled back to NotStarted and the compute service
// is never called.
func (c *Controller) Start(ctx context.Context, matchID string, ident *domain.IdentityRecord, userID string) (*domain.AnalysisJob, error) {
	if userID == "" {
		return nil, domain.ErrUnauthorized
	}

	job, err := c.claim(matchID)
	if err == errAlreadyCompleted {
		// Completed results are kept for the page session; serve them
		// without spending another credit.
		return c.Job(matchID), nil
	}
	if err != nil {
		return c.Job(matchID), err
	}
	defer func() {
		c.mu.Lock()
		delete(c.inFlight, matchID)
		c.mu.Unlock()
	}()

	balance, err := c.ledger.GetBalance(ctx, userID)
	if err != nil {
		c.rollback(matchID)
		return c.Job(matchID), fmt.Errorf("failed to check balance: %w", err)
	}
	if balance <= 0 {
		// Surfaced so the host view can present the purchase flow; never
		// retried automatically.
		c.rollback(matchID)
		return c.Job(matchID), domain.ErrInsufficientCredits
	}

	consume, err := c.ledger.ConsumeCredit(ctx, userID)
	if err != nil || !consume.Success {
		c.rollback(matchID)
		c.logger.Warn().Err(err).Str("match_id", matchID).Str("user_id", userID).Msg("credit consumption failed, analysis not submitted")
		if err == nil {
			err = domain.ErrInsufficientCredits
		}
		return c.Job(matchID), err
	}

	c.mu.Lock()
	job.CreditConsumed = true
	c.mu.Unlock()
	c.logger.Info().Str("match_id", matchID).Int("remaining_balance", consume.RemainingBalance).Msg("credit consumed, submitting analysis")

	// Blocks until the compute service answers or fails; no client-side
	// timeout on this call.
	result, err := c.compute.SubmitAnalysis(ctx, matchID, ident)
	if err != nil {
		c.mu.Lock()
		job.State = domain.AnalysisFailed
		c.mu.Unlock()
		c.logger.Error().Err(err).Str("match_id", matchID).Msg("analysis failed after credit consumption")
		return c.Job(matchID), fmt.Errorf("analysis failed: %w", err)
	}

	if err := cache.SetJSON(ctx, c.cache, cache.TierMemory, cache.AnalysisKey(matchID), result, time.Now()); err != nil {
		c.logger.Warn().Err(err).Str("match_id", matchID).Msg("failed to cache analysis result")
	}

	c.mu.Lock()
	job.State = domain.AnalysisCompleted
	job.Result = result
	c.mu.Unlock()

	c.logger.Info().Str("match_id", matchID).Int("score", result.Score).Int("error_count", result.ErrorCount).Msg("analysis completed")
	return c.Job(matchID), nil
}

// claim takes the per-match in-flight slot and makes the optimistic
// Processing transition, all locally.
func (c *Controller) claim(matchID string) (*domain.AnalysisJob, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.inFlight[matchID] {
		return nil, domain.ErrAnalysisInFlight
	}

	if existing, ok := c.jobs[matchID]; ok {
		switch existing.State {
		case domain.AnalysisProcessing:
			return nil, domain.ErrAnalysisInFlight
		case domain.AnalysisCompleted:
			return nil, errAlreadyCompleted
		case domain.AnalysisFailed:
			if !c.retryFailed {
				return nil, domain.ErrAnalysisNotRetryable
			}
			existing.State = domain.AnalysisNotStarted
		}
	}

	id, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("failed to generate job id: %w", err)
	}

	job := &domain.AnalysisJob{
		ID:        id,
		MatchID:   matchID,
		State:     domain.AnalysisProcessing,
		StartedAt: time.Now(),
	}
	c.jobs[matchID] = job
	c.inFlight[matchID] = true
	return job, nil
}

// rollback undoes the optimistic transition. The rolled-back job reads as
// NotStarted, so a later user action can start cleanly.
func (c *Controller) rollback(matchID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if job, ok := c.jobs[matchID]; ok {
		job.State = domain.AnalysisNotStarted
		job.CreditConsumed = false
	}
}

// Job returns a copy of the tracked job for matchID, if any.
func (c *Controller) Job(matchID string) *domain.AnalysisJob {
	c.mu.Lock()
	defer c.mu.Unlock()
	job, ok := c.jobs[matchID]
	if !ok {
		return nil
	}
	copied := *job
	return &copied
}

// State returns the match's analysis state; NotStarted when untracked.
func (c *Controller) State(matchID string) domain.AnalysisState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if job, ok := c.jobs[matchID]; ok {
		return job.State
	}
	return domain.AnalysisNotStarted
}

// Result returns the cached result payload for matchID from the memory tier.
func (c *Controller) Result(ctx context.Context, matchID string) (*domain.AnalysisResult, bool) {
	return cache.GetJSON[domain.AnalysisResult](ctx, c.cache, cache.TierMemory, cache.AnalysisKey(matchID))
}

// Annotate projects job state onto match records before they are served.
// Everything else on a record is a frozen fact about a finished game.
func (c *Controller) Annotate(matches []domain.MatchRecord) []domain.MatchRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range matches {
		job, ok := c.jobs[matches[i].MatchID]
		if !ok {
			matches[i].AnalysisState = domain.AnalysisNotStarted
			continue
		}
		matches[i].AnalysisState = job.State
		matches[i].AnalysisJobID = job.ID
		if job.State == domain.AnalysisCompleted && job.Result != nil {
			matches[i].Score = job.Result.Score
			matches[i].ErrorCount = job.Result.ErrorCount
		}
	}
	return matches
}
