package live

import (
	"context"
	"sync"
	"time"

	"lol-dashboard/internal/api"
	"lol-dashboard/internal/constants"
	"lol-dashboard/internal/domain"

	"github.com/rs/zerolog"
)

// Upstream is the slice of the provider the poller needs.
type Upstream interface {
	GetActiveGame(ctx context.Context, puuid, region string) (*api.ActiveGameResponse, error)
}

// Session polls one identity's "currently in a match" flag on an adaptive
// interval: 30s while idle, 60s once a match is established. A transport
// failure reports not-in-match rather than retaining a stale positive, and
// polling continues on schedule. While in a match an in-memory elapsed
// counter advances at 1s granularity, purely for display.
type Session struct {
	upstream Upstream
	logger   zerolog.Logger

	puuid  string
	region string

	idleInterval   time.Duration
	inGameInterval time.Duration
	elapsedTick    time.Duration

	mu      sync.Mutex
	inMatch bool
	elapsed time.Duration

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func NewSession(upstream Upstream, puuid, region string, logger zerolog.Logger) *Session {
	return &Session{
		upstream:       upstream,
		logger:         logger,
		puuid:          puuid,
		region:         region,
		idleInterval:   constants.IdlePollInterval,
		inGameInterval: constants.InGamePollInterval,
		elapsedTick:    constants.ElapsedTick,
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}
}

// Start launches the polling loop. The first poll fires immediately.
func (s *Session) Start() {
	go s.run()
}

func (s *Session) run() {
	defer close(s.done)

	s.poll()

	timer := time.NewTimer(s.interval())
	defer timer.Stop()
	ticker := time.NewTicker(s.elapsedTick)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.mu.Lock()
			if s.inMatch {
				s.elapsed += s.elapsedTick
			}
			s.mu.Unlock()
		case <-timer.C:
			s.poll()
			timer.Reset(s.interval())
		}
	}
}

func (s *Session) poll() {
	ctx, cancel := context.WithTimeout(context.Background(), constants.ExternalAPITimeout)
	defer cancel()

	resp, err := s.upstream.GetActiveGame(ctx, s.puuid, s.region)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		// Conservative default: never keep a stale "in a match" flag.
		s.logger.Warn().Err(err).Str("puuid", s.puuid).Msg("live status poll failed, reporting not in match")
		s.inMatch = false
		s.elapsed = 0
		return
	}

	if resp.Active && !s.inMatch {
		s.elapsed = time.Duration(resp.GameLengthSec) * time.Second
		s.logger.Info().Str("puuid", s.puuid).Str("queue", resp.Queue).Msg("player entered a match")
	}
	if !resp.Active {
		s.elapsed = 0
	}
	s.inMatch = resp.Active
}

func (s *Session) interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inMatch {
		return s.inGameInterval
	}
	return s.idleInterval
}

// Status returns the current flag plus the display counter.
func (s *Session) Status() domain.LiveStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.LiveStatus{
		InMatch:    s.inMatch,
		ElapsedSec: int(s.elapsed / time.Second),
	}
}

// Stop tears the timers down and waits for the loop to exit. Safe to call
// more than once.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	<-s.done
}
