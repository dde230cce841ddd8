package live

import (
	"sync"

	"github.com/rs/zerolog"
)

// Registry owns one polling session per watched identity. Sessions are torn
// down individually when their view closes, or all at once on shutdown; no
// timer outlives its owner.
type Registry struct {
	upstream Upstream
	logger   zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry(upstream Upstream, logger zerolog.Logger) *Registry {
	return &Registry{
		upstream: upstream,
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

// Watch returns the session for puuid, starting one if absent.
func (r *Registry) Watch(puuid, region string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[puuid]; ok {
		return s
	}

	s := NewSession(r.upstream, puuid, region, r.logger)
	r.sessions[puuid] = s
	s.Start()
	r.logger.Info().Str("puuid", puuid).Str("region", region).Msg("live status session started")
	return s
}

// Unwatch stops and removes the session for puuid, if any.
func (r *Registry) Unwatch(puuid string) {
	r.mu.Lock()
	s, ok := r.sessions[puuid]
	delete(r.sessions, puuid)
	r.mu.Unlock()

	if ok {
		s.Stop()
		r.logger.Info().Str("puuid", puuid).Msg("live status session stopped")
	}
}

// Close stops every session.
func (r *Registry) Close() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range sessions {
		s.Stop()
	}
}
