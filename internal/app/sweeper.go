package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Sweeper evicts peers whose last activity is older than staleAfter.
type Sweeper struct {
	registry   *Registry
	relay      *SessionRelay
	interval   time.Duration
	staleAfter time.Duration
	now        func() time.Time
}

func NewSweeper(reg *Registry, relay *SessionRelay, interval, staleAfter time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if staleAfter <= 0 {
		staleAfter = 120 * time.Second
	}
	return &Sweeper{
		registry:   reg,
		relay:      relay,
		interval:   interval,
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

// Run sweeps on every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	log.Info().Str("module", "app.sweeper").Dur("interval", s.interval).Dur("stale_after", s.staleAfter).Msg("sweeper started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "app.sweeper").Msg("sweeper stopped")
			return nil
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Sweep runs one pass and returns the number of evicted peers.
func (s *Sweeper) Sweep() int {
	cutoff := s.now().Add(-s.staleAfter)
	evicted := 0
	for _, p := range s.registry.AllPeers() {
		if !p.LastActivity.Before(cutoff) {
			continue
		}
		if s.relay.Evict(p, cutoff) {
			evicted++
		}
	}
	if evicted > 0 {
		log.Info().Str("module", "app.sweeper").Int("evicted", evicted).Msg("sweep done")
	}
	return evicted
}
