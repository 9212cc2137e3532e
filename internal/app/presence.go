package app

import (
	"github.com/dkeye/roulette/internal/core"
	"github.com/dkeye/roulette/internal/metrics"
	"github.com/rs/zerolog/log"
)

// Broadcaster pushes presence counts to every registered connection.
type Broadcaster struct {
	registry *Registry
	metrics  *metrics.Metrics
}

func NewBroadcaster(reg *Registry, m *metrics.Metrics) *Broadcaster {
	return &Broadcaster{registry: reg, metrics: m}
}

func (b *Broadcaster) Publish() {
	if b == nil {
		return
	}
	c := b.registry.Snapshot()
	b.metrics.SetPresence(c.Searching, c.InSession, c.Idle, c.Sessions)

	f, err := core.Encode(core.PresenceCount{
		Type:      core.EventPresenceCount,
		Total:     c.Total,
		Searching: c.Searching,
		InSession: c.InSession,
		Idle:      c.Idle,
	})
	if err != nil {
		log.Error().Err(err).Str("module", "app.presence").Msg("encode presence")
		return
	}
	dropped := 0
	for _, conn := range b.registry.Connections() {
		if err := conn.TrySend(f); err != nil {
			dropped++
		}
	}
	log.Debug().Str("module", "app.presence").Int("total", c.Total).Int("dropped", dropped).Msg("presence broadcast")
}

// send encodes v and queues it on conn. Errors are logged and returned.
func send(conn core.SignalConnection, v any) error {
	if conn == nil {
		return nil
	}
	f, err := core.Encode(v)
	if err != nil {
		log.Error().Err(err).Str("module", "app").Msg("encode event")
		return err
	}
	if err := conn.TrySend(f); err != nil {
		log.Warn().Err(err).Str("module", "app").Msg("send event")
		return err
	}
	return nil
}
