package orch

import (
	"context"

	"github.com/dkeye/roulette/internal/app"
	"github.com/dkeye/roulette/internal/core"
	"github.com/dkeye/roulette/internal/domain"
	"github.com/rs/zerolog/log"
)

// StartSearch marks id as searching and starts its match loop. The loop is
// bound to ctx, normally the connection context.
func (o *Orchestrator) StartSearch(ctx context.Context, id domain.PeerID) error {
	snap, ok := o.Registry.Get(id)
	if !ok {
		return app.ErrPeerNotFound
	}
	if snap.Status == domain.StatusInSession {
		return app.ErrInSession
	}
	if o.Policy != nil && !o.Policy.AllowSearch(snap.Peer) {
		log.Info().Str("module", "orch").Str("peer", string(id)).Msg("search denied by policy")
		return app.ErrSearchDenied
	}
	changed, err := o.Registry.SetSearching(id, true)
	if err != nil {
		return err
	}
	_ = o.send(snap.Conn, core.Ack{Type: core.EventSearching})
	if changed {
		o.Presence.Publish()
	}
	o.Matchmaker.StartSearch(ctx, id)
	return nil
}

func (o *Orchestrator) CancelSearch(id domain.PeerID) error {
	snap, ok := o.Registry.Get(id)
	if !ok {
		return app.ErrPeerNotFound
	}
	changed, err := o.Registry.SetSearching(id, false)
	if err != nil {
		return err
	}
	o.Matchmaker.StopSearch(id)
	_ = o.send(snap.Conn, core.Ack{Type: core.EventSearchCancelled})
	if changed {
		o.Presence.Publish()
	}
	return nil
}
