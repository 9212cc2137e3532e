package orch

import (
	"encoding/json"

	"github.com/dkeye/roulette/internal/app"
	"github.com/dkeye/roulette/internal/core"
	"github.com/dkeye/roulette/internal/domain"
)

func (o *Orchestrator) Signal(id domain.PeerID, sid domain.SessionID, payload json.RawMessage) error {
	return o.Relay.Relay(id, sid, payload)
}

// EndSession ends sid, or the current session of id when sid is empty.
// Ending a session that no longer exists is a no-op.
func (o *Orchestrator) EndSession(id domain.PeerID, sid domain.SessionID) error {
	if sid == "" {
		snap, ok := o.Registry.Get(id)
		if !ok {
			return app.ErrPeerNotFound
		}
		sid = snap.SessionID
	}
	if sid == "" {
		return nil
	}
	o.Relay.EndSession(id, sid, core.ReasonEndedByPeer)
	return nil
}
