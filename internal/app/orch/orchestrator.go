package orch

import (
	"github.com/dkeye/roulette/internal/app"
	"github.com/dkeye/roulette/internal/core"
	"github.com/dkeye/roulette/internal/domain"
	"github.com/rs/zerolog/log"
)

// Orchestrator is the event surface the gateway calls into.
type Orchestrator struct {
	Registry   *app.Registry
	Matchmaker *app.Matchmaker
	Relay      *app.SessionRelay
	Presence   *app.Broadcaster
	Policy     app.Policy
}

// Register admits id on conn. A previous connection holding a session has
// that session ended, is told so, and is closed.
func (o *Orchestrator) Register(
	id domain.PeerID,
	connID domain.ConnectionID,
	conn core.SignalConnection,
	meta domain.Metadata,
) error {
	adm, err := o.Registry.Admit(id, connID, conn, meta)
	if err != nil {
		return err
	}
	if prev := adm.Replaced; prev != nil {
		o.Matchmaker.StopSearch(id)
		if adm.Ended != nil {
			o.Relay.NotifyReplaced(*adm.Ended, prev.ConnectionID)
		}
		prev.Conn.Close()
		log.Info().Str("module", "orch").Str("peer", string(id)).Str("old_conn", string(prev.ConnectionID)).Msg("replaced connection")
	}
	_ = o.send(conn, core.Registered{Type: core.EventRegistered, PeerID: id, ConnectionID: connID})
	o.Presence.Publish()
	return nil
}

// Touch records activity for id while connID owns it.
func (o *Orchestrator) Touch(id domain.PeerID, connID domain.ConnectionID) bool {
	if !o.Registry.Owns(id, connID) {
		return false
	}
	return o.Registry.Touch(id)
}

// Owns reports whether connID is the live connection for id.
func (o *Orchestrator) Owns(id domain.PeerID, connID domain.ConnectionID) bool {
	return o.Registry.Owns(id, connID)
}

func (o *Orchestrator) Disconnect(id domain.PeerID, connID domain.ConnectionID) {
	o.Relay.OnDisconnect(id, connID)
}

func (o *Orchestrator) WhoAmI(id domain.PeerID) (core.WhoAmI, bool) {
	snap, ok := o.Registry.Get(id)
	if !ok {
		return core.WhoAmI{}, false
	}
	return core.WhoAmI{
		Type:      core.EventWhoAmI,
		PeerID:    snap.ID,
		Status:    snap.Status,
		SessionID: snap.SessionID,
	}, true
}

func (o *Orchestrator) Stats() app.Counts {
	return o.Registry.Snapshot()
}

// Shutdown stops all pending searches.
func (o *Orchestrator) Shutdown() {
	o.Matchmaker.Close()
}

func (o *Orchestrator) send(conn core.SignalConnection, v any) error {
	f, err := core.Encode(v)
	if err != nil {
		return err
	}
	return conn.TrySend(f)
}
