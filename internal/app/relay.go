package app

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dkeye/roulette/internal/core"
	"github.com/dkeye/roulette/internal/domain"
	"github.com/dkeye/roulette/internal/metrics"
	"github.com/rs/zerolog/log"
)

// SearchStopper cancels a peer's pending match attempts.
type SearchStopper interface {
	StopSearch(id domain.PeerID)
}

// SessionRelay forwards opaque signaling payloads between session members
// and owns every session teardown path.
type SessionRelay struct {
	registry *Registry
	presence *Broadcaster
	searches SearchStopper
	policy   Policy
	metrics  *metrics.Metrics
}

func NewSessionRelay(
	reg *Registry,
	presence *Broadcaster,
	searches SearchStopper,
	policy Policy,
	m *metrics.Metrics,
) *SessionRelay {
	if policy == nil {
		policy = SimplePolicy{}
	}
	return &SessionRelay{
		registry: reg,
		presence: presence,
		searches: searches,
		policy:   policy,
		metrics:  m,
	}
}

// Relay forwards payload unmodified to the other member of sid.
func (r *SessionRelay) Relay(from domain.PeerID, sid domain.SessionID, payload json.RawMessage) error {
	partner, orphaned, err := r.registry.Partner(from, sid)
	if orphaned != nil {
		r.notifyEnded(*orphaned, core.ReasonPeerDisconnected, "")
		r.metrics.SessionEnded(core.ReasonPeerDisconnected)
		r.presence.Publish()
	}
	if err != nil {
		return fmt.Errorf("relay %s: %w", sid, err)
	}

	f, err := core.Encode(core.Signal{
		Type:       core.EventSignal,
		SessionID:  sid,
		FromPeerID: from,
		Payload:    payload,
	})
	if err != nil {
		return fmt.Errorf("relay %s: %w", sid, err)
	}
	if err := partner.Conn.TrySend(f); err != nil {
		r.metrics.SignalDropped()
		log.Warn().Err(err).Str("module", "app.relay").Str("session", string(sid)).Str("to", string(partner.ID)).Msg("signal not delivered")
		switch r.policy.OnBackPressure(partner.ID) {
		case KickPeer:
			partner.Conn.Close()
		case DropFrame, NoAction:
		}
		return fmt.Errorf("relay %s to %s: %w", sid, partner.ID, ErrBackpressure)
	}
	r.metrics.SignalRelayed()
	return nil
}

// EndSession tears sid down on behalf of member id. It reports false when
// the session is already gone or id is not a member.
func (r *SessionRelay) EndSession(id domain.PeerID, sid domain.SessionID, reason string) bool {
	ended, ok := r.registry.EndSession(id, sid)
	if !ok {
		return false
	}
	r.notifyEnded(ended, reason, "")
	r.metrics.SessionEnded(reason)
	r.presence.Publish()
	return true
}

// OnDisconnect ends the session of id, if any, and removes the record while
// connID still owns it.
func (r *SessionRelay) OnDisconnect(id domain.PeerID, connID domain.ConnectionID) bool {
	_, ended, ok := r.registry.Disconnect(id, connID)
	if !ok {
		return false
	}
	r.searches.StopSearch(id)
	if ended != nil {
		r.notifyEnded(*ended, core.ReasonPeerDisconnected, id)
		r.metrics.SessionEnded(core.ReasonPeerDisconnected)
	}
	log.Info().Str("module", "app.relay").Str("peer", string(id)).Bool("had_session", ended != nil).Msg("peer disconnected")
	r.presence.Publish()
	return true
}

// Evict drops a peer whose last activity is before cutoff.
func (r *SessionRelay) Evict(p PeerSnapshot, cutoff time.Time) bool {
	snap, ended, ok := r.registry.Evict(p.ID, p.ConnectionID, cutoff)
	if !ok {
		return false
	}
	r.searches.StopSearch(snap.ID)
	if ended != nil {
		r.notifyEnded(*ended, core.ReasonConnectionLost, snap.ID)
		r.metrics.SessionEnded(core.ReasonConnectionLost)
	}
	snap.Conn.Close()
	r.metrics.StaleEvicted(1)
	log.Info().Str("module", "app.relay").Str("peer", string(snap.ID)).Msg("evicted stale peer")
	r.presence.Publish()
	return true
}

// notifyEnded sends session_ended to every remaining member except skip.
func (r *SessionRelay) notifyEnded(ended Ended, reason string, skip domain.PeerID) {
	for _, m := range ended.Members {
		if m.ID == skip {
			continue
		}
		_ = send(m.Conn, core.SessionEnded{
			Type:      core.EventSessionEnded,
			SessionID: ended.Session.ID,
			Reason:    reason,
		})
	}
}

// NotifyReplaced informs both sides of a session that was force-ended by a
// re-registration. The old connection learns it was replaced; the partner
// learns the peer reconnected.
func (r *SessionRelay) NotifyReplaced(ended Ended, oldConn domain.ConnectionID) {
	for _, m := range ended.Members {
		reason := core.ReasonPeerReconnected
		if m.ConnectionID == oldConn {
			reason = core.ReasonReplaced
		}
		_ = send(m.Conn, core.SessionEnded{
			Type:      core.EventSessionEnded,
			SessionID: ended.Session.ID,
			Reason:    reason,
		})
	}
	r.metrics.SessionEnded(core.ReasonPeerReconnected)
}
