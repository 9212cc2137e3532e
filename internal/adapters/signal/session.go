package signal

import (
	"encoding/json"
	"errors"

	"github.com/dkeye/roulette/internal/app"
	"github.com/dkeye/roulette/internal/domain"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleRelay(c *WsSignalConn, data []byte) {
	if !ctl.registered(c) {
		return
	}
	var p struct {
		SessionID string          `json:"sessionId"`
		Payload   json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(c, "bad_payload", "invalid signal")
		return
	}
	if p.SessionID == "" {
		ctl.sendError(c, "bad_payload", "missing sessionId")
		return
	}
	if len(p.Payload) == 0 || string(p.Payload) == "null" {
		ctl.sendError(c, "bad_payload", "missing payload")
		return
	}
	if err := ctl.Orch.Signal(c.peer, domain.SessionID(p.SessionID), p.Payload); err != nil {
		log.Debug().Err(err).Str("module", "signal").Str("peer", string(c.peer)).Msg("relay failed")
		ctl.sendError(c, errorCode(err), err.Error())
	}
}

func (ctl *SignalWSController) handleEndSession(c *WsSignalConn, data []byte) {
	if !ctl.registered(c) {
		return
	}
	var p struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(c, "bad_payload", "invalid end_session")
		return
	}
	if err := ctl.Orch.EndSession(c.peer, domain.SessionID(p.SessionID)); err != nil {
		ctl.sendError(c, errorCode(err), err.Error())
	}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, app.ErrPeerNotFound):
		return "not_registered"
	case errors.Is(err, app.ErrSessionNotFound):
		return "session_not_found"
	case errors.Is(err, app.ErrNotMember):
		return "not_member"
	case errors.Is(err, app.ErrPartnerGone):
		return "partner_gone"
	case errors.Is(err, app.ErrBackpressure):
		return "delivery_failed"
	case errors.Is(err, app.ErrInSession):
		return "in_session"
	case errors.Is(err, app.ErrSearchDenied):
		return "search_not_allowed"
	case errors.Is(err, app.ErrInvalidPeer):
		return "bad_payload"
	default:
		return "internal"
	}
}
