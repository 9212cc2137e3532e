package signal

import (
	"encoding/json"

	"github.com/dkeye/roulette/internal/domain"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleRegister(c *WsSignalConn, data []byte) {
	type registerPayload struct {
		Type        string `json:"type"`
		PeerID      string `json:"peerId"`
		DisplayName string `json:"displayName"`
		Handle      string `json:"handle"`
	}
	var p registerPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad register payload")
		ctl.sendError(c, "bad_payload", "invalid register")
		return
	}
	raw := p.PeerID
	if raw == "" {
		raw = c.token
	}
	id, err := domain.ParsePeerID(raw)
	if err != nil {
		ctl.sendError(c, "bad_payload", err.Error())
		return
	}
	meta, err := domain.NewMetadata(p.DisplayName, p.Handle)
	if err != nil {
		ctl.sendError(c, "bad_payload", err.Error())
		return
	}

	// Switching identity on one connection drops the old one first.
	if c.peer != "" && c.peer != id {
		ctl.Orch.Disconnect(c.peer, c.id)
	}
	if err := ctl.Orch.Register(id, c.id, c, meta); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("peer", string(id)).Msg("register")
		ctl.sendError(c, errorCode(err), err.Error())
		return
	}
	c.peer = id
	log.Info().Str("module", "signal").Str("peer", string(id)).Str("conn", string(c.id)).Msg("registered")
}
