package signal

import (
	"context"
	"encoding/json"

	"github.com/dkeye/roulette/internal/domain"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleStartSearch(ctx context.Context, c *WsSignalConn) {
	if !ctl.registered(c) {
		return
	}
	if err := ctl.Orch.StartSearch(ctx, c.peer); err != nil {
		log.Info().Err(err).Str("module", "signal").Str("peer", string(c.peer)).Msg("start_search rejected")
		ctl.sendError(c, errorCode(err), err.Error())
	}
}

func (ctl *SignalWSController) handleCancelSearch(c *WsSignalConn, data []byte) {
	if !ctl.registered(c) {
		return
	}
	var p struct {
		PeerID string `json:"peerId"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(c, "bad_payload", "invalid cancel_search")
		return
	}
	if p.PeerID != "" && domain.PeerID(p.PeerID) != c.peer {
		ctl.sendError(c, "peer_mismatch", "cannot cancel another peer's search")
		return
	}
	if err := ctl.Orch.CancelSearch(c.peer); err != nil {
		ctl.sendError(c, errorCode(err), err.Error())
	}
}
