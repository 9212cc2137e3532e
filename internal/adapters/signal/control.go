package signal

import "github.com/dkeye/roulette/internal/core"

func (ctl *SignalWSController) handlePing(c *WsSignalConn) {
	ctl.sendJSON(c, core.Ack{Type: core.EventPong})
}

// handleHeartbeat acks even unregistered connections; the touch already
// happened in handleSignal.
func (ctl *SignalWSController) handleHeartbeat(c *WsSignalConn) {
	ctl.sendJSON(c, core.Ack{Type: core.EventHeartbeatAck})
}

func (ctl *SignalWSController) handleWhoAmI(c *WsSignalConn) {
	if !ctl.registered(c) {
		return
	}
	resp, ok := ctl.Orch.WhoAmI(c.peer)
	if !ok {
		ctl.sendError(c, "not_registered", "")
		return
	}
	ctl.sendJSON(c, resp)
}
