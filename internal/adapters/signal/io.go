package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dkeye/roulette/internal/core"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const writeWait = 5 * time.Second

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Str("conn", string(c.id)).Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				log.Debug().Str("module", "signal").Str("conn", string(c.id)).Msg("writePump channel closed")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Str("conn", string(c.id)).Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Warn().Err(err).Str("module", "signal").Str("conn", string(c.id)).Msg("writePump ping error")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("conn", string(c.id)).Str("peer", string(c.peer)).Msg("readPump closing")
		if c.peer != "" {
			ctl.Orch.Disconnect(c.peer, c.id)
		}
		c.Close()
	}()

	pongWait := ctl.opts.PingPeriod * 10 / 9
	c.conn.SetReadLimit(ctl.opts.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	limiter := newMessageLimiter(ctl.opts.MaxMessagesPerSecond, ctl.opts.MessageBurst)
	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Str("conn", string(c.id)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Warn().Err(err).Str("module", "signal").Str("conn", string(c.id)).Msg("readPump read error")
				}
				return
			}
			_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
			if !limiter.Allow() {
				ctl.sendError(c, "rate_limited", "too many messages")
				continue
			}
			ctl.handleSignal(ctx, c, data)
		}
	}
}

func (ctl *SignalWSController) handleSignal(ctx context.Context, c *WsSignalConn, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad json")
		ctl.sendError(c, "bad_payload", "invalid json")
		return
	}
	if c.peer != "" {
		ctl.Orch.Touch(c.peer, c.id)
	}

	switch env.Type {
	case "register":
		ctl.handleRegister(c, data)
	case "start_search":
		ctl.handleStartSearch(ctx, c)
	case "cancel_search":
		ctl.handleCancelSearch(c, data)
	case "signal":
		ctl.handleRelay(c, data)
	case "end_session":
		ctl.handleEndSession(c, data)
	case "heartbeat":
		ctl.handleHeartbeat(c)
	case "ping":
		ctl.handlePing(c)
	case "whoami":
		ctl.handleWhoAmI(c)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
		ctl.sendError(c, "unknown_type", env.Type)
	}
}

// registered reports whether c holds a live registration, replying with an
// error otherwise.
func (ctl *SignalWSController) registered(c *WsSignalConn) bool {
	if c.peer != "" && ctl.Orch.Owns(c.peer, c.id) {
		return true
	}
	ctl.sendError(c, "not_registered", "send register first")
	return false
}

func (ctl *SignalWSController) sendJSON(c *WsSignalConn, v any) {
	f, err := core.Encode(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(f)
}

func (ctl *SignalWSController) sendError(c *WsSignalConn, code, msg string) {
	ctl.sendJSON(c, core.Error{Type: core.EventError, Error: code, Message: msg})
}
