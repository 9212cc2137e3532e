package core

import (
	"encoding/json"

	"github.com/dkeye/roulette/internal/domain"
	"github.com/pion/webrtc/v4"
)

// Outbound event types.
const (
	EventRegistered      = "registered"
	EventSearching       = "searching"
	EventSearchCancelled = "search_cancelled"
	EventNoMatch         = "no_match"
	EventMatched         = "matched"
	EventSignal          = "signal"
	EventSessionEnded    = "session_ended"
	EventHeartbeatAck    = "heartbeat_ack"
	EventPong            = "pong"
	EventPresenceCount   = "presence_count"
	EventWhoAmI          = "whoami"
	EventError           = "error"
)

// Session end reasons.
const (
	ReasonEndedByPeer      = "ended by peer"
	ReasonPeerDisconnected = "peer disconnected"
	ReasonConnectionLost   = "connection lost"
	ReasonPeerReconnected  = "peer reconnected"
	ReasonReplaced         = "replaced by new connection"
)

type Registered struct {
	Type         string              `json:"type"`
	PeerID       domain.PeerID       `json:"peerId"`
	ConnectionID domain.ConnectionID `json:"connectionId"`
}

type NoMatch struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type Matched struct {
	Type        string             `json:"type"`
	SessionID   domain.SessionID   `json:"sessionId"`
	IsInitiator bool               `json:"isInitiator"`
	Peer        domain.PublicInfo  `json:"peer"`
	ICEServers  []webrtc.ICEServer `json:"iceServers,omitempty"`
}

type Signal struct {
	Type       string           `json:"type"`
	SessionID  domain.SessionID `json:"sessionId"`
	FromPeerID domain.PeerID    `json:"fromPeerId"`
	Payload    json.RawMessage  `json:"payload"`
}

type SessionEnded struct {
	Type      string           `json:"type"`
	SessionID domain.SessionID `json:"sessionId"`
	Reason    string           `json:"reason"`
}

// PresenceCount is broadcast on every presence change.
type PresenceCount struct {
	Type      string `json:"type"`
	Total     int    `json:"total"`
	Searching int    `json:"searching"`
	InSession int    `json:"inSession"`
	Idle      int    `json:"idle"`
}

type WhoAmI struct {
	Type      string           `json:"type"`
	PeerID    domain.PeerID    `json:"peerId"`
	Status    domain.Status    `json:"status"`
	SessionID domain.SessionID `json:"sessionId,omitempty"`
}

type Error struct {
	Type    string `json:"type"`
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// Ack is a bare {"type": ...} event.
type Ack struct {
	Type string `json:"type"`
}

func Encode(v any) (Frame, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return Frame(b), nil
}
