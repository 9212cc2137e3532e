package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type SessionID string

// Session is a matched pair. MemberA is the initiator of the handshake.
type Session struct {
	ID        SessionID
	MemberA   PeerID
	MemberB   PeerID
	CreatedAt time.Time
}

// NewSessionID is time plus a random suffix; no global ordering is implied.
func NewSessionID(now time.Time) SessionID {
	return SessionID(fmt.Sprintf("%d-%s", now.UnixMilli(), uuid.NewString()[:8]))
}

func (s Session) Has(id PeerID) bool {
	return id != "" && (s.MemberA == id || s.MemberB == id)
}

// Other returns the member that is not id.
func (s Session) Other(id PeerID) (PeerID, bool) {
	switch id {
	case s.MemberA:
		return s.MemberB, true
	case s.MemberB:
		return s.MemberA, true
	}
	return "", false
}
