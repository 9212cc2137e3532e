package app

import "github.com/dkeye/roulette/internal/domain"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropFrame
	KickPeer
)

// Policy is the hook for external gating (subscriptions, payments) and for
// slow consumers.
type Policy interface {
	AllowSearch(peer domain.Peer) bool
	OnBackPressure(peer domain.PeerID) BackpressureAction
}

type SimplePolicy struct{}

func (SimplePolicy) AllowSearch(domain.Peer) bool { return true }

func (SimplePolicy) OnBackPressure(domain.PeerID) BackpressureAction {
	return KickPeer
}
