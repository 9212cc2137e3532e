package app

import "errors"

var (
	ErrInvalidPeer     = errors.New("invalid peer")
	ErrPeerNotFound    = errors.New("peer not found")
	ErrNotSearching    = errors.New("peer is not searching")
	ErrNoPartner       = errors.New("no eligible partner")
	ErrSessionNotFound = errors.New("session not found")
	ErrNotMember       = errors.New("peer is not a session member")
	ErrPartnerGone     = errors.New("session partner is gone")
	ErrInSession       = errors.New("already in session")
	ErrSearchDenied    = errors.New("search not allowed")
	ErrBackpressure    = errors.New("backpressure")
)
