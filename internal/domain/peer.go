// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"time"
)

const (
	MaxPeerIDLen      = 64
	MaxDisplayNameLen = 64
	MaxHandleLen      = 64
)

var (
	ErrPeerIDEmpty        = errors.New("peer id empty")
	ErrPeerIDTooLong      = errors.New("peer id too long")
	ErrDisplayNameTooLong = errors.New("display name too long")
	ErrHandleTooLong      = errors.New("handle too long")
)

type (
	PeerID       string
	ConnectionID string
)

type Status int

const (
	StatusIdle Status = iota
	StatusSearching
	StatusInSession
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusSearching:
		return "searching"
	case StatusInSession:
		return "in_session"
	default:
		return "unknown"
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Metadata is display info supplied at registration. Opaque to matching.
type Metadata struct {
	DisplayName string `json:"displayName,omitempty"`
	Handle      string `json:"handle,omitempty"`
}

func NewMetadata(displayName, handle string) (Metadata, error) {
	if len(displayName) > MaxDisplayNameLen {
		return Metadata{}, ErrDisplayNameTooLong
	}
	if len(handle) > MaxHandleLen {
		return Metadata{}, ErrHandleTooLong
	}
	return Metadata{DisplayName: displayName, Handle: handle}, nil
}

func ParsePeerID(raw string) (PeerID, error) {
	if len(raw) == 0 {
		return "", ErrPeerIDEmpty
	}
	if len(raw) > MaxPeerIDLen {
		return "", ErrPeerIDTooLong
	}
	return PeerID(raw), nil
}

// Peer is one online participant.
type Peer struct {
	ID           PeerID
	ConnectionID ConnectionID
	Meta         Metadata
	Status       Status
	SessionID    SessionID
	LastActivity time.Time
	// NotifiedNoMatch suppresses repeated no_match notices during one search.
	NotifiedNoMatch bool
}

// PublicInfo is what the partner sees in a matched event.
type PublicInfo struct {
	PeerID      PeerID `json:"peerId"`
	DisplayName string `json:"displayName,omitempty"`
	Handle      string `json:"handle,omitempty"`
}

func (p Peer) Public() PublicInfo {
	return PublicInfo{PeerID: p.ID, DisplayName: p.Meta.DisplayName, Handle: p.Meta.Handle}
}
