package app

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/roulette/internal/core"
	"github.com/dkeye/roulette/internal/domain"
)

var errFakeClosed = errors.New("fake conn closed")

// fakeConn records every frame it is asked to send.
type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
	closed bool
	full   bool
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errFakeClosed
	}
	if c.full {
		return ErrBackpressure
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) Alive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

type event struct {
	Type        string            `json:"type"`
	SessionID   domain.SessionID  `json:"sessionId"`
	IsInitiator bool              `json:"isInitiator"`
	Peer        domain.PublicInfo `json:"peer"`
	FromPeerID  domain.PeerID     `json:"fromPeerId"`
	Payload     json.RawMessage   `json:"payload"`
	Reason      string            `json:"reason"`
	Message     string            `json:"message"`
	Total       int               `json:"total"`
}

func (c *fakeConn) events(t *testing.T, typ string) []event {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []event
	for _, f := range c.frames {
		var e event
		if err := json.Unmarshal(f, &e); err != nil {
			t.Fatalf("bad frame %s: %v", f, err)
		}
		if typ == "" || e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testSystem struct {
	clock      *testClock
	reg        *Registry
	presence   *Broadcaster
	matchmaker *Matchmaker
	relay      *SessionRelay
	sweeper    *Sweeper
}

func newTestSystem(t *testing.T, interval time.Duration) *testSystem {
	t.Helper()
	clock := newTestClock()
	reg := NewRegistry(WithClock(clock.Now))
	presence := NewBroadcaster(reg, nil)
	mm := NewMatchmaker(reg, presence, interval, nil, nil)
	relay := NewSessionRelay(reg, presence, mm, SimplePolicy{}, nil)
	sw := NewSweeper(reg, relay, time.Hour, 120*time.Second)
	sw.now = clock.Now
	t.Cleanup(mm.Close)
	return &testSystem{clock: clock, reg: reg, presence: presence, matchmaker: mm, relay: relay, sweeper: sw}
}

// admit registers id on a fresh fake connection.
func (s *testSystem) admit(t *testing.T, id domain.PeerID) *fakeConn {
	t.Helper()
	conn := &fakeConn{}
	if _, err := s.reg.Admit(id, domain.ConnectionID("conn-"+string(id)), conn, domain.Metadata{DisplayName: string(id)}); err != nil {
		t.Fatalf("admit %s: %v", id, err)
	}
	return conn
}

func (s *testSystem) search(t *testing.T, id domain.PeerID) {
	t.Helper()
	if _, err := s.reg.SetSearching(id, true); err != nil {
		t.Fatalf("search %s: %v", id, err)
	}
}

// pair puts a and b into one session with a as initiator.
func (s *testSystem) pair(t *testing.T, a, b domain.PeerID) domain.Session {
	t.Helper()
	s.search(t, a)
	s.search(t, b)
	p, err := s.reg.Pair(a)
	if err != nil {
		t.Fatalf("pair %s/%s: %v", a, b, err)
	}
	return p.Session
}

func mustStatus(t *testing.T, reg *Registry, id domain.PeerID, want domain.Status) domain.Peer {
	t.Helper()
	snap, ok := reg.Get(id)
	if !ok {
		t.Fatalf("peer %s missing", id)
	}
	if snap.Status != want {
		t.Fatalf("peer %s status = %s, want %s", id, snap.Status, want)
	}
	return snap.Peer
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
