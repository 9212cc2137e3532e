package orch

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/roulette/internal/app"
	"github.com/dkeye/roulette/internal/core"
	"github.com/dkeye/roulette/internal/domain"
)

type recConn struct {
	mu     sync.Mutex
	frames []core.Frame
	closed bool
}

func (c *recConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return app.ErrBackpressure
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *recConn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *recConn) Alive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

type frame struct {
	Type        string           `json:"type"`
	SessionID   domain.SessionID `json:"sessionId"`
	Reason      string           `json:"reason"`
	IsInitiator bool             `json:"isInitiator"`
	PeerID      domain.PeerID    `json:"peerId"`
}

func (c *recConn) ofType(t *testing.T, typ string) []frame {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []frame
	for _, raw := range c.frames {
		var f frame
		if err := json.Unmarshal(raw, &f); err != nil {
			t.Fatal(err)
		}
		if f.Type == typ {
			out = append(out, f)
		}
	}
	return out
}

type denyAll struct{ app.SimplePolicy }

func (denyAll) AllowSearch(domain.Peer) bool { return false }

func newOrchestrator(t *testing.T, policy app.Policy) *Orchestrator {
	t.Helper()
	reg := app.NewRegistry()
	presence := app.NewBroadcaster(reg, nil)
	mm := app.NewMatchmaker(reg, presence, time.Hour, nil, nil)
	relay := app.NewSessionRelay(reg, presence, mm, policy, nil)
	o := &Orchestrator{Registry: reg, Matchmaker: mm, Relay: relay, Presence: presence, Policy: policy}
	t.Cleanup(o.Shutdown)
	return o
}

func register(t *testing.T, o *Orchestrator, id domain.PeerID, connID domain.ConnectionID) *recConn {
	t.Helper()
	c := &recConn{}
	if err := o.Register(id, connID, c, domain.Metadata{DisplayName: string(id)}); err != nil {
		t.Fatalf("register %s: %v", id, err)
	}
	return c
}

func match(t *testing.T, o *Orchestrator) domain.SessionID {
	t.Helper()
	if err := o.StartSearch(t.Context(), "alice"); err != nil {
		t.Fatal(err)
	}
	if err := o.StartSearch(t.Context(), "bob"); err != nil {
		t.Fatal(err)
	}
	snap, ok := o.Registry.Get("alice")
	if !ok || snap.Status != domain.StatusInSession {
		t.Fatalf("alice not in session: %+v", snap.Peer)
	}
	return snap.SessionID
}

func TestRegisterSendsRegistered(t *testing.T) {
	o := newOrchestrator(t, app.SimplePolicy{})
	c := register(t, o, "alice", "c1")

	reg := c.ofType(t, core.EventRegistered)
	if len(reg) != 1 || reg[0].PeerID != "alice" {
		t.Fatalf("registered = %+v", reg)
	}
	if len(c.ofType(t, core.EventPresenceCount)) == 0 {
		t.Fatal("no presence broadcast")
	}
}

func TestReRegistrationEndsOldSession(t *testing.T) {
	o := newOrchestrator(t, app.SimplePolicy{})
	oldAlice := register(t, o, "alice", "c1")
	bob := register(t, o, "bob", "c2")
	sid := match(t, o)

	newAlice := register(t, o, "alice", "c3")

	if oldAlice.Alive() {
		t.Fatal("old connection not closed")
	}
	if e := oldAlice.ofType(t, core.EventSessionEnded); len(e) != 1 || e[0].Reason != core.ReasonReplaced {
		t.Fatalf("old connection session_ended = %+v", e)
	}
	if e := bob.ofType(t, core.EventSessionEnded); len(e) != 1 || e[0].Reason != core.ReasonPeerReconnected || e[0].SessionID != sid {
		t.Fatalf("bob session_ended = %+v", e)
	}
	if _, ok := o.Registry.Session(sid); ok {
		t.Fatal("old session still exists")
	}
	w, ok := o.WhoAmI("alice")
	if !ok || w.Status != domain.StatusIdle || w.SessionID != "" {
		t.Fatalf("whoami = %+v", w)
	}
	if len(newAlice.ofType(t, core.EventSessionEnded)) != 0 {
		t.Fatal("new connection should not see the old session end")
	}

	// the replaced connection's late disconnect must not remove the new record
	o.Disconnect("alice", "c1")
	if !o.Owns("alice", "c3") {
		t.Fatal("new connection lost its record")
	}
}

func TestStartSearchGuards(t *testing.T) {
	o := newOrchestrator(t, denyAll{})
	register(t, o, "alice", "c1")

	if err := o.StartSearch(t.Context(), "ghost"); !errors.Is(err, app.ErrPeerNotFound) {
		t.Fatalf("expected ErrPeerNotFound, got %v", err)
	}
	if err := o.StartSearch(t.Context(), "alice"); !errors.Is(err, app.ErrSearchDenied) {
		t.Fatalf("expected ErrSearchDenied, got %v", err)
	}
	snap, _ := o.Registry.Get("alice")
	if snap.Status != domain.StatusIdle {
		t.Fatalf("denied search changed status to %s", snap.Status)
	}
}

func TestStartSearchWhileInSession(t *testing.T) {
	o := newOrchestrator(t, app.SimplePolicy{})
	register(t, o, "alice", "c1")
	register(t, o, "bob", "c2")
	match(t, o)

	if err := o.StartSearch(t.Context(), "alice"); !errors.Is(err, app.ErrInSession) {
		t.Fatalf("expected ErrInSession, got %v", err)
	}
}

func TestCancelSearch(t *testing.T) {
	o := newOrchestrator(t, app.SimplePolicy{})
	c := register(t, o, "alice", "c1")
	if err := o.StartSearch(t.Context(), "alice"); err != nil {
		t.Fatal(err)
	}
	if len(c.ofType(t, core.EventSearching)) != 1 {
		t.Fatal("missing searching ack")
	}
	if err := o.CancelSearch("alice"); err != nil {
		t.Fatal(err)
	}
	if len(c.ofType(t, core.EventSearchCancelled)) != 1 {
		t.Fatal("missing search_cancelled ack")
	}
	if o.Matchmaker.Searching("alice") {
		t.Fatal("search loop still running")
	}
	if got := o.Stats(); got.Idle != 1 || got.Searching != 0 {
		t.Fatalf("stats = %+v", got)
	}
}

func TestEndSessionDefaultsToCurrent(t *testing.T) {
	o := newOrchestrator(t, app.SimplePolicy{})
	alice := register(t, o, "alice", "c1")
	bob := register(t, o, "bob", "c2")
	sid := match(t, o)

	if err := o.Signal("alice", sid, json.RawMessage(`{"type":"offer","sdp":"v=0"}`)); err != nil {
		t.Fatal(err)
	}
	if len(bob.ofType(t, core.EventSignal)) != 1 {
		t.Fatal("bob did not receive the signal")
	}
	if err := o.EndSession("bob", ""); err != nil {
		t.Fatal(err)
	}
	if err := o.EndSession("bob", sid); err != nil {
		t.Fatalf("repeated end should be silent: %v", err)
	}
	for name, c := range map[string]*recConn{"alice": alice, "bob": bob} {
		e := c.ofType(t, core.EventSessionEnded)
		if len(e) != 1 || e[0].Reason != core.ReasonEndedByPeer {
			t.Fatalf("%s session_ended = %+v", name, e)
		}
	}
}

func TestTouchRequiresOwnership(t *testing.T) {
	o := newOrchestrator(t, app.SimplePolicy{})
	register(t, o, "alice", "c1")
	if o.Touch("alice", "other") {
		t.Fatal("foreign connection must not refresh activity")
	}
	if !o.Touch("alice", "c1") {
		t.Fatal("owner touch failed")
	}
}
