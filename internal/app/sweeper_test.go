package app

import (
	"context"
	"testing"
	"time"

	"github.com/dkeye/roulette/internal/core"
	"github.com/dkeye/roulette/internal/domain"
)

func TestSweepEvictsStalePeerAndNotifiesPartner(t *testing.T) {
	s := newTestSystem(t, 0)
	alice := s.admit(t, "alice")
	bob := s.admit(t, "bob")
	sess := s.pair(t, "alice", "bob")

	s.clock.Advance(121 * time.Second)
	s.reg.Touch("bob")

	if n := s.sweeper.Sweep(); n != 1 {
		t.Fatalf("Sweep evicted %d, want 1", n)
	}
	if _, ok := s.reg.Get("alice"); ok {
		t.Fatal("alice still registered")
	}
	if alice.Alive() {
		t.Fatal("evicted connection not closed")
	}
	ended := bob.events(t, core.EventSessionEnded)
	if len(ended) != 1 || ended[0].Reason != core.ReasonConnectionLost || ended[0].SessionID != sess.ID {
		t.Fatalf("bob session_ended = %+v", ended)
	}
	mustStatus(t, s.reg, "bob", domain.StatusIdle)
	if _, ok := s.reg.Session(sess.ID); ok {
		t.Fatal("session survived eviction")
	}
}

func TestSweepKeepsPeersAtThreshold(t *testing.T) {
	s := newTestSystem(t, 0)
	s.admit(t, "alice")

	s.clock.Advance(120 * time.Second)
	if n := s.sweeper.Sweep(); n != 0 {
		t.Fatalf("Sweep evicted %d at exactly the threshold", n)
	}
	s.clock.Advance(time.Second)
	if n := s.sweeper.Sweep(); n != 1 {
		t.Fatalf("Sweep evicted %d past the threshold, want 1", n)
	}
}

func TestSweepStopsSearchOfEvictedPeer(t *testing.T) {
	s := newTestSystem(t, time.Hour)
	s.admit(t, "alice")
	s.search(t, "alice")
	s.matchmaker.StartSearch(context.Background(), "alice")

	s.clock.Advance(5 * time.Minute)
	s.sweeper.Sweep()
	if s.matchmaker.Searching("alice") {
		t.Fatal("search loop survived eviction")
	}
}

func TestSweeperRunStopsOnCancel(t *testing.T) {
	s := newTestSystem(t, 0)
	sw := NewSweeper(s.reg, s.relay, 5*time.Millisecond, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sw.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}
