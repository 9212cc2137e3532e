package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dkeye/roulette/internal/core"
	"github.com/dkeye/roulette/internal/domain"
	"github.com/dkeye/roulette/internal/metrics"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
)

const noMatchMessage = "No partner available yet, still searching"

type MatchResult int

const (
	MatchNoop MatchResult = iota
	MatchPending
	MatchCreated
)

type searchTask struct {
	cancel context.CancelFunc
}

// Matchmaker pairs searching peers. Each searching peer owns one retry loop
// that is cancelled when it stops searching.
type Matchmaker struct {
	registry *Registry
	presence *Broadcaster
	metrics  *metrics.Metrics

	interval   time.Duration
	iceServers []webrtc.ICEServer

	mu       sync.Mutex
	searches map[domain.PeerID]*searchTask
	wg       conc.WaitGroup
}

func NewMatchmaker(
	reg *Registry,
	presence *Broadcaster,
	interval time.Duration,
	iceServers []webrtc.ICEServer,
	m *metrics.Metrics,
) *Matchmaker {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	return &Matchmaker{
		registry:   reg,
		presence:   presence,
		metrics:    m,
		interval:   interval,
		iceServers: iceServers,
		searches:   make(map[domain.PeerID]*searchTask),
	}
}

// TryMatch attempts to pair id with a random searching peer.
func (m *Matchmaker) TryMatch(id domain.PeerID) MatchResult {
	p, err := m.registry.Pair(id)
	m.dropEvicted(p.Evicted)

	switch {
	case err == nil:
		m.StopSearch(p.Initiator.ID)
		m.StopSearch(p.Partner.ID)
		m.metrics.MatchCreated()
		log.Info().
			Str("module", "app.matchmaker").
			Str("session", string(p.Session.ID)).
			Str("initiator", string(p.Initiator.ID)).
			Str("partner", string(p.Partner.ID)).
			Msg("matched")

		_ = send(p.Initiator.Conn, core.Matched{
			Type:        core.EventMatched,
			SessionID:   p.Session.ID,
			IsInitiator: true,
			Peer:        p.Partner.Public(),
			ICEServers:  m.iceServers,
		})
		_ = send(p.Partner.Conn, core.Matched{
			Type:        core.EventMatched,
			SessionID:   p.Session.ID,
			IsInitiator: false,
			Peer:        p.Initiator.Public(),
			ICEServers:  m.iceServers,
		})
		m.presence.Publish()
		return MatchCreated

	case errors.Is(err, ErrNoPartner):
		if m.registry.MarkNoMatchNotified(id) {
			if snap, ok := m.registry.Get(id); ok {
				_ = send(snap.Conn, core.NoMatch{Type: core.EventNoMatch, Message: noMatchMessage})
			}
		}
		if len(p.Evicted) > 0 {
			m.presence.Publish()
		}
		return MatchPending

	default:
		return MatchNoop
	}
}

func (m *Matchmaker) dropEvicted(evicted []PeerSnapshot) {
	if len(evicted) == 0 {
		return
	}
	for _, snap := range evicted {
		m.StopSearch(snap.ID)
		snap.Conn.Close()
	}
	m.metrics.StaleEvicted(len(evicted))
}

// StartSearch runs TryMatch now and then on every interval until the peer
// is matched, stops searching, or ctx is done.
func (m *Matchmaker) StartSearch(ctx context.Context, id domain.PeerID) {
	sctx, cancel := context.WithCancel(ctx)
	task := &searchTask{cancel: cancel}

	m.mu.Lock()
	if old, ok := m.searches[id]; ok {
		old.cancel()
	}
	m.searches[id] = task
	m.mu.Unlock()

	switch m.TryMatch(id) {
	case MatchCreated:
		return
	case MatchNoop:
		m.forget(id, task)
		return
	}
	m.wg.Go(func() { m.retryLoop(sctx, id, task) })
}

func (m *Matchmaker) retryLoop(ctx context.Context, id domain.PeerID, task *searchTask) {
	defer m.forget(id, task)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap, ok := m.registry.Get(id)
			if !ok || snap.Status != domain.StatusSearching {
				return
			}
			if m.TryMatch(id) == MatchCreated {
				return
			}
		}
	}
}

func (m *Matchmaker) forget(id domain.PeerID, task *searchTask) {
	task.cancel()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.searches[id] == task {
		delete(m.searches, id)
	}
}

// StopSearch cancels the retry loop of id, if any.
func (m *Matchmaker) StopSearch(id domain.PeerID) {
	m.mu.Lock()
	task, ok := m.searches[id]
	if ok {
		delete(m.searches, id)
	}
	m.mu.Unlock()
	if ok {
		task.cancel()
	}
}

// Searching reports whether id has an active retry loop.
func (m *Matchmaker) Searching(id domain.PeerID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.searches[id]
	return ok
}

// Close cancels every retry loop and waits for them to exit.
func (m *Matchmaker) Close() {
	m.mu.Lock()
	for id, task := range m.searches {
		task.cancel()
		delete(m.searches, id)
	}
	m.mu.Unlock()
	m.wg.Wait()
}
