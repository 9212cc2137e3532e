package app

import (
	"cmp"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/dkeye/roulette/internal/core"
	"github.com/dkeye/roulette/internal/domain"
	"github.com/rs/zerolog/log"
)

type peerEntry struct {
	peer domain.Peer
	conn core.SignalConnection
}

func (e *peerEntry) snap() PeerSnapshot {
	return PeerSnapshot{Peer: e.peer, Conn: e.conn}
}

// PeerSnapshot is a copy of a peer record. It stays valid after the lock is
// released; Conn may be used for sending.
type PeerSnapshot struct {
	domain.Peer
	Conn core.SignalConnection
}

// Ended describes a session that was torn down. Members holds the members
// still present in the registry at teardown time.
type Ended struct {
	Session domain.Session
	Members []PeerSnapshot
}

// Admission is the result of Admit.
type Admission struct {
	Peer     PeerSnapshot
	Replaced *PeerSnapshot
	Ended    *Ended
}

// Pairing is the result of Pair. Evicted lists stale candidates dropped
// while searching; it may be set even when Pair fails.
type Pairing struct {
	Session   domain.Session
	Initiator PeerSnapshot
	Partner   PeerSnapshot
	Evicted   []PeerSnapshot
}

type Counts struct {
	Total     int `json:"total"`
	Searching int `json:"searching"`
	InSession int `json:"inSession"`
	Idle      int `json:"idle"`
	Sessions  int `json:"sessions"`
}

// Registry is the presence store and session table. Every mutation goes
// through mu, so compound operations are atomic with respect to each other.
// No method sends on a connection.
type Registry struct {
	mu       sync.Mutex
	peers    map[domain.PeerID]*peerEntry
	sessions map[domain.SessionID]*domain.Session

	now  func() time.Time
	intn func(n int) int
}

type RegistryOption func(*Registry)

func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

// WithPicker replaces the uniform random partner picker.
func WithPicker(intn func(n int) int) RegistryOption {
	return func(r *Registry) { r.intn = intn }
}

func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		peers:    make(map[domain.PeerID]*peerEntry),
		sessions: make(map[domain.SessionID]*domain.Session),
		now:      time.Now,
		intn:     rand.IntN,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Admit inserts or replaces the record for id. When a different connection
// held the record while in session, that session is ended in the same
// critical section and returned for notification.
// Re-registration on the same connection only refreshes metadata.
func (r *Registry) Admit(
	id domain.PeerID,
	connID domain.ConnectionID,
	conn core.SignalConnection,
	meta domain.Metadata,
) (Admission, error) {
	if id == "" || connID == "" || conn == nil {
		return Admission{}, ErrInvalidPeer
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	var res Admission
	if prev, ok := r.peers[id]; ok {
		if prev.peer.ConnectionID == connID {
			prev.peer.Meta = meta
			prev.peer.LastActivity = now
			res.Peer = prev.snap()
			log.Debug().Str("module", "app.registry").Str("peer", string(id)).Msg("re-registered on same connection")
			return res, nil
		}
		old := prev.snap()
		res.Replaced = &old
		if prev.peer.Status == domain.StatusInSession {
			if sess, ok := r.sessions[prev.peer.SessionID]; ok {
				ended := r.endLocked(*sess)
				res.Ended = &ended
			}
		}
	}

	e := &peerEntry{
		peer: domain.Peer{
			ID:           id,
			ConnectionID: connID,
			Meta:         meta,
			Status:       domain.StatusIdle,
			LastActivity: now,
		},
		conn: conn,
	}
	r.peers[id] = e
	res.Peer = e.snap()
	log.Info().Str("module", "app.registry").Str("peer", string(id)).Str("conn", string(connID)).Bool("replaced", res.Replaced != nil).Msg("admitted peer")
	return res, nil
}

// Remove deletes the record. Any session the peer held is left for the
// caller to end.
func (r *Registry) Remove(id domain.PeerID) (PeerSnapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.peers[id]
	if !ok {
		return PeerSnapshot{}, false
	}
	delete(r.peers, id)
	log.Info().Str("module", "app.registry").Str("peer", string(id)).Msg("removed peer")
	return e.snap(), true
}

// Disconnect ends the session held by id and removes the record, but only
// while connID still owns it. A late disconnect from a replaced connection
// is a no-op.
func (r *Registry) Disconnect(id domain.PeerID, connID domain.ConnectionID) (PeerSnapshot, *Ended, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.peers[id]
	if !ok || e.peer.ConnectionID != connID {
		return PeerSnapshot{}, nil, false
	}
	return r.dropLocked(e)
}

// Evict drops id if it is still owned by connID and its last activity is
// before cutoff.
func (r *Registry) Evict(id domain.PeerID, connID domain.ConnectionID, cutoff time.Time) (PeerSnapshot, *Ended, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.peers[id]
	if !ok || e.peer.ConnectionID != connID || !e.peer.LastActivity.Before(cutoff) {
		return PeerSnapshot{}, nil, false
	}
	return r.dropLocked(e)
}

func (r *Registry) dropLocked(e *peerEntry) (PeerSnapshot, *Ended, bool) {
	var ended *Ended
	if e.peer.Status == domain.StatusInSession {
		if sess, ok := r.sessions[e.peer.SessionID]; ok {
			en := r.endLocked(*sess)
			ended = &en
		}
	}
	delete(r.peers, e.peer.ID)
	log.Info().Str("module", "app.registry").Str("peer", string(e.peer.ID)).Msg("dropped peer")
	return e.snap(), ended, true
}

func (r *Registry) Touch(id domain.PeerID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.peers[id]
	if !ok {
		return false
	}
	e.peer.LastActivity = r.now()
	return true
}

// SetSearching flips a peer between idle and searching. It reports whether
// the status changed; a peer in session is left untouched.
func (r *Registry) SetSearching(id domain.PeerID, searching bool) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.peers[id]
	if !ok {
		return false, ErrPeerNotFound
	}
	switch {
	case e.peer.Status == domain.StatusInSession:
		return false, nil
	case searching && e.peer.Status == domain.StatusIdle:
		e.peer.Status = domain.StatusSearching
		e.peer.NotifiedNoMatch = false
	case !searching && e.peer.Status == domain.StatusSearching:
		e.peer.Status = domain.StatusIdle
	default:
		return false, nil
	}
	log.Info().Str("module", "app.registry").Str("peer", string(id)).Stringer("status", e.peer.Status).Msg("updated status")
	return true, nil
}

// SetSession marks id as in session sid. The session must exist and contain id.
func (r *Registry) SetSession(id domain.PeerID, sid domain.SessionID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.peers[id]
	if !ok {
		return ErrPeerNotFound
	}
	sess, ok := r.sessions[sid]
	if !ok {
		return ErrSessionNotFound
	}
	if !sess.Has(id) {
		return ErrNotMember
	}
	e.peer.Status = domain.StatusInSession
	e.peer.SessionID = sid
	return nil
}

// ClearSession returns id to idle.
func (r *Registry) ClearSession(id domain.PeerID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.peers[id]
	if !ok || e.peer.Status != domain.StatusInSession {
		return false
	}
	e.peer.Status = domain.StatusIdle
	e.peer.SessionID = ""
	return true
}

// FindEligiblePartner picks a searching peer other than exclude, uniformly
// at random. The pick is advisory; Pair is the atomic variant.
func (r *Registry) FindEligiblePartner(exclude domain.PeerID) (PeerSnapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.pickLocked(r.searchingLocked(exclude))
	if e == nil {
		return PeerSnapshot{}, false
	}
	return e.snap(), true
}

func (r *Registry) searchingLocked(exclude domain.PeerID) []*peerEntry {
	out := make([]*peerEntry, 0)
	for id, e := range r.peers {
		if id != exclude && e.peer.Status == domain.StatusSearching {
			out = append(out, e)
		}
	}
	return out
}

func (r *Registry) pickLocked(candidates []*peerEntry) *peerEntry {
	if len(candidates) == 0 {
		return nil
	}
	return candidates[r.intn(len(candidates))]
}

// Pair finds a partner for initiator and creates a session, all in one
// critical section. Candidates whose connection is dead are evicted and the
// search retried, at most once per searching peer.
func (r *Registry) Pair(initiator domain.PeerID) (Pairing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res Pairing
	self, ok := r.peers[initiator]
	if !ok {
		return res, ErrPeerNotFound
	}
	if self.peer.Status != domain.StatusSearching {
		return res, ErrNotSearching
	}

	candidates := r.searchingLocked(initiator)
	for attempts := len(candidates); attempts > 0 && len(candidates) > 0; attempts-- {
		i := r.intn(len(candidates))
		cand := candidates[i]
		if cand.conn.Alive() {
			res.Session = r.createLocked(self, cand)
			res.Initiator = self.snap()
			res.Partner = cand.snap()
			return res, nil
		}
		delete(r.peers, cand.peer.ID)
		res.Evicted = append(res.Evicted, cand.snap())
		log.Warn().Str("module", "app.registry").Str("peer", string(cand.peer.ID)).Msg("evicted stale candidate")
		candidates = slices.Delete(candidates, i, i+1)
	}
	return res, ErrNoPartner
}

func (r *Registry) createLocked(a, b *peerEntry) domain.Session {
	now := r.now()
	sess := domain.Session{
		ID:        domain.NewSessionID(now),
		MemberA:   a.peer.ID,
		MemberB:   b.peer.ID,
		CreatedAt: now,
	}
	r.sessions[sess.ID] = &sess
	for _, e := range []*peerEntry{a, b} {
		e.peer.Status = domain.StatusInSession
		e.peer.SessionID = sess.ID
		e.peer.NotifiedNoMatch = false
	}
	log.Info().Str("module", "app.registry").Str("session", string(sess.ID)).Str("a", string(a.peer.ID)).Str("b", string(b.peer.ID)).Msg("created session")
	return sess
}

// MarkNoMatchNotified sets the no-match flag of a searching peer and reports
// whether it was previously unset.
func (r *Registry) MarkNoMatchNotified(id domain.PeerID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.peers[id]
	if !ok || e.peer.Status != domain.StatusSearching || e.peer.NotifiedNoMatch {
		return false
	}
	e.peer.NotifiedNoMatch = true
	return true
}

// EndSession tears sid down if it exists and id is a member. A second call
// finds nothing and returns false.
func (r *Registry) EndSession(id domain.PeerID, sid domain.SessionID) (Ended, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[sid]
	if !ok || !sess.Has(id) {
		return Ended{}, false
	}
	return r.endLocked(*sess), true
}

func (r *Registry) endLocked(sess domain.Session) Ended {
	delete(r.sessions, sess.ID)
	ended := Ended{Session: sess}
	for _, id := range []domain.PeerID{sess.MemberA, sess.MemberB} {
		e, ok := r.peers[id]
		if !ok {
			continue
		}
		if e.peer.SessionID == sess.ID {
			e.peer.Status = domain.StatusIdle
			e.peer.SessionID = ""
		}
		ended.Members = append(ended.Members, e.snap())
	}
	log.Info().Str("module", "app.registry").Str("session", string(sess.ID)).Int("members", len(ended.Members)).Msg("ended session")
	return ended
}

// Partner resolves the other member of sid for from. When the other member
// is missing from the registry the session is torn down and returned.
func (r *Registry) Partner(from domain.PeerID, sid domain.SessionID) (PeerSnapshot, *Ended, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[sid]
	if !ok {
		return PeerSnapshot{}, nil, ErrSessionNotFound
	}
	otherID, ok := sess.Other(from)
	if !ok {
		return PeerSnapshot{}, nil, ErrNotMember
	}
	other, ok := r.peers[otherID]
	if !ok || other.peer.SessionID != sid {
		ended := r.endLocked(*sess)
		return PeerSnapshot{}, &ended, ErrPartnerGone
	}
	return other.snap(), nil, nil
}

// Owns reports whether connID currently holds the record for id.
func (r *Registry) Owns(id domain.PeerID, connID domain.ConnectionID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.peers[id]
	return ok && e.peer.ConnectionID == connID
}

func (r *Registry) Get(id domain.PeerID) (PeerSnapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.peers[id]
	if !ok {
		return PeerSnapshot{}, false
	}
	return e.snap(), true
}

func (r *Registry) Session(sid domain.SessionID) (domain.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[sid]
	if !ok {
		return domain.Session{}, false
	}
	return *sess, true
}

func (r *Registry) Snapshot() Counts {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := Counts{Total: len(r.peers), Sessions: len(r.sessions)}
	for _, e := range r.peers {
		switch e.peer.Status {
		case domain.StatusSearching:
			c.Searching++
		case domain.StatusInSession:
			c.InSession++
		default:
			c.Idle++
		}
	}
	return c
}

// AllPeers returns a point-in-time copy ordered by peer id.
func (r *Registry) AllPeers() []PeerSnapshot {
	r.mu.Lock()
	out := make([]PeerSnapshot, 0, len(r.peers))
	for _, e := range r.peers {
		out = append(out, e.snap())
	}
	r.mu.Unlock()
	slices.SortFunc(out, func(a, b PeerSnapshot) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

func (r *Registry) Connections() []core.SignalConnection {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]core.SignalConnection, 0, len(r.peers))
	for _, e := range r.peers {
		out = append(out, e.conn)
	}
	return out
}
