package ws

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/olymp/arena/internal/game"
	"github.com/olymp/arena/internal/models"
)

// Session is the per-connection actor for one player in one match. Its
// handlers run one at a time. The expiry timer is derived from the
// persisted deadline every time a state snapshot is seen, so it never
// outlives the deadline it was armed for.
type Session struct {
	hub    *Hub
	engine *game.Engine
	client *Client

	// mu serializes connect, disconnect, submit and timer bodies
	mu     sync.Mutex
	closed bool

	tmu       sync.Mutex
	expiry    clockwork.Timer
	armedFor  time.Time
	expiryGen uint64
}

func newSession(h *Hub, c *Client) *Session {
	return &Session{hub: h, engine: h.engine, client: c}
}

func (s *Session) onConnect(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.client
	if old := s.hub.register(c); old != nil {
		log.Printf("[WS] player %d reconnected to match %d, closing previous socket", c.playerID, c.matchID)
		old.close()
	}
	s.hub.cancelTechnicalCheck(c.matchID, c.playerID)

	if _, err := s.engine.SetPresence(ctx, c.matchID, c.playerID, true); err != nil {
		log.Printf("[WS] mark player %d present in match %d: %v", c.playerID, c.matchID, err)
	}
	if _, err := s.engine.TryStartRound(ctx, c.matchID); err != nil {
		log.Printf("[WS] start round for match %d: %v", c.matchID, err)
	}

	st, err := s.engine.Snapshot(ctx, c.matchID)
	if err != nil {
		log.Printf("[WS] snapshot for match %d: %v", c.matchID, err)
		return
	}
	s.observe(st)
	c.sendJSON(st)
	s.hub.BroadcastState(c.matchID, st)
}

func (s *Session) onDisconnect(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	s.stopExpiry()

	c := s.client
	if !s.hub.unregister(c) {
		// A newer socket of the same player owns the seat now
		return
	}

	changed, err := s.engine.SetPresence(ctx, c.matchID, c.playerID, false)
	if err != nil {
		log.Printf("[WS] mark player %d absent in match %d: %v", c.playerID, c.matchID, err)
		return
	}
	if !changed {
		return
	}
	s.engine.Publish(ctx, c.matchID)

	m, err := s.engine.Match(ctx, c.matchID)
	if err != nil {
		log.Printf("[WS] reload match %d: %v", c.matchID, err)
		return
	}
	if m.Status == models.StatusActive && m.Player2ID.Valid && m.RoundStarted() {
		grace := s.engine.Settings().Grace
		log.Printf("[WS] player %d dropped from match %d, technical check in %s", c.playerID, c.matchID, grace)
		s.hub.scheduleTechnicalCheck(c.matchID, c.playerID, grace)
	}
}

func (s *Session) submitAnswer(ctx context.Context, answer string) {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	c := s.client

	m, err := s.engine.Match(ctx, c.matchID)
	if err != nil {
		log.Printf("[WS] load match %d: %v", c.matchID, err)
		return
	}
	if m.Status != models.StatusActive || !m.RoundStarted() {
		return
	}

	// The deadline may have passed without the timer firing yet
	if s.resolveExpired(ctx) {
		return
	}

	out, err := s.engine.ApplyAnswer(ctx, c.matchID, c.playerID, answer)
	if err != nil {
		log.Printf("[WS] submit for player %d in match %d: %v", c.playerID, c.matchID, err)
		return
	}
	if !out.Applied {
		return
	}
	if !out.Recorded {
		if st, err := s.engine.Snapshot(ctx, c.matchID); err == nil {
			c.sendJSON(st)
		}
		return
	}

	c.sendJSON(game.NewToast(out.Correct))
	st := s.engine.Publish(ctx, c.matchID)

	if out.BothCorrect {
		changed, err := s.engine.ResolveBothCorrect(ctx, c.matchID)
		if err != nil {
			log.Printf("[WS] resolve match %d: %v", c.matchID, err)
			return
		}
		if changed {
			s.engine.Publish(ctx, c.matchID)
		}
		return
	}
	if st != nil {
		s.observe(st)
	}
}

// resolveExpired settles the round if its deadline has passed and
// broadcasts the final state. Reports whether this call ended the match.
func (s *Session) resolveExpired(ctx context.Context) bool {
	c := s.client
	changed, err := s.engine.ResolveExpired(ctx, c.matchID)
	if err != nil {
		log.Printf("[WS] resolve expired match %d: %v", c.matchID, err)
		return false
	}
	if changed {
		s.engine.Publish(ctx, c.matchID)
	}
	return changed
}

// observe keeps the expiry timer in line with the snapshot's deadline.
// It only takes the timer lock, so it is safe to call from broadcasts
// triggered inside another handler.
func (s *Session) observe(st *game.State) {
	if st == nil {
		return
	}
	if st.Status != models.StatusActive || st.ExpiresAt == nil {
		if st.Status.Terminal() {
			s.stopExpiry()
		}
		return
	}
	deadline, err := time.Parse(time.RFC3339Nano, *st.ExpiresAt)
	if err != nil {
		log.Printf("[WS] bad expires_at %q in match %d: %v", *st.ExpiresAt, st.MatchID, err)
		return
	}
	s.armExpiry(deadline)
}

func (s *Session) armExpiry(deadline time.Time) {
	s.tmu.Lock()
	defer s.tmu.Unlock()

	if s.expiry != nil && s.armedFor.Equal(deadline) {
		return
	}
	if s.expiry != nil {
		s.expiry.Stop()
	}
	s.expiryGen++
	gen := s.expiryGen
	s.armedFor = deadline

	clock := s.hub.clock
	wait := deadline.Sub(clock.Now())
	if wait < 0 {
		wait = 0
	}
	s.expiry = clock.AfterFunc(wait, func() { s.fireExpiry(gen) })
}

func (s *Session) stopExpiry() {
	s.tmu.Lock()
	defer s.tmu.Unlock()

	if s.expiry != nil {
		s.expiry.Stop()
		s.expiry = nil
	}
	s.expiryGen++
	s.armedFor = time.Time{}
}

func (s *Session) fireExpiry(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tmu.Lock()
	stale := gen != s.expiryGen
	if !stale {
		s.expiry = nil
		s.armedFor = time.Time{}
	}
	s.tmu.Unlock()
	if stale || s.closed {
		return
	}

	ctx := context.Background()
	if s.resolveExpired(ctx) {
		return
	}
	// Fired ahead of the persisted deadline (the wall clock was stepped
	// back); wait for the deadline again.
	m, err := s.engine.Match(ctx, s.client.matchID)
	if err != nil {
		log.Printf("[WS] reload match %d after early expiry: %v", s.client.matchID, err)
		return
	}
	if m.Status == models.StatusActive && m.ExpiresAt.Valid && m.ExpiresAt.Time.After(s.hub.clock.Now()) {
		s.armExpiry(m.ExpiresAt.Time)
	}
}
