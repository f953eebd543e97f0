package store

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/olymp/arena/internal/models"
)

// Memory is a single-process Store. Each match row and each player row has
// its own mutex, held from LockMatch/ClaimWaiting/LockPlayer until the
// transaction ends, and writes are buffered until commit, so it offers the
// same locking contract as the Postgres store without a database.
type Memory struct {
	mu          sync.Mutex
	nextID      int64
	matches     map[int64]models.Match
	rowLocks    map[int64]*sync.Mutex
	players     map[int64]models.Player
	playerLocks map[int64]*sync.Mutex
	problems    map[int64]models.Problem
}

func NewMemory() *Memory {
	return &Memory{
		matches:  make(map[int64]models.Match),
		rowLocks:    make(map[int64]*sync.Mutex),
		players:     make(map[int64]models.Player),
		playerLocks: make(map[int64]*sync.Mutex),
		problems:    make(map[int64]models.Problem),
	}
}

func (s *Memory) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx := &memTx{
		s:             s,
		locked:        make(map[int64]bool),
		lockedPlayers: make(map[int64]bool),
		pending:       make(map[int64]models.Match),
		ratings:       make(map[int64]int),
	}
	defer tx.release()

	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

func (s *Memory) GetMatch(_ context.Context, id int64) (*models.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.matches[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &m, nil
}

func (s *Memory) GetMatchView(_ context.Context, id int64) (*models.MatchView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.matches[id]
	if !ok {
		return nil, ErrNotFound
	}
	v := s.viewLocked(m)
	return &v, nil
}

func (s *Memory) GetPlayer(_ context.Context, id int64) (*models.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.players[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (s *Memory) WaitingMatchFor(_ context.Context, playerID int64) (*models.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return waitingIn(s.matches, playerID), nil
}

func waitingIn(matches map[int64]models.Match, playerID int64) *models.Match {
	var found *models.Match
	for _, m := range matches {
		if m.Status != models.StatusWaiting || m.Player1ID != playerID {
			continue
		}
		if found == nil || olderFirst(m, *found) < 0 {
			found = &m
		}
	}
	return found
}

func (s *Memory) RecentMatches(_ context.Context, playerID int64, limit int) ([]models.MatchView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.MatchView
	for _, m := range s.matches {
		if m.IsParticipant(playerID) {
			out = append(out, s.viewLocked(m))
		}
	}
	slices.SortFunc(out, func(a, b models.MatchView) int { return olderFirst(b.Match, a.Match) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Memory) RatingSeries(_ context.Context, playerID int64, limit int) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var finished []models.Match
	for _, m := range s.matches {
		if m.Status == models.StatusFinished && m.IsParticipant(playerID) {
			finished = append(finished, m)
		}
	}
	slices.SortFunc(finished, func(a, b models.Match) int {
		return cmp.Or(a.EndedAt.Time.Compare(b.EndedAt.Time), cmp.Compare(a.ID, b.ID))
	})

	var series []int
	for _, m := range finished {
		after := m.P2RatingAfter
		if m.Player1ID == playerID {
			after = m.P1RatingAfter
		}
		if after.Valid {
			series = append(series, int(after.Int64))
		}
	}
	if len(series) > limit {
		series = series[len(series)-limit:]
	}
	return series, nil
}

func (s *Memory) ExpiredActiveIDs(_ context.Context, now time.Time) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []int64
	for id, m := range s.matches {
		if m.Status == models.StatusActive && m.RoundStarted() && !m.ExpiresAt.Time.After(now) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func (s *Memory) StaleWaitingIDs(_ context.Context, createdBefore time.Time) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []int64
	for id, m := range s.matches {
		if m.Status == models.StatusWaiting && m.CreatedAt.Before(createdBefore) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func (s *Memory) CreatePlayer(_ context.Context, p *models.Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.players {
		if existing.Username == p.Username {
			*p = existing
			return nil
		}
	}
	s.nextID++
	p.ID = s.nextID
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	s.players[p.ID] = *p
	return nil
}

func (s *Memory) CreateProblem(_ context.Context, p *models.Problem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	p.ID = s.nextID
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	s.problems[p.ID] = *p
	return nil
}

func (s *Memory) viewLocked(m models.Match) models.MatchView {
	v := models.MatchView{Match: m, P1Username: s.players[m.Player1ID].Username}
	if m.Player2ID.Valid {
		v.P2Username.String, v.P2Username.Valid = s.players[m.Player2ID.Int64].Username, true
	}
	if m.ProblemID.Valid {
		if prob, ok := s.problems[m.ProblemID.Int64]; ok {
			v.ProblemTitle.String, v.ProblemTitle.Valid = prob.Title, true
			v.ProblemText.String, v.ProblemText.Valid = prob.Text, true
		}
	}
	return v
}

func (s *Memory) rowLock(id int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lockFor(s.rowLocks, id)
}

func (s *Memory) playerLock(id int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lockFor(s.playerLocks, id)
}

func lockFor(locks map[int64]*sync.Mutex, id int64) *sync.Mutex {
	l, ok := locks[id]
	if !ok {
		l = &sync.Mutex{}
		locks[id] = l
	}
	return l
}

type memTx struct {
	s             *Memory
	held          []*sync.Mutex
	locked        map[int64]bool
	lockedPlayers map[int64]bool
	pending       map[int64]models.Match
	ratings       map[int64]int
}

func (t *memTx) LockMatch(_ context.Context, id int64) (*models.Match, error) {
	if !t.locked[id] {
		t.s.mu.Lock()
		_, ok := t.s.matches[id]
		t.s.mu.Unlock()
		if !ok {
			return nil, ErrNotFound
		}

		l := t.s.rowLock(id)
		l.Lock()
		t.held = append(t.held, l)
		t.locked[id] = true
	}
	return t.read(id)
}

func (t *memTx) ClaimWaiting(_ context.Context, playerID int64, rating int) (*models.Match, error) {
	type candidate struct {
		m    models.Match
		diff int
	}

	t.s.mu.Lock()
	var cands []candidate
	for _, m := range t.s.matches {
		if !claimable(m, playerID) {
			continue
		}
		diff := t.s.players[m.Player1ID].Rating - rating
		if diff < 0 {
			diff = -diff
		}
		cands = append(cands, candidate{m: m, diff: diff})
	}
	t.s.mu.Unlock()

	slices.SortFunc(cands, func(a, b candidate) int {
		return cmp.Or(cmp.Compare(a.diff, b.diff), olderFirst(a.m, b.m))
	})

	for _, c := range cands {
		if t.locked[c.m.ID] {
			continue
		}
		l := t.s.rowLock(c.m.ID)
		if !l.TryLock() {
			continue
		}

		t.s.mu.Lock()
		fresh := t.s.matches[c.m.ID]
		t.s.mu.Unlock()
		if !claimable(fresh, playerID) {
			l.Unlock()
			continue
		}

		t.held = append(t.held, l)
		t.locked[fresh.ID] = true
		return &fresh, nil
	}
	return nil, nil
}

func (t *memTx) CreateMatch(_ context.Context, m *models.Match) error {
	t.s.mu.Lock()
	t.s.nextID++
	m.ID = t.s.nextID
	t.s.mu.Unlock()

	t.locked[m.ID] = true
	t.pending[m.ID] = *m
	return nil
}

func (t *memTx) SaveMatch(_ context.Context, m *models.Match) error {
	if !t.locked[m.ID] {
		return fmt.Errorf("save match %d: row not locked by this transaction", m.ID)
	}
	t.pending[m.ID] = *m
	return nil
}

func (t *memTx) WaitingMatchFor(_ context.Context, playerID int64) (*models.Match, error) {
	t.s.mu.Lock()
	all := make(map[int64]models.Match, len(t.s.matches)+len(t.pending))
	for id, m := range t.s.matches {
		all[id] = m
	}
	t.s.mu.Unlock()
	for id, m := range t.pending {
		all[id] = m
	}
	return waitingIn(all, playerID), nil
}

func (t *memTx) LockPlayer(ctx context.Context, id int64) (*models.Player, error) {
	if !t.lockedPlayers[id] {
		t.s.mu.Lock()
		_, ok := t.s.players[id]
		t.s.mu.Unlock()
		if !ok {
			return nil, ErrNotFound
		}

		l := t.s.playerLock(id)
		l.Lock()
		t.held = append(t.held, l)
		t.lockedPlayers[id] = true
	}
	return t.GetPlayer(ctx, id)
}

func (t *memTx) GetPlayer(_ context.Context, id int64) (*models.Player, error) {
	t.s.mu.Lock()
	p, ok := t.s.players[id]
	t.s.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	if r, ok := t.ratings[id]; ok {
		p.Rating = r
	}
	return &p, nil
}

func (t *memTx) SetPlayerRating(_ context.Context, id int64, rating int) error {
	if !t.lockedPlayers[id] {
		return fmt.Errorf("set rating for player %d: row not locked by this transaction", id)
	}
	t.s.mu.Lock()
	_, ok := t.s.players[id]
	t.s.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	t.ratings[id] = rating
	return nil
}

func (t *memTx) GetProblem(_ context.Context, id int64) (*models.Problem, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	p, ok := t.s.problems[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (t *memTx) RecentProblemIDs(_ context.Context, playerIDs []int64, limit int) ([]int64, error) {
	t.s.mu.Lock()
	all := make(map[int64]models.Match, len(t.s.matches)+len(t.pending))
	for id, m := range t.s.matches {
		all[id] = m
	}
	t.s.mu.Unlock()
	for id, m := range t.pending {
		all[id] = m
	}

	var recent []models.Match
	for _, m := range all {
		if !m.ProblemID.Valid {
			continue
		}
		if slices.ContainsFunc(playerIDs, m.IsParticipant) {
			recent = append(recent, m)
		}
	}
	slices.SortFunc(recent, func(a, b models.Match) int { return olderFirst(b, a) })

	var ids []int64
	for i := 0; i < len(recent) && i < limit; i++ {
		ids = append(ids, recent[i].ProblemID.Int64)
	}
	return ids, nil
}

func (t *memTx) read(id int64) (*models.Match, error) {
	if m, ok := t.pending[id]; ok {
		return &m, nil
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	m, ok := t.s.matches[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &m, nil
}

func (t *memTx) commit() {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	for id, m := range t.pending {
		t.s.matches[id] = m
	}
	for id, r := range t.ratings {
		p := t.s.players[id]
		p.Rating = r
		t.s.players[id] = p
	}
}

func (t *memTx) release() {
	for i := len(t.held) - 1; i >= 0; i-- {
		t.held[i].Unlock()
	}
	t.held = nil
}

func claimable(m models.Match, playerID int64) bool {
	return m.Status == models.StatusWaiting && !m.Player2ID.Valid && m.Player1ID != playerID
}

// olderFirst orders by creation time, then id
func olderFirst(a, b models.Match) int {
	return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID, b.ID))
}
