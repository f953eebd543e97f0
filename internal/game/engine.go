// Package game holds the match rules: pairing, the timed round, and the
// terminal transitions that settle ratings. Every state change runs as
// "lock row → reload → check precondition → mutate → commit"; a failed
// precondition is a silent no-op, never an error.
package game

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/olymp/arena/internal/config"
	"github.com/olymp/arena/internal/models"
	"github.com/olymp/arena/internal/problems"
	"github.com/olymp/arena/internal/rating"
	"github.com/olymp/arena/internal/store"
)

// Settings are the match rules applied by the engine
type Settings struct {
	RoundDuration  time.Duration
	AllowResubmit  bool
	Grace          time.Duration
	RecentProblems int
	K              int
}

func DefaultSettings() Settings {
	return Settings{
		RoundDuration:  90 * time.Second,
		AllowResubmit:  true,
		Grace:          8 * time.Second,
		RecentProblems: 30,
		K:              rating.DefaultK,
	}
}

func SettingsFromConfig(cfg *config.Config) Settings {
	s := DefaultSettings()
	if cfg.MatchDurationSecs > 0 {
		s.RoundDuration = time.Duration(cfg.MatchDurationSecs) * time.Second
	}
	if cfg.DisconnectGracePeriodSecs > 0 {
		s.Grace = time.Duration(cfg.DisconnectGracePeriodSecs) * time.Second
	}
	if cfg.RecentProblemsWindow > 0 {
		s.RecentProblems = cfg.RecentProblemsWindow
	}
	if cfg.EloKFactor > 0 {
		s.K = cfg.EloKFactor
	}
	s.AllowResubmit = cfg.AllowResubmit
	return s
}

// Broadcaster delivers a state snapshot to every open session of a match
type Broadcaster interface {
	BroadcastState(matchID int64, st *State)
}

type Engine struct {
	store  store.Store
	picker problems.Picker
	clock  clockwork.Clock
	cfg    Settings
	bcast  Broadcaster
}

func NewEngine(st store.Store, picker problems.Picker, clock clockwork.Clock, cfg Settings) *Engine {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Engine{store: st, picker: picker, clock: clock, cfg: cfg}
}

// SetBroadcaster wires the delivery side once the hub exists
func (e *Engine) SetBroadcaster(b Broadcaster) {
	e.bcast = b
}

func (e *Engine) Clock() clockwork.Clock { return e.clock }

func (e *Engine) Settings() Settings { return e.cfg }

// Authorize loads a match and checks that playerID sits in it
func (e *Engine) Authorize(ctx context.Context, matchID, playerID int64) (*models.Match, error) {
	m, err := e.store.GetMatch(ctx, matchID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	if !m.IsParticipant(playerID) {
		return nil, ErrForbidden
	}
	return m, nil
}

// Match returns the current persisted record without locking
func (e *Engine) Match(ctx context.Context, matchID int64) (*models.Match, error) {
	m, err := e.store.GetMatch(ctx, matchID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return m, nil
}

// Snapshot returns the wire state of a match
func (e *Engine) Snapshot(ctx context.Context, matchID int64) (*State, error) {
	v, err := e.store.GetMatchView(ctx, matchID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return StateFromView(v), nil
}

// Publish broadcasts the current snapshot to the match group
func (e *Engine) Publish(ctx context.Context, matchID int64) *State {
	st, err := e.Snapshot(ctx, matchID)
	if err != nil {
		log.Printf("[MATCH] snapshot for broadcast failed: match=%d err=%v", matchID, err)
		return nil
	}
	if e.bcast != nil {
		e.bcast.BroadcastState(matchID, st)
	}
	return st
}

// withMatch runs fn with the match row locked. fn returns whether it
// changed the row; only then is it saved.
func (e *Engine) withMatch(ctx context.Context, matchID int64, fn func(tx store.Tx, m *models.Match) (bool, error)) (bool, error) {
	var changed bool
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		m, err := tx.LockMatch(ctx, matchID)
		if err != nil {
			return err
		}
		changed, err = fn(tx, m)
		if err != nil || !changed {
			return err
		}
		return tx.SaveMatch(ctx, m)
	})
	if err != nil {
		return false, mapStoreErr(err)
	}
	return changed, nil
}

// settle is the single terminal procedure for rated outcomes. s1 is
// player 1's score (rating.Win, rating.Draw or rating.Loss). The caller
// holds the row lock and has checked the match is still active.
func (e *Engine) settle(ctx context.Context, tx store.Tx, m *models.Match, s1 float64, now time.Time) error {
	p1, p2, err := lockPair(ctx, tx, m.Player1ID, m.Player2ID.Int64)
	if err != nil {
		return err
	}

	r1, r2 := rating.Update(p1.Rating, p2.Rating, s1, e.cfg.K)
	if err := tx.SetPlayerRating(ctx, p1.ID, r1); err != nil {
		return err
	}
	if err := tx.SetPlayerRating(ctx, p2.ID, r2); err != nil {
		return err
	}

	m.P1RatingBefore.Int64, m.P1RatingBefore.Valid = int64(p1.Rating), true
	m.P2RatingBefore.Int64, m.P2RatingBefore.Valid = int64(p2.Rating), true
	m.P1RatingAfter.Int64, m.P1RatingAfter.Valid = int64(r1), true
	m.P2RatingAfter.Int64, m.P2RatingAfter.Valid = int64(r2), true

	result := models.ResultDraw
	m.WinnerID.Valid = false
	switch s1 {
	case rating.Win:
		result = models.ResultP1Win
		m.WinnerID.Int64, m.WinnerID.Valid = p1.ID, true
	case rating.Loss:
		result = models.ResultP2Win
		m.WinnerID.Int64, m.WinnerID.Valid = p2.ID, true
	}

	m.Status = models.StatusFinished
	m.Result.String, m.Result.Valid = string(result), true
	m.EndedAt.Time, m.EndedAt.Valid = now, true

	log.Printf("[MATCH] match %d finished: result=%s p1=%d (%d→%d) p2=%d (%d→%d)",
		m.ID, result, p1.ID, p1.Rating, r1, p2.ID, p2.Rating, r2)
	return nil
}

// lockPair takes both player rows in ascending id order. A player can sit
// in more than one live match, so two settlements may touch the same row.
func lockPair(ctx context.Context, tx store.Tx, id1, id2 int64) (*models.Player, *models.Player, error) {
	first, second := id1, id2
	if second < first {
		first, second = second, first
	}
	a, err := tx.LockPlayer(ctx, first)
	if err != nil {
		return nil, nil, fmt.Errorf("lock player %d: %w", first, err)
	}
	b, err := tx.LockPlayer(ctx, second)
	if err != nil {
		return nil, nil, fmt.Errorf("lock player %d: %w", second, err)
	}
	if a.ID == id1 {
		return a, b, nil
	}
	return b, a, nil
}

func mapStoreErr(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

func sqlTime(t time.Time, valid bool) sql.NullTime {
	if !valid {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}
