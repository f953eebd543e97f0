package game

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/olymp/arena/internal/models"
	"github.com/olymp/arena/internal/rating"
	"github.com/olymp/arena/internal/store"
)

const (
	historyLimit     = 20
	ratingSeriesSize = 50
)

// Action is what CancelOrSurrender ended up doing
type Action string

const (
	ActionCancelled   Action = "cancelled"
	ActionSurrendered Action = "surrendered"
	ActionNoop        Action = "noop"
)

// Status returns the state snapshot of a match the caller plays in
func (e *Engine) Status(ctx context.Context, matchID, caller int64) (*State, error) {
	if _, err := e.Authorize(ctx, matchID, caller); err != nil {
		return nil, err
	}
	return e.Snapshot(ctx, matchID)
}

// CancelOrSurrender withdraws the caller from a match. Before the round
// starts the match is cancelled with no rating impact; once it has started
// the caller concedes and the opponent is awarded the win.
func (e *Engine) CancelOrSurrender(ctx context.Context, matchID, caller int64) (Action, error) {
	if _, err := e.Authorize(ctx, matchID, caller); err != nil {
		return ActionNoop, err
	}

	action := ActionNoop
	_, err := e.withMatch(ctx, matchID, func(tx store.Tx, m *models.Match) (bool, error) {
		if m.Status.Terminal() {
			return false, nil
		}
		now := e.clock.Now()

		started := m.Status == models.StatusActive && m.Player2ID.Valid && m.RoundStarted()
		if !started {
			cancel(m, now)
			action = ActionCancelled
			log.Printf("[MATCH] match %d cancelled by player %d", m.ID, caller)
			return true, nil
		}

		s1 := rating.Win
		if caller == m.Player1ID {
			s1 = rating.Loss
		}
		action = ActionSurrendered
		log.Printf("[MATCH] match %d surrendered by player %d", m.ID, caller)
		return true, e.settle(ctx, tx, m, s1, now)
	})
	if err != nil {
		return ActionNoop, err
	}

	if action != ActionNoop {
		e.Publish(ctx, matchID)
	}
	return action, nil
}

// ExpireWaiting cancels a match that is still waiting for an opponent.
// Used by the sweeper to clear stale queue entries.
func (e *Engine) ExpireWaiting(ctx context.Context, matchID int64) (bool, error) {
	return e.withMatch(ctx, matchID, func(_ store.Tx, m *models.Match) (bool, error) {
		if m.Status != models.StatusWaiting {
			return false, nil
		}
		cancel(m, e.clock.Now())
		log.Printf("[QUEUE] waiting match %d expired after no opponent joined", m.ID)
		return true, nil
	})
}

func cancel(m *models.Match, now time.Time) {
	m.Status = models.StatusCancelled
	m.Result.String, m.Result.Valid = string(models.ResultCancelled), true
	m.WinnerID.Valid = false
	m.EndedAt = sqlTime(now, true)
}

// HistoryEntry is one row of a player's match history
type HistoryEntry struct {
	MatchID  int64         `json:"match_id"`
	Status   models.Status `json:"status"`
	Opponent *string       `json:"opponent"`
	// Outcome is W, L or D for finished matches, C for cancelled, T for
	// technical and "—" while the match is still open.
	Outcome   string     `json:"outcome"`
	EloDelta  *int       `json:"elo_delta"`
	CreatedAt time.Time  `json:"created_at"`
	EndedAt   *time.Time `json:"ended_at"`
}

type History struct {
	Rating         int            `json:"rating"`
	WaitingMatchID *int64         `json:"waiting_match_id"`
	Matches        []HistoryEntry `json:"matches"`
	EloSeries      []int          `json:"elo_series"`
}

// History returns the caller's recent matches and rating trend
func (e *Engine) History(ctx context.Context, caller int64) (*History, error) {
	player, err := e.store.GetPlayer(ctx, caller)
	if err != nil {
		return nil, fmt.Errorf("load player %d: %w", caller, mapStoreErr(err))
	}

	views, err := e.store.RecentMatches(ctx, caller, historyLimit)
	if err != nil {
		return nil, fmt.Errorf("recent matches: %w", err)
	}
	waiting, err := e.store.WaitingMatchFor(ctx, caller)
	if err != nil {
		return nil, fmt.Errorf("lookup waiting match: %w", err)
	}
	series, err := e.store.RatingSeries(ctx, caller, ratingSeriesSize)
	if err != nil {
		return nil, fmt.Errorf("rating series: %w", err)
	}

	h := &History{
		Rating:    player.Rating,
		Matches:   make([]HistoryEntry, 0, len(views)),
		EloSeries: series,
	}
	if h.EloSeries == nil {
		h.EloSeries = []int{}
	}
	if waiting != nil {
		h.WaitingMatchID = &waiting.ID
	}
	for i := range views {
		h.Matches = append(h.Matches, historyEntry(&views[i], caller))
	}
	return h, nil
}

func historyEntry(v *models.MatchView, caller int64) HistoryEntry {
	isP1 := v.Player1ID == caller
	entry := HistoryEntry{
		MatchID:   v.ID,
		Status:    v.Status,
		Outcome:   outcome(&v.Match, isP1),
		CreatedAt: v.CreatedAt,
	}
	if isP1 {
		entry.Opponent = nullString(v.P2Username)
	} else {
		name := v.P1Username
		entry.Opponent = &name
	}
	if v.EndedAt.Valid {
		t := v.EndedAt.Time
		entry.EndedAt = &t
	}

	before, after := v.P2RatingBefore, v.P2RatingAfter
	if isP1 {
		before, after = v.P1RatingBefore, v.P1RatingAfter
	}
	if before.Valid && after.Valid && entry.Outcome != "C" && entry.Outcome != "T" {
		d := int(after.Int64 - before.Int64)
		entry.EloDelta = &d
	}
	return entry
}

func outcome(m *models.Match, isP1 bool) string {
	switch m.Status {
	case models.StatusCancelled:
		return "C"
	case models.StatusTechnical:
		return "T"
	case models.StatusFinished:
		if !m.Result.Valid {
			return "—"
		}
		switch models.Result(m.Result.String) {
		case models.ResultDraw:
			return "D"
		case models.ResultP1Win:
			if isP1 {
				return "W"
			}
			return "L"
		case models.ResultP2Win:
			if isP1 {
				return "L"
			}
			return "W"
		}
	}
	return "—"
}
