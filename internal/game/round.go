package game

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/olymp/arena/internal/models"
	"github.com/olymp/arena/internal/problems"
	"github.com/olymp/arena/internal/rating"
	"github.com/olymp/arena/internal/store"
)

// SetPresence flips playerID's connection flag. Disconnecting also stamps
// the disconnect time that the technical-loss check measures from.
func (e *Engine) SetPresence(ctx context.Context, matchID, playerID int64, connected bool) (bool, error) {
	return e.withMatch(ctx, matchID, func(_ store.Tx, m *models.Match) (bool, error) {
		if m.Status != models.StatusWaiting && m.Status != models.StatusActive {
			return false, nil
		}
		seat, ok := m.Seat(playerID)
		if !ok {
			return false, nil
		}

		*seat.Connected = connected
		if connected {
			*seat.DisconnectedAt = sqlTime(time.Time{}, false)
		} else {
			*seat.DisconnectedAt = sqlTime(e.clock.Now(), true)
		}
		return true, nil
	})
}

// TryStartRound starts the round clock once the match is paired and both
// players are present. It never restarts a round.
func (e *Engine) TryStartRound(ctx context.Context, matchID int64) (bool, error) {
	return e.withMatch(ctx, matchID, func(_ store.Tx, m *models.Match) (bool, error) {
		if m.Status != models.StatusActive || !m.Player2ID.Valid || m.StartedAt.Valid {
			return false, nil
		}
		if !m.P1Connected || !m.P2Connected {
			return false, nil
		}

		now := e.clock.Now()
		m.StartedAt = sqlTime(now, true)
		m.ExpiresAt = sqlTime(now.Add(time.Duration(m.DurationSec)*time.Second), true)
		log.Printf("[MATCH] match %d round started, expires_at=%s", m.ID, m.ExpiresAt.Time.Format(time.RFC3339))
		return true, nil
	})
}

// AnswerOutcome reports what ApplyAnswer did with a submission
type AnswerOutcome struct {
	// Applied is false when the match was not in a running round; the
	// caller should neither broadcast nor give feedback.
	Applied bool
	// Recorded is false when the deadline had passed or a resubmission was
	// refused; the caller broadcasts state without feedback.
	Recorded bool
	Correct  bool
	// BothCorrect is true when, after this write, both players hold a
	// correct answer and the round can be decided now.
	BothCorrect bool
}

// ApplyAnswer records playerID's answer for the running round
func (e *Engine) ApplyAnswer(ctx context.Context, matchID, playerID int64, answer string) (AnswerOutcome, error) {
	var out AnswerOutcome
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return out, nil
	}

	_, err := e.withMatch(ctx, matchID, func(tx store.Tx, m *models.Match) (bool, error) {
		if m.Status != models.StatusActive || !m.ProblemID.Valid || !m.RoundStarted() {
			return false, nil
		}
		seat, ok := m.Seat(playerID)
		if !ok {
			return false, nil
		}
		out.Applied = true

		now := e.clock.Now()
		if !now.Before(m.ExpiresAt.Time) {
			return false, nil
		}
		if !m.AllowResubmit && seat.LastSubmitAt.Valid {
			return false, nil
		}

		prob, err := tx.GetProblem(ctx, m.ProblemID.Int64)
		if err != nil {
			return false, err
		}
		out.Recorded = true
		out.Correct = problems.IsCorrect(answer, prob.CorrectAnswer)

		*seat.LastAnswer = answer
		*seat.LastSubmitAt = sqlTime(now, true)
		if out.Correct {
			*seat.State, *seat.Score = models.AnswerCorrect, 1
		} else {
			*seat.State, *seat.Score = models.AnswerWrong, 0
		}
		out.BothCorrect = m.P1Score == 1 && m.P2Score == 1
		return true, nil
	})
	if err != nil {
		return AnswerOutcome{}, err
	}
	return out, nil
}

// ResolveExpired finishes a round whose deadline has passed. The higher
// score wins; equal scores (including 0-0) are a draw. Safe to call any
// number of times: once the match is terminal it does nothing.
func (e *Engine) ResolveExpired(ctx context.Context, matchID int64) (bool, error) {
	return e.withMatch(ctx, matchID, func(tx store.Tx, m *models.Match) (bool, error) {
		if m.Status != models.StatusActive || !m.RoundStarted() || !m.Player2ID.Valid {
			return false, nil
		}
		now := e.clock.Now()
		if now.Before(m.ExpiresAt.Time) {
			return false, nil
		}

		s1 := rating.Draw
		switch {
		case m.P1Score > m.P2Score:
			s1 = rating.Win
		case m.P2Score > m.P1Score:
			s1 = rating.Loss
		}
		return true, e.settle(ctx, tx, m, s1, now)
	})
}

// ResolveBothCorrect ends the round early as a draw when both players
// have answered correctly.
func (e *Engine) ResolveBothCorrect(ctx context.Context, matchID int64) (bool, error) {
	return e.withMatch(ctx, matchID, func(tx store.Tx, m *models.Match) (bool, error) {
		if m.Status != models.StatusActive || !m.RoundStarted() || !m.Player2ID.Valid {
			return false, nil
		}
		if m.P1Score != 1 || m.P2Score != 1 {
			return false, nil
		}
		return true, e.settle(ctx, tx, m, rating.Draw, e.clock.Now())
	})
}

// MarkTechnical ends a started match as technical when playerID is still
// disconnected a full grace period after leaving. Ratings are untouched.
func (e *Engine) MarkTechnical(ctx context.Context, matchID, playerID int64) (bool, error) {
	return e.withMatch(ctx, matchID, func(_ store.Tx, m *models.Match) (bool, error) {
		if m.Status != models.StatusActive || !m.Player2ID.Valid || !m.ProblemID.Valid || !m.StartedAt.Valid {
			return false, nil
		}
		seat, ok := m.Seat(playerID)
		if !ok || *seat.Connected || !seat.DisconnectedAt.Valid {
			return false, nil
		}
		now := e.clock.Now()
		if now.Sub(seat.DisconnectedAt.Time) < e.cfg.Grace {
			return false, nil
		}

		m.Status = models.StatusTechnical
		m.Result.String, m.Result.Valid = string(models.ResultTechnical), true
		m.WinnerID.Valid = false
		m.EndedAt = sqlTime(now, true)
		log.Printf("[MATCH] match %d ended technical: player %d did not return within %s", m.ID, playerID, e.cfg.Grace)
		return true, nil
	})
}
