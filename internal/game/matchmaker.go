package game

import (
	"context"
	"fmt"
	"log"

	"github.com/olymp/arena/internal/models"
	"github.com/olymp/arena/internal/store"
)

// JoinQueue pairs playerID with the closest-rated waiting opponent, or
// leaves a waiting match for the next joiner. A player who already has a
// waiting match gets that match back. Concurrent joins by the same player
// are serialized on the player's row lock.
func (e *Engine) JoinQueue(ctx context.Context, playerID int64) (*models.Match, error) {
	var (
		match  *models.Match
		player *models.Player
		paired bool
		reused bool
	)
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		player, err = tx.LockPlayer(ctx, playerID)
		if err != nil {
			return fmt.Errorf("lock player %d: %w", playerID, err)
		}

		existing, err := tx.WaitingMatchFor(ctx, playerID)
		if err != nil {
			return fmt.Errorf("lookup waiting match: %w", err)
		}
		if existing != nil {
			match, reused = existing, true
			return nil
		}

		// Rows another joiner is claiming are skipped, not waited on
		m, err := tx.ClaimWaiting(ctx, playerID, player.Rating)
		if err != nil {
			return fmt.Errorf("claim waiting match: %w", err)
		}

		if m == nil {
			m = &models.Match{
				Player1ID:     playerID,
				Status:        models.StatusWaiting,
				CreatedAt:     e.clock.Now(),
				DurationSec:   int(e.cfg.RoundDuration.Seconds()),
				AllowResubmit: e.cfg.AllowResubmit,
				P1State:       models.AnswerIdle,
				P2State:       models.AnswerIdle,
			}
			if err := tx.CreateMatch(ctx, m); err != nil {
				return fmt.Errorf("create waiting match: %w", err)
			}
			match = m
			return nil
		}

		m.Player2ID.Int64, m.Player2ID.Valid = playerID, true
		m.Status = models.StatusActive
		m.ResetRound()
		m.P2Connected = false
		m.P2DisconnectedAt.Valid = false

		if err := e.assignProblem(ctx, tx, m); err != nil {
			return err
		}
		if err := tx.SaveMatch(ctx, m); err != nil {
			return fmt.Errorf("save paired match: %w", err)
		}
		match, paired = m, true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if reused {
		return match, nil
	}

	if paired {
		log.Printf("[QUEUE] match %d paired: player1=%d player2=%d problem=%d",
			match.ID, match.Player1ID, playerID, match.ProblemID.Int64)
		e.Publish(ctx, match.ID)
	} else {
		log.Printf("[QUEUE] player %d waiting in match %d (rating=%d)", playerID, match.ID, player.Rating)
	}
	return match, nil
}

// assignProblem picks a problem neither player has seen in their recent
// matches, falling back to the whole bank when that leaves nothing.
func (e *Engine) assignProblem(ctx context.Context, tx store.Tx, m *models.Match) error {
	exclude, err := tx.RecentProblemIDs(ctx, []int64{m.Player1ID, m.Player2ID.Int64}, e.cfg.RecentProblems)
	if err != nil {
		return fmt.Errorf("recent problems: %w", err)
	}

	prob, err := e.picker.Pick(ctx, exclude, true)
	if err != nil {
		return fmt.Errorf("pick problem: %w", err)
	}
	if prob == nil {
		log.Printf("[QUEUE] problem bank is empty, match %d paired without a problem", m.ID)
		m.ProblemID.Valid = false
		return nil
	}
	m.ProblemID.Int64, m.ProblemID.Valid = prob.ID, true
	return nil
}
