package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"slices"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/olymp/arena/internal/models"
)

const matchViewSelect = `
	SELECT m.*,
	       p1.username AS p1_username,
	       p2.username AS p2_username,
	       pr.title    AS problem_title,
	       pr.text     AS problem_text
	FROM matches m
	JOIN players p1 ON p1.id = m.player1_id
	LEFT JOIN players p2 ON p2.id = m.player2_id
	LEFT JOIN problems pr ON pr.id = m.problem_id
`

// Postgres is the production Store backed by sqlx/lib/pq
type Postgres struct {
	db *sqlx.DB
}

func NewPostgres(db *sqlx.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Postgres) GetMatch(ctx context.Context, id int64) (*models.Match, error) {
	var m models.Match
	if err := s.db.GetContext(ctx, &m, `SELECT * FROM matches WHERE id = $1`, id); err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

func (s *Postgres) GetMatchView(ctx context.Context, id int64) (*models.MatchView, error) {
	var v models.MatchView
	if err := s.db.GetContext(ctx, &v, matchViewSelect+` WHERE m.id = $1`, id); err != nil {
		return nil, notFound(err)
	}
	return &v, nil
}

func (s *Postgres) GetPlayer(ctx context.Context, id int64) (*models.Player, error) {
	var p models.Player
	if err := s.db.GetContext(ctx, &p, `SELECT id, username, rating, created_at FROM players WHERE id = $1`, id); err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

const waitingMatchSelect = `
	SELECT * FROM matches
	WHERE status = 'waiting' AND player1_id = $1
	ORDER BY created_at
	LIMIT 1
`

func (s *Postgres) WaitingMatchFor(ctx context.Context, playerID int64) (*models.Match, error) {
	return waitingMatch(ctx, s.db, playerID)
}

func waitingMatch(ctx context.Context, q sqlx.QueryerContext, playerID int64) (*models.Match, error) {
	var m models.Match
	err := sqlx.GetContext(ctx, q, &m, waitingMatchSelect, playerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("waiting match for player %d: %w", playerID, err)
	}
	return &m, nil
}

func (s *Postgres) RecentMatches(ctx context.Context, playerID int64, limit int) ([]models.MatchView, error) {
	var out []models.MatchView
	err := s.db.SelectContext(ctx, &out, matchViewSelect+`
		WHERE m.player1_id = $1 OR m.player2_id = $1
		ORDER BY m.created_at DESC, m.id DESC
		LIMIT $2
	`, playerID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent matches for player %d: %w", playerID, err)
	}
	return out, nil
}

func (s *Postgres) RatingSeries(ctx context.Context, playerID int64, limit int) ([]int, error) {
	var series []int
	err := s.db.SelectContext(ctx, &series, `
		SELECT CASE WHEN player1_id = $1 THEN p1_rating_after ELSE p2_rating_after END
		FROM matches
		WHERE (player1_id = $1 OR player2_id = $1)
		  AND status = 'finished'
		  AND (CASE WHEN player1_id = $1 THEN p1_rating_after ELSE p2_rating_after END) IS NOT NULL
		ORDER BY ended_at DESC, id DESC
		LIMIT $2
	`, playerID, limit)
	if err != nil {
		return nil, fmt.Errorf("rating series for player %d: %w", playerID, err)
	}
	slices.Reverse(series)
	return series, nil
}

func (s *Postgres) ExpiredActiveIDs(ctx context.Context, now time.Time) ([]int64, error) {
	var ids []int64
	err := s.db.SelectContext(ctx, &ids, `
		SELECT id FROM matches
		WHERE status = 'active' AND started_at IS NOT NULL AND expires_at <= $1
		ORDER BY expires_at
	`, now)
	if err != nil {
		return nil, fmt.Errorf("expired active matches: %w", err)
	}
	return ids, nil
}

func (s *Postgres) StaleWaitingIDs(ctx context.Context, createdBefore time.Time) ([]int64, error) {
	var ids []int64
	err := s.db.SelectContext(ctx, &ids, `
		SELECT id FROM matches
		WHERE status = 'waiting' AND created_at < $1
		ORDER BY created_at
	`, createdBefore)
	if err != nil {
		return nil, fmt.Errorf("stale waiting matches: %w", err)
	}
	return ids, nil
}

func (s *Postgres) CreatePlayer(ctx context.Context, p *models.Player) error {
	return s.db.QueryRowxContext(ctx, `
		INSERT INTO players (username, rating, created_at) VALUES ($1, $2, NOW())
		ON CONFLICT (username) DO UPDATE SET username = EXCLUDED.username
		RETURNING id, rating, created_at
	`, p.Username, p.Rating).Scan(&p.ID, &p.Rating, &p.CreatedAt)
}

func (s *Postgres) CreateProblem(ctx context.Context, p *models.Problem) error {
	return s.db.QueryRowxContext(ctx, `
		INSERT INTO problems (title, text, correct_answer, is_active, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id, created_at
	`, p.Title, p.Text, p.CorrectAnswer, p.IsActive).Scan(&p.ID, &p.CreatedAt)
}

type pgTx struct {
	tx *sqlx.Tx
}

func (t *pgTx) LockMatch(ctx context.Context, id int64) (*models.Match, error) {
	var m models.Match
	if err := t.tx.GetContext(ctx, &m, `SELECT * FROM matches WHERE id = $1 FOR UPDATE`, id); err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

func (t *pgTx) ClaimWaiting(ctx context.Context, playerID int64, rating int) (*models.Match, error) {
	// FOR UPDATE SKIP LOCKED: concurrent joiners never pair with the same
	// waiting row and never block on each other.
	var m models.Match
	err := t.tx.GetContext(ctx, &m, `
		SELECT m.*
		FROM matches m
		JOIN players p ON p.id = m.player1_id
		WHERE m.status = 'waiting'
		  AND m.player2_id IS NULL
		  AND m.player1_id <> $1
		ORDER BY ABS(p.rating - $2), m.created_at, m.id
		LIMIT 1
		FOR UPDATE OF m SKIP LOCKED
	`, playerID, rating)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim waiting match: %w", err)
	}
	return &m, nil
}

func (t *pgTx) CreateMatch(ctx context.Context, m *models.Match) error {
	rows, err := sqlx.NamedQueryContext(ctx, t.tx, `
		INSERT INTO matches (player1_id, player2_id, problem_id, status, created_at, duration_sec, allow_resubmit,
		                     p1_state, p2_state, p1_score, p2_score)
		VALUES (:player1_id, :player2_id, :problem_id, :status, :created_at, :duration_sec, :allow_resubmit,
		        :p1_state, :p2_state, :p1_score, :p2_score)
		RETURNING id
	`, m)
	if err != nil {
		return fmt.Errorf("insert match: %w", err)
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(&m.ID); err != nil {
			return fmt.Errorf("insert match: %w", err)
		}
	}
	return rows.Err()
}

func (t *pgTx) SaveMatch(ctx context.Context, m *models.Match) error {
	res, err := t.tx.NamedExecContext(ctx, `
		UPDATE matches SET
			player2_id = :player2_id, problem_id = :problem_id, winner_id = :winner_id,
			status = :status, result = :result,
			started_at = :started_at, expires_at = :expires_at, ended_at = :ended_at,
			duration_sec = :duration_sec, allow_resubmit = :allow_resubmit,
			p1_state = :p1_state, p2_state = :p2_state, p1_score = :p1_score, p2_score = :p2_score,
			p1_last_answer = :p1_last_answer, p2_last_answer = :p2_last_answer,
			p1_last_submit_at = :p1_last_submit_at, p2_last_submit_at = :p2_last_submit_at,
			p1_rating_before = :p1_rating_before, p2_rating_before = :p2_rating_before,
			p1_rating_after = :p1_rating_after, p2_rating_after = :p2_rating_after,
			p1_connected = :p1_connected, p2_connected = :p2_connected,
			p1_disconnected_at = :p1_disconnected_at, p2_disconnected_at = :p2_disconnected_at
		WHERE id = :id
	`, m)
	if err != nil {
		return fmt.Errorf("update match %d: %w", m.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		log.Printf("[DB] SaveMatch touched no rows for match %d", m.ID)
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) WaitingMatchFor(ctx context.Context, playerID int64) (*models.Match, error) {
	return waitingMatch(ctx, t.tx, playerID)
}

// LockPlayer uses NO KEY UPDATE so foreign-key checks from concurrent
// match inserts (KEY SHARE) are not blocked by a rating write.
func (t *pgTx) LockPlayer(ctx context.Context, id int64) (*models.Player, error) {
	var p models.Player
	err := t.tx.GetContext(ctx, &p, `SELECT id, username, rating, created_at FROM players WHERE id = $1 FOR NO KEY UPDATE`, id)
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (t *pgTx) GetPlayer(ctx context.Context, id int64) (*models.Player, error) {
	var p models.Player
	if err := t.tx.GetContext(ctx, &p, `SELECT id, username, rating, created_at FROM players WHERE id = $1`, id); err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (t *pgTx) SetPlayerRating(ctx context.Context, id int64, rating int) error {
	if _, err := t.tx.ExecContext(ctx, `UPDATE players SET rating = $1 WHERE id = $2`, rating, id); err != nil {
		return fmt.Errorf("update rating for player %d: %w", id, err)
	}
	return nil
}

func (t *pgTx) GetProblem(ctx context.Context, id int64) (*models.Problem, error) {
	var p models.Problem
	err := t.tx.GetContext(ctx, &p, `SELECT id, title, text, correct_answer, is_active, created_at FROM problems WHERE id = $1`, id)
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (t *pgTx) RecentProblemIDs(ctx context.Context, playerIDs []int64, limit int) ([]int64, error) {
	var ids []int64
	err := t.tx.SelectContext(ctx, &ids, `
		SELECT problem_id FROM matches
		WHERE (player1_id = ANY($1) OR player2_id = ANY($1))
		  AND problem_id IS NOT NULL
		ORDER BY created_at DESC
		LIMIT $2
	`, pq.Array(playerIDs), limit)
	if err != nil {
		return nil, fmt.Errorf("recent problems: %w", err)
	}
	return ids, nil
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
