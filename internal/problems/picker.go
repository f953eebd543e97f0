// Package problems is the engine's view of the question bank: picking a
// problem for a fresh pairing and checking submitted answers.
package problems

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/olymp/arena/internal/models"
)

// Picker selects a problem not in exclude. With fallback set, an exclusion
// that leaves nothing is retried against the whole active pool. A nil
// problem with nil error means the bank is empty.
type Picker interface {
	Pick(ctx context.Context, exclude []int64, fallback bool) (*models.Problem, error)
}

// SQLPicker picks random active problems from the problems table
type SQLPicker struct {
	db *sqlx.DB
}

func NewSQLPicker(db *sqlx.DB) *SQLPicker {
	return &SQLPicker{db: db}
}

func (p *SQLPicker) Pick(ctx context.Context, exclude []int64, fallback bool) (*models.Problem, error) {
	if len(exclude) > 0 {
		prob, err := p.pickOne(ctx, `
			SELECT id, title, text, correct_answer, is_active, created_at
			FROM problems
			WHERE is_active AND NOT (id = ANY($1))
			ORDER BY random()
			LIMIT 1
		`, pq.Array(exclude))
		if err != nil || prob != nil || !fallback {
			return prob, err
		}
	}

	return p.pickOne(ctx, `
		SELECT id, title, text, correct_answer, is_active, created_at
		FROM problems
		WHERE is_active
		ORDER BY random()
		LIMIT 1
	`)
}

func (p *SQLPicker) pickOne(ctx context.Context, query string, args ...interface{}) (*models.Problem, error) {
	var prob models.Problem
	if err := p.db.GetContext(ctx, &prob, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("pick problem: %w", err)
	}
	return &prob, nil
}

// StaticPicker picks from a fixed in-memory bank (dev mode and tests)
type StaticPicker struct {
	mu       sync.Mutex
	problems []models.Problem
}

func NewStaticPicker(bank []models.Problem) *StaticPicker {
	return &StaticPicker{problems: slices.Clone(bank)}
}

// Add appends a problem to the bank
func (p *StaticPicker) Add(prob models.Problem) {
	p.mu.Lock()
	p.problems = append(p.problems, prob)
	p.mu.Unlock()
}

func (p *StaticPicker) Pick(_ context.Context, exclude []int64, fallback bool) (*models.Problem, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var active, allowed []models.Problem
	for _, prob := range p.problems {
		if !prob.IsActive {
			continue
		}
		active = append(active, prob)
		if !slices.Contains(exclude, prob.ID) {
			allowed = append(allowed, prob)
		}
	}

	if len(allowed) == 0 && fallback {
		allowed = active
	}
	if len(allowed) == 0 {
		return nil, nil
	}

	prob := allowed[rand.IntN(len(allowed))]
	return &prob, nil
}
