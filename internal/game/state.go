package game

import (
	"database/sql"
	"errors"
	"time"

	"github.com/olymp/arena/internal/models"
)

var (
	ErrNotFound  = errors.New("match not found")
	ErrForbidden = errors.New("not a participant of this match")
)

// State is the snapshot sent on connect and on every broadcast. Field
// names and nesting are the wire contract with the presentation layer.
type State struct {
	Type      string         `json:"type"`
	MatchID   int64          `json:"match_id"`
	Status    models.Status  `json:"status"`
	Result    *string        `json:"result"`
	StartedAt *string        `json:"started_at"`
	ExpiresAt *string        `json:"expires_at"`
	P1        PlayerState    `json:"p1"`
	P2        PlayerState    `json:"p2"`
	Problem   ProblemSummary `json:"problem"`
}

type PlayerState struct {
	Username *string            `json:"username"`
	Score    int                `json:"score"`
	State    models.AnswerState `json:"state"`
}

type ProblemSummary struct {
	Title *string `json:"title"`
	Text  *string `json:"text"`
}

// Toast is per-player feedback on a single submission
type Toast struct {
	Type    string `json:"type"`
	Level   string `json:"level"`
	Message string `json:"message"`
}

func NewToast(correct bool) Toast {
	if correct {
		return Toast{Type: "toast", Level: "success", Message: "✅ Correct!"}
	}
	return Toast{Type: "toast", Level: "error", Message: "❌ Wrong answer"}
}

// StateFromView builds the wire snapshot of a match
func StateFromView(v *models.MatchView) *State {
	p1Name := v.P1Username
	return &State{
		Type:      "state",
		MatchID:   v.ID,
		Status:    v.Status,
		Result:    nullString(v.Result),
		StartedAt: isoTime(v.StartedAt),
		ExpiresAt: isoTime(v.ExpiresAt),
		P1: PlayerState{
			Username: &p1Name,
			Score:    v.P1Score,
			State:    v.P1State,
		},
		P2: PlayerState{
			Username: nullString(v.P2Username),
			Score:    v.P2Score,
			State:    v.P2State,
		},
		Problem: ProblemSummary{
			Title: nullString(v.ProblemTitle),
			Text:  nullString(v.ProblemText),
		},
	}
}

func nullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	return &s.String
}

func isoTime(t sql.NullTime) *string {
	if !t.Valid {
		return nil
	}
	s := t.Time.UTC().Format(time.RFC3339Nano)
	return &s
}
