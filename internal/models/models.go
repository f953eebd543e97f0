package models

import (
	"database/sql"
	"time"
)

// Status is the lifecycle state of a match
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusActive    Status = "active"
	StatusFinished  Status = "finished"
	StatusCancelled Status = "cancelled"
	StatusTechnical Status = "technical"
)

// Terminal reports whether no further transition is possible
func (s Status) Terminal() bool {
	return s == StatusFinished || s == StatusCancelled || s == StatusTechnical
}

// Result is the outcome recorded with a terminal status
type Result string

const (
	ResultP1Win     Result = "p1_win"
	ResultP2Win     Result = "p2_win"
	ResultDraw      Result = "draw"
	ResultCancelled Result = "cancelled"
	ResultTechnical Result = "technical"
)

// AnswerState tracks a player's last submission in the current round
type AnswerState string

const (
	AnswerIdle    AnswerState = "idle"
	AnswerWrong   AnswerState = "wrong"
	AnswerCorrect AnswerState = "correct"
)

// Player represents a user in the system
type Player struct {
	ID        int64     `db:"id" json:"id"`
	Username  string    `db:"username" json:"username"`
	Rating    int       `db:"rating" json:"rating"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Problem is the question put to both players in a round
type Problem struct {
	ID            int64     `db:"id" json:"id"`
	Title         string    `db:"title" json:"title"`
	Text          string    `db:"text" json:"text"`
	CorrectAnswer string    `db:"correct_answer" json:"-"`
	IsActive      bool      `db:"is_active" json:"is_active"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// Match is the single lockable record shared by both players' sessions
type Match struct {
	ID        int64         `db:"id" json:"id"`
	Player1ID int64         `db:"player1_id" json:"player1_id"`
	Player2ID sql.NullInt64 `db:"player2_id" json:"player2_id,omitempty"`
	ProblemID sql.NullInt64 `db:"problem_id" json:"problem_id,omitempty"`
	WinnerID  sql.NullInt64 `db:"winner_id" json:"winner_id,omitempty"`

	Status Status         `db:"status" json:"status"`
	Result sql.NullString `db:"result" json:"result,omitempty"`

	CreatedAt time.Time    `db:"created_at" json:"created_at"`
	StartedAt sql.NullTime `db:"started_at" json:"started_at,omitempty"`
	ExpiresAt sql.NullTime `db:"expires_at" json:"expires_at,omitempty"`
	EndedAt   sql.NullTime `db:"ended_at" json:"ended_at,omitempty"`

	DurationSec   int  `db:"duration_sec" json:"duration_sec"`
	AllowResubmit bool `db:"allow_resubmit" json:"allow_resubmit"`

	P1State        AnswerState  `db:"p1_state" json:"p1_state"`
	P2State        AnswerState  `db:"p2_state" json:"p2_state"`
	P1Score        int          `db:"p1_score" json:"p1_score"`
	P2Score        int          `db:"p2_score" json:"p2_score"`
	P1LastAnswer   string       `db:"p1_last_answer" json:"-"`
	P2LastAnswer   string       `db:"p2_last_answer" json:"-"`
	P1LastSubmitAt sql.NullTime `db:"p1_last_submit_at" json:"-"`
	P2LastSubmitAt sql.NullTime `db:"p2_last_submit_at" json:"-"`

	P1RatingBefore sql.NullInt64 `db:"p1_rating_before" json:"p1_rating_before,omitempty"`
	P2RatingBefore sql.NullInt64 `db:"p2_rating_before" json:"p2_rating_before,omitempty"`
	P1RatingAfter  sql.NullInt64 `db:"p1_rating_after" json:"p1_rating_after,omitempty"`
	P2RatingAfter  sql.NullInt64 `db:"p2_rating_after" json:"p2_rating_after,omitempty"`

	P1Connected      bool         `db:"p1_connected" json:"p1_connected"`
	P2Connected      bool         `db:"p2_connected" json:"p2_connected"`
	P1DisconnectedAt sql.NullTime `db:"p1_disconnected_at" json:"-"`
	P2DisconnectedAt sql.NullTime `db:"p2_disconnected_at" json:"-"`
}

// Seat groups pointers to one player's per-round fields so callers can
// mutate "my side" of a match without branching on player1/player2.
type Seat struct {
	IsP1           bool
	Connected      *bool
	DisconnectedAt *sql.NullTime
	LastAnswer     *string
	LastSubmitAt   *sql.NullTime
	State          *AnswerState
	Score          *int
}

// Seat returns the seat occupied by playerID, or false if not a participant
func (m *Match) Seat(playerID int64) (Seat, bool) {
	switch {
	case playerID == m.Player1ID:
		return Seat{
			IsP1:           true,
			Connected:      &m.P1Connected,
			DisconnectedAt: &m.P1DisconnectedAt,
			LastAnswer:     &m.P1LastAnswer,
			LastSubmitAt:   &m.P1LastSubmitAt,
			State:          &m.P1State,
			Score:          &m.P1Score,
		}, true
	case m.Player2ID.Valid && playerID == m.Player2ID.Int64:
		return Seat{
			Connected:      &m.P2Connected,
			DisconnectedAt: &m.P2DisconnectedAt,
			LastAnswer:     &m.P2LastAnswer,
			LastSubmitAt:   &m.P2LastSubmitAt,
			State:          &m.P2State,
			Score:          &m.P2Score,
		}, true
	}
	return Seat{}, false
}

// IsParticipant reports whether playerID occupies either seat
func (m *Match) IsParticipant(playerID int64) bool {
	_, ok := m.Seat(playerID)
	return ok
}

// OpponentID returns the other seat's player id (0 if the seat is empty)
func (m *Match) OpponentID(playerID int64) int64 {
	if playerID == m.Player1ID {
		return m.Player2ID.Int64
	}
	return m.Player1ID
}

// RoundStarted reports whether the round clock is running or has run
func (m *Match) RoundStarted() bool {
	return m.StartedAt.Valid && m.ExpiresAt.Valid
}

// ResetRound clears per-round fields ahead of a fresh pairing
func (m *Match) ResetRound() {
	m.StartedAt = sql.NullTime{}
	m.ExpiresAt = sql.NullTime{}
	m.P1State, m.P2State = AnswerIdle, AnswerIdle
	m.P1Score, m.P2Score = 0, 0
	m.P1LastAnswer, m.P2LastAnswer = "", ""
	m.P1LastSubmitAt, m.P2LastSubmitAt = sql.NullTime{}, sql.NullTime{}
}

// MatchView is a match joined with the display fields the state snapshot needs
type MatchView struct {
	Match
	P1Username   string         `db:"p1_username"`
	P2Username   sql.NullString `db:"p2_username"`
	ProblemTitle sql.NullString `db:"problem_title"`
	ProblemText  sql.NullString `db:"problem_text"`
}
