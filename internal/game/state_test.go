package game

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotOfWaitingMatch(t *testing.T) {
	f := newFixture(t)
	a := f.player("ann", 1000)
	m, err := f.engine.JoinQueue(f.ctx, a)
	require.NoError(t, err)

	st, err := f.engine.Snapshot(f.ctx, m.ID)
	require.NoError(t, err)

	raw, err := json.Marshal(st)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"type": "state",
		"match_id": `+jsonInt(m.ID)+`,
		"status": "waiting",
		"result": null,
		"started_at": null,
		"expires_at": null,
		"p1": {"username": "ann", "score": 0, "state": "idle"},
		"p2": {"username": null, "score": 0, "state": "idle"},
		"problem": {"title": null, "text": null}
	}`, string(raw))
}

func TestSnapshotOfStartedMatch(t *testing.T) {
	f := newFixture(t)
	a, b := f.player("ann", 1000), f.player("bob", 1000)
	id := f.started(a, b)
	_, err := f.engine.ApplyAnswer(f.ctx, id, b, "rome")
	require.NoError(t, err)

	st, err := f.engine.Snapshot(f.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "bob", *st.P2.Username)
	assert.Equal(t, "wrong", string(st.P2.State))
	require.NotNil(t, st.Problem.Title)
	assert.Equal(t, "Capital", *st.Problem.Title)
	require.NotNil(t, st.StartedAt)
	assert.Equal(t, "2024-03-01T12:00:00Z", *st.StartedAt)
	assert.Equal(t, "2024-03-01T12:01:30Z", *st.ExpiresAt)
}

func TestToast(t *testing.T) {
	assert.Equal(t, Toast{Type: "toast", Level: "success", Message: "✅ Correct!"}, NewToast(true))
	assert.Equal(t, "error", NewToast(false).Level)
}

func jsonInt(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}
