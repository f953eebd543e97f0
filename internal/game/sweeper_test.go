package game

import (
	"testing"
	"time"

	"github.com/olymp/arena/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweepResolvesOrphanedRounds(t *testing.T) {
	f := newFixture(t)
	a, b := f.player("a", 1000), f.player("b", 1000)
	id := f.started(a, b)
	_, err := f.engine.SetPresence(f.ctx, id, a, false)
	require.NoError(t, err)
	_, err = f.engine.SetPresence(f.ctx, id, b, false)
	require.NoError(t, err)

	s := NewSweeper(f.engine, time.Second, 0)
	assert.Equal(t, 0, s.Sweep(f.ctx), "round still running")

	f.clock.Advance(91 * time.Second)
	assert.Equal(t, 1, s.Sweep(f.ctx))
	m := f.match(id)
	assert.Equal(t, models.StatusFinished, m.Status)
	assert.Equal(t, string(models.ResultDraw), m.Result.String)
	assert.Equal(t, models.StatusFinished, f.bcast.last().Status)

	assert.Equal(t, 0, s.Sweep(f.ctx))
}

func TestSweepExpiresStaleQueueEntries(t *testing.T) {
	f := newFixture(t)
	old := f.player("old", 1000)
	fresh := f.player("fresh", 1000)

	stale, err := f.engine.JoinQueue(f.ctx, old)
	require.NoError(t, err)
	f.clock.Advance(4 * time.Minute)
	recent, err := f.engine.JoinQueue(f.ctx, fresh)
	require.NoError(t, err)
	require.Equal(t, stale.ID, recent.ID, "second joiner pairs with the first")

	lonely := f.player("lonely", 1000)
	m, err := f.engine.JoinQueue(f.ctx, lonely)
	require.NoError(t, err)

	s := NewSweeper(f.engine, time.Second, 5*time.Minute)
	assert.Equal(t, 0, s.Sweep(f.ctx))

	f.clock.Advance(6 * time.Minute)
	assert.Equal(t, 1, s.Sweep(f.ctx))
	assert.Equal(t, models.StatusCancelled, f.match(m.ID).Status)
	assert.Equal(t, models.StatusActive, f.match(stale.ID).Status, "paired matches are left alone")
}
