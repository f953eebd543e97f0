package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/olymp/arena/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedPlayer(t *testing.T, s *Memory, name string, rating int) int64 {
	t.Helper()
	p := &models.Player{Username: name, Rating: rating}
	require.NoError(t, s.CreatePlayer(context.Background(), p))
	return p.ID
}

func seedWaiting(t *testing.T, s *Memory, playerID int64, createdAt time.Time) int64 {
	t.Helper()
	m := &models.Match{Player1ID: playerID, Status: models.StatusWaiting, CreatedAt: createdAt, DurationSec: 90}
	require.NoError(t, s.InTx(context.Background(), func(tx Tx) error {
		return tx.CreateMatch(context.Background(), m)
	}))
	return m.ID
}

func TestInTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	p := seedPlayer(t, s, "ann", 1000)
	id := seedWaiting(t, s, p, time.Now())

	boom := errors.New("boom")
	err := s.InTx(ctx, func(tx Tx) error {
		m, err := tx.LockMatch(ctx, id)
		require.NoError(t, err)
		m.Status = models.StatusCancelled
		require.NoError(t, tx.SaveMatch(ctx, m))
		_, err = tx.LockPlayer(ctx, p)
		require.NoError(t, err)
		require.NoError(t, tx.SetPlayerRating(ctx, p, 1500))
		return boom
	})
	require.ErrorIs(t, err, boom)

	m, err := s.GetMatch(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusWaiting, m.Status)
	pl, err := s.GetPlayer(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, 1000, pl.Rating)
}

func TestLockMatchSerializesWriters(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	p := seedPlayer(t, s, "ann", 1000)
	id := seedWaiting(t, s, p, time.Now())

	const writers = 20
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.InTx(ctx, func(tx Tx) error {
				m, err := tx.LockMatch(ctx, id)
				if err != nil {
					return err
				}
				m.DurationSec++
				return tx.SaveMatch(ctx, m)
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	m, err := s.GetMatch(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 90+writers, m.DurationSec, "no lost updates")
}

func TestLockPlayerSerializesRatingWriters(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	p := seedPlayer(t, s, "ann", 1000)

	const writers = 20
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.InTx(ctx, func(tx Tx) error {
				pl, err := tx.LockPlayer(ctx, p)
				if err != nil {
					return err
				}
				return tx.SetPlayerRating(ctx, p, pl.Rating+1)
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	pl, err := s.GetPlayer(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, 1000+writers, pl.Rating, "no lost updates")
}

func TestLockPlayerSeesOwnPendingRating(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	p := seedPlayer(t, s, "ann", 1000)

	require.NoError(t, s.InTx(ctx, func(tx Tx) error {
		_, err := tx.LockPlayer(ctx, p)
		require.NoError(t, err)
		require.NoError(t, tx.SetPlayerRating(ctx, p, 1016))

		again, err := tx.LockPlayer(ctx, p)
		require.NoError(t, err)
		assert.Equal(t, 1016, again.Rating)
		return nil
	}))
}

func TestSetRatingWithoutLockFails(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	p := seedPlayer(t, s, "ann", 1000)

	err := s.InTx(ctx, func(tx Tx) error {
		return tx.SetPlayerRating(ctx, p, 1200)
	})
	assert.Error(t, err)

	err = s.InTx(ctx, func(tx Tx) error {
		_, err := tx.LockPlayer(ctx, 404)
		return err
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTxWaitingMatchForSeesPendingInsert(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	p := seedPlayer(t, s, "ann", 1000)

	require.NoError(t, s.InTx(ctx, func(tx Tx) error {
		got, err := tx.WaitingMatchFor(ctx, p)
		require.NoError(t, err)
		assert.Nil(t, got)

		m := &models.Match{Player1ID: p, Status: models.StatusWaiting, CreatedAt: time.Now(), DurationSec: 90}
		require.NoError(t, tx.CreateMatch(ctx, m))

		got, err = tx.WaitingMatchFor(ctx, p)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, m.ID, got.ID)
		return nil
	}))
}

func TestLockMatchUnknown(t *testing.T) {
	s := NewMemory()
	err := s.InTx(context.Background(), func(tx Tx) error {
		_, err := tx.LockMatch(context.Background(), 404)
		return err
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveWithoutLockFails(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	p := seedPlayer(t, s, "ann", 1000)
	id := seedWaiting(t, s, p, time.Now())

	err := s.InTx(ctx, func(tx Tx) error {
		return tx.SaveMatch(ctx, &models.Match{ID: id})
	})
	assert.Error(t, err)
}

func TestClaimWaitingOrdersByRatingThenAge(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	base := time.Now()
	far := seedPlayer(t, s, "far", 1500)
	near := seedPlayer(t, s, "near", 1005)
	nearLater := seedPlayer(t, s, "near-later", 995)
	joiner := seedPlayer(t, s, "joiner", 1000)

	seedWaiting(t, s, far, base)
	want := seedWaiting(t, s, near, base.Add(time.Second))
	seedWaiting(t, s, nearLater, base.Add(2*time.Second))

	err := s.InTx(ctx, func(tx Tx) error {
		m, err := tx.ClaimWaiting(ctx, joiner, 1000)
		require.NoError(t, err)
		require.NotNil(t, m)
		assert.Equal(t, want, m.ID)
		return nil
	})
	require.NoError(t, err)
}

func TestClaimWaitingSkipsOwnAndLockedRows(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	a := seedPlayer(t, s, "a", 1000)
	b := seedPlayer(t, s, "b", 1000)
	c := seedPlayer(t, s, "c", 1000)
	seedWaiting(t, s, a, time.Now())

	claimed := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = s.InTx(ctx, func(tx Tx) error {
			m, err := tx.ClaimWaiting(ctx, b, 1000)
			assert.NoError(t, err)
			assert.NotNil(t, m)
			close(claimed)
			<-done
			return nil
		})
	}()
	<-claimed

	err := s.InTx(ctx, func(tx Tx) error {
		m, err := tx.ClaimWaiting(ctx, c, 1000)
		require.NoError(t, err)
		assert.Nil(t, m, "row held by another transaction must be skipped")

		own, err := tx.ClaimWaiting(ctx, a, 1000)
		require.NoError(t, err)
		assert.Nil(t, own, "players never claim their own waiting match")
		return nil
	})
	require.NoError(t, err)
	close(done)
}

func TestRecentProblemIDs(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	a := seedPlayer(t, s, "a", 1000)
	b := seedPlayer(t, s, "b", 1000)
	other := seedPlayer(t, s, "other", 1000)

	base := time.Now()
	mk := func(p1 int64, problem int64, at time.Time) {
		m := &models.Match{Player1ID: p1, Status: models.StatusFinished, CreatedAt: at}
		if problem > 0 {
			m.ProblemID.Int64, m.ProblemID.Valid = problem, true
		}
		require.NoError(t, s.InTx(ctx, func(tx Tx) error { return tx.CreateMatch(ctx, m) }))
	}
	mk(a, 101, base)
	mk(b, 102, base.Add(time.Second))
	mk(other, 103, base.Add(2*time.Second))
	mk(a, 0, base.Add(3*time.Second))
	mk(b, 104, base.Add(4*time.Second))

	err := s.InTx(ctx, func(tx Tx) error {
		ids, err := tx.RecentProblemIDs(ctx, []int64{a, b}, 2)
		require.NoError(t, err)
		assert.Equal(t, []int64{104, 102}, ids)
		return nil
	})
	require.NoError(t, err)
}

func TestRatingSeriesKeepsNewestPoints(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	a := seedPlayer(t, s, "a", 1000)
	b := seedPlayer(t, s, "b", 1000)

	base := time.Now()
	for i := 0; i < 5; i++ {
		m := &models.Match{Player1ID: b, Status: models.StatusFinished, CreatedAt: base}
		m.Player2ID.Int64, m.Player2ID.Valid = a, true
		m.EndedAt.Time, m.EndedAt.Valid = base.Add(time.Duration(i)*time.Minute), true
		m.P2RatingAfter.Int64, m.P2RatingAfter.Valid = int64(1000+i), true
		require.NoError(t, s.InTx(ctx, func(tx Tx) error { return tx.CreateMatch(ctx, m) }))
	}

	series, err := s.RatingSeries(ctx, a, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{1002, 1003, 1004}, series)
}
