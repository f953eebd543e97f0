package game

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Sweeper periodically settles rounds whose deadline passed with no
// session left to fire the expiry timer, and, when queueExpiry is set,
// cancels waiting matches nobody joined in time.
type Sweeper struct {
	engine      *Engine
	interval    time.Duration
	queueExpiry time.Duration
	sched       gocron.Scheduler
}

func NewSweeper(engine *Engine, interval, queueExpiry time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Sweeper{engine: engine, interval: interval, queueExpiry: queueExpiry}
}

// Start schedules the sweep job. The scheduler runs on the engine clock.
func (s *Sweeper) Start(ctx context.Context) error {
	sched, err := gocron.NewScheduler(gocron.WithClock(s.engine.Clock()))
	if err != nil {
		return err
	}
	_, err = sched.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(func() { s.Sweep(ctx) }),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return err
	}
	s.sched = sched
	sched.Start()

	log.Printf("[SWEEPER] started (every %v, queue expiry %v)", s.interval, s.queueExpiry)
	return nil
}

func (s *Sweeper) Stop() {
	if s.sched == nil {
		return
	}
	if err := s.sched.Shutdown(); err != nil {
		log.Printf("[SWEEPER] shutdown: %v", err)
	}
}

// Sweep runs one pass and returns how many matches it ended
func (s *Sweeper) Sweep(ctx context.Context) int {
	e := s.engine
	now := e.clock.Now()
	ended := 0

	ids, err := e.store.ExpiredActiveIDs(ctx, now)
	if err != nil {
		log.Printf("[SWEEPER] list expired rounds: %v", err)
	}
	for _, id := range ids {
		changed, err := e.ResolveExpired(ctx, id)
		if err != nil {
			log.Printf("[SWEEPER] resolve match %d: %v", id, err)
			continue
		}
		if changed {
			ended++
			e.Publish(ctx, id)
		}
	}

	if s.queueExpiry <= 0 {
		return ended
	}
	ids, err = e.store.StaleWaitingIDs(ctx, now.Add(-s.queueExpiry))
	if err != nil {
		log.Printf("[SWEEPER] list stale queue entries: %v", err)
		return ended
	}
	for _, id := range ids {
		changed, err := e.ExpireWaiting(ctx, id)
		if err != nil {
			log.Printf("[SWEEPER] expire waiting match %d: %v", id, err)
			continue
		}
		if changed {
			ended++
			e.Publish(ctx, id)
		}
	}
	return ended
}
