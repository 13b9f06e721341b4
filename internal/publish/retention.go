package publish

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Retention purges publications older than a maximum age on a cron schedule.
type Retention struct {
	store    *Store
	maxAge   time.Duration
	schedule cron.Schedule
	cron     *cron.Cron
	now      func() time.Time

	mu      sync.Mutex
	started bool
}

// NewRetention parses schedule as a standard cron expression or descriptor
// such as "@hourly".
func NewRetention(store *Store, maxAge time.Duration, schedule string) (*Retention, error) {
	if maxAge <= 0 {
		return nil, fmt.Errorf("retention must be positive, got %s", maxAge)
	}

	sched, err := cron.ParseStandard(schedule)
	if err != nil {
		return nil, fmt.Errorf("parsing cleanup schedule: %w", err)
	}

	r := &Retention{
		store:    store,
		maxAge:   maxAge,
		schedule: sched,
		cron:     cron.New(),
		now:      time.Now,
	}
	r.cron.Schedule(sched, cron.FuncJob(r.run))
	return r, nil
}

func (r *Retention) run() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if _, err := r.RunOnce(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to purge expired publications")
	}
}

// RunOnce purges everything older than the maximum age.
func (r *Retention) RunOnce(ctx context.Context) (int, error) {
	cutoff := r.now().Add(-r.maxAge)

	n, err := r.store.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	if n > 0 {
		log.Info().Int("purged", n).Time("cutoff", cutoff).Msg("Purged expired publications")
	}
	return n, nil
}

// Start schedules RunOnce. Calling Start twice has no effect.
func (r *Retention) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return
	}
	r.started = true

	r.cron.Start()

	log.Info().
		Dur("max_age", r.maxAge).
		Time("next_run", r.schedule.Next(r.now())).
		Msg("Publication retention started")
}

// Stop waits for a running purge to finish or ctx to expire.
func (r *Retention) Stop(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.started {
		return
	}
	r.started = false

	select {
	case <-r.cron.Stop().Done():
	case <-ctx.Done():
	}
	log.Info().Msg("Publication retention stopped")
}
