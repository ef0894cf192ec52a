package lifecycle

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"livecast/internal/metrics"
	logx "livecast/pkg/logx"
)

// Watchdog enforces broadcast durations. Once a broadcast has a pending
// termination the Registry owns its countdown and later ticks skip it.
type Watchdog struct {
	repo     Repository
	registry *Registry
	calls    engineCaller
	clock    Clock
	log      logx.Logger
}

func NewWatchdog(repo Repository, engine Engine, registry *Registry, opts ...Option) *Watchdog {
	o := buildOptions(opts)
	log := o.log.With(logx.String("part", "watchdog"))
	return &Watchdog{
		repo:     repo,
		registry: registry,
		calls:    engineCaller{engine: engine, log: log, bus: o.bus},
		clock:    o.clock,
		log:      log,
	}
}

// Tick walks the live broadcasts in repository order. Overdue ones are stopped
// right away; ones with time left get a termination armed. Broadcasts without
// a duration or start time are left alone.
func (w *Watchdog) Tick(ctx context.Context) (TickReport, error) {
	now := w.clock.Now()
	rep := TickReport{Task: "watchdog", RunID: uuid.NewString(), At: now}
	log := w.log.With(logx.String("run_id", rep.RunID))
	start := time.Now()

	active, err := w.repo.FindActive(ctx)
	if err != nil {
		err = fmt.Errorf("find active broadcasts: %w", err)
		rep.Error = err.Error()
		log.Error("watchdog tick aborted", logx.Err(err))
		rep.Took = time.Since(start)
		metrics.ObserveTick(rep.Task, err, rep.Took)
		return rep, err
	}
	rep.Seen = len(active)

	for _, b := range active {
		if ctx.Err() != nil {
			log.Warn("watchdog tick interrupted", logx.Err(ctx.Err()))
			break
		}
		if b.DurationMinutes == nil || b.StartedAt == nil {
			rep.Skipped++
			continue
		}
		if _, pending := w.registry.Pending(b.ID); pending {
			rep.Skipped++
			continue
		}

		dur := *b.DurationMinutes
		remaining := dur - now.Sub(*b.StartedAt).Minutes()
		finite := !math.IsNaN(dur) && !math.IsInf(dur, 0)
		if finite && remaining <= 0 {
			log.Info("broadcast overran its duration", logx.String("id", b.ID), logx.Time("started_at", *b.StartedAt), logx.Float64("duration_min", dur))
			if err := w.calls.stop(ctx, b.ID, reasonExpired); err != nil {
				rep.Failed++
				continue
			}
			rep.Stopped++
			continue
		}
		// Non-finite durations are rejected by Arm and retried next tick.
		if w.registry.Arm(b.ID, remaining) {
			rep.Armed++
		} else {
			rep.Failed++
		}
	}

	rep.Took = time.Since(start)
	metrics.ObserveTick(rep.Task, nil, rep.Took)
	if rep.Stopped+rep.Armed+rep.Failed > 0 {
		log.Info("watchdog tick done", logx.Int("live", rep.Seen), logx.Int("armed", rep.Armed), logx.Int("stopped", rep.Stopped), logx.Int("failed", rep.Failed))
	} else {
		log.Debug("watchdog tick idle", logx.Int("live", rep.Seen))
	}
	return rep, nil
}
