package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"livecast/internal/metrics"
	logx "livecast/pkg/logx"
)

// DefaultLookAhead is how far ahead of now a scheduled broadcast counts as due.
// Keep it >= the poll interval so nothing scheduled between two ticks is missed.
const DefaultLookAhead = 60 * time.Second

// TickReport summarizes one Poller or Watchdog tick.
type TickReport struct {
	Task    string        `json:"task"`
	RunID   string        `json:"run_id"`
	At      time.Time     `json:"at"`
	Took    time.Duration `json:"took"`
	Seen    int           `json:"seen"`
	Started int           `json:"started,omitempty"`
	Stopped int           `json:"stopped,omitempty"`
	Armed   int           `json:"armed,omitempty"`
	Skipped int           `json:"skipped,omitempty"`
	Failed  int           `json:"failed,omitempty"`
	Error   string        `json:"error,omitempty"`
}

// Poller starts scheduled broadcasts that fall due within the look-ahead window.
type Poller struct {
	repo      Repository
	calls     engineCaller
	clock     Clock
	lookAhead time.Duration
	log       logx.Logger

	// beforeStart runs ahead of each start request. The orchestrator uses it
	// to retire a termination left over from a previous run of the same id.
	beforeStart func(id string)
}

func NewPoller(repo Repository, engine Engine, lookAhead time.Duration, opts ...Option) *Poller {
	o := buildOptions(opts)
	if lookAhead <= 0 {
		lookAhead = DefaultLookAhead
	}
	log := o.log.With(logx.String("part", "poller"))
	return &Poller{
		repo:      repo,
		calls:     engineCaller{engine: engine, log: log, bus: o.bus},
		clock:     o.clock,
		lookAhead: lookAhead,
		log:       log,
	}
}

// Tick starts every broadcast scheduled in [now, now+lookAhead], one at a time.
// A failed start is logged and counted; it never aborts the tick. Only a
// repository error does, and it is returned.
func (p *Poller) Tick(ctx context.Context) (TickReport, error) {
	now := p.clock.Now()
	rep := TickReport{Task: "poll", RunID: uuid.NewString(), At: now}
	log := p.log.With(logx.String("run_id", rep.RunID))
	start := time.Now()

	horizon := now.Add(p.lookAhead)
	due, err := p.repo.FindDueInRange(ctx, now, horizon)
	if err != nil {
		err = fmt.Errorf("find due broadcasts: %w", err)
		rep.Error = err.Error()
		log.Error("poll tick aborted", logx.Err(err))
		rep.Took = time.Since(start)
		metrics.ObserveTick(rep.Task, err, rep.Took)
		return rep, err
	}
	rep.Seen = len(due)

	for _, b := range due {
		if ctx.Err() != nil {
			log.Warn("poll tick interrupted", logx.Err(ctx.Err()), logx.Int("remaining", rep.Seen-rep.Started-rep.Failed))
			break
		}
		if p.beforeStart != nil {
			p.beforeStart(b.ID)
		}
		if err := p.calls.start(ctx, b.ID, reasonSchedule); err != nil {
			rep.Failed++
			continue
		}
		rep.Started++
	}

	rep.Took = time.Since(start)
	metrics.ObserveTick(rep.Task, nil, rep.Took)
	if rep.Seen > 0 {
		log.Info("poll tick done", logx.Int("due", rep.Seen), logx.Int("started", rep.Started), logx.Int("failed", rep.Failed), logx.Time("horizon", horizon))
	} else {
		log.Debug("poll tick idle", logx.Time("horizon", horizon))
	}
	return rep, nil
}
