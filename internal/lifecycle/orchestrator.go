package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"livecast/internal/scheduler"
	logx "livecast/pkg/logx"
)

const (
	DefaultPollInterval = 60 * time.Second

	TaskPoll     = "lifecycle:poll"
	TaskWatchdog = "lifecycle:watchdog"
)

type Config struct {
	// PollInterval drives both periodic tasks.
	PollInterval time.Duration
	// LookAhead is the Poller horizon. It should be >= PollInterval.
	LookAhead time.Duration
	// TickTimeout bounds one tick (0 = bounded only by the Start context).
	TickTimeout time.Duration
	// StopTimeout bounds each stop fired by a termination timer.
	StopTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.LookAhead <= 0 {
		c.LookAhead = DefaultLookAhead
	}
	if c.TickTimeout < 0 {
		c.TickTimeout = 0
	}
	if c.StopTimeout < 0 {
		c.StopTimeout = 0
	}
	return c
}

// Report is a point-in-time view of the orchestrator for ops endpoints.
type Report struct {
	Started      bool          `json:"started"`
	PollInterval time.Duration `json:"poll_interval"`
	LookAhead    time.Duration `json:"look_ahead"`
	Pending      []Termination `json:"pending"`
	LastPoll     *TickReport   `json:"last_poll,omitempty"`
	LastWatchdog *TickReport   `json:"last_watchdog,omitempty"`
}

// Orchestrator owns the Poller, the Watchdog and the termination Registry of
// one process. Construct it once and hand it to whatever needs to stop
// broadcasts out of band.
type Orchestrator struct {
	cfg      Config
	log      logx.Logger
	calls    engineCaller
	registry *Registry
	poller   *Poller
	watchdog *Watchdog

	trigger *scheduler.Service

	mu           sync.Mutex
	started      bool
	startedOwn   bool
	lastPoll     *TickReport
	lastWatchdog *TickReport
}

func New(cfg Config, repo Repository, engine Engine, opts ...Option) *Orchestrator {
	cfg = cfg.withDefaults()
	o := buildOptions(opts)
	log := o.log.With(logx.String("comp", "lifecycle"))
	sub := []Option{WithClock(o.clock), WithLogger(log), WithBus(o.bus)}

	trigger := o.trigger
	if trigger == nil {
		trigger = scheduler.New(scheduler.Config{}, log.With(logx.String("part", "trigger")))
	}
	registry := NewRegistry(engine, cfg.StopTimeout, sub...)
	poller := NewPoller(repo, engine, cfg.LookAhead, sub...)
	// A scheduled broadcast about to start is a new run; a termination still
	// pending for its id was derived from the previous run's StartedAt.
	poller.beforeStart = func(id string) {
		if registry.OnExternalStop(id) {
			log.Info("stale termination retired before restart", logx.String("id", id))
		}
	}
	return &Orchestrator{
		cfg:      cfg,
		log:      log,
		calls:    engineCaller{engine: engine, log: log, bus: o.bus},
		registry: registry,
		poller:   poller,
		watchdog: NewWatchdog(repo, engine, registry, sub...),
		trigger:  trigger,
	}
}

// Start registers both periodic tasks and dispatches one tick of each right
// away. Calling it again while started logs and returns nil.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.started {
		o.log.Info("lifecycle already initialized")
		return nil
	}
	if o.cfg.LookAhead < o.cfg.PollInterval {
		o.log.Warn("look-ahead is shorter than the poll interval; broadcasts may start late",
			logx.Duration("look_ahead", o.cfg.LookAhead), logx.Duration("interval", o.cfg.PollInterval))
	}

	o.registry.SetContext(ctx)
	if err := o.trigger.AddInterval(TaskPoll, o.cfg.PollInterval, o.cfg.TickTimeout, o.pollJob); err != nil {
		return fmt.Errorf("register %s: %w", TaskPoll, err)
	}
	if err := o.trigger.AddInterval(TaskWatchdog, o.cfg.PollInterval, o.cfg.TickTimeout, o.watchdogJob); err != nil {
		o.trigger.Remove(TaskPoll)
		return fmt.Errorf("register %s: %w", TaskWatchdog, err)
	}
	o.startedOwn = false
	if !o.trigger.Running() {
		o.trigger.Start(ctx)
		o.startedOwn = true
	}

	var errs []error
	for _, name := range []string{TaskPoll, TaskWatchdog} {
		if err := o.trigger.RunNow(name); err != nil {
			errs = append(errs, fmt.Errorf("initial %s tick: %w", name, err))
		}
	}
	o.started = true
	o.log.Info("lifecycle started", logx.Duration("interval", o.cfg.PollInterval), logx.Duration("look_ahead", o.cfg.LookAhead))
	return errors.Join(errs...)
}

// Stop unregisters the periodic tasks and drops every pending termination.
// The trigger service is stopped only if Start started it.
func (o *Orchestrator) Stop(ctx context.Context) {
	o.mu.Lock()
	if !o.started {
		o.mu.Unlock()
		return
	}
	o.started = false
	stopTrigger := o.startedOwn
	o.startedOwn = false
	o.mu.Unlock()

	o.trigger.Remove(TaskPoll)
	o.trigger.Remove(TaskWatchdog)
	if stopTrigger {
		o.trigger.Stop(ctx)
	}
	n := o.registry.CancelAll()
	o.log.Info("lifecycle stopped", logx.Int("dropped_terminations", n))
}

func (o *Orchestrator) Started() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.started
}

// CancelPendingTermination drops the pending termination for id, if any.
func (o *Orchestrator) CancelPendingTermination(id string) bool {
	return o.registry.Cancel(id)
}

// NotifyExternalStop must be called by any code path that stops a broadcast
// outside the lifecycle. It reports whether a pending termination was dropped.
func (o *Orchestrator) NotifyExternalStop(id string) bool {
	return o.registry.OnExternalStop(id)
}

// StopBroadcast is the manual stop path: retire the timer first, then ask the
// engine to stop.
func (o *Orchestrator) StopBroadcast(ctx context.Context, id string) error {
	if id == "" {
		return errors.New("broadcast id required")
	}
	if o.NotifyExternalStop(id) {
		o.log.Debug("pending termination retired by manual stop", logx.String("id", id))
	}
	return o.calls.stop(ctx, id, reasonExternal)
}

// Tick runs one Poller and one Watchdog tick synchronously, outside the
// periodic schedule.
func (o *Orchestrator) Tick(ctx context.Context) (poll, watch TickReport, err error) {
	poll, perr := o.poller.Tick(ctx)
	o.record(&poll)
	watch, werr := o.watchdog.Tick(ctx)
	o.record(&watch)
	return poll, watch, errors.Join(perr, werr)
}

func (o *Orchestrator) Registry() *Registry { return o.registry }

func (o *Orchestrator) Status() Report {
	o.mu.Lock()
	rep := Report{
		Started:      o.started,
		PollInterval: o.cfg.PollInterval,
		LookAhead:    o.cfg.LookAhead,
		LastPoll:     o.lastPoll,
		LastWatchdog: o.lastWatchdog,
	}
	o.mu.Unlock()
	rep.Pending = o.registry.Snapshot()
	return rep
}

func (o *Orchestrator) pollJob(ctx context.Context) error {
	rep, err := o.poller.Tick(ctx)
	o.record(&rep)
	return err
}

func (o *Orchestrator) watchdogJob(ctx context.Context) error {
	rep, err := o.watchdog.Tick(ctx)
	o.record(&rep)
	return err
}

func (o *Orchestrator) record(rep *TickReport) {
	cp := *rep
	o.mu.Lock()
	defer o.mu.Unlock()
	switch cp.Task {
	case "poll":
		o.lastPoll = &cp
	case "watchdog":
		o.lastWatchdog = &cp
	}
}
