package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"livecast/internal/config"
	"livecast/internal/engine"
	"livecast/internal/eventbus"
	"livecast/internal/lifecycle"
	"livecast/internal/observability/ops"
	"livecast/internal/runtime/supervisor"
	"livecast/internal/scheduler"
	"livecast/internal/storage"
	"livecast/internal/transport/telegram"
	logx "livecast/pkg/logx"
)

// App wires configuration, logging, storage, the engine adapter, the trigger
// service, the lifecycle orchestrator and the ops server into one process.
type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log      logx.Logger
	logs     *logx.Service
	notifier *telegram.Notifier
	bus      eventbus.Bus
	store    storage.Store

	trigger *scheduler.Service
	orch    *lifecycle.Orchestrator
	ops     *ops.Service
}

func NewApp(cfgPath string) (*App, error) {
	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "config"))
	cfgm := config.NewManager(cfgPath, bootLog)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	return newApp(cfgm, cfg)
}

func newApp(cfgm *config.Manager, cfg *config.Config) (*App, error) {
	notifier, err := telegram.NewNotifier(mapTelegram(cfg))
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	logSvc, log := logx.New(mapLogging(cfg), notifier)
	log = log.With(logx.String("comp", "app"))

	lcfg, err := mapLifecycle(cfg)
	if err != nil {
		return nil, err
	}
	ecfg, err := mapEngine(cfg)
	if err != nil {
		return nil, err
	}
	scfg, err := mapStorage(cfg)
	if err != nil {
		return nil, err
	}
	ocfg, err := mapOps(cfg)
	if err != nil {
		return nil, err
	}

	store, err := storage.Open(scfg, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	eng, err := engine.Open(ecfg, store, log)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	bus := eventbus.New()
	trigger := scheduler.New(mapScheduler(cfg), log.With(logx.String("comp", "scheduler")))
	orch := lifecycle.New(lcfg, store, eng,
		lifecycle.WithLogger(log.With(logx.String("comp", "lifecycle"))),
		lifecycle.WithBus(bus),
		lifecycle.WithTrigger(trigger),
	)
	opsSvc := ops.New(ocfg, ops.Deps{Lifecycle: orch, Trigger: trigger, Store: store}, log)

	log.Info("app configured",
		logx.String("storage", scfg.Driver),
		logx.String("engine", ecfg.Driver),
		logx.Duration("poll_interval", lcfg.PollInterval),
		logx.Duration("look_ahead", lcfg.LookAhead),
	)

	cfgm.SetLogger(log.With(logx.String("comp", "config")))
	return &App{
		cfgm:     cfgm,
		log:      log,
		logs:     logSvc,
		notifier: notifier,
		bus:      bus,
		store:    store,
		trigger:  trigger,
		orch:     orch,
		ops:      opsSvc,
	}, nil
}

func (a *App) Orchestrator() *lifecycle.Orchestrator { return a.orch }

func (a *App) Store() storage.Store { return a.store }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	runCtx := a.sup.Context()

	a.trigger.Start(runCtx)
	if err := a.orch.Start(runCtx); err != nil {
		return err
	}
	a.ops.Start(runCtx)

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time), logx.Any("data", e.Data))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})
	a.sup.Go("config.watch", a.cfgm.Watch)

	sdNotify(a.log, "READY=1")
	a.log.Info("app started")
	return nil
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	sdNotify(a.log, "STOPPING=1")

	a.sup.Cancel()

	var errs []error
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
			)
			go func() {
				if err := <-done; err != nil {
					a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.Err(err))
				}
			}()
		}
	}

	// Lifecycle first so no new engine calls start while dependencies go away.
	step("lifecycle", 3*time.Second, func(c context.Context) error { a.orch.Stop(c); return nil })
	step("scheduler", 2*time.Second, func(c context.Context) error { a.trigger.Stop(c); return nil })
	step("ops", 2*time.Second, func(c context.Context) error { a.ops.Stop(c); return nil })
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })
	step("supervisor", 2*time.Second, a.sup.Wait)

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return errors.Join(errs...)
}
