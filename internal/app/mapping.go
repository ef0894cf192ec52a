package app

import (
	"strings"
	"time"

	"livecast/internal/config"
	"livecast/internal/engine"
	"livecast/internal/lifecycle"
	"livecast/internal/observability/ops"
	"livecast/internal/scheduler"
	"livecast/internal/storage"
	"livecast/internal/transport/telegram"
	logx "livecast/pkg/logx"
)

func mapLogging(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Operator: logx.OperatorConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

func mapTelegram(cfg *config.Config) telegram.Config {
	return telegram.Config{
		Token:    cfg.Telegram.Token,
		ChatID:   cfg.Telegram.ChatID,
		ThreadID: cfg.Telegram.ThreadID,
	}
}

func mapLifecycle(cfg *config.Config) (lifecycle.Config, error) {
	lc := cfg.Lifecycle
	poll, err := config.ParseDurationOrDefault("lifecycle.poll_interval", lc.PollInterval, lifecycle.DefaultPollInterval)
	if err != nil {
		return lifecycle.Config{}, err
	}
	look, err := config.ParseDurationOrDefault("lifecycle.look_ahead", lc.LookAhead, lifecycle.DefaultLookAhead)
	if err != nil {
		return lifecycle.Config{}, err
	}
	tick, err := config.ParseDurationField("lifecycle.tick_timeout", lc.TickTimeout)
	if err != nil {
		return lifecycle.Config{}, err
	}
	stop, err := config.ParseDurationOrDefault("lifecycle.stop_timeout", lc.StopTimeout, 30*time.Second)
	if err != nil {
		return lifecycle.Config{}, err
	}
	return lifecycle.Config{PollInterval: poll, LookAhead: look, TickTimeout: tick, StopTimeout: stop}, nil
}

func mapScheduler(cfg *config.Config) scheduler.Config {
	return scheduler.Config{Timezone: strings.TrimSpace(cfg.Lifecycle.Timezone)}
}

func mapEngine(cfg *config.Config) (engine.Config, error) {
	ec := cfg.Engine
	timeout, err := config.ParseDurationOrDefault("engine.timeout", ec.Timeout, 15*time.Second)
	if err != nil {
		return engine.Config{}, err
	}
	return engine.Config{
		Driver:           strings.ToLower(strings.TrimSpace(ec.Driver)),
		BaseURL:          strings.TrimSpace(ec.BaseURL),
		Token:            ec.Token,
		Timeout:          timeout,
		RatePerSec:       ec.RatePerSec,
		MaxStartFailures: ec.MaxStartFailures,
	}, nil
}

func mapStorage(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "sqlite3" {
		driver = "sqlite"
	}
	return storage.Config{
		Driver:      driver,
		Path:        strings.TrimSpace(sc.Path),
		DSN:         strings.TrimSpace(sc.DSN),
		BusyTimeout: busy,
	}, nil
}

func mapOps(cfg *config.Config) (ops.Config, error) {
	oc := cfg.Ops
	read, err := config.ParseDurationOrDefault("ops.read_timeout", oc.ReadTimeout, 10*time.Second)
	if err != nil {
		return ops.Config{}, err
	}
	// pprof profile/trace endpoints stream for up to 30s by default.
	write, err := config.ParseDurationOrDefault("ops.write_timeout", oc.WriteTimeout, 35*time.Second)
	if err != nil {
		return ops.Config{}, err
	}
	idle, err := config.ParseDurationOrDefault("ops.idle_timeout", oc.IdleTimeout, 60*time.Second)
	if err != nil {
		return ops.Config{}, err
	}
	return ops.Config{
		Enabled:              oc.Enabled,
		Addr:                 strings.TrimSpace(oc.Addr),
		Token:                strings.TrimSpace(oc.Token),
		AllowInsecure:        oc.AllowInsecure,
		ReadTimeout:          read,
		WriteTimeout:         write,
		IdleTimeout:          idle,
		MutexProfileFraction: oc.MutexProfileFraction,
		BlockProfileRate:     oc.BlockProfileRate,
	}, nil
}
