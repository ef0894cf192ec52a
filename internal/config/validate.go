package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	logx "livecast/pkg/logx"
)

// Validate checks cfg without touching the filesystem or the network.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	if lvl := strings.TrimSpace(cfg.Logging.Level); lvl != "" && !logx.ValidLevel(lvl) {
		add(fmt.Errorf("logging.level: unknown level %q", lvl))
	}
	if cfg.Logging.File.Enabled && strings.TrimSpace(cfg.Logging.File.Path) == "" {
		add(errors.New("logging.file.path is required when logging.file.enabled"))
	}
	if t := cfg.Logging.Telegram; t.Enabled {
		if strings.TrimSpace(cfg.Telegram.Token) == "" || cfg.Telegram.ChatID == 0 {
			add(errors.New("logging.telegram requires telegram.token and telegram.chat_id"))
		}
		if lvl := strings.TrimSpace(t.MinLevel); lvl != "" && !logx.ValidLevel(lvl) {
			add(fmt.Errorf("logging.telegram.min_level: unknown level %q", lvl))
		}
	}

	lc := cfg.Lifecycle
	poll, err := ParseDurationOrDefault("lifecycle.poll_interval", lc.PollInterval, 60*time.Second)
	add(err)
	look, err := ParseDurationOrDefault("lifecycle.look_ahead", lc.LookAhead, 60*time.Second)
	add(err)
	if err == nil && poll > 0 && look < poll {
		add(fmt.Errorf("lifecycle.look_ahead (%s) must be >= lifecycle.poll_interval (%s)", look, poll))
	}
	_, err = ParseDurationField("lifecycle.tick_timeout", lc.TickTimeout)
	add(err)
	_, err = ParseDurationField("lifecycle.stop_timeout", lc.StopTimeout)
	add(err)
	if tz := strings.TrimSpace(lc.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			add(fmt.Errorf("lifecycle.timezone: %w", err))
		}
	}

	switch d := strings.ToLower(strings.TrimSpace(cfg.Engine.Driver)); d {
	case "", "dryrun":
	case "http":
		u, err := url.Parse(strings.TrimSpace(cfg.Engine.BaseURL))
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			add(errors.New("engine.base_url must be an http(s) URL for the http driver"))
		}
	default:
		add(fmt.Errorf("engine.driver: unknown driver %q", d))
	}
	_, err = ParseDurationField("engine.timeout", cfg.Engine.Timeout)
	add(err)
	if cfg.Engine.RatePerSec < 0 || cfg.Engine.MaxStartFailures < 0 {
		add(errors.New("engine.rate_per_sec and engine.max_start_failures must be >= 0"))
	}

	switch d := strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)); d {
	case "", "sqlite", "sqlite3", "file":
		if strings.TrimSpace(cfg.Storage.Path) == "" {
			add(errors.New("storage.path is required"))
		}
	case "postgres", "postgresql":
		if strings.TrimSpace(cfg.Storage.DSN) == "" {
			add(errors.New("storage.dsn is required for postgres"))
		}
	default:
		add(fmt.Errorf("storage.driver: unknown driver %q", d))
	}
	_, err = ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	add(err)

	for path, raw := range map[string]string{
		"ops.read_timeout":  cfg.Ops.ReadTimeout,
		"ops.write_timeout": cfg.Ops.WriteTimeout,
		"ops.idle_timeout":  cfg.Ops.IdleTimeout,
	} {
		_, err := ParseDurationField(path, raw)
		add(err)
	}
	return errors.Join(errs...)
}
