package config

// Config is the on-disk configuration (JSON or YAML).
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Telegram  TelegramConfig  `json:"telegram,omitempty"`
	Lifecycle LifecycleConfig `json:"lifecycle"`
	Engine    EngineConfig    `json:"engine"`
	Storage   StorageConfig   `json:"storage"`
	Ops       OpsConfig       `json:"ops,omitempty"`
}

// TelegramConfig is the operator chat that receives high-severity log lines.
type TelegramConfig struct {
	Token    string `json:"token,omitempty"`
	ChatID   int64  `json:"chat_id,omitempty"`
	ThreadID int    `json:"thread_id,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// LifecycleConfig drives the poller and the watchdog.
//
// Defaults (when fields are omitted/zero):
//   - poll_interval: "60s"
//   - look_ahead: "60s"
//   - tick_timeout: "0s" (bounded by shutdown only)
//   - stop_timeout: "30s"
type LifecycleConfig struct {
	PollInterval string `json:"poll_interval,omitempty"`
	LookAhead    string `json:"look_ahead,omitempty"`
	TickTimeout  string `json:"tick_timeout,omitempty"`
	StopTimeout  string `json:"stop_timeout,omitempty"`
	// Timezone only affects how next/prev run times are rendered.
	Timezone string `json:"timezone,omitempty"`
}

// EngineConfig selects the broadcast engine.
//
// Example:
//
//	"engine": { "driver": "http", "base_url": "http://127.0.0.1:8090/api", "timeout": "15s" }
type EngineConfig struct {
	Driver           string `json:"driver"` // "http" or "dryrun"
	BaseURL          string `json:"base_url,omitempty"`
	Token            string `json:"token,omitempty"`
	Timeout          string `json:"timeout,omitempty"`
	RatePerSec       int    `json:"rate_per_sec,omitempty"`
	MaxStartFailures int    `json:"max_start_failures,omitempty"`
}

// StorageConfig selects the broadcast store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/livecast.db" }
type StorageConfig struct {
	Driver      string `json:"driver"` // "sqlite", "postgres" or "file"
	Path        string `json:"path,omitempty"`
	DSN         string `json:"dsn,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// OpsConfig controls the ops HTTP server (/metrics, /status, /debug/pprof).
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:9464").
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
type OpsConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`
	Token         string `json:"token,omitempty"` // do not log
	AllowInsecure bool   `json:"allow_insecure,omitempty"`

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`

	// Runtime profiling rates. Leave 0 to keep Go defaults.
	MutexProfileFraction int `json:"mutex_profile_fraction,omitempty"`
	BlockProfileRate     int `json:"block_profile_rate,omitempty"`
}
