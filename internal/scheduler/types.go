package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	logx "livecast/pkg/logx"
)

type Config struct {
	// Timezone only affects how Snapshot renders Next/Prev (IANA name, empty = Local).
	Timezone string
}

type Job func(ctx context.Context) error

type scheduleDef struct {
	name    string
	every   time.Duration
	timeout time.Duration
	job     Job
	entryID cron.EntryID
	state   *runState
}

type runState struct {
	running atomic.Bool
	runs    atomic.Uint64
	skipped atomic.Uint64
	failed  atomic.Uint64

	mu      sync.Mutex
	lastRun time.Time
	lastDur time.Duration
	lastErr string
}

type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	loc *time.Location

	c    *cron.Cron
	ctx  context.Context // base context for runs; set by Start
	defs []*scheduleDef

	// tracks RunNow goroutines so Stop can wait for them
	wg sync.WaitGroup
}

type ScheduleInfo struct {
	Name    string        `json:"name"`
	Every   time.Duration `json:"every"`
	Timeout time.Duration `json:"timeout"`
	Next    time.Time     `json:"next,omitempty"`
	Prev    time.Time     `json:"prev,omitempty"`
	Running bool          `json:"running"`
	Runs    uint64        `json:"runs"`
	Skipped uint64        `json:"skipped"`
	Failed  uint64        `json:"failed"`
	LastRun time.Time     `json:"last_run,omitempty"`
	LastDur time.Duration `json:"last_duration"`
	LastErr string        `json:"last_error,omitempty"`
}

type Snapshot struct {
	Running   bool           `json:"running"`
	Timezone  string         `json:"timezone"`
	Schedules []ScheduleInfo `json:"schedules"`
}
