package lifecycle

import (
	"context"
	"time"
)

type Status string

const (
	StatusOffline   Status = "offline"
	StatusScheduled Status = "scheduled"
	StatusLive      Status = "live"
	StatusError     Status = "error"
)

func (s Status) Valid() bool {
	switch s {
	case StatusOffline, StatusScheduled, StatusLive, StatusError:
		return true
	}
	return false
}

// Broadcast is a configured live transmission job. The repository owns it;
// the lifecycle only reads it.
type Broadcast struct {
	ID     string
	Name   string
	Status Status

	ScheduledAt *time.Time
	StartedAt   *time.Time
	// DurationMinutes caps how long the broadcast stays live; nil means until stopped.
	DurationMinutes *float64

	EndedAt         *time.Time
	StatusUpdatedAt time.Time
}

// Repository is the read side of broadcast persistence used by the lifecycle.
type Repository interface {
	// FindDueInRange returns scheduled broadcasts with ScheduledAt in [from, to].
	FindDueInRange(ctx context.Context, from, to time.Time) ([]Broadcast, error)
	// FindActive returns live broadcasts.
	FindActive(ctx context.Context) ([]Broadcast, error)
}

// Engine starts and stops the actual transmission. Both calls must be
// idempotent: starting a live broadcast or stopping an offline one succeeds.
// A rejected request is reported as a non-nil error.
type Engine interface {
	Start(ctx context.Context, id string) error
	Stop(ctx context.Context, id string) error
}

// Clock provides time and cancellable delayed actions so the lifecycle can run
// on a virtual clock in tests.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Timer
}

type Timer interface {
	// Stop prevents the action from running; it reports false if the action
	// already fired or was stopped.
	Stop() bool
}

// SystemClock implements Clock with the time package.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) AfterFunc(d time.Duration, fn func()) Timer { return time.AfterFunc(d, fn) }
