package storage

import (
	"context"
	"errors"
	"math"
	"time"

	"livecast/internal/lifecycle"
)

var (
	ErrNotFound = errors.New("broadcast not found")
	ErrInvalid  = errors.New("invalid broadcast")
)

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database at Path
//   - "postgres": PostgreSQL reached through DSN
//   - "file": JSON snapshot at Path
type Config struct {
	Driver      string
	Path        string
	DSN         string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is the broadcast repository used by the lifecycle, the engines and the CLI.
type Store interface {
	lifecycle.Repository

	// Upsert inserts or replaces the broadcast with b.ID.
	Upsert(ctx context.Context, b lifecycle.Broadcast) error
	Get(ctx context.Context, id string) (lifecycle.Broadcast, error)
	List(ctx context.Context) ([]lifecycle.Broadcast, error)
	Delete(ctx context.Context, id string) (bool, error)

	// MarkLive moves a broadcast that is not live yet to live and records
	// startedAt. The status check and the update are one atomic step, so two
	// callers racing on the same id see exactly one transition. It reports
	// whether the status changed.
	MarkLive(ctx context.Context, id string, startedAt time.Time) (bool, error)
	// MarkOffline moves a broadcast that is not offline to offline and records endedAt.
	MarkOffline(ctx context.Context, id string, endedAt time.Time) (bool, error)
	MarkError(ctx context.Context, id string, at time.Time) (bool, error)

	Close() error
}

func validate(b lifecycle.Broadcast) error {
	if b.ID == "" {
		return errors.Join(ErrInvalid, errors.New("id required"))
	}
	if !b.Status.Valid() {
		return errors.Join(ErrInvalid, errors.New("unknown status "+string(b.Status)))
	}
	if d := b.DurationMinutes; d != nil && (math.IsNaN(*d) || math.IsInf(*d, 0) || *d < 0) {
		return errors.Join(ErrInvalid, errors.New("duration must be a finite number >= 0"))
	}
	return nil
}

func millis(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	ms := t.UnixMilli()
	return &ms
}

func fromMillis(ms *int64) *time.Time {
	if ms == nil {
		return nil
	}
	t := time.UnixMilli(*ms)
	return &t
}
