package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"livecast/internal/lifecycle"
	"livecast/internal/storage"
	logx "livecast/pkg/logx"
)

// Marker is the part of storage.Store the Recording engine writes to.
type Marker interface {
	MarkLive(ctx context.Context, id string, at time.Time) (bool, error)
	MarkOffline(ctx context.Context, id string, at time.Time) (bool, error)
	MarkError(ctx context.Context, id string, at time.Time) (bool, error)
}

// Recording forwards calls to another engine and records successful
// transitions in the store.
type Recording struct {
	next        lifecycle.Engine
	store       Marker
	maxFailures int
	now         func() time.Time
	log         logx.Logger

	mu       sync.Mutex
	failures map[string]int
}

func NewRecording(next lifecycle.Engine, store Marker, maxStartFailures int, log logx.Logger) *Recording {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Recording{
		next:        next,
		store:       store,
		maxFailures: maxStartFailures,
		now:         time.Now,
		log:         log,
		failures:    map[string]int{},
	}
}

func (r *Recording) Start(ctx context.Context, id string) error {
	if err := r.next.Start(ctx, id); err != nil {
		r.startFailed(ctx, id)
		return err
	}
	r.mu.Lock()
	delete(r.failures, id)
	r.mu.Unlock()

	changed, err := r.store.MarkLive(ctx, id, r.now())
	if err != nil {
		return fmt.Errorf("record start: %w", err)
	}
	if !changed {
		r.log.Debug("start on live broadcast", logx.String("id", id))
	}
	return nil
}

func (r *Recording) Stop(ctx context.Context, id string) error {
	if err := r.next.Stop(ctx, id); err != nil {
		return err
	}
	changed, err := r.store.MarkOffline(ctx, id, r.now())
	if errors.Is(err, storage.ErrNotFound) {
		r.log.Debug("stopped broadcast no longer stored", logx.String("id", id))
		return nil
	}
	if err != nil {
		return fmt.Errorf("record stop: %w", err)
	}
	if !changed {
		r.log.Debug("stop on offline broadcast", logx.String("id", id))
	}
	return nil
}

func (r *Recording) startFailed(ctx context.Context, id string) {
	if r.maxFailures <= 0 {
		return
	}
	r.mu.Lock()
	r.failures[id]++
	n := r.failures[id]
	if n >= r.maxFailures {
		delete(r.failures, id)
	}
	r.mu.Unlock()
	if n < r.maxFailures {
		return
	}
	if _, err := r.store.MarkError(ctx, id, r.now()); err != nil {
		r.log.Warn("mark error failed", logx.String("id", id), logx.Err(err))
		return
	}
	r.log.Warn("broadcast marked as error after repeated start failures", logx.String("id", id), logx.Int("failures", n))
}
