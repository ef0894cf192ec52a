package lifecycle

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"livecast/internal/eventbus"
	"livecast/internal/metrics"
	logx "livecast/pkg/logx"
)

const maxDelay = time.Duration(math.MaxInt64)

// Termination is a pending stop for one broadcast.
type Termination struct {
	ID string    `json:"id"`
	At time.Time `json:"at"`
}

type termination struct {
	timer Timer
	at    time.Time
	gen   uint64
}

// Registry holds at most one pending termination per broadcast id.
//
// Every armed entry carries a generation number. A fired timer only acts if its
// generation is still the current entry for the id, so once Cancel (or a
// replacing Arm) returns, the old timer can no longer stop the broadcast even if
// it already fired and is waiting for the lock.
type Registry struct {
	clock       Clock
	calls       engineCaller
	log         logx.Logger
	bus         eventbus.Bus
	stopTimeout time.Duration

	mu      sync.Mutex
	ctx     context.Context
	entries map[string]*termination
	gen     uint64
}

// NewRegistry returns an empty registry whose timers call engine.Stop.
// stopTimeout bounds each fired stop call (<= 0 means unbounded).
func NewRegistry(engine Engine, stopTimeout time.Duration, opts ...Option) *Registry {
	o := buildOptions(opts)
	log := o.log.With(logx.String("part", "registry"))
	return &Registry{
		clock:       o.clock,
		calls:       engineCaller{engine: engine, log: log, bus: o.bus},
		log:         log,
		bus:         o.bus,
		stopTimeout: stopTimeout,
		ctx:         context.Background(),
		entries:     map[string]*termination{},
	}
}

// SetContext sets the parent context for stops fired by timers.
func (r *Registry) SetContext(ctx context.Context) {
	if ctx == nil {
		return
	}
	r.mu.Lock()
	r.ctx = ctx
	r.mu.Unlock()
}

// Arm schedules a stop for id after delayMinutes, replacing any pending one.
// Negative delays are clamped to zero. NaN and infinite delays are rejected
// (logged, nothing armed) and Arm returns false.
func (r *Registry) Arm(id string, delayMinutes float64) bool {
	if math.IsNaN(delayMinutes) || math.IsInf(delayMinutes, 0) {
		r.log.Warn("termination rejected: delay is not a finite number", logx.String("id", id), logx.Float64("delay_min", delayMinutes))
		metrics.IncTermination("rejected")
		return false
	}
	delay := minutesToDuration(delayMinutes)

	r.mu.Lock()
	if old, ok := r.entries[id]; ok {
		old.timer.Stop()
	}
	r.gen++
	gen := r.gen
	e := &termination{at: r.clock.Now().Add(delay), gen: gen}
	r.entries[id] = e
	e.timer = r.clock.AfterFunc(delay, func() { r.fire(id, gen) })
	metrics.SetPendingTerminations(len(r.entries))
	r.mu.Unlock()

	metrics.IncTermination("armed")
	r.bus.Publish(eventbus.Event{Type: eventbus.TerminationArmed, Data: eventbus.TerminationEvent{ID: id, At: e.at}})
	r.log.Info("termination armed", logx.String("id", id), logx.Duration("in", delay), logx.Time("at", e.at))
	return true
}

// Cancel removes the pending termination for id. It reports whether one existed.
func (r *Registry) Cancel(id string) bool {
	r.mu.Lock()
	e, ok := r.entries[id]
	if ok {
		e.timer.Stop()
		delete(r.entries, id)
		metrics.SetPendingTerminations(len(r.entries))
	}
	r.mu.Unlock()
	if !ok {
		return false
	}

	metrics.IncTermination("cancelled")
	r.bus.Publish(eventbus.Event{Type: eventbus.TerminationCancelled, Data: eventbus.TerminationEvent{ID: id, At: e.at}})
	r.log.Info("termination cancelled", logx.String("id", id), logx.Time("at", e.at))
	return true
}

// OnExternalStop is Cancel for code paths that stop a broadcast outside the registry.
func (r *Registry) OnExternalStop(id string) bool { return r.Cancel(id) }

// CancelAll drops every pending termination and returns how many there were.
func (r *Registry) CancelAll() int {
	r.mu.Lock()
	n := len(r.entries)
	for id, e := range r.entries {
		e.timer.Stop()
		delete(r.entries, id)
	}
	metrics.SetPendingTerminations(0)
	r.mu.Unlock()
	return n
}

// Pending returns the instant the termination for id targets.
func (r *Registry) Pending(id string) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return time.Time{}, false
	}
	return e.at, true
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Snapshot lists pending terminations ordered by target instant.
func (r *Registry) Snapshot() []Termination {
	r.mu.Lock()
	out := make([]Termination, 0, len(r.entries))
	for id, e := range r.entries {
		out = append(out, Termination{ID: id, At: e.at})
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].At.Equal(out[j].At) {
			return out[i].At.Before(out[j].At)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// fire stops the broadcast and then retires the entry, unless the entry was
// cancelled or replaced in the meantime.
func (r *Registry) fire(id string, gen uint64) {
	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok || e.gen != gen {
		r.mu.Unlock()
		return
	}
	parent := r.ctx
	r.mu.Unlock()

	metrics.IncTermination("fired")
	r.bus.Publish(eventbus.Event{Type: eventbus.TerminationFired, Data: eventbus.TerminationEvent{ID: id, At: e.at}})

	ctx := parent
	if r.stopTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, r.stopTimeout)
		defer cancel()
	}
	_ = r.calls.stop(ctx, id, reasonTimer)

	r.mu.Lock()
	if cur, ok := r.entries[id]; ok && cur.gen == gen {
		delete(r.entries, id)
		metrics.SetPendingTerminations(len(r.entries))
	}
	r.mu.Unlock()
}

func minutesToDuration(m float64) time.Duration {
	if m <= 0 {
		return 0
	}
	if m >= maxDelay.Minutes() {
		return maxDelay
	}
	return time.Duration(m * float64(time.Minute))
}
