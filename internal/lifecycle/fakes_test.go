package lifecycle

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

var t0 = time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

// fakeClock is a virtual clock. Timers only fire from Advance, in target
// order, with the clock lock released.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers []*fakeTimer
}

type fakeTimer struct {
	c       *fakeClock
	at      time.Time
	seq     int
	fn      func()
	stopped bool
	fired   bool
}

func newFakeClock(now time.Time) *fakeClock { return &fakeClock{now: now} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, fn func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &fakeTimer{c: c, at: c.now.Add(d), seq: c.seq, fn: fn}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves the clock forward by d, firing due timers on the way.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	for {
		next := c.nextDueLocked(target)
		if next == nil {
			break
		}
		next.fired = true
		if next.at.After(c.now) {
			c.now = next.at
		}
		c.mu.Unlock()
		next.fn()
		c.mu.Lock()
	}
	c.now = target
	c.mu.Unlock()
}

func (c *fakeClock) nextDueLocked(target time.Time) *fakeTimer {
	var best *fakeTimer
	for _, t := range c.timers {
		if t.stopped || t.fired || t.at.After(target) {
			continue
		}
		if best == nil || t.at.Before(best.at) || (t.at.Equal(best.at) && t.seq < best.seq) {
			best = t
		}
	}
	return best
}

// live counts timers that have neither fired nor been stopped.
func (c *fakeClock) live() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

type fakeEngine struct {
	mu       sync.Mutex
	starts   []string
	stops    []string
	startErr map[string]error
	stopErr  map[string]error
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{startErr: map[string]error{}, stopErr: map[string]error{}}
}

func (e *fakeEngine) Start(_ context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.starts = append(e.starts, id)
	return e.startErr[id]
}

func (e *fakeEngine) Stop(_ context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stops = append(e.stops, id)
	return e.stopErr[id]
}

func (e *fakeEngine) Starts() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.starts...)
}

func (e *fakeEngine) Stops() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.stops...)
}

type window struct{ from, to time.Time }

type fakeRepo struct {
	mu        sync.Mutex
	items     []Broadcast
	dueErr    error
	activeErr error
	windows   []window
}

func (r *fakeRepo) add(b Broadcast) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, b)
}

// replace swaps the stored row with the same id, as an upsert would.
func (r *fakeRepo) replace(b Broadcast) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.items {
		if r.items[i].ID == b.ID {
			r.items[i] = b
			return
		}
	}
	r.items = append(r.items, b)
}

func (r *fakeRepo) FindDueInRange(_ context.Context, from, to time.Time) ([]Broadcast, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.windows = append(r.windows, window{from, to})
	if r.dueErr != nil {
		return nil, r.dueErr
	}
	var out []Broadcast
	for _, b := range r.items {
		if b.Status != StatusScheduled || b.ScheduledAt == nil {
			continue
		}
		if b.ScheduledAt.Before(from) || b.ScheduledAt.After(to) {
			continue
		}
		out = append(out, b)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ScheduledAt.Before(*out[j].ScheduledAt) })
	return out, nil
}

func (r *fakeRepo) FindActive(context.Context) ([]Broadcast, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.activeErr != nil {
		return nil, r.activeErr
	}
	var out []Broadcast
	for _, b := range r.items {
		if b.Status == StatusLive {
			out = append(out, b)
		}
	}
	return out, nil
}

func (r *fakeRepo) Windows() []window {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]window(nil), r.windows...)
}

func scheduled(id string, at time.Time) Broadcast {
	return Broadcast{ID: id, Status: StatusScheduled, ScheduledAt: &at}
}

func live(id string, startedAt time.Time, minutes *float64) Broadcast {
	return Broadcast{ID: id, Status: StatusLive, StartedAt: &startedAt, DurationMinutes: minutes}
}

func minutes(m float64) *float64 { return &m }

var errUnreachable = errors.New("rtmp unreachable")
