package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	logx "livecast/pkg/logx"
)

var ErrUnknownSchedule = errors.New("unknown schedule")

// AddInterval registers job to run every `every`. A previous schedule with the
// same name is replaced. timeout <= 0 means runs are only bounded by the
// service context.
func (s *Service) AddInterval(name string, every, timeout time.Duration, job Job) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("name required")
	}
	if every <= 0 {
		return fmt.Errorf("%s: interval must be > 0", name)
	}
	if job == nil {
		return fmt.Errorf("%s: job required", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(name)
	d := &scheduleDef{name: name, every: every, timeout: timeout, job: job, state: &runState{}}
	s.defs = append(s.defs, d)
	if s.c != nil {
		s.addCronLocked(d)
		s.log.Debug("schedule registered", logx.String("name", name), logx.Duration("every", every), logx.Time("next", s.c.Entry(d.entryID).Next))
	}
	return nil
}

// Remove unregisters the schedule with the given name. It reports whether one existed.
func (s *Service) Remove(name string) bool {
	s.mu.Lock()
	removed := s.removeLocked(strings.TrimSpace(name))
	s.mu.Unlock()
	if removed {
		s.log.Debug("schedule removed", logx.String("name", name))
	}
	return removed
}

// RunNow dispatches one run of the named job immediately (in its own goroutine),
// honouring the overlap guard. The service must be started.
func (s *Service) RunNow(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		return errors.New("scheduler not started")
	}
	d := s.findLocked(name)
	if d == nil {
		return fmt.Errorf("%w: %s", ErrUnknownSchedule, name)
	}
	ctx := s.ctx
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx, d)
	}()
	return nil
}

func (s *Service) findLocked(name string) *scheduleDef {
	for _, d := range s.defs {
		if d.name == name {
			return d
		}
	}
	return nil
}

// removeLocked drops the definition and its cron entry. Call with s.mu held.
func (s *Service) removeLocked(name string) bool {
	for i, d := range s.defs {
		if d.name != name {
			continue
		}
		if s.c != nil && d.entryID != 0 {
			s.c.Remove(d.entryID)
		}
		s.defs = append(s.defs[:i], s.defs[i+1:]...)
		return true
	}
	return false
}

// addCronLocked registers d with the running cron. Call with s.mu held.
func (s *Service) addCronLocked(d *scheduleDef) {
	ctx := s.ctx
	d.entryID = s.c.Schedule(cron.Every(d.every), cron.FuncJob(func() { s.run(ctx, d) }))
}

func (s *Service) run(ctx context.Context, d *scheduleDef) {
	if !d.state.running.CompareAndSwap(false, true) {
		d.state.skipped.Add(1)
		s.log.Debug("run skipped (previous run still running)", logx.String("task", d.name))
		return
	}
	defer d.state.running.Store(false)
	if ctx == nil {
		ctx = context.Background()
	}
	if ctx.Err() != nil {
		return
	}

	runCtx := ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	start := time.Now()
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("run panicked", logx.String("task", d.name), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return d.job(runCtx)
	}()
	took := time.Since(start)

	d.state.runs.Add(1)
	d.state.mu.Lock()
	d.state.lastRun = start
	d.state.lastDur = took
	d.state.lastErr = ""
	if err != nil {
		d.state.lastErr = err.Error()
	}
	d.state.mu.Unlock()

	if err != nil {
		d.state.failed.Add(1)
		s.log.Warn("run failed", logx.String("task", d.name), logx.Duration("took", took), logx.Err(err))
		return
	}
	s.log.Trace("run ok", logx.String("task", d.name), logx.Duration("took", took))
}
