package scheduler

import "time"

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	c := s.c
	loc := s.loc
	defs := make([]*scheduleDef, len(s.defs))
	copy(defs, s.defs)
	items := make([]ScheduleInfo, 0, len(defs))
	for _, d := range defs {
		it := ScheduleInfo{Name: d.name, Every: d.every, Timeout: d.timeout}
		if c != nil && d.entryID != 0 {
			e := c.Entry(d.entryID)
			it.Next = e.Next
			it.Prev = e.Prev
		}
		items = append(items, it)
	}
	s.mu.Unlock()

	if loc == nil {
		loc = time.Local
	}
	for i, d := range defs {
		it := &items[i]
		it.Running = d.state.running.Load()
		it.Runs = d.state.runs.Load()
		it.Skipped = d.state.skipped.Load()
		it.Failed = d.state.failed.Load()
		d.state.mu.Lock()
		it.LastRun = d.state.lastRun
		it.LastDur = d.state.lastDur
		it.LastErr = d.state.lastErr
		d.state.mu.Unlock()
		if !it.Next.IsZero() {
			it.Next = it.Next.In(loc)
		}
		if !it.Prev.IsZero() {
			it.Prev = it.Prev.In(loc)
		}
	}
	return Snapshot{Running: c != nil, Timezone: loc.String(), Schedules: items}
}
