package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"livecast/internal/lifecycle"
	logx "livecast/pkg/logx"
)

// fileStore keeps every broadcast in memory and rewrites <path> as a JSON
// snapshot (tmp + rename) after each mutation.
type fileStore struct {
	log  logx.Logger
	path string

	mu     sync.Mutex
	items  map[string]row
	closed bool
}

type fileSnapshot struct {
	Version    int   `json:"version"`
	Broadcasts []row `json:"broadcasts"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	s := &fileStore{log: log, path: path, items: map[string]row{}}
	if err := s.load(); err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	log.Info("storage opened", logx.String("path", path), logx.Int("broadcasts", len(s.items)))
	return s, nil
}

func (s *fileStore) load() error {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(strings.TrimSpace(string(b))) == 0 {
		return nil
	}
	var snap fileSnapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return err
	}
	for _, r := range snap.Broadcasts {
		if r.ID == "" {
			continue
		}
		s.items[r.ID] = r
	}
	return nil
}

func (s *fileStore) flushLocked() error {
	snap := fileSnapshot{Version: 1, Broadcasts: make([]row, 0, len(s.items))}
	for _, r := range s.items {
		snap.Broadcasts = append(snap.Broadcasts, r)
	}
	sort.Slice(snap.Broadcasts, func(i, j int) bool { return snap.Broadcasts[i].ID < snap.Broadcasts[j].ID })

	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fileStore) collect(keep func(row) bool, less func(a, b row) bool) ([]lifecycle.Broadcast, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, errors.New("store closed")
	}
	rows := make([]row, 0, len(s.items))
	for _, r := range s.items {
		if keep(r) {
			rows = append(rows, r)
		}
	}
	s.mu.Unlock()

	sort.Slice(rows, func(i, j int) bool { return less(rows[i], rows[j]) })
	out := make([]lifecycle.Broadcast, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.broadcast())
	}
	return out, nil
}

func (s *fileStore) FindDueInRange(_ context.Context, from, to time.Time) ([]lifecycle.Broadcast, error) {
	lo, hi := from.UnixMilli(), to.UnixMilli()
	return s.collect(func(r row) bool {
		return r.Status == string(lifecycle.StatusScheduled) && r.ScheduledAt != nil &&
			*r.ScheduledAt >= lo && *r.ScheduledAt <= hi
	}, func(a, b row) bool {
		if *a.ScheduledAt != *b.ScheduledAt {
			return *a.ScheduledAt < *b.ScheduledAt
		}
		return a.ID < b.ID
	})
}

func (s *fileStore) FindActive(context.Context) ([]lifecycle.Broadcast, error) {
	return s.collect(func(r row) bool {
		return r.Status == string(lifecycle.StatusLive)
	}, func(a, b row) bool {
		as, bs := derefOr(a.StartedAt), derefOr(b.StartedAt)
		if as != bs {
			return as < bs
		}
		return a.ID < b.ID
	})
}

func (s *fileStore) List(context.Context) ([]lifecycle.Broadcast, error) {
	return s.collect(func(row) bool { return true }, func(a, b row) bool { return a.ID < b.ID })
}

func (s *fileStore) Get(_ context.Context, id string) (lifecycle.Broadcast, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.items[id]
	if !ok {
		return lifecycle.Broadcast{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return r.broadcast(), nil
}

func (s *fileStore) Upsert(_ context.Context, b lifecycle.Broadcast) error {
	if err := validate(b); err != nil {
		return err
	}
	if b.StatusUpdatedAt.IsZero() {
		b.StatusUpdatedAt = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("store closed")
	}
	prev, had := s.items[b.ID]
	s.items[b.ID] = toRow(b)
	if err := s.flushLocked(); err != nil {
		if had {
			s.items[b.ID] = prev
		} else {
			delete(s.items, b.ID)
		}
		return err
	}
	return nil
}

func (s *fileStore) Delete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.items[id]
	if !ok {
		return false, nil
	}
	delete(s.items, id)
	if err := s.flushLocked(); err != nil {
		s.items[id] = prev
		return false, err
	}
	return true, nil
}

func (s *fileStore) MarkLive(_ context.Context, id string, startedAt time.Time) (bool, error) {
	return s.transition(id, lifecycle.StatusLive, func(r *row) {
		ms := startedAt.UnixMilli()
		r.StartedAt = &ms
		r.EndedAt = nil
		r.StatusUpdatedAt = ms
	})
}

func (s *fileStore) MarkOffline(_ context.Context, id string, endedAt time.Time) (bool, error) {
	return s.transition(id, lifecycle.StatusOffline, func(r *row) {
		ms := endedAt.UnixMilli()
		r.EndedAt = &ms
		r.StatusUpdatedAt = ms
	})
}

func (s *fileStore) MarkError(_ context.Context, id string, at time.Time) (bool, error) {
	return s.transition(id, lifecycle.StatusError, func(r *row) {
		r.StatusUpdatedAt = at.UnixMilli()
	})
}

func (s *fileStore) transition(id string, to lifecycle.Status, apply func(*row)) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.items[id]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if r.Status == string(to) {
		return false, nil
	}
	prev := r
	r.Status = string(to)
	apply(&r)
	s.items[id] = r
	if err := s.flushLocked(); err != nil {
		s.items[id] = prev
		return false, fmt.Errorf("mark %s: %w", to, err)
	}
	s.log.Debug("status changed", logx.String("id", id), logx.String("to", string(to)))
	return true, nil
}

func derefOr(p *int64) int64 {
	if p == nil {
		return 0
	}
	return *p
}
