package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"livecast/internal/lifecycle"
	"livecast/internal/observability/ops"
	"livecast/internal/storage"
	logx "livecast/pkg/logx"
)

func TestParseWhen(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)
	got, err := parseWhen("+10m", now)
	if err != nil || !got.Equal(now.Add(10*time.Minute)) {
		t.Fatalf("+10m = %v, %v", got, err)
	}
	got, err = parseWhen("2026-03-14T20:00:00Z", now)
	if err != nil || !got.Equal(now.Add(2*time.Hour)) {
		t.Fatalf("rfc3339 = %v, %v", got, err)
	}
	if _, err := parseWhen("tomorrow", now); err == nil {
		t.Fatal("garbage accepted")
	}
}

func TestNewScheduled(t *testing.T) {
	t.Parallel()
	now := time.Now()
	b, err := newScheduled("", " Evening ", "+1h", 90*time.Minute, now)
	if err != nil {
		t.Fatal(err)
	}
	if b.ID == "" || b.Name != "Evening" || b.Status != lifecycle.StatusScheduled {
		t.Fatalf("b=%+v", b)
	}
	if b.DurationMinutes == nil || *b.DurationMinutes != 90 {
		t.Fatalf("duration=%v", b.DurationMinutes)
	}

	b, _ = newScheduled("fixed", "", "+1h", 0, now)
	if b.ID != "fixed" || b.DurationMinutes != nil {
		t.Fatalf("b=%+v", b)
	}
	if _, err := newScheduled("x", "", "+1h", -time.Minute, now); err == nil {
		t.Fatal("negative duration accepted")
	}
}

func TestListBroadcasts(t *testing.T) {
	t.Parallel()
	st, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(t.TempDir(), "b.json")}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	ctx := context.Background()
	at := time.Now().Add(time.Hour)
	m := 45.0
	_ = st.Upsert(ctx, lifecycle.Broadcast{ID: "a", Name: "Alpha", Status: lifecycle.StatusScheduled, ScheduledAt: &at, DurationMinutes: &m})
	_ = st.Upsert(ctx, lifecycle.Broadcast{ID: "b", Name: "Beta", Status: lifecycle.StatusOffline})

	var buf bytes.Buffer
	if err := listBroadcasts(ctx, &buf, st, ""); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "Alpha") || !strings.Contains(out, "Beta") || !strings.Contains(out, "45m") {
		t.Fatalf("list output:\n%s", out)
	}

	buf.Reset()
	_ = listBroadcasts(ctx, &buf, st, lifecycle.StatusLive)
	if !strings.Contains(buf.String(), "No broadcasts.") {
		t.Fatalf("filtered output:\n%s", buf.String())
	}
}

func TestStopViaOps(t *testing.T) {
	t.Parallel()
	var gotPath, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotAuth = r.URL.Path, r.Header.Get("Authorization")
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	addr := strings.TrimPrefix(srv.URL, "http://")
	if err := stopViaOps(context.Background(), srv.Client(), addr, "tok", "show-1"); err != nil {
		t.Fatal(err)
	}
	if gotPath != "/broadcasts/show-1/stop" || gotAuth != "Bearer tok" {
		t.Fatalf("path=%q auth=%q", gotPath, gotAuth)
	}

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "engine unreachable", http.StatusBadGateway)
	}))
	defer failing.Close()
	err := stopViaOps(context.Background(), failing.Client(), strings.TrimPrefix(failing.URL, "http://"), "", "x")
	if err == nil || !strings.Contains(err.Error(), "engine unreachable") {
		t.Fatalf("err=%v", err)
	}
}

type recordingController struct {
	mu       sync.Mutex
	notified []string
	stopped  []string
}

func (c *recordingController) Status() lifecycle.Report { return lifecycle.Report{} }

func (c *recordingController) StopBroadcast(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = append(c.stopped, id)
	return nil
}

func (c *recordingController) NotifyExternalStop(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notified = append(c.notified, id)
	return false
}

func TestWritesThroughOpsReachDaemon(t *testing.T) {
	t.Parallel()
	st, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(t.TempDir(), "b.json")}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	ctx := context.Background()
	started := time.Now().Add(-5 * time.Minute)
	_ = st.Upsert(ctx, lifecycle.Broadcast{ID: "show-1", Status: lifecycle.StatusLive, StartedAt: &started, DurationMinutes: ptr(10.0)})

	ctl := &recordingController{}
	srv := httptest.NewServer(ops.NewRouter(ops.Deps{Lifecycle: ctl, Store: st}, "tok", logx.Nop()))
	defer srv.Close()
	addr := strings.TrimPrefix(srv.URL, "http://")

	b, err := newScheduled("show-1", "Again", "+0s", 30*time.Minute, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if err := opsDo(ctx, srv.Client(), addr, "tok", http.MethodPut, broadcastPath(b.ID), ops.ViewOf(b)); err != nil {
		t.Fatal(err)
	}
	got, err := st.Get(ctx, "show-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != lifecycle.StatusScheduled || got.Name != "Again" || *got.DurationMinutes != 30 {
		t.Fatalf("stored=%+v", got)
	}

	if err := opsDo(ctx, srv.Client(), addr, "tok", http.MethodDelete, broadcastPath("show-1"), nil); err != nil {
		t.Fatal(err)
	}
	if _, err := st.Get(ctx, "show-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("get after delete err=%v", err)
	}
	if len(ctl.notified) != 2 || ctl.notified[0] != "show-1" || len(ctl.stopped) != 0 {
		t.Fatalf("notified=%v stopped=%v", ctl.notified, ctl.stopped)
	}

	err = opsDo(ctx, srv.Client(), addr, "wrong", http.MethodDelete, broadcastPath("show-1"), nil)
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Fatalf("err=%v want 401", err)
	}
}

func TestGuardNotLive(t *testing.T) {
	t.Parallel()
	st, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(t.TempDir(), "b.json")}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	ctx := context.Background()
	now := time.Now()
	_ = st.Upsert(ctx, lifecycle.Broadcast{ID: "on-air", Status: lifecycle.StatusLive, StartedAt: &now})
	_ = st.Upsert(ctx, lifecycle.Broadcast{ID: "done", Status: lifecycle.StatusOffline})

	if err := guardNotLive(ctx, st, "on-air"); err == nil || !strings.Contains(err.Error(), "is live") {
		t.Fatalf("live broadcast err=%v", err)
	}
	if err := guardNotLive(ctx, st, "done"); err != nil {
		t.Fatalf("offline broadcast err=%v", err)
	}
	if err := guardNotLive(ctx, st, "new"); err != nil {
		t.Fatalf("unknown broadcast err=%v", err)
	}
}

func ptr(f float64) *float64 { return &f }
