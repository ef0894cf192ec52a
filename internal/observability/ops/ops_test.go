package ops

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"livecast/internal/lifecycle"
	"livecast/internal/storage"
	logx "livecast/pkg/logx"
)

type fakeController struct {
	mu       sync.Mutex
	stopped  []string
	notified []string
	stopErr  error
	report   lifecycle.Report
}

func (f *fakeController) Status() lifecycle.Report { return f.report }

func (f *fakeController) StopBroadcast(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = append(f.stopped, id)
	return f.stopErr
}

func (f *fakeController) NotifyExternalStop(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notified = append(f.notified, id)
	return true
}

func doBody(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func do(t *testing.T, h http.Handler, method, target, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRouterAuth(t *testing.T) {
	t.Parallel()
	h := NewRouter(Deps{Lifecycle: &fakeController{}}, "tok", logx.Nop())

	if w := do(t, h, http.MethodGet, "/healthz", ""); w.Code != http.StatusOK {
		t.Fatalf("healthz=%d", w.Code)
	}
	if w := do(t, h, http.MethodGet, "/status", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("status without token=%d", w.Code)
	}
	if w := do(t, h, http.MethodGet, "/status", "wrong"); w.Code != http.StatusUnauthorized {
		t.Fatalf("status with wrong token=%d", w.Code)
	}
	if w := do(t, h, http.MethodGet, "/status", "tok"); w.Code != http.StatusOK {
		t.Fatalf("status with token=%d", w.Code)
	}
	if w := do(t, h, http.MethodGet, "/metrics?token=tok", ""); w.Code != http.StatusOK {
		t.Fatalf("metrics with query token=%d", w.Code)
	}
}

func TestRouterStatusReportsPending(t *testing.T) {
	t.Parallel()
	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	ctl := &fakeController{report: lifecycle.Report{
		Started:      true,
		PollInterval: time.Minute,
		Pending:      []lifecycle.Termination{{ID: "a", At: at}},
	}}
	h := NewRouter(Deps{Lifecycle: ctl}, "", logx.Nop())

	w := do(t, h, http.MethodGet, "/status", "")
	var body statusBody
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if !body.Lifecycle.Started || len(body.Lifecycle.Pending) != 1 || body.Lifecycle.Pending[0].ID != "a" {
		t.Fatalf("body=%+v", body)
	}
}

func TestRouterManualStop(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(t.TempDir(), "b.json")}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	now := time.Now()
	_ = st.Upsert(ctx, lifecycle.Broadcast{ID: "a", Status: lifecycle.StatusLive, StartedAt: &now})

	ctl := &fakeController{}
	h := NewRouter(Deps{Lifecycle: ctl, Store: st}, "", logx.Nop())

	if w := do(t, h, http.MethodPost, "/broadcasts/a/stop", ""); w.Code != http.StatusOK {
		t.Fatalf("stop=%d %s", w.Code, w.Body.String())
	}
	if w := do(t, h, http.MethodPost, "/broadcasts/missing/stop", ""); w.Code != http.StatusNotFound {
		t.Fatalf("stop missing=%d", w.Code)
	}
	ctl.stopErr = errors.New("engine down")
	if w := do(t, h, http.MethodPost, "/broadcasts/a/stop", ""); w.Code != http.StatusBadGateway {
		t.Fatalf("stop failure=%d", w.Code)
	}
	if len(ctl.stopped) != 2 || ctl.stopped[0] != "a" {
		t.Fatalf("stopped=%v", ctl.stopped)
	}

	w := do(t, h, http.MethodGet, "/broadcasts", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"id": "a"`) {
		t.Fatalf("list=%d %s", w.Code, w.Body.String())
	}
}

func TestServiceLifecycle(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	s := New(Config{Enabled: true, Addr: "127.0.0.1:0", MutexProfileFraction: -1, BlockProfileRate: -1}, Deps{Lifecycle: &fakeController{}}, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	s.Start(ctx)

	deadline := time.Now().Add(3 * time.Second)
	for s.Addr() == "" && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	addr := s.Addr()
	if addr == "" {
		t.Fatal("server did not start")
	}
	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	resp, err := client.Get("http://" + addr + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	b, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(b) != "ok" {
		t.Fatalf("healthz body=%q", b)
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer stopCancel()
	s.Stop(stopCtx)
	if s.Addr() != "" {
		t.Fatal("still serving after Stop")
	}
}

func TestIsLoopbackAddr(t *testing.T) {
	t.Parallel()
	cases := map[string]bool{
		"127.0.0.1:9464": true,
		"localhost:1":    true,
		"[::1]:80":       true,
		":9464":          false,
		"0.0.0.0:9464":   false,
		"10.0.0.5:9464":  false,
		"nonsense":       false,
	}
	for addr, want := range cases {
		if got := isLoopbackAddr(addr); got != want {
			t.Errorf("isLoopbackAddr(%q)=%v want %v", addr, got, want)
		}
	}
}

func TestRouterPutDropsPendingTermination(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(t.TempDir(), "b.json")}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	started := time.Now().Add(-5 * time.Minute)
	ten := 10.0
	_ = st.Upsert(ctx, lifecycle.Broadcast{ID: "a", Status: lifecycle.StatusLive, StartedAt: &started, DurationMinutes: &ten})

	ctl := &fakeController{}
	h := NewRouter(Deps{Lifecycle: ctl, Store: st}, "", logx.Nop())

	w := doBody(t, h, http.MethodPut, "/broadcasts/a", `{"name":"again","status":"scheduled","scheduled_at":"2026-05-01T12:00:00Z","duration_min":30}`)
	if w.Code != http.StatusOK {
		t.Fatalf("put=%d %s", w.Code, w.Body.String())
	}
	if len(ctl.notified) != 1 || ctl.notified[0] != "a" {
		t.Fatalf("notified=%v want [a]", ctl.notified)
	}
	got, err := st.Get(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != lifecycle.StatusScheduled || got.Name != "again" || got.DurationMinutes == nil || *got.DurationMinutes != 30 {
		t.Fatalf("stored=%+v", got)
	}

	if w := doBody(t, h, http.MethodPut, "/broadcasts/a", `{"status":"bogus"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("invalid status=%d", w.Code)
	}
	if w := doBody(t, h, http.MethodPut, "/broadcasts/a", `{"id":"b","status":"offline"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("mismatched id=%d", w.Code)
	}
	if w := doBody(t, h, http.MethodPut, "/broadcasts/a", `{`); w.Code != http.StatusBadRequest {
		t.Fatalf("bad json=%d", w.Code)
	}
}

func TestRouterDeleteStopsLiveBroadcast(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(t.TempDir(), "b.json")}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	now := time.Now()
	_ = st.Upsert(ctx, lifecycle.Broadcast{ID: "live", Status: lifecycle.StatusLive, StartedAt: &now})
	_ = st.Upsert(ctx, lifecycle.Broadcast{ID: "idle", Status: lifecycle.StatusOffline})

	ctl := &fakeController{stopErr: errors.New("engine down")}
	h := NewRouter(Deps{Lifecycle: ctl, Store: st}, "", logx.Nop())

	if w := do(t, h, http.MethodDelete, "/broadcasts/live", ""); w.Code != http.StatusBadGateway {
		t.Fatalf("delete with failing stop=%d", w.Code)
	}
	if _, err := st.Get(ctx, "live"); err != nil {
		t.Fatalf("row removed although the stop failed: %v", err)
	}

	ctl.stopErr = nil
	if w := do(t, h, http.MethodDelete, "/broadcasts/live", ""); w.Code != http.StatusOK {
		t.Fatalf("delete live=%d %s", w.Code, w.Body.String())
	}
	if w := do(t, h, http.MethodDelete, "/broadcasts/idle", ""); w.Code != http.StatusOK {
		t.Fatalf("delete idle=%d", w.Code)
	}
	if len(ctl.stopped) != 2 || ctl.stopped[1] != "live" {
		t.Fatalf("stopped=%v", ctl.stopped)
	}
	if len(ctl.notified) != 1 || ctl.notified[0] != "idle" {
		t.Fatalf("notified=%v want [idle]", ctl.notified)
	}
	if _, err := st.Get(ctx, "live"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("get after delete err=%v", err)
	}
	if w := do(t, h, http.MethodDelete, "/broadcasts/live", ""); w.Code != http.StatusNotFound {
		t.Fatalf("delete missing=%d", w.Code)
	}
}
