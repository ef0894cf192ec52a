package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"livecast/internal/config"
	"livecast/internal/lifecycle"
)

func ptr[T any](v T) *T { return &v }

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "livecast.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestMappingDefaults(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{Storage: config.StorageConfig{Path: "x.db"}}

	lc, err := mapLifecycle(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if lc.PollInterval != time.Minute || lc.LookAhead != time.Minute || lc.StopTimeout != 30*time.Second {
		t.Fatalf("lifecycle=%+v", lc)
	}
	sc, err := mapStorage(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if sc.Driver != "sqlite" || sc.BusyTimeout != time.Second {
		t.Fatalf("storage=%+v", sc)
	}
	ec, err := mapEngine(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if ec.Driver != "" || ec.Timeout != 15*time.Second {
		t.Fatalf("engine=%+v", ec)
	}
	oc, err := mapOps(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if oc.Enabled || oc.WriteTimeout != 35*time.Second {
		t.Fatalf("ops=%+v", oc)
	}

	cfg.Lifecycle.LookAhead = "nope"
	if _, err := mapLifecycle(cfg); err == nil {
		t.Fatal("bad duration accepted")
	}
}

func TestMapLoggingCarriesOperatorSink(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{}
	cfg.Logging.Level = "warn"
	cfg.Logging.Telegram = config.LoggingTelegram{Enabled: true, MinLevel: "error", RatePerSec: 2}
	lc := mapLogging(cfg)
	if lc.Level != "warn" || !lc.Operator.Enabled || lc.Operator.MinLevel != "error" || lc.Operator.RatePerSec != 2 {
		t.Fatalf("logging=%+v", lc)
	}
}

func TestAppRunsLifecycleAgainstStore(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
logging:
  level: error
storage:
  driver: file
  path: `+filepath.Join(dir, "broadcasts.json")+`
engine:
  driver: dryrun
`)
	a, err := NewApp(path)
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	now := time.Now()
	seed := []lifecycle.Broadcast{
		{ID: "due", Status: lifecycle.StatusScheduled, ScheduledAt: ptr(now.Add(5 * time.Second))},
		{ID: "later", Status: lifecycle.StatusScheduled, ScheduledAt: ptr(now.Add(time.Hour))},
		{ID: "expired", Status: lifecycle.StatusLive, StartedAt: ptr(now.Add(-20 * time.Minute)), DurationMinutes: ptr(10.0)},
		{ID: "running", Status: lifecycle.StatusLive, StartedAt: ptr(now), DurationMinutes: ptr(60.0)},
	}
	for _, b := range seed {
		if err := a.Store().Upsert(ctx, b); err != nil {
			t.Fatal(err)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := a.Start(runCtx); err != nil {
		t.Fatal(err)
	}

	status := func(id string) lifecycle.Status {
		b, err := a.Store().Get(ctx, id)
		if err != nil {
			return ""
		}
		return b.Status
	}
	waitFor(t, func() bool {
		return status("due") == lifecycle.StatusLive && status("expired") == lifecycle.StatusOffline
	})
	waitFor(t, func() bool {
		_, ok := a.Orchestrator().Registry().Pending("running")
		return ok
	})
	if status("later") != lifecycle.StatusScheduled {
		t.Fatalf("later=%s", status("later"))
	}

	// A manual stop goes through the recording engine and clears the timer.
	if err := a.Orchestrator().StopBroadcast(ctx, "running"); err != nil {
		t.Fatal(err)
	}
	if status("running") != lifecycle.StatusOffline {
		t.Fatalf("running=%s", status("running"))
	}
	if _, ok := a.Orchestrator().Registry().Pending("running"); ok {
		t.Fatal("termination still pending after manual stop")
	}

	stopCtx, stopCancel := context.WithTimeout(ctx, 10*time.Second)
	defer stopCancel()
	if err := a.Stop(stopCtx, StopAppStop); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	select {
	case <-a.Done():
	default:
		t.Fatal("app context still live after Stop")
	}
}

func TestApplyConfigStartsOpsServer(t *testing.T) {
	dir := t.TempDir()
	body := `
logging:
  level: error
storage:
  driver: file
  path: ` + filepath.Join(dir, "b.json") + `
`
	a, err := NewApp(writeConfig(t, dir, body))
	if err != nil {
		t.Fatal(err)
	}
	defer a.store.Close()
	defer a.logs.Close()

	next, err := config.Decode("x.yaml", []byte(body+`
ops:
  enabled: true
  addr: 127.0.0.1:0
`))
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a.applyConfig(ctx, a.cfgm.Get(), next)
	waitFor(t, func() bool { return a.ops.Addr() != "" })

	a.applyConfig(ctx, next, a.cfgm.Get())
	if a.ops.Addr() != "" {
		t.Fatal("ops server still bound after disable")
	}
}

