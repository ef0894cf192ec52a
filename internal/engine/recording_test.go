package engine

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"livecast/internal/lifecycle"
	"livecast/internal/storage"
	logx "livecast/pkg/logx"
)

type flakyEngine struct {
	startErr error
	stopErr  error
}

func (f *flakyEngine) Start(context.Context, string) error { return f.startErr }
func (f *flakyEngine) Stop(context.Context, string) error  { return f.stopErr }

func openStore(t *testing.T) storage.Store {
	t.Helper()
	st, err := storage.Open(storage.Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "engine.db")}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestRecordingFlipsStatus(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := openStore(t)
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	if err := st.Upsert(ctx, lifecycle.Broadcast{ID: "a", Status: lifecycle.StatusScheduled, ScheduledAt: &at}); err != nil {
		t.Fatal(err)
	}

	eng, err := Open(Config{Driver: "dryrun"}, st, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if err := eng.Start(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	b, _ := st.Get(ctx, "a")
	if b.Status != lifecycle.StatusLive || b.StartedAt == nil {
		t.Fatalf("after start %+v", b)
	}
	// Idempotent.
	if err := eng.Start(ctx, "a"); err != nil {
		t.Fatal(err)
	}

	if err := eng.Stop(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if err := eng.Stop(ctx, "a"); err != nil {
		t.Fatalf("second stop: %v", err)
	}
	b, _ = st.Get(ctx, "a")
	if b.Status != lifecycle.StatusOffline || b.EndedAt == nil {
		t.Fatalf("after stop %+v", b)
	}

	if err := eng.Stop(ctx, "deleted"); err != nil {
		t.Fatalf("stop of unknown broadcast: %v", err)
	}
}

func TestRecordingLeavesStatusOnFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := openStore(t)
	_ = st.Upsert(ctx, lifecycle.Broadcast{ID: "c", Status: lifecycle.StatusScheduled})

	boom := errors.New("rtmp unreachable")
	rec := NewRecording(&flakyEngine{startErr: boom}, st, 0, logx.Nop())
	for i := 0; i < 5; i++ {
		if err := rec.Start(ctx, "c"); !errors.Is(err, boom) {
			t.Fatalf("err=%v", err)
		}
	}
	b, _ := st.Get(ctx, "c")
	if b.Status != lifecycle.StatusScheduled {
		t.Fatalf("status=%s want scheduled", b.Status)
	}
}

func TestRecordingMarksErrorAfterRepeatedFailures(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := openStore(t)
	_ = st.Upsert(ctx, lifecycle.Broadcast{ID: "c", Status: lifecycle.StatusScheduled})

	rec := NewRecording(&flakyEngine{startErr: errors.New("nope")}, st, 3, logx.Nop())
	_ = rec.Start(ctx, "c")
	_ = rec.Start(ctx, "c")
	if b, _ := st.Get(ctx, "c"); b.Status != lifecycle.StatusScheduled {
		t.Fatalf("marked too early: %s", b.Status)
	}
	_ = rec.Start(ctx, "c")
	if b, _ := st.Get(ctx, "c"); b.Status != lifecycle.StatusError {
		t.Fatalf("status=%s want error", b.Status)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "smoke-signals"}, nil, logx.Nop()); err == nil {
		t.Fatal("expected error")
	}
}
