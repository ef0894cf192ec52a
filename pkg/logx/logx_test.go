package logx

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestLoggerWithFields(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := FromZerolog(zerolog.New(&buf)).With(String("comp", "lifecycle"))
	log.Info("tick done", Int("started", 2))

	out := buf.String()
	for _, want := range []string{`"comp":"lifecycle"`, `"started":2`, `"message":"tick done"`, `"caller":"logx_test.go:`} {
		if !strings.Contains(out, want) {
			t.Fatalf("output %q missing %q", out, want)
		}
	}
}

func TestZeroLoggerIsNop(t *testing.T) {
	t.Parallel()
	var log Logger
	if !log.IsZero() {
		t.Fatal("zero logger should report IsZero")
	}
	log.Error("nothing happens")
	if Nop().IsZero() {
		t.Fatal("Nop() should not be zero")
	}
}

func TestFormatOperatorLine(t *testing.T) {
	t.Parallel()
	line := []byte(`{"level":"warn","time":"x","message":"engine start failed","id":"C","err":"rtmp unreachable"}`)
	got := formatOperatorLine(line)
	want := "[WARN] engine start failed\n- err=rtmp unreachable\n- id=C"
	if got != want {
		t.Fatalf("formatOperatorLine = %q, want %q", got, want)
	}

	if got := formatOperatorLine([]byte("  plain text \n")); got != "plain text" {
		t.Fatalf("non-JSON line = %q", got)
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	tests := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"WARNING": zerolog.WarnLevel,
		" error ": zerolog.ErrorLevel,
		"bogus":   zerolog.InfoLevel,
	}
	for in, want := range tests {
		if got := parseLevel(in, zerolog.InfoLevel); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
	if ValidLevel("loud") {
		t.Fatal("ValidLevel accepted unknown level")
	}
}
