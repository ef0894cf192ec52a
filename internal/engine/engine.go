package engine

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"livecast/internal/lifecycle"
	logx "livecast/pkg/logx"
)

// ErrRejected is returned when the engine answered but refused the request.
var ErrRejected = errors.New("engine rejected request")

type Config struct {
	Driver     string // "http" or "dryrun"
	BaseURL    string
	Token      string
	Timeout    time.Duration
	RatePerSec int
	// MaxStartFailures marks a broadcast as error after this many consecutive
	// failed starts. 0 keeps retrying on every poll.
	MaxStartFailures int
}

// Open builds the configured engine and wraps it so status transitions are
// written to store.
func Open(cfg Config, store Marker, log logx.Logger) (lifecycle.Engine, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	log = log.With(logx.String("comp", "engine"), logx.String("driver", driver))

	var next lifecycle.Engine
	switch driver {
	case "", "dryrun":
		next = NewDryRun(log)
	case "http":
		h, err := NewHTTP(cfg, log)
		if err != nil {
			return nil, err
		}
		next = h
	default:
		return nil, fmt.Errorf("unknown engine driver: %s", driver)
	}
	if store == nil {
		return next, nil
	}
	return NewRecording(next, store, cfg.MaxStartFailures, log), nil
}
