package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	logx "livecast/pkg/logx"
)

const defaultHTTPTimeout = 15 * time.Second

// Result is the engine's reply body.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// HTTP drives an engine exposing POST {base}/broadcasts/{id}/start and /stop.
type HTTP struct {
	base    *url.URL
	token   string
	client  *http.Client
	limiter *rate.Limiter
	log     logx.Logger
}

func NewHTTP(cfg Config, log logx.Logger) (*HTTP, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		return nil, errors.New("engine.base_url is required for http driver")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("engine.base_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("engine.base_url: unsupported scheme %q", u.Scheme)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	var lim *rate.Limiter
	if cfg.RatePerSec > 0 {
		lim = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &HTTP{
		base:    u,
		token:   cfg.Token,
		client:  &http.Client{Timeout: timeout},
		limiter: lim,
		log:     log,
	}, nil
}

func (h *HTTP) Start(ctx context.Context, id string) error { return h.call(ctx, id, "start") }

func (h *HTTP) Stop(ctx context.Context, id string) error { return h.call(ctx, id, "stop") }

func (h *HTTP) call(ctx context.Context, id, op string) error {
	if h.limiter != nil {
		if err := h.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%s %s: %w", op, id, err)
		}
	}
	u := h.base.JoinPath("broadcasts", id, op)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader([]byte("{}")))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}

	start := time.Now()
	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", op, id, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	h.log.Debug("engine call", logx.String("op", op), logx.String("id", id), logx.Int("status", resp.StatusCode), logx.Duration("took", time.Since(start)))

	// Already in the requested state.
	if resp.StatusCode == http.StatusConflict {
		return nil
	}

	var res Result
	decodeErr := json.Unmarshal(body, &res)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(res.Error)
		if decodeErr != nil || msg == "" {
			msg = strings.TrimSpace(string(body))
		}
		return fmt.Errorf("%s %s: http %d: %s", op, id, resp.StatusCode, truncate(msg, 200))
	}
	if decodeErr != nil {
		return fmt.Errorf("%s %s: decode reply: %w", op, id, decodeErr)
	}
	if !res.Success {
		if res.Error == "" {
			res.Error = "no reason given"
		}
		return fmt.Errorf("%s %s: %w: %s", op, id, ErrRejected, res.Error)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
