package ops

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"livecast/internal/lifecycle"
	"livecast/internal/scheduler"
	"livecast/internal/storage"
	logx "livecast/pkg/logx"
)

// Controller is the lifecycle surface the ops server needs.
type Controller interface {
	Status() lifecycle.Report
	StopBroadcast(ctx context.Context, id string) error
	// NotifyExternalStop drops the pending termination for id, if any.
	NotifyExternalStop(id string) bool
}

// Deps are the components the endpoints read from. Only Lifecycle is required.
type Deps struct {
	Lifecycle Controller
	Trigger   *scheduler.Service
	Store     storage.Store
}

type statusBody struct {
	Now       time.Time           `json:"now"`
	Lifecycle lifecycle.Report    `json:"lifecycle"`
	Trigger   *scheduler.Snapshot `json:"trigger,omitempty"`
}

// BroadcastView is the JSON form of a broadcast. GET /broadcasts returns it
// and PUT /broadcasts/{id} accepts it; TerminatesAt is ignored on input.
type BroadcastView struct {
	ID              string     `json:"id"`
	Name            string     `json:"name,omitempty"`
	Status          string     `json:"status"`
	ScheduledAt     *time.Time `json:"scheduled_at,omitempty"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	DurationMinutes *float64   `json:"duration_min,omitempty"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	StatusUpdatedAt time.Time  `json:"status_updated_at"`
	TerminatesAt    *time.Time `json:"terminates_at,omitempty"`
}

func ViewOf(b lifecycle.Broadcast) BroadcastView {
	return BroadcastView{
		ID:              b.ID,
		Name:            b.Name,
		Status:          string(b.Status),
		ScheduledAt:     b.ScheduledAt,
		StartedAt:       b.StartedAt,
		DurationMinutes: b.DurationMinutes,
		EndedAt:         b.EndedAt,
		StatusUpdatedAt: b.StatusUpdatedAt,
	}
}

func (v BroadcastView) Broadcast() lifecycle.Broadcast {
	return lifecycle.Broadcast{
		ID:              v.ID,
		Name:            v.Name,
		Status:          lifecycle.Status(v.Status),
		ScheduledAt:     v.ScheduledAt,
		StartedAt:       v.StartedAt,
		DurationMinutes: v.DurationMinutes,
		EndedAt:         v.EndedAt,
		StatusUpdatedAt: v.StatusUpdatedAt,
	}
}

// NewRouter builds the ops HTTP handler. /healthz is always public; the rest
// requires token when it is set.
func NewRouter(deps Deps, token string, log logx.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Group(func(r chi.Router) {
		r.Use(bearerAuth(token))
		r.Handle("/metrics", promhttp.Handler())
		r.Mount("/debug", middleware.Profiler())

		r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
			body := statusBody{Now: time.Now()}
			if deps.Lifecycle != nil {
				body.Lifecycle = deps.Lifecycle.Status()
			}
			if deps.Trigger != nil {
				snap := deps.Trigger.Snapshot()
				body.Trigger = &snap
			}
			writeJSON(w, http.StatusOK, body)
		})

		r.Get("/broadcasts", func(w http.ResponseWriter, req *http.Request) {
			if deps.Store == nil {
				writeError(w, http.StatusNotImplemented, "no store configured")
				return
			}
			all, err := deps.Store.List(req.Context())
			if err != nil {
				log.Warn("list broadcasts failed", logx.Err(err))
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			pending := map[string]time.Time{}
			if deps.Lifecycle != nil {
				for _, t := range deps.Lifecycle.Status().Pending {
					pending[t.ID] = t.At
				}
			}
			out := make([]BroadcastView, 0, len(all))
			for _, b := range all {
				v := ViewOf(b)
				if at, ok := pending[b.ID]; ok {
					v.TerminatesAt = &at
				}
				out = append(out, v)
			}
			writeJSON(w, http.StatusOK, out)
		})

		r.Post("/broadcasts/{id}/stop", func(w http.ResponseWriter, req *http.Request) {
			id := strings.TrimSpace(chi.URLParam(req, "id"))
			if deps.Lifecycle == nil {
				writeError(w, http.StatusServiceUnavailable, "lifecycle not running")
				return
			}
			if deps.Store != nil {
				if _, err := deps.Store.Get(req.Context(), id); errors.Is(err, storage.ErrNotFound) {
					writeError(w, http.StatusNotFound, err.Error())
					return
				}
			}
			if err := deps.Lifecycle.StopBroadcast(req.Context(), id); err != nil {
				log.Warn("manual stop failed", logx.String("id", id), logx.String("request_id", middleware.GetReqID(req.Context())), logx.Err(err))
				writeJSON(w, http.StatusBadGateway, map[string]any{"success": false, "error": err.Error()})
				return
			}
			log.Info("manual stop", logx.String("id", id), logx.String("request_id", middleware.GetReqID(req.Context())))
			writeJSON(w, http.StatusOK, map[string]any{"success": true})
		})

		// Writes go through the daemon so the registry never keeps a deadline
		// computed from a row that no longer exists.
		r.Put("/broadcasts/{id}", func(w http.ResponseWriter, req *http.Request) {
			id := strings.TrimSpace(chi.URLParam(req, "id"))
			if deps.Store == nil {
				writeError(w, http.StatusNotImplemented, "no store configured")
				return
			}
			var v BroadcastView
			if err := json.NewDecoder(io.LimitReader(req.Body, 64<<10)).Decode(&v); err != nil {
				writeError(w, http.StatusBadRequest, "decode body: "+err.Error())
				return
			}
			if v.ID != "" && v.ID != id {
				writeError(w, http.StatusBadRequest, "body id does not match path")
				return
			}
			v.ID = id
			if deps.Lifecycle != nil && deps.Lifecycle.NotifyExternalStop(id) {
				log.Info("pending termination dropped by update", logx.String("id", id))
			}
			if err := deps.Store.Upsert(req.Context(), v.Broadcast()); err != nil {
				code := http.StatusInternalServerError
				if errors.Is(err, storage.ErrInvalid) {
					code = http.StatusBadRequest
				}
				writeError(w, code, err.Error())
				return
			}
			log.Info("broadcast saved", logx.String("id", id), logx.String("status", v.Status), logx.String("request_id", middleware.GetReqID(req.Context())))
			writeJSON(w, http.StatusOK, map[string]any{"success": true})
		})

		r.Delete("/broadcasts/{id}", func(w http.ResponseWriter, req *http.Request) {
			id := strings.TrimSpace(chi.URLParam(req, "id"))
			if deps.Store == nil {
				writeError(w, http.StatusNotImplemented, "no store configured")
				return
			}
			b, err := deps.Store.Get(req.Context(), id)
			if errors.Is(err, storage.ErrNotFound) {
				writeError(w, http.StatusNotFound, err.Error())
				return
			}
			if err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			if deps.Lifecycle != nil {
				if b.Status == lifecycle.StatusLive {
					// Take the stream down before its row disappears.
					if err := deps.Lifecycle.StopBroadcast(req.Context(), id); err != nil {
						log.Warn("stop before delete failed", logx.String("id", id), logx.Err(err))
						writeJSON(w, http.StatusBadGateway, map[string]any{"success": false, "error": err.Error()})
						return
					}
				} else {
					deps.Lifecycle.NotifyExternalStop(id)
				}
			}
			if _, err := deps.Store.Delete(req.Context(), id); err != nil {
				code := http.StatusInternalServerError
				if errors.Is(err, storage.ErrNotFound) {
					code = http.StatusNotFound
				}
				writeError(w, code, err.Error())
				return
			}
			log.Info("broadcast deleted", logx.String("id", id), logx.String("request_id", middleware.GetReqID(req.Context())))
			writeJSON(w, http.StatusOK, map[string]any{"success": true})
		})
	})
	return r
}

func bearerAuth(token string) func(http.Handler) http.Handler {
	tok := strings.TrimSpace(token)
	return func(next http.Handler) http.Handler {
		if tok == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Accept either "Authorization: Bearer <token>" or ?token=<token>.
			if got := r.URL.Query().Get("token"); got != "" {
				if got == tok {
					next.ServeHTTP(w, r)
					return
				}
				unauthorized(w)
				return
			}
			const p = "Bearer "
			if ah := r.Header.Get("Authorization"); strings.HasPrefix(ah, p) && strings.TrimSpace(strings.TrimPrefix(ah, p)) == tok {
				next.ServeHTTP(w, r)
				return
			}
			unauthorized(w)
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"error": msg})
}
