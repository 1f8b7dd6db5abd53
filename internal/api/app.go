package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ipscope/ipscope/internal/auth"
	"github.com/ipscope/ipscope/internal/config"
	"github.com/ipscope/ipscope/internal/events"
	"github.com/ipscope/ipscope/internal/export"
	"github.com/ipscope/ipscope/internal/store"
	"github.com/ipscope/ipscope/internal/task"
	"github.com/ipscope/ipscope/pkg/observability"
	"github.com/ipscope/ipscope/pkg/types"
)

type App struct {
	cfg      *config.Config
	registry *task.Registry
	runner   *task.Runner
	store    store.EventStore
	broker   *events.Broker
	logger   *slog.Logger

	apiKeyAuth *auth.APIKeyAuth
}

func NewApp(cfg *config.Config, registry *task.Registry, runner *task.Runner, st store.EventStore, broker *events.Broker, apiKeyAuth *auth.APIKeyAuth, logger *slog.Logger) *App {
	if logger == nil {
		logger = observability.Discard()
	}
	return &App{cfg: cfg, registry: registry, runner: runner, store: st, broker: broker, apiKeyAuth: apiKeyAuth, logger: logger}
}

func (a *App) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(func(next http.Handler) http.Handler {
		return observability.RequestLogger(a.logger, next)
	})
	r.Use(a.authMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { writeText(w, http.StatusOK, "ok\n") })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) { writeText(w, http.StatusOK, "ready\n") })

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/tasks", a.submitTask)
		r.Get("/tasks", a.listTasks)
		r.Get("/tasks/{id}", a.getTask)
		r.Get("/tasks/{id}/results", a.getResults)
		r.Get("/tasks/{id}/export", a.exportCSV)
		r.Post("/tasks/{id}/cancel", a.cancelTask)
		r.Get("/tasks/{id}/events", a.streamEvents)

		r.Get("/events/search", a.searchEvents)
	})

	return r
}

func (a *App) authMiddleware(next http.Handler) http.Handler {
	if strings.EqualFold(a.cfg.Auth.Type, "none") {
		return next
	}
	if strings.EqualFold(a.cfg.Auth.Type, "api_key") {
		if a.apiKeyAuth == nil {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusServiceUnavailable, map[string]any{
					"error": "api key auth enabled but keys not loaded",
				})
			})
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(a.apiKeyAuth.HeaderName())
			if _, ok := a.apiKeyAuth.Lookup(key); key == "" || !ok {
				writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "unsupported auth type"})
	})
}

// requireAdmin gates mutating endpoints when key roles are in play. With
// auth disabled every caller is an admin.
func (a *App) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	if a.apiKeyAuth == nil || !strings.EqualFold(a.cfg.Auth.Type, "api_key") {
		return true
	}
	key := r.Header.Get(a.apiKeyAuth.HeaderName())
	role, ok := a.apiKeyAuth.Lookup(key)
	if !ok || !role.CanMutate() {
		writeJSON(w, http.StatusForbidden, map[string]any{"error": "admin role required"})
		return false
	}
	return true
}

func (a *App) submitTask(w http.ResponseWriter, r *http.Request) {
	if !a.requireAdmin(w, r) {
		return
	}
	var req types.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]any{"error": "request body too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json"})
		return
	}
	resp, code, err := a.submitTaskCore(req)
	if err != nil {
		writeJSON(w, code, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, code, resp)
}

func (a *App) listTasks(w http.ResponseWriter, r *http.Request) {
	all := a.registry.List()
	out := make([]types.Task, 0, len(all))
	for _, t := range all {
		out = append(out, t.Snapshot())
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *App) getTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	snap, err := a.registry.Snapshot(id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "task not found"})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (a *App) getResults(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	records, code, err := a.resultsCore(id)
	if err != nil {
		writeJSON(w, code, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (a *App) exportCSV(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	records, code, err := a.resultsCore(id)
	if err != nil {
		writeJSON(w, code, map[string]any{"error": err.Error()})
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename(id)))
	w.WriteHeader(http.StatusOK)
	_ = export.WriteCSV(w, records)
}

func (a *App) cancelTask(w http.ResponseWriter, r *http.Request) {
	if !a.requireAdmin(w, r) {
		return
	}
	id := chi.URLParam(r, "id")
	resp, code, err := a.cancelTaskCore(id)
	if err != nil {
		writeJSON(w, code, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, code, resp)
}

func (a *App) streamEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := a.registry.Get(id); !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "task not found"})
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "stream unsupported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sub := a.broker.Subscribe(id, 200)
	defer sub.Close()

	_, _ = w.Write([]byte("event: ready\ndata: {}\n\n"))
	flusher.Flush()

	enc := json.NewEncoder(w)
	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-sub.C:
			_, _ = w.Write([]byte("data: "))
			if err := enc.Encode(ev); err != nil {
				return
			}
			_, _ = w.Write([]byte("\n"))
			flusher.Flush()
		}
	}
}

func (a *App) searchEvents(w http.ResponseWriter, r *http.Request) {
	q, err := parseEventQuery(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	evs, err := a.store.QueryEvents(r.Context(), q)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, evs)
}

func parseEventQuery(r *http.Request) (types.EventQuery, error) {
	v := r.URL.Query()
	var q types.EventQuery
	q.TaskID = v.Get("task_id")
	if t := v.Get("type"); t != "" {
		q.Types = strings.Split(t, ",")
	}
	q.IPLike = v.Get("ip_like")
	q.TextLike = v.Get("text_like")
	q.Limit, _ = strconv.Atoi(v.Get("limit"))
	q.Offset, _ = strconv.Atoi(v.Get("offset"))
	q.Asc = v.Get("order") == "asc"

	if since := v.Get("since"); since != "" {
		t, err := parseTimeOrAgo(since)
		if err != nil {
			return q, fmt.Errorf("since: %w", err)
		}
		q.Since = &t
	}
	if until := v.Get("until"); until != "" {
		t, err := parseTimeOrAgo(until)
		if err != nil {
			return q, fmt.Errorf("until: %w", err)
		}
		q.Until = &t
	}
	return q, nil
}

// parseTimeOrAgo accepts either an RFC3339 timestamp or a relative
// duration like "15m" meaning that long ago.
func parseTimeOrAgo(s string) (time.Time, error) {
	if strings.ContainsAny(s, "smhdw") && !strings.Contains(s, "T") {
		d, err := time.ParseDuration(s)
		if err != nil {
			return time.Time{}, err
		}
		return time.Now().UTC().Add(-d), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeText(w http.ResponseWriter, status int, s string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(s))
}
