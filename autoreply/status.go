package autoreply

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hazyhaar/replyd/shield"
)

// Handler returns the status and control API:
//
//	GET  /healthz
//	GET  /status
//	GET  /decisions?limit=N
//	POST /control/{pause|resume|dry-run|refresh|recheck}
//	GET  /metrics
//	     /mcp
//
// It is meant for a loopback or otherwise trusted listener.
func (b *Bot) Handler() http.Handler {
	r := chi.NewRouter()
	for _, mw := range shield.DefaultAPIStack(b.logger) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, b.Status())
	})

	r.Get("/decisions", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"decisions": b.Recent(queryInt(r, "limit", 50))})
	})

	rl := shield.NewRateLimiter(2, 5)
	r.With(rl.Middleware).Post("/control/{action}", func(w http.ResponseWriter, r *http.Request) {
		action := chi.URLParam(r, "action")
		res, err := b.control(action, r.URL.Query().Get("value"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		shield.GetLogger(r.Context()).Info("status: control action", "action", action)
		writeJSON(w, http.StatusOK, res)
	})

	r.Handle("/metrics", promhttp.HandlerFor(b.registry, promhttp.HandlerOpts{}))

	srv := mcp.NewServer(&mcp.Implementation{Name: "replyd", Version: "0.1.0"}, nil)
	b.RegisterMCP(srv)
	r.Handle("/mcp", mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return srv }, nil))

	return r
}

// ControlResult reports the bot controls after an action.
type ControlResult struct {
	Action string `json:"action"`
	Paused bool   `json:"paused"`
	DryRun bool   `json:"dry_run"`
}

// control applies a named control action. For dry-run, value "true" or
// "false" sets it and anything else toggles it.
func (b *Bot) control(action, value string) (ControlResult, error) {
	switch action {
	case "pause":
		b.Pause()
	case "resume":
		b.Resume()
	case "dry-run":
		if on, err := strconv.ParseBool(value); err == nil {
			b.SetDryRun(on)
		} else {
			b.ToggleDryRun()
		}
	case "refresh":
		b.ForceRefresh()
	case "recheck":
		b.Recheck()
	default:
		return ControlResult{}, &unknownActionError{action: action}
	}
	return ControlResult{Action: action, Paused: b.paused.Load(), DryRun: b.dryRun.Load()}, nil
}

type unknownActionError struct{ action string }

func (e *unknownActionError) Error() string {
	return "unknown control action " + strconv.Quote(e.action) + ": want pause, resume, dry-run, refresh or recheck"
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
