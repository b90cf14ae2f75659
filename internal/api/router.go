package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kalambet/tweetsweep/internal/jobs"
	"github.com/kalambet/tweetsweep/internal/processor"
	"github.com/kalambet/tweetsweep/internal/session"
	"github.com/kalambet/tweetsweep/internal/twitter"
)

const (
	// DefaultTimelineCap is how far back /delete-recent reaches.
	DefaultTimelineCap = 3200
	// DefaultMaxUploadBytes bounds archive uploads.
	DefaultMaxUploadBytes = 512 << 20
)

// Twitter is the slice of the X API client the HTTP surface uses.
type Twitter interface {
	AuthCodeURL(state, verifier string) string
	Exchange(ctx context.Context, code, verifier string) (twitter.Token, error)
	Me(ctx context.Context, token string) (twitter.User, error)
	UserTimeline(ctx context.Context, token, userID, cursor string) (twitter.Page, error)
}

// Ticker runs a single processor tick on demand. *processor.Worker
// implements it.
type Ticker interface {
	RunOnce(ctx context.Context) (processor.Report, error)
}

// Deps holds dependencies for the HTTP handler.
type Deps struct {
	Jobs      *jobs.Repository
	Sessions  *session.Store
	Twitter   Twitter
	Worker    Ticker
	Estimator jobs.Estimator

	// Token guards the /admin routes. An empty token disables them.
	Token string

	TimelineCap    int
	PageInterval   time.Duration
	MaxUploadBytes int64
	SecureCookies  bool

	Now func() time.Time
}

func (d *Deps) defaults() {
	if d.TimelineCap <= 0 {
		d.TimelineCap = DefaultTimelineCap
	}
	if d.MaxUploadBytes <= 0 {
		d.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if d.Now == nil {
		d.Now = time.Now
	}
}

// NewHandler builds the public and admin routes.
func NewHandler(deps Deps) http.Handler {
	deps.defaults()

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/auth", handleAuth(deps))
	r.Get("/callback", handleCallback(deps))
	r.Post("/upload", handleUpload(deps))
	r.Post("/delete-recent", handleDeleteRecent(deps))
	r.Get("/status/{jobId}", handleStatus(deps))

	r.Route("/admin", func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))
		r.Get("/jobs", handleListJobs(deps))
		r.Get("/jobs/{jobId}", handleGetJob(deps))
		r.Delete("/jobs/{jobId}", handleDeleteJob(deps))
		r.Post("/tick", handleTick(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("writing response", "error", err)
	}
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
