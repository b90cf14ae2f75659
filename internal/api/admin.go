package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/tweetsweep/internal/jobs"
	"github.com/kalambet/tweetsweep/internal/processor"
	"github.com/kalambet/tweetsweep/internal/storage"
)

// JobSummary is the admin view of a job. Tokens are never exposed.
type JobSummary struct {
	ID              string      `json:"jobId"`
	Status          jobs.Status `json:"status"`
	TweetCount      int         `json:"tweetCount"`
	RemainingCount  int         `json:"remainingCount"`
	CreatedAt       time.Time   `json:"createdAt"`
	UserID          string      `json:"userId,omitempty"`
	RateLimitReset  *time.Time  `json:"rateLimitReset,omitempty"`
	MonthlyCapReset *time.Time  `json:"monthlyCapReset,omitempty"`
	LeaseOwner      string      `json:"leaseOwner,omitempty"`
	HasRefreshToken bool        `json:"hasRefreshToken"`
}

// Summarize builds the admin view of j.
func Summarize(j *jobs.Job) JobSummary {
	s := JobSummary{
		ID:              j.ID,
		Status:          j.Status(),
		TweetCount:      j.TweetCount,
		RemainingCount:  len(j.TweetIDs),
		CreatedAt:       j.CreatedAt.UTC(),
		UserID:          j.UserID,
		HasRefreshToken: j.RefreshToken != "",
	}
	switch st := j.State.(type) {
	case jobs.RateLimited:
		t := st.ResetAt.UTC()
		s.RateLimitReset = &t
	case jobs.CapSuspended:
		t := st.ResetAt.UTC()
		s.MonthlyCapReset = &t
	}
	if j.Lease != nil {
		s.LeaseOwner = j.Lease.Owner
	}
	return s
}

func handleListJobs(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		all, err := deps.Jobs.List(r.Context())
		if err != nil {
			slog.Error("listing jobs", "error", err)
			httpError(w, http.StatusInternalServerError, "server_error", "listing jobs: %v", err)
			return
		}
		jobs.SortByCreated(all)

		status := jobs.Status(r.URL.Query().Get("status"))
		out := make([]JobSummary, 0, len(all))
		for _, j := range all {
			if status != "" && j.Status() != status {
				continue
			}
			out = append(out, Summarize(j))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleGetJob(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "jobId")
		j, err := deps.Jobs.Get(r.Context(), id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found_error", "job %q not found", id)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "server_error", "loading job: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, Summarize(j))
	}
}

func handleDeleteJob(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "jobId")
		err := deps.Jobs.Remove(r.Context(), id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found_error", "job %q not found", id)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "server_error", "deleting job: %v", err)
			return
		}
		slog.Info("job removed by admin", "job_id", id)
		w.WriteHeader(http.StatusNoContent)
	}
}

type tickResponse struct {
	JobID   string           `json:"jobId,omitempty"`
	Action  processor.Action `json:"action"`
	Deleted int              `json:"deleted"`
	Skipped int              `json:"skipped"`
	Failure string           `json:"failure,omitempty"`
}

func handleTick(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Worker == nil {
			httpError(w, http.StatusServiceUnavailable, "server_error", "processor is not running")
			return
		}
		rep, err := deps.Worker.RunOnce(r.Context())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "server_error", "tick failed: %v", err)
			return
		}
		resp := tickResponse{
			JobID:   rep.JobID,
			Action:  rep.Action,
			Deleted: rep.Deleted,
			Skipped: rep.Skipped,
		}
		if rep.Failure != nil {
			resp.Failure = rep.Failure.Kind.String()
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
