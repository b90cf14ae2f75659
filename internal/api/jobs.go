package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kalambet/tweetsweep/internal/archive"
	"github.com/kalambet/tweetsweep/internal/jobs"
	"github.com/kalambet/tweetsweep/internal/storage"
	"github.com/kalambet/tweetsweep/internal/twitter"
)

const notFoundMessage = "job not found. maybe completed?"

func handleUpload(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, deps.MaxUploadBytes)
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid multipart form: %v", err)
			return
		}
		defer r.MultipartForm.RemoveAll()

		token := r.FormValue("token")
		if token == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "token is required")
			return
		}
		file, header, err := r.FormFile("fileUploaded")
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "fileUploaded is required")
			return
		}
		defer file.Close()

		ids, err := archive.TweetIDs(file, header.Size)
		if errors.Is(err, archive.ErrNoTweetsFile) {
			httpError(w, http.StatusNotFound, "not_found_error", "%v", err)
			return
		}
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid archive: %v", err)
			return
		}
		if len(ids) == 0 {
			httpError(w, http.StatusNotFound, "not_found_error", "archive contains no tweets")
			return
		}

		j := &jobs.Job{
			ID:           uuid.NewString(),
			State:        jobs.Normal{},
			Token:        token,
			RefreshToken: r.FormValue("refresh_token"),
			TweetIDs:     ids,
			TweetCount:   len(ids),
			CreatedAt:    deps.Now(),
		}
		if err := deps.Jobs.Create(r.Context(), j); err != nil {
			slog.Error("creating job", "error", err)
			httpError(w, http.StatusInternalServerError, "server_error", "could not create the job")
			return
		}

		slog.Info("job created from archive", "job_id", j.ID, "tweets", len(ids))
		http.Redirect(w, r, "/status/"+j.ID, http.StatusSeeOther)
	}
}

func handleDeleteRecent(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.FormValue("token")
		userID := r.FormValue("user_id")
		if token == "" || userID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "token and user_id are required")
			return
		}

		j := &jobs.Job{
			ID:           uuid.NewString(),
			State:        jobs.Normal{},
			Token:        token,
			RefreshToken: r.FormValue("refresh_token"),
			CreatedAt:    deps.Now(),
		}

		ids, err := twitter.CollectTimeline(r.Context(), deps.Twitter, token, userID, deps.TimelineCap, deps.PageInterval)
		if err != nil {
			f := twitter.AsFailure(err)
			switch f.Kind {
			case twitter.RateLimited, twitter.CapExceeded:
				// The processor fetches the timeline once the window opens.
				reset := f.ResetAt
				if reset.IsZero() {
					reset = deps.Now().Add(15 * time.Minute)
				}
				j.State = jobs.RateLimited{ResetAt: reset}
				j.UserID = userID
				ids = nil
			case twitter.Auth:
				httpError(w, http.StatusUnauthorized, "authentication_error", "token rejected by X")
				return
			default:
				slog.Warn("fetching timeline failed", "user_id", userID, "error", err)
				httpError(w, http.StatusBadGateway, "upstream_error", "could not fetch tweets or create job")
				return
			}
		} else if len(ids) == 0 {
			httpError(w, http.StatusNotFound, "not_found_error", "no tweets found for user %s", userID)
			return
		}

		j.TweetIDs = ids
		j.TweetCount = len(ids)
		if err := deps.Jobs.Create(r.Context(), j); err != nil {
			slog.Error("creating job", "error", err)
			httpError(w, http.StatusInternalServerError, "server_error", "could not fetch tweets or create job")
			return
		}

		slog.Info("job created from timeline", "job_id", j.ID, "tweets", len(ids), "status", j.Status())
		http.Redirect(w, r, "/status/"+j.ID, http.StatusSeeOther)
	}
}

func handleStatus(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "jobId")
		j, err := deps.Jobs.Get(r.Context(), id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found_error", notFoundMessage)
			return
		}
		if err != nil {
			slog.Error("loading job", "job_id", id, "error", err)
			httpError(w, http.StatusInternalServerError, "server_error", "could not get the job")
			return
		}

		all, err := deps.Jobs.List(r.Context())
		if err != nil {
			slog.Error("listing jobs", "error", err)
			httpError(w, http.StatusInternalServerError, "server_error", "could not get the job")
			return
		}
		writeJSON(w, http.StatusOK, jobs.Project(j, all, deps.Now(), deps.Estimator))
	}
}
