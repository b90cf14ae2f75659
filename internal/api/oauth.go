package api

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/oauth2"

	"github.com/kalambet/tweetsweep/internal/session"
)

const sessionCookie = "sessionId"

type callbackResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
	ExpiresIn    int64  `json:"expiresIn,omitempty"`
	UserID       string `json:"userId"`
	ScreenName   string `json:"screenName"`
}

func handleAuth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := session.NewID()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "server_error", "failed to initiate authentication")
			return
		}
		nonce := make([]byte, 16)
		if _, err := rand.Read(nonce); err != nil {
			httpError(w, http.StatusInternalServerError, "server_error", "failed to initiate authentication")
			return
		}

		data := session.Data{
			CodeVerifier: oauth2.GenerateVerifier(),
			State:        hex.EncodeToString(nonce),
			Timestamp:    deps.Now().UnixMilli(),
		}
		if err := deps.Sessions.Save(r.Context(), id, data); err != nil {
			slog.Error("saving session", "error", err)
			httpError(w, http.StatusInternalServerError, "server_error", "failed to initiate authentication")
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     sessionCookie,
			Value:    id,
			Path:     "/",
			MaxAge:   int(session.DefaultTTL.Seconds()),
			HttpOnly: true,
			Secure:   deps.SecureCookies,
			SameSite: http.SameSiteLaxMode,
		})
		http.Redirect(w, r, deps.Twitter.AuthCodeURL(id+"_"+data.State, data.CodeVerifier), http.StatusFound)
	}
}

func handleCallback(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if e := q.Get("error"); e != "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "OAuth error: %s", e)
			return
		}
		code := q.Get("code")
		if code == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "no authorization code received")
			return
		}

		state := q.Get("state")
		id, expected, ok := strings.Cut(state, "_")
		if !ok {
			id, expected = "", state
		}

		id, data, err := lookupSession(r, deps.Sessions, id)
		if errors.Is(err, session.ErrNotFound) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "no session found, restart the authentication process")
			return
		}
		if err != nil {
			slog.Error("loading session", "error", err)
			httpError(w, http.StatusInternalServerError, "server_error", "failed to complete authentication")
			return
		}

		if subtle.ConstantTimeCompare([]byte(expected), []byte(data.State)) != 1 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid state parameter")
			return
		}
		if data.AccessToken != "" {
			writeJSON(w, http.StatusOK, callbackFrom(data))
			return
		}
		if data.UsedCode == code {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "authorization code already used, restart the authentication process")
			return
		}

		data.UsedCode = code
		if err := deps.Sessions.Save(r.Context(), id, data); err != nil {
			slog.Error("saving session", "error", err)
			httpError(w, http.StatusInternalServerError, "server_error", "failed to complete authentication")
			return
		}

		tok, err := deps.Twitter.Exchange(r.Context(), code, data.CodeVerifier)
		if err != nil {
			slog.Warn("token exchange failed", "error", err)
			httpError(w, http.StatusBadGateway, "upstream_error", "failed to complete authentication: %v", err)
			return
		}
		user, err := deps.Twitter.Me(r.Context(), tok.AccessToken)
		if err != nil {
			slog.Warn("fetching user failed", "error", err)
			httpError(w, http.StatusBadGateway, "upstream_error", "failed to complete authentication: %v", err)
			return
		}

		data.AccessToken = tok.AccessToken
		data.RefreshToken = tok.RefreshToken
		data.ExpiresIn = tok.ExpiresIn
		data.UserID = user.ID
		data.ScreenName = user.Username
		if err := deps.Sessions.Save(r.Context(), id, data); err != nil {
			slog.Error("saving session", "error", err)
			httpError(w, http.StatusInternalServerError, "server_error", "failed to complete authentication")
			return
		}

		slog.Info("user authenticated", "user_id", user.ID)
		writeJSON(w, http.StatusOK, callbackFrom(data))
	}
}

// lookupSession finds the session named in the state parameter, falling back
// to the session cookie. It returns the ID the session was found under.
func lookupSession(r *http.Request, store *session.Store, id string) (string, session.Data, error) {
	if id != "" {
		data, err := store.Get(r.Context(), id)
		if !errors.Is(err, session.ErrNotFound) {
			return id, data, err
		}
	}
	if c := cookieSession(r); c != "" && c != id {
		data, err := store.Get(r.Context(), c)
		return c, data, err
	}
	return "", session.Data{}, session.ErrNotFound
}

func cookieSession(r *http.Request) string {
	c, err := r.Cookie(sessionCookie)
	if err != nil {
		return ""
	}
	return c.Value
}

func callbackFrom(d session.Data) callbackResponse {
	return callbackResponse{
		AccessToken:  d.AccessToken,
		RefreshToken: d.RefreshToken,
		ExpiresIn:    d.ExpiresIn,
		UserID:       d.UserID,
		ScreenName:   d.ScreenName,
	}
}
