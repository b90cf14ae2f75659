package twitter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

func newTestClient(srv *httptest.Server) *Client {
	return NewClient(Config{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURL:  "http://localhost/callback",
		APIBaseURL:   srv.URL,
		AuthURL:      srv.URL + "/authorize",
		TokenURL:     srv.URL + "/2/oauth2/token",
	})
}

func TestDeleteTweet_Success(t *testing.T) {
	var gotPath, gotAuth, gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotAuth, gotMethod = r.URL.Path, r.Header.Get("Authorization"), r.Method
		fmt.Fprint(w, `{"data":{"deleted":true}}`)
	}))
	defer srv.Close()

	if err := newTestClient(srv).DeleteTweet(context.Background(), "tok", "123"); err != nil {
		t.Fatalf("DeleteTweet: %v", err)
	}
	if gotMethod != http.MethodDelete || gotPath != "/2/tweets/123" {
		t.Errorf("request = %s %s", gotMethod, gotPath)
	}
	if gotAuth != "Bearer tok" {
		t.Errorf("Authorization = %q", gotAuth)
	}
}

func TestDeleteTweet_NotDeleted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":{"deleted":false}}`)
	}))
	defer srv.Close()

	err := newTestClient(srv).DeleteTweet(context.Background(), "tok", "123")
	if f := AsFailure(err); f == nil || f.Kind != NotFound {
		t.Fatalf("err = %v, want NotFound", err)
	}
}

func TestClassify(t *testing.T) {
	reset := time.Now().Add(7 * time.Minute).Unix()

	tests := []struct {
		name   string
		status int
		header map[string]string
		body   string
		want   Kind
		check  func(t *testing.T, f *Failure)
	}{
		{
			name:   "unauthorized",
			status: http.StatusUnauthorized,
			body:   `{"title":"Unauthorized","detail":"Unauthorized","status":401}`,
			want:   Auth,
		},
		{
			name:   "not found",
			status: http.StatusNotFound,
			body:   `{"errors":[{"message":"No status found with that ID."}]}`,
			want:   NotFound,
			check: func(t *testing.T, f *Failure) {
				if f.Message != "No status found with that ID." {
					t.Errorf("message = %q", f.Message)
				}
			},
		},
		{
			name:   "rate limited",
			status: http.StatusTooManyRequests,
			header: map[string]string{"x-rate-limit-reset": fmt.Sprint(reset)},
			body:   `{"title":"Too Many Requests","detail":"Too Many Requests","type":"about:blank","status":429}`,
			want:   RateLimited,
			check: func(t *testing.T, f *Failure) {
				if f.ResetAt.Unix() != reset {
					t.Errorf("ResetAt = %d, want %d", f.ResetAt.Unix(), reset)
				}
			},
		},
		{
			name:   "rate limited without header",
			status: http.StatusTooManyRequests,
			body:   `{}`,
			want:   RateLimited,
			check: func(t *testing.T, f *Failure) {
				if !f.ResetAt.After(time.Now()) {
					t.Errorf("ResetAt = %v, want in the future", f.ResetAt)
				}
			},
		},
		{
			name:   "monthly cap",
			status: http.StatusTooManyRequests,
			body:   `{"title":"UsageCapExceeded","detail":"Usage cap exceeded: Monthly product cap","type":"https://api.twitter.com/2/problems/usage-capped","period":"Monthly","scope":"Product"}`,
			want:   CapExceeded,
			check: func(t *testing.T, f *Failure) {
				if f.Scope != "Product" || f.Period != "Monthly" {
					t.Errorf("scope/period = %s/%s", f.Scope, f.Period)
				}
			},
		},
		{
			name:   "daily cap is a plain rate limit",
			status: http.StatusTooManyRequests,
			body:   `{"type":"https://api.twitter.com/2/problems/usage-capped","period":"Daily","scope":"Account"}`,
			want:   RateLimited,
		},
		{
			name:   "server error",
			status: http.StatusServiceUnavailable,
			body:   `upstream down`,
			want:   Transient,
			check: func(t *testing.T, f *Failure) {
				if f.Message != "upstream down" || f.Status != 503 {
					t.Errorf("failure = %+v", f)
				}
			},
		},
		{
			name:   "forbidden",
			status: http.StatusForbidden,
			body:   `{"detail":"You are not allowed to delete this Tweet."}`,
			want:   Transient,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				for k, v := range tt.header {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			err := newTestClient(srv).DeleteTweet(context.Background(), "tok", "1")
			var f *Failure
			if !errors.As(err, &f) {
				t.Fatalf("err = %v, want *Failure", err)
			}
			if f.Kind != tt.want {
				t.Fatalf("kind = %s, want %s", f.Kind, tt.want)
			}
			if tt.check != nil {
				tt.check(t, f)
			}
		})
	}
}

func TestClassify_DailyCapPeriod(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"type":"https://api.twitter.com/2/problems/usage-capped","period":"Daily"}`)
	}))
	defer srv.Close()

	c := NewClient(Config{APIBaseURL: srv.URL, CapPeriod: "Daily"})
	err := c.DeleteTweet(context.Background(), "tok", "1")
	if f := AsFailure(err); f.Kind != CapExceeded {
		t.Fatalf("kind = %s, want cap_exceeded", f.Kind)
	}
}

func TestNetworkErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	c := newTestClient(srv)
	srv.Close()

	err := c.DeleteTweet(context.Background(), "tok", "1")
	f := AsFailure(err)
	if f == nil || f.Kind != Transient || f.Status != 0 {
		t.Fatalf("failure = %+v, want transient without status", f)
	}
}

func TestUserTimeline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/2/users/42/tweets" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.URL.Query().Get("max_results") != "100" {
			t.Errorf("max_results = %s", r.URL.Query().Get("max_results"))
		}
		switch r.URL.Query().Get("pagination_token") {
		case "":
			fmt.Fprint(w, `{"data":[{"id":"1"},{"id":"2"}],"meta":{"next_token":"p2"}}`)
		case "p2":
			fmt.Fprint(w, `{"data":[{"id":"3"}],"meta":{}}`)
		}
	}))
	defer srv.Close()

	c := newTestClient(srv)
	page, err := c.UserTimeline(context.Background(), "tok", "42", "")
	if err != nil {
		t.Fatalf("UserTimeline: %v", err)
	}
	if len(page.IDs) != 2 || page.NextCursor != "p2" {
		t.Fatalf("page = %+v", page)
	}

	page, err = c.UserTimeline(context.Background(), "tok", "42", "p2")
	if err != nil {
		t.Fatalf("UserTimeline: %v", err)
	}
	if len(page.IDs) != 1 || page.IDs[0] != "3" || page.NextCursor != "" {
		t.Fatalf("page = %+v", page)
	}
}

func TestMe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":{"id":"42","name":"Jo","username":"jo"}}`)
	}))
	defer srv.Close()

	u, err := newTestClient(srv).Me(context.Background(), "tok")
	if err != nil {
		t.Fatalf("Me: %v", err)
	}
	if u.ID != "42" || u.Username != "jo" {
		t.Errorf("user = %+v", u)
	}
}

func TestRefreshToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/2/oauth2/token" {
			t.Errorf("path = %s", r.URL.Path)
		}
		r.ParseForm()
		if r.PostForm.Get("grant_type") != "refresh_token" || r.PostForm.Get("refresh_token") != "old-refresh" {
			t.Errorf("form = %v", r.PostForm)
		}
		if user, pass, ok := r.BasicAuth(); !ok || user != "client" || pass != "secret" {
			t.Errorf("basic auth = %q/%q", user, pass)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"new-access","refresh_token":"new-refresh","token_type":"bearer","expires_in":7200}`)
	}))
	defer srv.Close()

	tok, err := newTestClient(srv).RefreshToken(context.Background(), "old-refresh")
	if err != nil {
		t.Fatalf("RefreshToken: %v", err)
	}
	if tok.AccessToken != "new-access" || tok.RefreshToken != "new-refresh" {
		t.Errorf("token = %+v", tok)
	}
	if tok.ExpiresIn < 7190 || tok.ExpiresIn > 7200 {
		t.Errorf("ExpiresIn = %d", tok.ExpiresIn)
	}
}

func TestRefreshToken_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"invalid_request","error_description":"Value passed for the token was invalid."}`)
	}))
	defer srv.Close()

	_, err := newTestClient(srv).RefreshToken(context.Background(), "stale")
	f := AsFailure(err)
	if f.Kind != Auth {
		t.Fatalf("kind = %s, want auth", f.Kind)
	}
}

func TestRefreshToken_Empty(t *testing.T) {
	c := NewClient(Config{})
	_, err := c.RefreshToken(context.Background(), "")
	if f := AsFailure(err); f.Kind != Auth {
		t.Fatalf("kind = %s, want auth", f.Kind)
	}
}

func TestExchange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if r.PostForm.Get("code") != "the-code" || r.PostForm.Get("code_verifier") != "the-verifier" {
			t.Errorf("form = %v", r.PostForm)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"a","refresh_token":"r","token_type":"bearer","expires_in":60}`)
	}))
	defer srv.Close()

	tok, err := newTestClient(srv).Exchange(context.Background(), "the-code", "the-verifier")
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	if tok.AccessToken != "a" || tok.RefreshToken != "r" {
		t.Errorf("token = %+v", tok)
	}
}

func TestAuthCodeURL(t *testing.T) {
	c := NewClient(Config{ClientID: "client", RedirectURL: "http://localhost/callback", AuthURL: "https://example.com/authorize"})

	raw := c.AuthCodeURL("sess_state", "verifier")
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	q := u.Query()
	if q.Get("state") != "sess_state" || q.Get("client_id") != "client" {
		t.Errorf("query = %v", q)
	}
	if q.Get("code_challenge_method") != "S256" || q.Get("code_challenge") == "" {
		t.Errorf("missing PKCE challenge: %v", q)
	}
	if !strings.Contains(q.Get("scope"), "tweet.write") {
		t.Errorf("scope = %q", q.Get("scope"))
	}
}

func TestAsFailure(t *testing.T) {
	if AsFailure(nil) != nil {
		t.Error("AsFailure(nil) != nil")
	}
	wrapped := fmt.Errorf("outer: %w", &Failure{Kind: RateLimited})
	if AsFailure(wrapped).Kind != RateLimited {
		t.Error("wrapped failure not found")
	}
	plain := errors.New("boom")
	f := AsFailure(plain)
	if f.Kind != Transient || !errors.Is(f, plain) {
		t.Errorf("plain error mapped to %+v", f)
	}
}
