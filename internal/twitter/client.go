// Package twitter is a small X API v2 client covering what tweet deletion
// needs: delete, user timeline, the authenticated user and OAuth2 PKCE.
package twitter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"
)

const (
	defaultAPIBaseURL = "https://api.x.com"
	defaultAuthURL    = "https://x.com/i/oauth2/authorize"
	defaultTokenURL   = "https://api.x.com/2/oauth2/token"
	defaultTimeout    = 15 * time.Second
	defaultCapPeriod  = "Monthly"

	// PageSize is the largest page the timeline endpoint returns.
	PageSize = 100

	usageCappedType = "usage-capped"
)

// DefaultScopes are the scopes needed to read and delete a user's tweets.
var DefaultScopes = []string{"tweet.read", "tweet.write", "users.read", "offline.access"}

// Config holds client settings. Empty fields fall back to the public X endpoints.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	APIBaseURL   string
	AuthURL      string
	TokenURL     string
	Scopes       []string
	// CapPeriod is the usage-cap period that suspends all jobs, e.g. "Monthly".
	CapPeriod string
	Timeout   time.Duration
}

// Client talks to the X API.
type Client struct {
	baseURL    string
	capPeriod  string
	timeout    time.Duration
	httpClient *http.Client
	oauth      *oauth2.Config
}

// NewClient creates a client from cfg.
func NewClient(cfg Config) *Client {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = defaultAPIBaseURL
	}
	if cfg.AuthURL == "" {
		cfg.AuthURL = defaultAuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = defaultTokenURL
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = DefaultScopes
	}
	if cfg.CapPeriod == "" {
		cfg.CapPeriod = defaultCapPeriod
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	authStyle := oauth2.AuthStyleInParams
	if cfg.ClientSecret != "" {
		authStyle = oauth2.AuthStyleInHeader
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.APIBaseURL, "/"),
		capPeriod:  cfg.CapPeriod,
		timeout:    cfg.Timeout,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: authStyle,
			},
		},
	}
}

// Token is an OAuth2 token pair.
type Token struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
}

// User is the authenticated account.
type User struct {
	ID       string
	Username string
}

// Page is one page of a user timeline.
type Page struct {
	IDs        []string
	NextCursor string
}

// DeleteTweet deletes one tweet. A tweet that is already gone yields a
// NotFound failure.
func (c *Client) DeleteTweet(ctx context.Context, token, id string) error {
	body, err := c.do(ctx, http.MethodDelete, "/2/tweets/"+url.PathEscape(id), token, nil)
	if err != nil {
		return err
	}
	if !gjson.GetBytes(body, "data.deleted").Bool() {
		return &Failure{Kind: NotFound, Status: http.StatusOK, Message: "tweet " + id + " was not deleted"}
	}
	return nil
}

// UserTimeline returns one page of tweet IDs authored by userID. An empty
// cursor starts from the newest tweet.
func (c *Client) UserTimeline(ctx context.Context, token, userID, cursor string) (Page, error) {
	q := url.Values{}
	q.Set("max_results", strconv.Itoa(PageSize))
	q.Set("tweet.fields", "id,created_at")
	if cursor != "" {
		q.Set("pagination_token", cursor)
	}

	body, err := c.do(ctx, http.MethodGet, "/2/users/"+url.PathEscape(userID)+"/tweets", token, q)
	if err != nil {
		return Page{}, err
	}

	var page Page
	gjson.GetBytes(body, "data.#.id").ForEach(func(_, v gjson.Result) bool {
		page.IDs = append(page.IDs, v.String())
		return true
	})
	page.NextCursor = gjson.GetBytes(body, "meta.next_token").String()
	return page, nil
}

// Me returns the user the token belongs to.
func (c *Client) Me(ctx context.Context, token string) (User, error) {
	body, err := c.do(ctx, http.MethodGet, "/2/users/me", token, nil)
	if err != nil {
		return User{}, err
	}
	u := User{
		ID:       gjson.GetBytes(body, "data.id").String(),
		Username: gjson.GetBytes(body, "data.username").String(),
	}
	if u.ID == "" {
		return User{}, &Failure{Kind: Transient, Status: http.StatusOK, Message: "response has no user id"}
	}
	return u, nil
}

// AuthCodeURL builds the authorize URL with an S256 challenge for verifier.
func (c *Client) AuthCodeURL(state, verifier string) string {
	return c.oauth.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))
}

// Exchange trades an authorization code for tokens.
func (c *Client) Exchange(ctx context.Context, code, verifier string) (Token, error) {
	ctx, cancel := context.WithTimeout(c.oauthContext(ctx), c.timeout)
	defer cancel()

	tok, err := c.oauth.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return Token{}, tokenFailure(err)
	}
	return fromOAuth(tok), nil
}

// RefreshToken exchanges a refresh token for a new token pair.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (Token, error) {
	if refreshToken == "" {
		return Token{}, &Failure{Kind: Auth, Message: "no refresh token"}
	}
	ctx, cancel := context.WithTimeout(c.oauthContext(ctx), c.timeout)
	defer cancel()

	// An expired token forces the source to refresh.
	src := c.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken, Expiry: time.Unix(1, 0)})
	tok, err := src.Token()
	if err != nil {
		return Token{}, tokenFailure(err)
	}
	out := fromOAuth(tok)
	if out.RefreshToken == "" {
		out.RefreshToken = refreshToken
	}
	return out, nil
}

func (c *Client) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

func fromOAuth(tok *oauth2.Token) Token {
	t := Token{AccessToken: tok.AccessToken, RefreshToken: tok.RefreshToken}
	if !tok.Expiry.IsZero() {
		t.ExpiresIn = int64(time.Until(tok.Expiry).Round(time.Second).Seconds())
	}
	return t
}

func tokenFailure(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		kind := Transient
		switch re.Response.StatusCode {
		case http.StatusBadRequest, http.StatusUnauthorized:
			kind = Auth
		case http.StatusTooManyRequests:
			kind = RateLimited
		}
		msg := re.ErrorDescription
		if msg == "" {
			msg = re.ErrorCode
		}
		return &Failure{Kind: kind, Status: re.Response.StatusCode, Message: msg, err: err}
	}
	return &Failure{Kind: Transient, err: err}
}

func (c *Client) do(ctx context.Context, method, path, token string, query url.Values) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &Failure{Kind: Transient, Message: "executing request", err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Failure{Kind: Transient, Status: resp.StatusCode, Message: "reading response", err: err}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, nil
	}
	return nil, c.classify(resp, body)
}

// classify maps an error response onto a Failure.
func (c *Client) classify(resp *http.Response, body []byte) *Failure {
	f := &Failure{Kind: Transient, Status: resp.StatusCode, Message: errorMessage(body)}

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		f.Kind = Auth
	case http.StatusNotFound:
		f.Kind = NotFound
	case http.StatusTooManyRequests:
		problem := gjson.GetBytes(body, "type").String()
		period := gjson.GetBytes(body, "period").String()
		if strings.Contains(problem, usageCappedType) && strings.EqualFold(period, c.capPeriod) {
			f.Kind = CapExceeded
			f.Period = period
			f.Scope = gjson.GetBytes(body, "scope").String()
			return f
		}
		f.Kind = RateLimited
		f.ResetAt = resetTime(resp.Header.Get("x-rate-limit-reset"))
	}
	return f
}

// resetTime parses the epoch-seconds reset header, falling back to a full
// short window from now.
func resetTime(header string) time.Time {
	if sec, err := strconv.ParseInt(strings.TrimSpace(header), 10, 64); err == nil && sec > 0 {
		return time.Unix(sec, 0).UTC()
	}
	return time.Now().Add(15 * time.Minute).UTC().Truncate(time.Second)
}

func errorMessage(body []byte) string {
	for _, path := range []string{"detail", "title", "errors.0.message", "error_description"} {
		if v := gjson.GetBytes(body, path); v.Exists() && v.String() != "" {
			return v.String()
		}
	}
	return strings.TrimSpace(string(body))
}
