// Package session keeps short-lived OAuth state next to the jobs, under the
// reserved session key prefix.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kalambet/tweetsweep/internal/jobs"
	"github.com/kalambet/tweetsweep/internal/storage"
)

// DefaultTTL is how long a session stays readable.
const DefaultTTL = time.Hour

// ErrNotFound is returned for missing and expired sessions.
var ErrNotFound = errors.New("session not found")

// KV is the subset of the record store sessions need.
type KV interface {
	Scan(ctx context.Context) ([]storage.Entry, error)
	Get(ctx context.Context, key string) (storage.Entry, error)
	Put(ctx context.Context, key string, value []byte) (uint64, error)
	Delete(ctx context.Context, key string) error
	DeleteIf(ctx context.Context, key string, revision uint64) error
}

// Data is the PKCE flow state kept between /auth and /callback.
type Data struct {
	CodeVerifier string `json:"codeVerifier"`
	State        string `json:"state"`
	Timestamp    int64  `json:"timestamp"`

	AccessToken  string `json:"accessToken,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty"`
	ExpiresIn    int64  `json:"expiresIn,omitempty"`
	UserID       string `json:"userId,omitempty"`
	ScreenName   string `json:"screenName,omitempty"`
	UsedCode     string `json:"usedCode,omitempty"`
}

type blob struct {
	Data      Data  `json:"data"`
	ExpiresAt int64 `json:"expiresAt"`
}

// Store reads and writes sessions.
type Store struct {
	kv  KV
	ttl time.Duration
	now func() time.Time
}

// NewStore creates a Store. A ttl <= 0 uses DefaultTTL.
func NewStore(kv KV, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{kv: kv, ttl: ttl, now: time.Now}
}

// NewID returns a random 64 hex character session ID.
func NewID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating session id: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Key returns the store key for a session ID.
func Key(id string) string {
	return jobs.SessionPrefix + id
}

// Save stores d under id and restarts its TTL.
func (s *Store) Save(ctx context.Context, id string, d Data) error {
	data, err := json.Marshal(blob{Data: d, ExpiresAt: s.now().Add(s.ttl).Unix()})
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	if _, err := s.kv.Put(ctx, Key(id), data); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}

// Get returns the session stored under id. Expired sessions are deleted and
// reported as ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (Data, error) {
	e, err := s.kv.Get(ctx, Key(id))
	if errors.Is(err, storage.ErrNotFound) {
		return Data{}, ErrNotFound
	}
	if err != nil {
		return Data{}, fmt.Errorf("loading session: %w", err)
	}

	var b blob
	if err := json.Unmarshal(e.Value, &b); err != nil {
		return Data{}, fmt.Errorf("decoding session: %w", err)
	}
	if s.now().Unix() >= b.ExpiresAt {
		if err := s.kv.Delete(ctx, Key(id)); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return Data{}, fmt.Errorf("deleting expired session: %w", err)
		}
		return Data{}, ErrNotFound
	}
	return b.Data, nil
}

// Delete removes a session. Missing sessions are ignored.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.kv.Delete(ctx, Key(id)); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// Purge deletes every expired or unreadable session and returns how many it
// removed. A session saved again since the scan is left alone.
func (s *Store) Purge(ctx context.Context) (int, error) {
	entries, err := s.kv.Scan(ctx)
	if err != nil {
		return 0, fmt.Errorf("scanning sessions: %w", err)
	}

	now := s.now().Unix()
	purged := 0
	for _, e := range entries {
		if !jobs.IsSessionKey(e.Key) {
			continue
		}
		var b blob
		if err := json.Unmarshal(e.Value, &b); err == nil && now < b.ExpiresAt {
			continue
		}
		err := s.kv.DeleteIf(ctx, e.Key, e.Revision)
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrConflict) {
			continue
		}
		if err != nil {
			return purged, fmt.Errorf("purging session %s: %w", e.Key, err)
		}
		purged++
	}
	return purged, nil
}
