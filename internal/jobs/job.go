package jobs

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// SessionPrefix marks store keys that hold OAuth session blobs rather than jobs.
const SessionPrefix = "session_"

// IsSessionKey reports whether key belongs to the session namespace.
func IsSessionKey(key string) bool {
	return strings.HasPrefix(key, SessionPrefix)
}

// Status is the persisted name of a job state.
type Status string

const (
	StatusNormal       Status = "normal"
	StatusRateLimited  Status = "rate_limited"
	StatusCapSuspended Status = "monthly_cap_suspended"
)

// State is one of Normal, RateLimited or CapSuspended.
type State interface {
	Status() Status
	isState()
}

// Normal jobs are ready for deletion work.
type Normal struct{}

// RateLimited jobs wait for ResetAt (plus a buffer) before they are retried.
type RateLimited struct {
	ResetAt time.Time
}

// CapSuspended jobs wait for the provider-wide usage cap to reset.
type CapSuspended struct {
	ResetAt time.Time
}

func (Normal) Status() Status       { return StatusNormal }
func (RateLimited) Status() Status  { return StatusRateLimited }
func (CapSuspended) Status() Status { return StatusCapSuspended }

func (Normal) isState()       {}
func (RateLimited) isState()  {}
func (CapSuspended) isState() {}

// Lease records which tick currently owns a job.
type Lease struct {
	Owner     string
	ExpiresAt time.Time
}

// Held reports whether the lease belongs to someone other than owner and has
// not expired at now.
func (l *Lease) Held(owner string, now time.Time) bool {
	return l != nil && l.Owner != owner && now.Before(l.ExpiresAt)
}

// Job is one user's deletion task.
type Job struct {
	ID           string
	State        State
	Token        string
	RefreshToken string
	TweetIDs     []string
	TweetCount   int
	CreatedAt    time.Time
	UserID       string
	Lease        *Lease

	// Revision is the store revision the job was read at. It is not part of
	// the encoded record.
	Revision uint64
}

// Status returns the persisted status name, treating a nil state as normal.
func (j *Job) Status() Status {
	if j.State == nil {
		return StatusNormal
	}
	return j.State.Status()
}

// Active reports whether the job still waits for work (normal or rate limited).
func (j *Job) Active() bool {
	s := j.Status()
	return s == StatusNormal || s == StatusRateLimited
}

// NeedsRefill reports whether the tweet list must be fetched again before
// deletion can continue.
func (j *Job) NeedsRefill() bool {
	return j.UserID != "" && len(j.TweetIDs) == 0
}

// Clone returns a deep copy of j.
func (j *Job) Clone() *Job {
	c := *j
	c.TweetIDs = append([]string(nil), j.TweetIDs...)
	if j.Lease != nil {
		l := *j.Lease
		c.Lease = &l
	}
	return &c
}

type leaseRecord struct {
	Owner     string `json:"owner"`
	ExpiresAt int64  `json:"expiresAt"`
}

// record is the flat wire shape of a job.
type record struct {
	JobID           string       `json:"jobId"`
	Status          Status       `json:"status,omitempty"`
	Token           string       `json:"token"`
	RefreshToken    string       `json:"refreshToken,omitempty"`
	TweetIDs        []string     `json:"tweetIds"`
	TweetCount      int          `json:"tweetCount"`
	CreatedAt       int64        `json:"createdAt"`
	RateLimitReset  *int64       `json:"rateLimitReset,omitempty"`
	MonthlyCapReset *int64       `json:"monthlyCapReset,omitempty"`
	UserID          string       `json:"userId,omitempty"`
	Lease           *leaseRecord `json:"lease,omitempty"`
}

// Encode serializes j into its stored form.
func Encode(j *Job) ([]byte, error) {
	rec := record{
		JobID:        j.ID,
		Status:       j.Status(),
		Token:        j.Token,
		RefreshToken: j.RefreshToken,
		TweetIDs:     j.TweetIDs,
		TweetCount:   j.TweetCount,
		CreatedAt:    j.CreatedAt.Unix(),
		UserID:       j.UserID,
	}
	if rec.TweetIDs == nil {
		rec.TweetIDs = []string{}
	}
	switch s := j.State.(type) {
	case RateLimited:
		rec.RateLimitReset = epoch(s.ResetAt)
	case CapSuspended:
		rec.MonthlyCapReset = epoch(s.ResetAt)
	}
	if j.Lease != nil {
		rec.Lease = &leaseRecord{Owner: j.Lease.Owner, ExpiresAt: j.Lease.ExpiresAt.Unix()}
	}
	return json.Marshal(rec)
}

// Decode parses a stored record. key is used as the job ID when the record
// does not carry one. A missing reset decodes as the zero time.
func Decode(key string, data []byte) (*Job, error) {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decoding job %s: %w", key, err)
	}

	j := &Job{
		ID:           rec.JobID,
		Token:        rec.Token,
		RefreshToken: rec.RefreshToken,
		TweetIDs:     rec.TweetIDs,
		TweetCount:   rec.TweetCount,
		CreatedAt:    time.Unix(rec.CreatedAt, 0).UTC(),
		UserID:       rec.UserID,
	}
	if j.ID == "" {
		j.ID = key
	}

	switch rec.Status {
	case "", StatusNormal:
		j.State = Normal{}
	case StatusRateLimited:
		j.State = RateLimited{ResetAt: fromEpoch(rec.RateLimitReset)}
	case StatusCapSuspended:
		j.State = CapSuspended{ResetAt: fromEpoch(rec.MonthlyCapReset)}
	default:
		return nil, fmt.Errorf("decoding job %s: unknown status %q", key, rec.Status)
	}

	if rec.Lease != nil {
		j.Lease = &Lease{Owner: rec.Lease.Owner, ExpiresAt: time.Unix(rec.Lease.ExpiresAt, 0).UTC()}
	}
	return j, nil
}

func epoch(t time.Time) *int64 {
	v := t.Unix()
	if t.IsZero() {
		v = 0
	}
	return &v
}

func fromEpoch(v *int64) time.Time {
	if v == nil || *v == 0 {
		return time.Time{}
	}
	return time.Unix(*v, 0).UTC()
}
