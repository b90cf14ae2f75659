// Package processor advances the deletion queue one job per tick.
package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kalambet/tweetsweep/internal/jobs"
	"github.com/kalambet/tweetsweep/internal/metrics"
	"github.com/kalambet/tweetsweep/internal/storage"
	"github.com/kalambet/tweetsweep/internal/twitter"
)

// Store is the job persistence the processor needs. *jobs.Repository
// implements it.
type Store interface {
	List(ctx context.Context) ([]*jobs.Job, error)
	Get(ctx context.Context, id string) (*jobs.Job, error)
	Save(ctx context.Context, j *jobs.Job) error
	Restore(ctx context.Context, j *jobs.Job) error
	Delete(ctx context.Context, j *jobs.Job) error
	Claim(ctx context.Context, j *jobs.Job, owner string, ttl time.Duration, now time.Time) error
}

// Remote is the X API surface used while processing.
type Remote interface {
	DeleteTweet(ctx context.Context, token, id string) error
	UserTimeline(ctx context.Context, token, userID, cursor string) (twitter.Page, error)
	RefreshToken(ctx context.Context, refreshToken string) (twitter.Token, error)
}

// Limiter gates delete calls. *ratelimit.Limiter implements it.
type Limiter interface {
	RecordCall()
	CanCall() bool
	TimeUntilNextSlot() time.Duration
	MaxBatchSize() int
}

// Config tunes a Processor.
type Config struct {
	// DeletePerRun caps the batch deleted in one tick.
	DeletePerRun int
	// ReactivationBuffer is added to a rate limit reset before the job is retried.
	ReactivationBuffer time.Duration
	// ResetPadding is added to the reset reported by the API.
	ResetPadding time.Duration
	// TimelineCap bounds how many IDs a refill collects.
	TimelineCap int
	// CallInterval spaces consecutive delete calls.
	CallInterval time.Duration
	// PageInterval spaces timeline page fetches.
	PageInterval time.Duration
	// LeaseTTL is how long a claim keeps other ticks away.
	LeaseTTL time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		DeletePerRun:       10,
		ReactivationBuffer: 30 * time.Second,
		ResetPadding:       60 * time.Second,
		TimelineCap:        10_000,
		CallInterval:       time.Second,
		PageInterval:       time.Second,
		LeaseTTL:           10 * time.Minute,
	}
}

// Action names what a tick did.
type Action string

const (
	ActionIdle         Action = "idle"
	ActionPaused       Action = "paused"
	ActionThrottled    Action = "throttled"
	ActionRefilled     Action = "refilled"
	ActionDeleted      Action = "deleted"
	ActionCompleted    Action = "completed"
	ActionDropped      Action = "dropped"
	ActionSuspended    Action = "suspended"
	ActionRateLimited  Action = "rate_limited"
	ActionReauthorized Action = "reauthorized"
)

// Report summarizes one tick.
type Report struct {
	JobID   string           `json:"jobId,omitempty"`
	Action  Action           `json:"action"`
	Deleted int              `json:"deleted"`
	Skipped int              `json:"skipped"`
	Failure *twitter.Failure `json:"-"`
}

// Processor runs ticks against a shared store.
type Processor struct {
	store   Store
	remote  Remote
	limiter Limiter
	cfg     Config
	owner   string
	logger  *slog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Processor. Each Processor claims jobs under its own owner ID.
func New(store Store, remote Remote, limiter Limiter, cfg Config) *Processor {
	return &Processor{
		store:   store,
		remote:  remote,
		limiter: limiter,
		cfg:     cfg,
		owner:   uuid.NewString(),
		logger:  slog.Default(),
		now:     time.Now,
		sleep:   sleepCtx,
	}
}

// Tick selects at most one job and advances it by one unit of work. Store
// errors abort the tick and are returned; remote failures are handled and
// reflected in the report.
func (p *Processor) Tick(ctx context.Context) (Report, error) {
	r, err := p.tick(ctx)
	if err == nil {
		metrics.ObserveTick(string(r.Action))
		metrics.ObserveDeletions("deleted", r.Deleted)
		metrics.ObserveDeletions("skipped", r.Skipped)
	}
	return r, err
}

func (p *Processor) tick(ctx context.Context) (Report, error) {
	now := p.now()

	all, err := p.store.List(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("listing jobs: %w", err)
	}
	observeQueue(all)

	paused, err := p.reactivate(ctx, all, now)
	if err != nil {
		return Report{}, err
	}
	if paused {
		return Report{Action: ActionPaused}, nil
	}

	jobs.SortByCreated(all)
	for _, j := range all {
		if !p.eligible(j, now) {
			continue
		}
		err := p.store.Claim(ctx, j, p.owner, p.cfg.LeaseTTL, now)
		if errors.Is(err, storage.ErrConflict) || errors.Is(err, storage.ErrNotFound) {
			p.logger.Debug("job claimed elsewhere", "job_id", j.ID)
			continue
		}
		if err != nil {
			return Report{JobID: j.ID}, fmt.Errorf("claiming job %s: %w", j.ID, err)
		}
		return p.process(ctx, j)
	}
	return Report{Action: ActionIdle}, nil
}

// reactivate moves cap-suspended jobs whose reset has passed back into the
// queue. It reports whether any job is still suspended.
func (p *Processor) reactivate(ctx context.Context, all []*jobs.Job, now time.Time) (bool, error) {
	paused := false
	for _, j := range all {
		s, ok := j.State.(jobs.CapSuspended)
		if !ok {
			continue
		}
		if now.Before(s.ResetAt) {
			paused = true
			continue
		}

		next := j.Clone()
		if next.NeedsRefill() {
			next.State = jobs.RateLimited{ResetAt: s.ResetAt}
		} else {
			next.State = jobs.Normal{}
		}
		next.Lease = nil

		err := p.store.Save(ctx, next)
		if errors.Is(err, storage.ErrConflict) || errors.Is(err, storage.ErrNotFound) {
			// Changed under us; look again next tick.
			paused = true
			continue
		}
		if err != nil {
			return false, fmt.Errorf("reactivating job %s: %w", j.ID, err)
		}
		p.logger.Info("job reactivated after usage cap reset", "job_id", j.ID, "status", next.Status())
		*j = *next
	}
	return paused, nil
}

func (p *Processor) eligible(j *jobs.Job, now time.Time) bool {
	if j.Lease.Held(p.owner, now) {
		return false
	}
	switch s := j.State.(type) {
	case jobs.Normal, nil:
		return true
	case jobs.RateLimited:
		return !now.Before(s.ResetAt.Add(p.cfg.ReactivationBuffer))
	default:
		return false
	}
}

func (p *Processor) process(ctx context.Context, j *jobs.Job) (Report, error) {
	if _, ok := j.State.(jobs.RateLimited); ok {
		if j.UserID != "" {
			return p.refill(ctx, j)
		}
		p.logger.Info("resuming rate limited job", "job_id", j.ID, "remaining", len(j.TweetIDs))
		j.State = jobs.Normal{}
	}
	return p.deleteBatch(ctx, j)
}

// refill rebuilds the job's ID list from the owner's timeline.
func (p *Processor) refill(ctx context.Context, j *jobs.Job) (Report, error) {
	report := Report{JobID: j.ID}

	ids, err := twitter.CollectTimeline(ctx, p.remote, j.Token, j.UserID, p.cfg.TimelineCap, p.cfg.PageInterval)
	if err != nil {
		if ctx.Err() != nil {
			return report, p.abandon(ctx, j)
		}
		return p.refillFailed(ctx, j, twitter.AsFailure(err))
	}

	if len(ids) == 0 {
		if err := p.store.Delete(ctx, j); err != nil {
			return report, fmt.Errorf("deleting empty job %s: %w", j.ID, err)
		}
		p.logger.Info("refill found no tweets, job finished", "job_id", j.ID)
		report.Action = ActionCompleted
		return report, nil
	}

	j.TweetIDs = ids
	j.TweetCount = len(ids)
	j.UserID = ""
	j.State = jobs.Normal{}
	j.Lease = nil
	if err := p.store.Save(ctx, j); err != nil {
		return report, fmt.Errorf("saving refilled job %s: %w", j.ID, err)
	}
	p.logger.Info("job refilled from timeline", "job_id", j.ID, "count", len(ids))
	report.Action = ActionRefilled
	return report, nil
}

func (p *Processor) refillFailed(ctx context.Context, j *jobs.Job, f *twitter.Failure) (Report, error) {
	metrics.ObserveFailure(f.Kind.String())
	report := Report{JobID: j.ID, Failure: f}

	switch f.Kind {
	case twitter.Auth:
		return p.reauthorize(ctx, j, false, report)

	case twitter.RateLimited:
		j.State = jobs.RateLimited{ResetAt: f.ResetAt.Add(p.cfg.ResetPadding)}
		if err := p.persist(ctx, j, false); err != nil {
			return report, err
		}
		p.logger.Info("refill rate limited", "job_id", j.ID, "reset_at", j.State.(jobs.RateLimited).ResetAt)
		report.Action = ActionRateLimited
		return report, nil

	case twitter.CapExceeded:
		if err := p.persist(ctx, j, false); err != nil {
			return report, err
		}
		return p.suspendAll(ctx, f, report)

	default:
		p.logger.Warn("refill failed, dropping job", "job_id", j.ID, "error", f)
		if err := p.store.Delete(ctx, j); err != nil {
			return report, fmt.Errorf("deleting job %s: %w", j.ID, err)
		}
		report.Action = ActionDropped
		return report, nil
	}
}

// deleteBatch removes one batch from the front of the job and deletes it remotely.
func (p *Processor) deleteBatch(ctx context.Context, j *jobs.Job) (Report, error) {
	report := Report{JobID: j.ID}

	if len(j.TweetIDs) == 0 {
		if err := p.store.Delete(ctx, j); err != nil {
			return report, fmt.Errorf("deleting finished job %s: %w", j.ID, err)
		}
		report.Action = ActionCompleted
		return report, nil
	}

	size := min(p.limiter.MaxBatchSize(), p.cfg.DeletePerRun)
	if size <= 0 {
		if err := p.persist(ctx, j, false); err != nil {
			return report, err
		}
		p.logger.Debug("no delete budget left this tick", "job_id", j.ID, "next_slot", p.limiter.TimeUntilNextSlot())
		report.Action = ActionThrottled
		return report, nil
	}
	size = min(size, len(j.TweetIDs))

	batch := append([]string(nil), j.TweetIDs[:size]...)
	j.TweetIDs = append([]string(nil), j.TweetIDs[size:]...)

	// The shrunk list is durable before any remote call.
	removed := len(j.TweetIDs) == 0
	if removed {
		if err := p.store.Delete(ctx, j); err != nil {
			return report, fmt.Errorf("deleting drained job %s: %w", j.ID, err)
		}
	} else if err := p.store.Save(ctx, j); err != nil {
		return report, fmt.Errorf("saving job %s: %w", j.ID, err)
	}

	for i, id := range batch {
		if i > 0 && p.cfg.CallInterval > 0 {
			if err := p.sleep(ctx, p.cfg.CallInterval); err != nil {
				return report, p.interrupted(ctx, j, batch[i:], removed)
			}
		}
		if err := p.waitForSlot(ctx); err != nil {
			return report, p.interrupted(ctx, j, batch[i:], removed)
		}

		p.limiter.RecordCall()
		err := p.remote.DeleteTweet(ctx, j.Token, id)
		if err == nil {
			report.Deleted++
			continue
		}
		if ctx.Err() != nil {
			return report, p.interrupted(ctx, j, batch[i:], removed)
		}

		f := twitter.AsFailure(err)
		metrics.ObserveFailure(f.Kind.String())
		switch f.Kind {
		case twitter.NotFound, twitter.Transient:
			report.Skipped++
			p.logger.Warn("skipping tweet", "job_id", j.ID, "tweet_id", id, "kind", f.Kind.String(), "error", f)
			continue
		}

		// Whatever was not deleted goes back in front of the untouched IDs.
		j.TweetIDs = append(append([]string(nil), batch[i:]...), j.TweetIDs...)
		report.Failure = f
		return p.batchAborted(ctx, j, f, removed, report)
	}

	if removed {
		p.logger.Info("job finished", "job_id", j.ID, "deleted", report.Deleted, "skipped", report.Skipped)
		report.Action = ActionCompleted
		return report, nil
	}
	if err := p.persist(ctx, j, false); err != nil {
		return report, err
	}
	p.logger.Info("batch deleted", "job_id", j.ID, "deleted", report.Deleted, "skipped", report.Skipped, "remaining", len(j.TweetIDs))
	report.Action = ActionDeleted
	return report, nil
}

func (p *Processor) batchAborted(ctx context.Context, j *jobs.Job, f *twitter.Failure, removed bool, report Report) (Report, error) {
	switch f.Kind {
	case twitter.Auth:
		return p.reauthorize(ctx, j, removed, report)

	case twitter.RateLimited:
		reset := f.ResetAt.Add(p.cfg.ResetPadding)
		j.State = jobs.RateLimited{ResetAt: reset}
		if err := p.persist(ctx, j, removed); err != nil {
			return report, err
		}
		p.logger.Info("job rate limited", "job_id", j.ID, "reset_at", reset, "remaining", len(j.TweetIDs))
		report.Action = ActionRateLimited
		return report, nil

	default: // CapExceeded
		if err := p.persist(ctx, j, removed); err != nil {
			return report, err
		}
		return p.suspendAll(ctx, f, report)
	}
}

// reauthorize refreshes the job's token once. The job is dropped when that
// is impossible.
func (p *Processor) reauthorize(ctx context.Context, j *jobs.Job, removed bool, report Report) (Report, error) {
	if j.RefreshToken == "" {
		p.logger.Warn("token rejected and no refresh token, dropping job", "job_id", j.ID)
		return p.drop(ctx, j, removed, report)
	}

	tok, err := p.remote.RefreshToken(ctx, j.RefreshToken)
	if err != nil {
		p.logger.Warn("token refresh failed, dropping job", "job_id", j.ID, "error", err)
		return p.drop(ctx, j, removed, report)
	}

	j.Token = tok.AccessToken
	if tok.RefreshToken != "" {
		j.RefreshToken = tok.RefreshToken
	}
	if err := p.persist(ctx, j, removed); err != nil {
		return report, err
	}
	p.logger.Info("token refreshed", "job_id", j.ID)
	report.Action = ActionReauthorized
	return report, nil
}

func (p *Processor) drop(ctx context.Context, j *jobs.Job, removed bool, report Report) (Report, error) {
	report.Action = ActionDropped
	if removed {
		return report, nil
	}
	if err := p.store.Delete(ctx, j); err != nil {
		return report, fmt.Errorf("deleting job %s: %w", j.ID, err)
	}
	return report, nil
}

// suspendAll parks every job until the usage cap period ends.
func (p *Processor) suspendAll(ctx context.Context, f *twitter.Failure, report Report) (Report, error) {
	reset := NextPeriodStart(f.Period, p.now())
	report.Action = ActionSuspended

	all, err := p.store.List(ctx)
	if err != nil {
		return report, fmt.Errorf("listing jobs to suspend: %w", err)
	}
	for _, j := range all {
		if err := p.suspend(ctx, j, reset); err != nil {
			return report, err
		}
	}
	p.logger.Warn("usage cap exceeded, all jobs suspended", "scope", f.Scope, "period", f.Period, "reset_at", reset, "jobs", len(all))
	return report, nil
}

func (p *Processor) suspend(ctx context.Context, j *jobs.Job, reset time.Time) error {
	const attempts = 3
	for range attempts {
		j.State = jobs.CapSuspended{ResetAt: reset}
		j.Lease = nil
		err := p.store.Save(ctx, j)
		if err == nil || errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		if !errors.Is(err, storage.ErrConflict) {
			return fmt.Errorf("suspending job %s: %w", j.ID, err)
		}
		fresh, err := p.store.Get(ctx, j.ID)
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reloading job %s: %w", j.ID, err)
		}
		*j = *fresh
	}
	return fmt.Errorf("suspending job %s: %w", j.ID, storage.ErrConflict)
}

// persist writes the job's final state for this tick and releases the claim.
// removed means the record was deleted earlier in the tick and is re-created.
func (p *Processor) persist(ctx context.Context, j *jobs.Job, removed bool) error {
	j.Lease = nil
	var err error
	if removed {
		err = p.store.Restore(ctx, j)
	} else {
		err = p.store.Save(ctx, j)
	}
	if err != nil {
		return fmt.Errorf("saving job %s: %w", j.ID, err)
	}
	return nil
}

// interrupted puts the unattempted part of the batch back after cancellation.
func (p *Processor) interrupted(ctx context.Context, j *jobs.Job, rest []string, removed bool) error {
	j.TweetIDs = append(append([]string(nil), rest...), j.TweetIDs...)
	if err := p.persist(context.WithoutCancel(ctx), j, removed); err != nil {
		return err
	}
	return ctx.Err()
}

// abandon releases the claim without changing the job.
func (p *Processor) abandon(ctx context.Context, j *jobs.Job) error {
	if err := p.persist(context.WithoutCancel(ctx), j, false); err != nil {
		return err
	}
	return ctx.Err()
}

func (p *Processor) waitForSlot(ctx context.Context) error {
	for !p.limiter.CanCall() {
		d := p.limiter.TimeUntilNextSlot()
		if d <= 0 {
			d = time.Second
		}
		p.logger.Debug("waiting for rate limit slot", "wait", d)
		if err := p.sleep(ctx, d); err != nil {
			return err
		}
	}
	return nil
}

// NextPeriodStart returns when a usage cap of the given period resets: the
// next UTC midnight for "Daily", otherwise the first day of the next month.
func NextPeriodStart(period string, now time.Time) time.Time {
	now = now.UTC()
	if strings.EqualFold(period, "Daily") {
		return time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
	}
	return time.Date(now.Year(), now.Month()+1, 1, 0, 0, 0, 0, time.UTC)
}

func observeQueue(all []*jobs.Job) {
	counts := make(map[string]int)
	for _, j := range all {
		counts[string(j.Status())]++
	}
	metrics.SetQueueDepth([]string{
		string(jobs.StatusNormal),
		string(jobs.StatusRateLimited),
		string(jobs.StatusCapSuspended),
	}, counts)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
