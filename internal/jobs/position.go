package jobs

import (
	"math"
	"time"
)

// Position is a job's place in the processing queue.
type Position struct {
	Position  int `json:"queuePosition"`
	JobsAhead int `json:"jobsAhead"`
}

// QueuePosition locates id among all jobs ordered by creation time. Only
// normal and rate limited jobs ahead of it are counted. A job that cannot be
// found is reported at the front.
func QueuePosition(all []*Job, id string) Position {
	ordered := make([]*Job, 0, len(all))
	for _, j := range all {
		if IsSessionKey(j.ID) {
			continue
		}
		ordered = append(ordered, j)
	}
	SortByCreated(ordered)

	ahead := 0
	for _, j := range ordered {
		if j.ID == id {
			return Position{Position: ahead + 1, JobsAhead: ahead}
		}
		if j.Active() {
			ahead++
		}
	}
	return Position{Position: 1, JobsAhead: 0}
}

// Estimator turns queue depth into a rough wait time.
type Estimator struct {
	// PerRun is how many IDs one tick deletes at most.
	PerRun int
	// TickInterval is the time between scheduled ticks.
	TickInterval time.Duration
}

// View is the read-only status projection served to users.
type View struct {
	JobID                string `json:"jobId"`
	Status               Status `json:"status"`
	TotalCount           int    `json:"totalCount"`
	RemainingCount       int    `json:"remainingCount"`
	ProcessedCount       int    `json:"processedCount"`
	ProgressPercent      int    `json:"progressPercent"`
	RateLimitReset       *int64 `json:"rateLimitReset,omitempty"`
	MonthlyCapReset      *int64 `json:"monthlyCapReset,omitempty"`
	QueuePosition        int    `json:"queuePosition"`
	JobsAhead            int    `json:"jobsAhead"`
	EstimatedWaitMinutes int    `json:"estimatedWaitMinutes"`
}

// Project builds the status view of j against the rest of the queue.
func Project(j *Job, all []*Job, now time.Time, est Estimator) View {
	v := View{
		JobID:          j.ID,
		Status:         j.Status(),
		TotalCount:     j.TweetCount,
		RemainingCount: len(j.TweetIDs),
	}
	if v.TotalCount < v.RemainingCount {
		v.TotalCount = v.RemainingCount
	}
	v.ProcessedCount = v.TotalCount - v.RemainingCount
	if v.TotalCount > 0 {
		v.ProgressPercent = v.ProcessedCount * 100 / v.TotalCount
	}

	var waitUntil time.Time
	switch s := j.State.(type) {
	case RateLimited:
		v.RateLimitReset = epoch(s.ResetAt)
		waitUntil = s.ResetAt
	case CapSuspended:
		v.MonthlyCapReset = epoch(s.ResetAt)
		waitUntil = s.ResetAt
	}

	pos := QueuePosition(all, j.ID)
	v.QueuePosition = pos.Position
	v.JobsAhead = pos.JobsAhead
	v.EstimatedWaitMinutes = est.waitMinutes(j, all, now, waitUntil)
	return v
}

func (e Estimator) waitMinutes(j *Job, all []*Job, now, waitUntil time.Time) int {
	if e.PerRun <= 0 || e.TickInterval <= 0 {
		return 0
	}

	ordered := append([]*Job(nil), all...)
	SortByCreated(ordered)

	pending := len(j.TweetIDs)
	for _, other := range ordered {
		if other.ID == j.ID {
			break
		}
		if other.Active() {
			pending += len(other.TweetIDs)
		}
	}

	ticks := int(math.Ceil(float64(pending) / float64(e.PerRun)))
	wait := time.Duration(ticks) * e.TickInterval
	if waitUntil.After(now) {
		wait += waitUntil.Sub(now)
	}
	return int(math.Ceil(wait.Minutes()))
}
