package jobs

import (
	"testing"
	"time"
)

func TestQueuePosition(t *testing.T) {
	limited := newJob("limited", 150)
	limited.State = RateLimited{ResetAt: time.Unix(900, 0)}
	suspended := newJob("suspended", 120)
	suspended.State = CapSuspended{ResetAt: time.Unix(900, 0)}

	all := []*Job{
		newJob("target", 300),
		newJob("first", 100),
		suspended,
		limited,
		newJob("later", 400),
		newJob(SessionPrefix+"x", 1),
	}

	tests := []struct {
		id   string
		want Position
	}{
		{"first", Position{Position: 1, JobsAhead: 0}},
		{"limited", Position{Position: 2, JobsAhead: 1}},
		{"target", Position{Position: 3, JobsAhead: 2}},
		{"later", Position{Position: 4, JobsAhead: 3}},
		{"missing", Position{Position: 1, JobsAhead: 0}},
	}
	for _, tt := range tests {
		if got := QueuePosition(all, tt.id); got != tt.want {
			t.Errorf("QueuePosition(%s) = %+v, want %+v", tt.id, got, tt.want)
		}
	}
}

func TestQueuePosition_Empty(t *testing.T) {
	if got := QueuePosition(nil, "x"); got != (Position{Position: 1}) {
		t.Errorf("QueuePosition(nil) = %+v", got)
	}
}

func TestProject(t *testing.T) {
	now := time.Unix(10_000, 0)
	ahead := newJob("ahead", 100, "1", "2", "3", "4", "5")
	target := newJob("target", 200, "6", "7", "8", "9", "10")
	target.TweetCount = 20

	v := Project(target, []*Job{ahead, target}, now, Estimator{PerRun: 10, TickInterval: 5 * time.Minute})

	if v.Status != StatusNormal {
		t.Errorf("status = %s", v.Status)
	}
	if v.TotalCount != 20 || v.RemainingCount != 5 || v.ProcessedCount != 15 {
		t.Errorf("counts = %d/%d/%d", v.TotalCount, v.RemainingCount, v.ProcessedCount)
	}
	if v.ProgressPercent != 75 {
		t.Errorf("progress = %d, want 75", v.ProgressPercent)
	}
	if v.QueuePosition != 2 || v.JobsAhead != 1 {
		t.Errorf("position = %d ahead = %d", v.QueuePosition, v.JobsAhead)
	}
	// 10 pending IDs at 10 per tick is one tick of five minutes.
	if v.EstimatedWaitMinutes != 5 {
		t.Errorf("wait = %d, want 5", v.EstimatedWaitMinutes)
	}
	if v.RateLimitReset != nil || v.MonthlyCapReset != nil {
		t.Error("normal job reported a reset")
	}
}

func TestProject_SuspendedAddsResetWait(t *testing.T) {
	now := time.Unix(10_000, 0)
	j := newJob("j", 100, "1")
	j.State = CapSuspended{ResetAt: now.Add(90 * time.Minute)}

	v := Project(j, []*Job{j}, now, Estimator{PerRun: 10, TickInterval: time.Minute})

	if v.MonthlyCapReset == nil || *v.MonthlyCapReset != now.Add(90*time.Minute).Unix() {
		t.Fatalf("monthlyCapReset = %v", v.MonthlyCapReset)
	}
	if v.EstimatedWaitMinutes != 91 {
		t.Errorf("wait = %d, want 91", v.EstimatedWaitMinutes)
	}
}

func TestProject_NoEstimator(t *testing.T) {
	j := newJob("j", 100)
	v := Project(j, nil, time.Now(), Estimator{})
	if v.EstimatedWaitMinutes != 0 || v.ProgressPercent != 0 {
		t.Errorf("view = %+v", v)
	}
}
