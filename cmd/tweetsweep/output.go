package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/kalambet/tweetsweep/internal/api"
	"github.com/kalambet/tweetsweep/internal/jobs"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func printSuccess(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorGreen, "✓ "+msg))
}

func printError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorRed, "✗ "+msg))
}

func printWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorYellow, "⚠ "+msg))
}

func printStatus(label string, format string, args ...any) {
	val := fmt.Sprintf(format, args...)
	l := colorize(colorBold, label+":")
	fmt.Fprintf(os.Stderr, "  %s %s\n", l, val)
}

// queueStats aggregates the admin job list for status output.
type queueStats struct {
	total     int
	byStatus  map[jobs.Status]int
	remaining int
	resumesAt *time.Time
}

func summarizeQueue(list []api.JobSummary) queueStats {
	s := queueStats{total: len(list), byStatus: make(map[jobs.Status]int)}
	for _, j := range list {
		s.byStatus[j.Status]++
		s.remaining += j.RemainingCount
		if r := j.MonthlyCapReset; r != nil && (s.resumesAt == nil || r.Before(*s.resumesAt)) {
			s.resumesAt = r
		}
	}
	return s
}

func printQueueSummary(list []api.JobSummary) {
	s := summarizeQueue(list)
	printStatus("Queue", "%d jobs, %d tweets remaining", s.total, s.remaining)
	printStatus("States", "%d normal, %d rate limited, %d suspended",
		s.byStatus[jobs.StatusNormal], s.byStatus[jobs.StatusRateLimited], s.byStatus[jobs.StatusCapSuspended])
	if s.resumesAt != nil {
		printStatus("Processor", "%s until %s", colorize(colorYellow, "paused"), s.resumesAt.Local().Format(time.RFC1123))
	}
}

func printJobList(list []api.JobSummary) {
	writeJobList(os.Stdout, list)
}

func writeJobList(w io.Writer, list []api.JobSummary) {
	if len(list) == 0 {
		fmt.Fprintln(w, "no jobs queued")
		return
	}
	fmt.Fprintf(w, "%-36s  %-22s  %9s  %9s  %s\n", "JOB", "STATUS", "REMAINING", "TOTAL", "CREATED")
	for _, j := range list {
		status := string(j.Status)
		if j.LeaseOwner != "" {
			status += "*"
		}
		fmt.Fprintf(w, "%-36s  %-22s  %9d  %9d  %s\n",
			j.ID, status, j.RemainingCount, j.TweetCount, j.CreatedAt.Local().Format(time.DateTime))
	}
}

func printJobView(v jobs.View) {
	printStatus("Job", "%s", v.JobID)
	printStatus("Status", "%s", v.Status)
	printStatus("Progress", "%d%% (%d of %d deleted, %d remaining)",
		v.ProgressPercent, v.ProcessedCount, v.TotalCount, v.RemainingCount)
	printStatus("Queue", "position %d, %d jobs ahead, about %d min", v.QueuePosition, v.JobsAhead, v.EstimatedWaitMinutes)
	if v.RateLimitReset != nil {
		printStatus("Rate limit", "until %s", time.Unix(*v.RateLimitReset, 0).Local().Format(time.RFC1123))
	}
	if v.MonthlyCapReset != nil {
		printStatus("Monthly cap", "until %s", time.Unix(*v.MonthlyCapReset, 0).Local().Format(time.RFC1123))
	}
}

func printTickReport(r tickReport) {
	switch {
	case r.JobID == "":
		printSuccess("Tick: %s", r.Action)
	case r.Failure != "":
		printWarning("Tick: %s job %s (deleted %d, skipped %d, %s)", r.Action, r.JobID, r.Deleted, r.Skipped, r.Failure)
	default:
		printSuccess("Tick: %s job %s (deleted %d, skipped %d)", r.Action, r.JobID, r.Deleted, r.Skipped)
	}
}
