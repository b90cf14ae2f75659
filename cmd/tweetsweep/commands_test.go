package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/tweetsweep/internal/api"
	"github.com/kalambet/tweetsweep/internal/config"
	"github.com/kalambet/tweetsweep/internal/jobs"
	"github.com/kalambet/tweetsweep/internal/processor"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
	Auth   string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   body.String(),
			Auth:   r.Header.Get("Authorization"),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			if resp == "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"job not found. maybe completed?","type":"not_found_error"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

var ctx = context.Background()

func TestListJobs(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /admin/jobs": `[{"jobId":"j1","status":"rate_limited","tweetCount":10,"remainingCount":4,"createdAt":"2026-10-16T12:00:00Z","hasRefreshToken":true}]`,
	})

	list, err := ts.client().listJobs(ctx, "rate_limited")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "j1", list[0].ID)
	assert.Equal(t, jobs.StatusRateLimited, list[0].Status)
	assert.Equal(t, 4, list[0].RemainingCount)

	require.Len(t, ts.requests, 1)
	r := ts.requests[0]
	assert.Equal(t, "GET", r.Method)
	assert.Equal(t, "/admin/jobs?status=rate_limited", r.Path)
	assert.Equal(t, "Bearer test-token", r.Auth)
}

func TestJobStatus(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /status/j1": `{"jobId":"j1","status":"normal","totalCount":10,"remainingCount":3,"processedCount":7,"progressPercent":70,"queuePosition":2,"jobsAhead":1,"estimatedWaitMinutes":1}`,
	})

	v, err := ts.client().jobStatus(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, 70, v.ProgressPercent)
	assert.Equal(t, 2, v.QueuePosition)
	assert.Nil(t, v.RateLimitReset)

	_, err = ts.client().jobStatus(ctx, "gone")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Contains(t, err.Error(), "maybe completed?")
}

func TestDeleteJob(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"DELETE /admin/jobs/j1": "",
	})

	resp, err := ts.client().delete(ctx, "/admin/jobs/j1")
	require.NoError(t, err)
	require.NoError(t, decodeJSON(resp, nil))

	require.Len(t, ts.requests, 1)
	assert.Equal(t, "DELETE", ts.requests[0].Method)
}

func TestRemoteTick(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /admin/tick": `{"jobId":"j1","action":"rate_limited","deleted":3,"skipped":1,"failure":"rate_limited"}`,
	})

	resp, err := ts.client().post(ctx, "/admin/tick", nil)
	require.NoError(t, err)

	var r tickReport
	require.NoError(t, decodeJSON(resp, &r))
	assert.Equal(t, processor.ActionRateLimited, r.Action)
	assert.Equal(t, 3, r.Deleted)
	assert.Equal(t, 1, r.Skipped)
	assert.Equal(t, "rate_limited", r.Failure)
	assert.Empty(t, ts.requests[0].Body)
}

func TestServerNotReachable(t *testing.T) {
	ts := newTestServer(t, map[string]string{})
	ts.server.Close()

	_, err := ts.client().get(ctx, "/health")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not reachable")
}

func TestDecodeJSON_ErrorResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(401)
		w.Write([]byte(`{"error":{"message":"invalid bearer token","type":"authentication_error"}}`))
	}))
	defer ts.Close()

	client := &apiClient{
		baseURL:    ts.URL,
		token:      "bad-token",
		httpClient: ts.Client(),
	}

	resp, err := client.get(ctx, "/admin/jobs")
	require.NoError(t, err)

	var result any
	err = decodeJSON(resp, &result)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Contains(t, err.Error(), "invalid bearer token")
}

func TestAPIErrorMessage_PlainBody(t *testing.T) {
	assert.Equal(t, "bad gateway", apiErrorMessage([]byte("bad gateway\n")))
}

func TestSummarizeQueue(t *testing.T) {
	early := time.Date(2026, time.November, 1, 0, 0, 0, 0, time.UTC)
	late := early.AddDate(0, 1, 0)
	list := []api.JobSummary{
		{ID: "a", Status: jobs.StatusNormal, RemainingCount: 5},
		{ID: "b", Status: jobs.StatusCapSuspended, RemainingCount: 2, MonthlyCapReset: &late},
		{ID: "c", Status: jobs.StatusCapSuspended, RemainingCount: 1, MonthlyCapReset: &early},
	}

	s := summarizeQueue(list)
	assert.Equal(t, 3, s.total)
	assert.Equal(t, 8, s.remaining)
	assert.Equal(t, 1, s.byStatus[jobs.StatusNormal])
	assert.Equal(t, 2, s.byStatus[jobs.StatusCapSuspended])
	require.NotNil(t, s.resumesAt)
	assert.True(t, s.resumesAt.Equal(early))

	assert.Nil(t, summarizeQueue(nil).resumesAt)
}

func TestWriteJobList(t *testing.T) {
	var buf bytes.Buffer
	writeJobList(&buf, nil)
	assert.Equal(t, "no jobs queued\n", buf.String())

	buf.Reset()
	writeJobList(&buf, []api.JobSummary{
		{ID: "j1", Status: jobs.StatusNormal, TweetCount: 10, RemainingCount: 4, LeaseOwner: "host-1"},
	})
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "JOB"))
	assert.Contains(t, lines[1], "j1")
	assert.Contains(t, lines[1], "normal*")
}

func TestJobsListRejectsUnknownStatus(t *testing.T) {
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"jobs", "list", "--status", "bogus"})
	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --status")
}

func TestConfigSet_MissingArgs(t *testing.T) {
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"config", "set", "server.port"})
	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 2 arg(s)")
}

func TestStorageLabel(t *testing.T) {
	assert.Equal(t, "sqlite in /tmp/ts", storageLabel(config.StorageConfig{Backend: config.BackendSQLite, DataDir: "/tmp/ts"}))
	assert.Equal(t, "nats nats://h:4222 (bucket b)",
		storageLabel(config.StorageConfig{Backend: config.BackendNATS, NATSURL: "nats://h:4222", NATSBucket: "b"}))
}

func TestServerURL(t *testing.T) {
	cfg := config.Config{Server: config.ServerConfig{Host: "127.0.0.1", Port: 3000}}
	assert.Equal(t, "http://127.0.0.1:3000", serverURL(cfg))
}

func TestNoColorFlag(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	result := colorize(colorGreen, "test message")
	if strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=true should not contain ANSI codes, got %q", result)
	}
	if result != "test message" {
		t.Errorf("result = %q, want %q", result, "test message")
	}

	noColor = false
	result = colorize(colorGreen, "test message")
	if !strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", result)
	}
}

func TestPIDFileRoundTrip(t *testing.T) {
	path := pidFilePath(t.TempDir())
	require.NoError(t, writePIDFile(path))

	pid, err := readPIDFile(path)
	require.NoError(t, err)
	assert.Positive(t, pid)

	removePIDFile(path)
	_, err = readPIDFile(path)
	assert.Error(t, err)
}
