package api

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kalambet/tweetsweep/internal/jobs"
	"github.com/kalambet/tweetsweep/internal/session"
	"github.com/kalambet/tweetsweep/internal/storage"
)

// --- helpers ---

func newTestMCPDeps(t *testing.T) (MCPDeps, *storage.Store) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return MCPDeps{
		Jobs:      jobs.NewRepository(store),
		Estimator: jobs.Estimator{PerRun: 10, TickInterval: time.Minute},
		Now:       func() time.Time { return testNow },
	}, store
}

func seedJobs(t *testing.T, repo *jobs.Repository, js ...*jobs.Job) {
	t.Helper()
	for _, j := range js {
		if err := repo.Create(context.Background(), j); err != nil {
			t.Fatalf("Create(%s): %v", j.ID, err)
		}
	}
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func makeReadResourceRequest(uri string) mcp.ReadResourceRequest {
	return mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

// --- tests ---

func TestNewMCPServer(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	if s := NewMCPServer(deps); s == nil {
		t.Fatal("NewMCPServer returned nil")
	}
}

func TestMCPTool_JobStatus(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	seedJobs(t, deps.Jobs,
		&jobs.Job{ID: "j1", State: jobs.Normal{}, Token: "t", TweetIDs: []string{"1", "2"}, TweetCount: 4, CreatedAt: testNow.Add(-time.Hour)},
	)

	result, err := mcpJobStatus(deps)(context.Background(), makeCallToolRequest("job_status", map[string]interface{}{"job_id": "j1"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}

	var v jobs.View
	if err := json.Unmarshal([]byte(toolText(t, result)), &v); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if v.RemainingCount != 2 || v.ProgressPercent != 50 || v.QueuePosition != 1 {
		t.Errorf("view = %+v", v)
	}
}

func TestMCPTool_JobStatus_Errors(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	handler := mcpJobStatus(deps)

	result, err := handler(context.Background(), makeCallToolRequest("job_status", map[string]interface{}{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Error("missing job_id should be an error result")
	}

	result, _ = handler(context.Background(), makeCallToolRequest("job_status", map[string]interface{}{"job_id": "gone"}))
	if !result.IsError {
		t.Fatal("unknown job should be an error result")
	}
	if got := toolText(t, result); got != notFoundMessage {
		t.Errorf("text = %q", got)
	}
}

func TestMCPTool_ListJobs(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	seedJobs(t, deps.Jobs,
		&jobs.Job{ID: "c", State: jobs.Normal{}, Token: "t", TweetIDs: []string{"1"}, CreatedAt: testNow},
		&jobs.Job{ID: "a", State: jobs.Normal{}, Token: "t", TweetIDs: []string{"2"}, CreatedAt: testNow.Add(-2 * time.Hour)},
		&jobs.Job{ID: "b", State: jobs.RateLimited{ResetAt: testNow}, Token: "t", TweetIDs: []string{"3"}, CreatedAt: testNow.Add(-time.Hour)},
	)

	tests := []struct {
		name string
		args map[string]interface{}
		want []string
	}{
		{"all", map[string]interface{}{}, []string{"a", "b", "c"}},
		{"limit", map[string]interface{}{"limit": 2}, []string{"a", "b"}},
		{"status", map[string]interface{}{"status": "rate_limited"}, []string{"b"}},
		{"no match", map[string]interface{}{"status": "monthly_cap_suspended"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := mcpListJobs(deps)(context.Background(), makeCallToolRequest("list_jobs", tt.args))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result.IsError {
				t.Fatalf("unexpected error: %s", toolText(t, result))
			}
			var got []JobSummary
			if err := json.Unmarshal([]byte(toolText(t, result)), &got); err != nil {
				t.Fatalf("failed to parse response: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d jobs, want %d", len(got), len(tt.want))
			}
			for i, id := range tt.want {
				if got[i].ID != id {
					t.Errorf("job %d = %s, want %s", i, got[i].ID, id)
				}
			}
		})
	}
}

func TestMCPResource_Summary(t *testing.T) {
	deps, store := newTestMCPDeps(t)
	reset := time.Date(2026, time.November, 1, 0, 0, 0, 0, time.UTC)
	seedJobs(t, deps.Jobs,
		&jobs.Job{ID: "a", State: jobs.Normal{}, Token: "t", TweetIDs: []string{"1", "2"}, CreatedAt: testNow},
		&jobs.Job{ID: "b", State: jobs.CapSuspended{ResetAt: reset}, Token: "t", TweetIDs: []string{"3"}, CreatedAt: testNow},
	)
	if err := session.NewStore(store, 0).Save(context.Background(), "s1", session.Data{State: "x"}); err != nil {
		t.Fatalf("session Save: %v", err)
	}

	contents, err := mcpResourceSummary(deps)(context.Background(), makeReadResourceRequest("queue://summary"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("expected 1 content, got %d", len(contents))
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}
	if tc.URI != "queue://summary" || tc.MIMEType != "application/json" {
		t.Errorf("uri = %s, mime = %s", tc.URI, tc.MIMEType)
	}

	var s QueueSummary
	if err := json.Unmarshal([]byte(tc.Text), &s); err != nil {
		t.Fatalf("failed to parse summary: %v", err)
	}
	if s.Jobs != 2 || s.Remaining != 3 {
		t.Errorf("jobs = %d, remaining = %d; want 2 and 3", s.Jobs, s.Remaining)
	}
	if s.ByStatus[jobs.StatusNormal] != 1 || s.ByStatus[jobs.StatusCapSuspended] != 1 || s.ByStatus[jobs.StatusRateLimited] != 0 {
		t.Errorf("byStatus = %v", s.ByStatus)
	}
	if !s.Paused || s.ResumesAt == nil || !s.ResumesAt.Equal(reset) {
		t.Errorf("paused = %v, resumesAt = %v", s.Paused, s.ResumesAt)
	}
}
