package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/tweetsweep/internal/jobs"
	"github.com/kalambet/tweetsweep/internal/storage"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Jobs      *jobs.Repository
	Estimator jobs.Estimator
	Version   string
	Now       func() time.Time // defaults to time.Now
}

// QueueSummary is the queue://summary resource.
type QueueSummary struct {
	Jobs      int                 `json:"jobs"`
	ByStatus  map[jobs.Status]int `json:"byStatus"`
	Remaining int                 `json:"remainingTweets"`
	Paused    bool                `json:"paused"`
	ResumesAt *time.Time          `json:"resumesAt,omitempty"`
}

// NewMCPServer creates a read-only MCP server exposing the deletion queue.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Version == "" {
		deps.Version = "dev"
	}

	s := server.NewMCPServer(
		"tweetsweep",
		deps.Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("tweetsweep deletes tweets in the background. Use these tools to inspect the deletion queue."),
		server.WithRecovery(),
	)

	// Tools
	s.AddTool(
		mcp.NewTool("job_status",
			mcp.WithDescription("Report progress, queue position and estimated wait for a deletion job."),
			mcp.WithString("job_id", mcp.Description("Job ID returned on upload"), mcp.Required()),
		),
		mcpJobStatus(deps),
	)

	s.AddTool(
		mcp.NewTool("list_jobs",
			mcp.WithDescription("List deletion jobs, oldest first."),
			mcp.WithString("status", mcp.Description("Only jobs in this status (normal, rate_limited, monthly_cap_suspended)")),
			mcp.WithNumber("limit", mcp.Description("Maximum number of jobs (default 20)")),
		),
		mcpListJobs(deps),
	)

	// Resources
	s.AddResource(
		mcp.NewResource(
			"queue://summary",
			"Queue Summary",
			mcp.WithResourceDescription("Job counts per status and remaining tweet IDs"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceSummary(deps),
	)

	return s
}

func mcpJobStatus(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("job_id")
		if err != nil {
			return mcpError("job_id is required"), nil
		}

		j, err := deps.Jobs.Get(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			return mcpError(notFoundMessage), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to load job: %v", err)), nil
		}
		all, err := deps.Jobs.List(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list jobs: %v", err)), nil
		}

		b, err := json.Marshal(jobs.Project(j, all, deps.Now(), deps.Estimator))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal status: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpListJobs(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		status := jobs.Status(req.GetString("status", ""))
		limit := req.GetInt("limit", 20)
		if limit <= 0 {
			limit = 20
		}
		if limit > 200 {
			limit = 200
		}

		all, err := deps.Jobs.List(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list jobs: %v", err)), nil
		}
		jobs.SortByCreated(all)

		out := make([]JobSummary, 0, min(limit, len(all)))
		for _, j := range all {
			if status != "" && j.Status() != status {
				continue
			}
			out = append(out, Summarize(j))
			if len(out) == limit {
				break
			}
		}

		b, err := json.Marshal(out)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal jobs: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceSummary(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		all, err := deps.Jobs.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list jobs: %w", err)
		}

		b, err := json.Marshal(Summary(all))
		if err != nil {
			return nil, fmt.Errorf("failed to marshal summary: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

// Summary counts jobs per status. The queue is paused while any job is
// suspended by the monthly cap.
func Summary(all []*jobs.Job) QueueSummary {
	s := QueueSummary{
		ByStatus: map[jobs.Status]int{
			jobs.StatusNormal:       0,
			jobs.StatusRateLimited:  0,
			jobs.StatusCapSuspended: 0,
		},
	}
	for _, j := range all {
		s.Jobs++
		s.ByStatus[j.Status()]++
		s.Remaining += len(j.TweetIDs)
		if cs, ok := j.State.(jobs.CapSuspended); ok {
			s.Paused = true
			if s.ResumesAt == nil || cs.ResetAt.Before(*s.ResumesAt) {
				t := cs.ResetAt.UTC()
				s.ResumesAt = &t
			}
		}
	}
	return s
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
