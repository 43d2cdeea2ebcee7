package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/avelez/codetour/internal/store"
	"github.com/avelez/codetour/pkg/schema"
)

// handleGenerate runs the generation pipeline for a repository.
func (s *CodetourServer) handleGenerate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	repoURL, err := req.RequireString("repo_url")
	if err != nil {
		return mcp.NewToolResultError("repo_url is required"), nil
	}

	tutReq := &schema.TutorialRequest{
		RepoURL:         repoURL,
		Language:        req.GetString("language", ""),
		IncludePatterns: req.GetStringSlice("include_patterns", nil),
		ExcludePatterns: req.GetStringSlice("exclude_patterns", nil),
		MaxFileSize:     int64(req.GetInt("max_file_size", 0)),
		OutputDir:       req.GetString("output_dir", ""),
	}

	tut, runID, runErr := s.runner.Run(ctx, tutReq)
	if runErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("generation failed (run %s): %v", runID, runErr)), nil
	}

	return marshalResult(map[string]any{
		"run_id":     runID,
		"title":      tut.Title,
		"repo_url":   tut.RepoURL,
		"output_dir": tut.OutputDir,
		"chapters":   tut.Chapters,
	})
}

// handleStatus returns a run record together with its progress events.
func (s *CodetourServer) handleStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID, err := req.RequireString("run_id")
	if err != nil {
		return mcp.NewToolResultError("run_id is required"), nil
	}

	run, getErr := s.store.GetRun(ctx, runID)
	if getErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("run lookup failed: %v", getErr)), nil
	}

	since := int64(req.GetInt("since", 0))
	events, evErr := s.store.GetEvents(ctx, runID, since)
	if evErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("event lookup failed: %v", evErr)), nil
	}

	return marshalResult(map[string]any{
		"run":    run,
		"events": events,
	})
}

// handleQuery lists past runs.
func (s *CodetourServer) handleQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter := store.RunFilter{
		RepoURL: req.GetString("repo_url", ""),
		Limit:   req.GetInt("limit", 20),
	}
	if v := req.GetString("status", ""); v != "" {
		status := schema.RunStatus(v)
		filter.Status = &status
	}

	runs, err := s.store.ListRuns(ctx, filter)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("run query failed: %v", err)), nil
	}

	return marshalResult(map[string]any{
		"runs":  runs,
		"count": len(runs),
	})
}

// marshalResult JSON-encodes v as the tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
