package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/nexustext/nxagent/internal/core/config"
	"github.com/nexustext/nxagent/internal/core/db"
	"github.com/nexustext/nxagent/internal/core/models"
	"github.com/nexustext/nxagent/internal/core/session"
	"github.com/nexustext/nxagent/internal/core/nexus"
)

// StartAnalysisArgs defines arguments for the start_analysis tool
type StartAnalysisArgs struct {
	DatasetID string `json:"dataset_id" jsonschema:"description=Dataset to analyze,required"`
	Objective string `json:"objective,omitempty" jsonschema:"description=Free-text analysis goal"`
	HITLMode  string `json:"hitl_mode,omitempty" jsonschema:"description=Control mode: full_auto semi_auto or guided (default: full_auto)"`
}

// GetSessionStatusArgs defines arguments for the get_session_status tool
type GetSessionStatusArgs struct {
	SessionID string `json:"session_id" jsonschema:"description=Session ID to check,required"`
}

// ListSavedSessionsArgs defines arguments for the list_saved_sessions tool
type ListSavedSessionsArgs struct {
	DatasetID string `json:"dataset_id,omitempty" jsonschema:"description=Filter by dataset"`
	Limit     int    `json:"limit,omitempty" jsonschema:"description=Max sessions to return (default: 20)"`
}

// GetSavedSessionArgs defines arguments for the get_saved_session tool
type GetSavedSessionArgs struct {
	SessionID string `json:"session_id" jsonschema:"description=Archived session ID to retrieve,required"`
}

// sessionView is the session projection returned to tools
type sessionView struct {
	SessionID       string                  `json:"session_id"`
	Status          string                  `json:"status"`
	StepCount       int                     `json:"step_count"`
	Insights        []models.Insight        `json:"insights,omitempty"`
	PendingApproval *models.ApprovalRequest `json:"pending_approval,omitempty"`
}

func viewOf(snap *nexus.Snapshot) sessionView {
	return sessionView{
		SessionID:       snap.SessionID,
		Status:          string(snap.Status),
		StepCount:       len(snap.LogEntries),
		Insights:        snap.Insights,
		PendingApproval: snap.PendingApproval,
	}
}

// StartServer starts the MCP server over stdio
func StartServer(cfg *config.Config, dbPath string) error {
	client := nexus.NewClient(cfg.ServerURL,
		nexus.WithAuthToken(cfg.AuthToken),
		nexus.WithHTTPClient(&http.Client{Timeout: cfg.RequestTimeout}),
	)

	database, err := db.New(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if closeErr := database.Close(); closeErr != nil {
			log.Printf("Error closing database: %v", closeErr)
		}
	}()

	s := server.NewMCPServer(
		"NxAgent",
		"1.0.0",
	)

	startTool := mcp.NewTool("start_analysis",
		mcp.WithDescription("Start an autonomous analysis session on a dataset. Runs full_auto by default so no human approval is needed; the call returns the initial session state, not the finished result."),
		mcp.WithString("dataset_id",
			mcp.Required(),
			mcp.Description("Dataset to analyze")),
		mcp.WithString("objective",
			mcp.Description("Free-text analysis goal")),
		mcp.WithString("hitl_mode",
			mcp.Description("Control mode: full_auto, semi_auto, or guided (default: full_auto)")),
	)
	s.AddTool(startTool, makeStartAnalysisHandler(client))

	statusTool := mcp.NewTool("get_session_status",
		mcp.WithDescription("Get the current state of an analysis session: status, step count, insights so far, and any pending approval."),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Session ID to check")),
	)
	s.AddTool(statusTool, makeGetSessionStatusHandler(client))

	listTool := mcp.NewTool("list_saved_sessions",
		mcp.WithDescription("List archived analysis sessions, optionally filtered by dataset. Falls back to the local cache when the backend is unreachable."),
		mcp.WithString("dataset_id",
			mcp.Description("Filter by dataset")),
		mcp.WithNumber("limit",
			mcp.Description("Max sessions to return (default: 20)")),
	)
	s.AddTool(listTool, makeListSavedSessionsHandler(client, database))

	getTool := mcp.NewTool("get_saved_session",
		mcp.WithDescription("Retrieve a full archived session including its reasoning trace and insights."),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Archived session ID to retrieve")),
	)
	s.AddTool(getTool, makeGetSavedSessionHandler(client))

	return server.ServeStdio(s)
}

func makeStartAnalysisHandler(client *nexus.Client) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args StartAnalysisArgs
		argsBytes, _ := json.Marshal(request.Params.Arguments)
		if err := json.Unmarshal(argsBytes, &args); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}
		if args.DatasetID == "" {
			return mcp.NewToolResultError("dataset_id is required"), nil
		}

		// Tool sessions have no human at the keyboard, so default to
		// full_auto rather than the CLI's semi_auto.
		mode := models.ControlMode(args.HITLMode)
		if args.HITLMode == "" {
			mode = models.ModeFullAuto
		}
		if !mode.Valid() {
			return mcp.NewToolResultError(fmt.Sprintf("unknown hitl_mode %q", args.HITLMode)), nil
		}

		snap, err := client.StartAnalysis(ctx, nexus.StartRequest{
			DatasetID:   args.DatasetID,
			Objective:   args.Objective,
			ControlMode: mode,
		})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("start failed: %v", err)), nil
		}

		resultJSON, err := json.Marshal(viewOf(snap))
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to serialize result: %v", err)), nil
		}
		return mcp.NewToolResultText(string(resultJSON)), nil
	}
}

func makeGetSessionStatusHandler(client *nexus.Client) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args GetSessionStatusArgs
		argsBytes, _ := json.Marshal(request.Params.Arguments)
		if err := json.Unmarshal(argsBytes, &args); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}
		if args.SessionID == "" {
			return mcp.NewToolResultError("session_id is required"), nil
		}

		snap, err := client.SessionStatus(ctx, args.SessionID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("status fetch failed: %v", err)), nil
		}

		resultJSON, err := json.Marshal(viewOf(snap))
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to serialize result: %v", err)), nil
		}
		return mcp.NewToolResultText(string(resultJSON)), nil
	}
}

func makeListSavedSessionsHandler(client *nexus.Client, database *db.DB) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args ListSavedSessionsArgs
		argsBytes, _ := json.Marshal(request.Params.Arguments)
		if err := json.Unmarshal(argsBytes, &args); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}

		limit := args.Limit
		if limit == 0 {
			limit = 20
		}

		archive := session.NewArchive(client, database)
		summaries, fromCache, err := archive.List(ctx, args.DatasetID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("list failed: %v", err)), nil
		}
		if len(summaries) > limit {
			summaries = summaries[:limit]
		}

		resultJSON, err := json.Marshal(map[string]interface{}{
			"sessions":   summaries,
			"from_cache": fromCache,
			"count":      len(summaries),
		})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to serialize result: %v", err)), nil
		}
		return mcp.NewToolResultText(string(resultJSON)), nil
	}
}

func makeGetSavedSessionHandler(client *nexus.Client) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args GetSavedSessionArgs
		argsBytes, _ := json.Marshal(request.Params.Arguments)
		if err := json.Unmarshal(argsBytes, &args); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}
		if args.SessionID == "" {
			return mcp.NewToolResultError("session_id is required"), nil
		}

		sess, err := client.GetSession(ctx, args.SessionID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("fetch failed: %v", err)), nil
		}

		resultJSON, err := json.Marshal(sess)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to serialize result: %v", err)), nil
		}
		return mcp.NewToolResultText(string(resultJSON)), nil
	}
}
