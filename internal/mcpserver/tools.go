package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/kandev/agentfleet/internal/agent/agents"
	"github.com/kandev/agentfleet/internal/api/service"
	apperrors "github.com/kandev/agentfleet/internal/common/errors"
	"github.com/kandev/agentfleet/internal/common/logger"
	v1 "github.com/kandev/agentfleet/pkg/api/v1"
)

func registerTools(s *server.MCPServer, svc *service.Service, log *logger.Logger) {
	s.AddTool(
		mcp.NewTool("spawn_agent",
			mcp.WithDescription("Start a coding agent CLI in the background under a task. Returns the agent_id to poll with agent_status."),
			mcp.WithString("task_name",
				mcp.Required(),
				mcp.Description("Groups agents so they can be listed and stopped together"),
			),
			mcp.WithString("agent_type",
				mcp.Required(),
				mcp.Description("Which vendor CLI to run"),
				mcp.Enum(agents.TypeNames()...),
			),
			mcp.WithString("prompt",
				mcp.Required(),
				mcp.Description("The instruction passed to the agent"),
			),
			mcp.WithString("cwd",
				mcp.Description("Working directory for the agent. Defaults to the server's directory."),
			),
			mcp.WithString("mode",
				mcp.Description("edit lets the agent modify files, plan keeps it read-only"),
				mcp.Enum(string(agents.ModeEdit), string(agents.ModePlan)),
			),
			mcp.WithString("model",
				mcp.Description("Model identifier passed verbatim to the CLI"),
			),
			mcp.WithBoolean("ralph",
				mcp.Description("Run autonomously through the RALPH.md checklist in cwd. Requires edit mode."),
			),
		),
		spawnAgentHandler(svc, log),
	)

	s.AddTool(
		mcp.NewTool("agent_status",
			mcp.WithDescription("Report what the task's agents are doing: status, duration, bash commands, files touched and recent messages."),
			mcp.WithString("task_name",
				mcp.Required(),
				mcp.Description("The task to inspect"),
			),
			mcp.WithString("filter",
				mcp.Description("all (default), running, or a specific agent_id"),
			),
		),
		agentStatusHandler(svc, log),
	)

	s.AddTool(
		mcp.NewTool("stop_agent",
			mcp.WithDescription("Stop a running agent. Returns stopped=false if it already finished."),
			mcp.WithString("task_name",
				mcp.Required(),
				mcp.Description("The task the agent belongs to"),
			),
			mcp.WithString("agent_id",
				mcp.Required(),
				mcp.Description("The agent to stop"),
			),
		),
		stopAgentHandler(svc, log),
	)

	s.AddTool(
		mcp.NewTool("list_agent_types",
			mcp.WithDescription("List the supported agent CLIs and whether each is installed."),
		),
		listAgentTypesHandler(svc),
	)
}

func spawnAgentHandler(svc *service.Service, log *logger.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		taskName, err := req.RequireString("task_name")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		agentType, err := req.RequireString("agent_type")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		prompt, err := req.RequireString("prompt")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		resp, err := svc.Spawn(ctx, v1.SpawnAgentRequest{
			TaskName:  taskName,
			AgentType: agentType,
			Prompt:    prompt,
			Cwd:       req.GetString("cwd", ""),
			Mode:      req.GetString("mode", ""),
			Model:     req.GetString("model", ""),
			Ralph:     req.GetBool("ralph", false),
		})
		if err != nil {
			log.Debug("spawn_agent failed", zap.String("task_name", taskName), zap.Error(err))
			return errorResult(err), nil
		}
		return jsonResult(resp)
	}
}

func agentStatusHandler(svc *service.Service, log *logger.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		taskName, err := req.RequireString("task_name")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		resp, err := svc.Status(ctx, taskName, req.GetString("filter", ""))
		if err != nil {
			return errorResult(err), nil
		}
		return jsonResult(resp)
	}
}

func stopAgentHandler(svc *service.Service, log *logger.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		taskName, err := req.RequireString("task_name")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		agentID, err := req.RequireString("agent_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		resp, err := svc.Stop(ctx, taskName, agentID)
		if err != nil {
			log.Debug("stop_agent failed", zap.String("agent_id", agentID), zap.Error(err))
			return errorResult(err), nil
		}
		return jsonResult(resp)
	}
}

func listAgentTypesHandler(svc *service.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return jsonResult(svc.AgentTypes(ctx))
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	formatted, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to format response: %v", err)), nil
	}
	return mcp.NewToolResultText(string(formatted)), nil
}

// errorResult renders an AppError as "CODE: message" so agents can branch on the code.
func errorResult(err error) *mcp.CallToolResult {
	appErr := apperrors.AsAppError(err)
	msg := appErr.Message
	if appErr.Err != nil && !strings.Contains(msg, appErr.Err.Error()) {
		msg += ": " + appErr.Err.Error()
	}
	return mcp.NewToolResultError(appErr.Code + ": " + msg)
}
