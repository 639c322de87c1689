// Package mcp exposes the issue board as MCP tools so agents can search,
// create, and triage issues with the same duplicate-check guard the CLI
// applies.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/mfeld/trk/internal/dedupe"
	"github.com/mfeld/trk/internal/models"
	"github.com/mfeld/trk/internal/store"
)

// Server wraps the trk data layer and exposes it as MCP tools.
type Server struct {
	store    store.Store
	detector *dedupe.Detector

	checkEnabled bool
}

// NewServer creates the MCP server wrapper.
func NewServer(s store.Store, checkEnabled bool) *Server {
	return &Server{
		store:        s,
		detector:     dedupe.NewDetector(s, 0),
		checkEnabled: checkEnabled,
	}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("trk", "1.0.0", server.WithToolCapabilities(true))

	srv.AddTool(s.listIssuesTool())
	srv.AddTool(s.createIssueTool())
	srv.AddTool(s.checkDuplicatesTool())
	srv.AddTool(s.updateStatusTool())
	srv.AddTool(s.listUsersTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

type issueOut struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Status      string   `json:"status"`
	Priority    string   `json:"priority"`
	AssignedTo  string   `json:"assigned_to,omitempty"`
	CreatedBy   string   `json:"created_by"`
	Keywords    []string `json:"keywords"`
	CreatedAt   string   `json:"created_at"`
	UpdatedAt   string   `json:"updated_at"`
}

func toIssueOut(issue *models.Issue) issueOut {
	return issueOut{
		ID:          issue.ID,
		Title:       issue.Title,
		Description: issue.Description,
		Status:      string(issue.Status),
		Priority:    string(issue.Priority),
		AssignedTo:  issue.AssignedTo,
		CreatedBy:   issue.CreatedBy,
		Keywords:    issue.Keywords,
		CreatedAt:   issue.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   issue.UpdatedAt.Format(time.RFC3339),
	}
}

type candidateOut struct {
	Issue issueOut `json:"issue"`
	Score float64  `json:"score"`
}

func toCandidateOut(candidates []dedupe.Candidate) []candidateOut {
	out := make([]candidateOut, len(candidates))
	for i, c := range candidates {
		out[i] = candidateOut{Issue: toIssueOut(c.Issue), Score: c.Score}
	}
	return out
}

// trk_list_issues
func (s *Server) listIssuesTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("trk_list_issues",
		mcp.WithDescription("List issues on the board, optionally filtered by status, priority, or assignee. Returns a JSON array of issues with id, title, description, status (open/in_progress/done), priority (low/medium/high), assignee, and creator."),
		mcp.WithString("status", mcp.Description("Status filter: open, in_progress, done")),
		mcp.WithString("priority", mcp.Description("Priority filter: low, medium, high")),
		mcp.WithString("assigned_to", mcp.Description("Assignee email to filter by")),
	)
	return tool, s.handleListIssues
}

func (s *Server) handleListIssues(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter := store.IssueListFilter{
		Status:     models.IssueStatus(request.GetString("status", "")),
		Priority:   models.IssuePriority(request.GetString("priority", "")),
		AssignedTo: request.GetString("assigned_to", ""),
	}

	issues, err := s.store.ListIssues(ctx, filter)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list issues: %v", err)), nil
	}

	out := make([]issueOut, len(issues))
	for i, issue := range issues {
		out[i] = toIssueOut(issue)
	}

	data, err := json.Marshal(out)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal issues: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// trk_create_issue
func (s *Server) createIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("trk_create_issue",
		mcp.WithDescription("Create a new issue. Runs a duplicate check first: if similar issues exist the result lists them instead of creating, and the call must be repeated with force=true to create anyway."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Issue title")),
		mcp.WithString("description", mcp.Description("Issue description")),
		mcp.WithString("priority", mcp.Description("Priority: low, medium, high (default medium)")),
		mcp.WithString("assigned_to", mcp.Description("Assignee email")),
		mcp.WithString("created_by", mcp.Description("Creator email; omitted means anonymous")),
		mcp.WithBoolean("force", mcp.Description("Create even if similar issues exist")),
	)
	return tool, s.handleCreateIssue
}

func (s *Server) handleCreateIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := request.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: title"), nil
	}

	force := request.GetBool("force", false)
	if s.checkEnabled && !force {
		if has, candidates := s.detector.Detect(ctx, title); has {
			data, _ := json.Marshal(map[string]any{
				"created":    false,
				"duplicates": toCandidateOut(candidates),
				"hint":       "similar issues already exist; call again with force=true to create anyway",
			})
			return mcp.NewToolResultText(string(data)), nil
		}
	}

	priority := models.IssuePriority(request.GetString("priority", string(models.IssuePriorityMedium)))
	if !models.ValidPriority(priority) {
		return mcp.NewToolResultError(fmt.Sprintf("unknown priority: %s", priority)), nil
	}

	createdBy := request.GetString("created_by", "")
	if createdBy == "" {
		createdBy = models.AnonymousCreator
	}

	issue := &models.Issue{
		Title:       title,
		Description: request.GetString("description", ""),
		Status:      models.IssueStatusOpen,
		Priority:    priority,
		AssignedTo:  request.GetString("assigned_to", ""),
		Keywords:    dedupe.ExtractKeywords(title),
		CreatedBy:   createdBy,
	}
	if err := s.store.CreateIssue(ctx, issue); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to create issue: %v", err)), nil
	}

	data, _ := json.Marshal(map[string]any{
		"created": true,
		"issue":   toIssueOut(issue),
	})
	return mcp.NewToolResultText(string(data)), nil
}

// trk_check_duplicates
func (s *Server) checkDuplicatesTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("trk_check_duplicates",
		mcp.WithDescription("Check whether a candidate issue title is a likely duplicate of issues already on the board, without creating anything. Returns matches ranked by similarity."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Candidate issue title")),
	)
	return tool, s.handleCheckDuplicates
}

func (s *Server) handleCheckDuplicates(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := request.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: title"), nil
	}

	has, candidates := s.detector.Detect(ctx, title)
	data, _ := json.Marshal(map[string]any{
		"has_duplicates": has,
		"candidates":     toCandidateOut(candidates),
	})
	return mcp.NewToolResultText(string(data)), nil
}

// trk_update_status
func (s *Server) updateStatusTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("trk_update_status",
		mcp.WithDescription("Update an issue's status. Moving open -> done directly is rejected; issues must pass through in_progress."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Issue ID")),
		mcp.WithString("status", mcp.Required(), mcp.Description("New status: open, in_progress, done")),
	)
	return tool, s.handleUpdateStatus
}

func (s *Server) handleUpdateStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: id"), nil
	}
	statusStr, err := request.RequireString("status")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: status"), nil
	}

	status := models.IssueStatus(statusStr)
	if !models.ValidStatus(status) {
		return mcp.NewToolResultError(fmt.Sprintf("unknown status: %s", statusStr)), nil
	}

	if err := s.store.UpdateIssueStatus(ctx, id, status); err != nil {
		if errors.Is(err, store.ErrInvalidTransition) {
			return mcp.NewToolResultError(fmt.Sprintf("transition rejected: %v", err)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("failed to update status: %v", err)), nil
	}

	issue, err := s.store.GetIssue(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to reload issue: %v", err)), nil
	}

	data, _ := json.Marshal(toIssueOut(issue))
	return mcp.NewToolResultText(string(data)), nil
}

// trk_list_users
func (s *Server) listUsersTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("trk_list_users",
		mcp.WithDescription("List registered board users. Returns a JSON array with email and display name."),
	)
	return tool, s.handleListUsers
}

func (s *Server) handleListUsers(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list users: %v", err)), nil
	}

	type userOut struct {
		Email string `json:"email"`
		Name  string `json:"name,omitempty"`
	}
	out := make([]userOut, len(users))
	for i, u := range users {
		out[i] = userOut{Email: u.Email, Name: u.Name}
	}

	data, err := json.Marshal(out)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal users: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
