// ABOUTME: MCP prompt handlers for sync troubleshooting workflows
// ABOUTME: Builds prompts from the live status, retry queue and audit chain
package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harperreed/studysync/sync"
)

type PromptHandlers struct {
	orch *sync.Orchestrator
}

func NewPromptHandlers(o *sync.Orchestrator) *PromptHandlers {
	return &PromptHandlers{orch: o}
}

// GetPrompt generates the prompt message based on the template
func (h *PromptHandlers) GetPrompt(ctx context.Context, request *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	switch request.Params.Name {
	case "sync-health":
		return h.getSyncHealthPrompt()
	case "audit-review":
		return h.getAuditReviewPrompt(request.Params.Arguments)
	default:
		return nil, fmt.Errorf("unknown prompt: %s", request.Params.Name)
	}
}

func (h *PromptHandlers) getSyncHealthPrompt() (*mcp.GetPromptResult, error) {
	st := h.orch.Status()

	var promptText strings.Builder
	promptText.WriteString("Sync status for this device:\n\n")
	promptText.WriteString(fmt.Sprintf("Remote: %s (configured: %t, online: %t)\n", st.Remote, st.Configured, st.Online))
	if st.LoggedIn && st.User != nil {
		promptText.WriteString(fmt.Sprintf("Signed in as: %s\n", st.User.ID))
	} else {
		promptText.WriteString("Signed in: no\n")
	}
	if st.LastSyncedAt != "" {
		promptText.WriteString(fmt.Sprintf("Last synced: %s\n", st.LastSyncedAt))
	}
	promptText.WriteString(fmt.Sprintf("Retry queue: %d entries\n", st.QueueDepth))
	for _, e := range h.orch.Queue().Entries() {
		promptText.WriteString(fmt.Sprintf("  - %s queued at %s\n", e.Reason, e.QueuedAt))
	}
	promptText.WriteString(fmt.Sprintf("Audit chain: ok=%t, %d entries\n", st.Audit.OK, st.Audit.Total))

	promptText.WriteString("\nPlease assess sync health and provide:")
	promptText.WriteString("\n1. Whether local progress is safely reaching the remote")
	promptText.WriteString("\n2. The likely cause of any queued or failed syncs")
	promptText.WriteString("\n3. Which sync tool to run next, if any")

	return &mcp.GetPromptResult{
		Description: "Sync health check",
		Messages: []*mcp.PromptMessage{
			{
				Role: "user",
				Content: &mcp.TextContent{
					Text: promptText.String(),
				},
			},
		},
	}, nil
}

func (h *PromptHandlers) getAuditReviewPrompt(args map[string]string) (*mcp.GetPromptResult, error) {
	severity := args["severity"]

	var promptText strings.Builder
	promptText.WriteString("Recent audit log entries:\n\n")
	count := 0
	for _, e := range h.orch.Audit().Tail(50) {
		if severity != "" && e.Severity != severity {
			continue
		}
		count++
		promptText.WriteString(fmt.Sprintf("- %s [%s] %s %s/%s\n", e.Timestamp, e.Severity, e.Action, e.ResourceType, e.ResourceID))
	}
	if count == 0 {
		promptText.WriteString("(no matching entries)\n")
	}

	promptText.WriteString("\nPlease review these entries and point out:")
	promptText.WriteString("\n1. Policy violations or repeated failures")
	promptText.WriteString("\n2. Gaps between sign-in and the first successful sync")

	return &mcp.GetPromptResult{
		Description: "Audit log review",
		Messages: []*mcp.PromptMessage{
			{
				Role: "user",
				Content: &mcp.TextContent{
					Text: promptText.String(),
				},
			},
		},
	}, nil
}
