// ABOUTME: MCP server assembly for studysync
// ABOUTME: Registers sync and audit tools, resources and prompts on one server
package handlers

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harperreed/studysync/sync"
)

// NewServer builds an MCP server exposing o.
func NewServer(o *sync.Orchestrator, version string) *mcp.Server {
	syncHandlers := NewSyncHandlers(o)
	auditHandlers := NewAuditHandlers(o.Audit())
	resourceHandlers := NewResourceHandlers(o)
	promptHandlers := NewPromptHandlers(o)

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "studysync",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "sync_status",
		Description: "Show sign-in state, connectivity, retry queue depth and audit chain health",
	}, syncHandlers.SyncStatus)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "sync_push",
		Description: "Push local study progress to the remote",
	}, syncHandlers.SyncPush)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "sync_pull",
		Description: "Fetch the remote row, merge it with local progress and apply the result",
	}, syncHandlers.SyncPull)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "sync_flush",
		Description: "Retry queued syncs that failed while offline",
	}, syncHandlers.SyncFlush)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "audit_verify",
		Description: "Verify the audit log hash chain and report the first broken entry",
	}, auditHandlers.AuditVerify)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "audit_tail",
		Description: "Return the newest audit log entries, optionally filtered by action prefix",
	}, auditHandlers.AuditTail)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "audit_graph",
		Description: "Render the audit chain as GraphViz DOT source",
	}, auditHandlers.AuditGraph)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "merge_snapshots",
		Description: "Preview merging two study snapshots field by field without changing any state",
	}, MergeSnapshots)

	for _, r := range []struct{ uri, name, desc string }{
		{"studysync://status", "status", "Current sync status"},
		{"studysync://snapshot", "snapshot", "Local study snapshot"},
		{"studysync://queue", "queue", "Pending retry queue entries"},
		{"studysync://audit", "audit", "Full audit log"},
	} {
		server.AddResource(&mcp.Resource{
			URI:         r.uri,
			Name:        r.name,
			Description: r.desc,
			MIMEType:    "application/json",
		}, resourceHandlers.ReadResource)
	}

	server.AddPrompt(&mcp.Prompt{
		Name:        "sync-health",
		Description: "Assess whether local progress is reaching the remote",
	}, promptHandlers.GetPrompt)

	server.AddPrompt(&mcp.Prompt{
		Name:        "audit-review",
		Description: "Review recent audit entries for failures and policy violations",
		Arguments: []*mcp.PromptArgument{
			{Name: "severity", Description: "Only include entries of this severity (info, warning, critical)"},
		},
	}, promptHandlers.GetPrompt)

	return server
}
