// ABOUTME: MCP server subcommand
// ABOUTME: Serves the sync and audit tools over stdio while the scheduler runs
package cli

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/harperreed/studysync/handlers"
)

// MCPCommand starts the MCP server on stdio. Background sync runs for the
// lifetime of the session.
func MCPCommand(ctx context.Context, app *App, version string) error {
	app.Logger.Info("starting studysync MCP server", zap.String("version", version))

	app.Orch.Start(ctx)
	defer app.Orch.Stop()

	server := handlers.NewServer(app.Orch, version)
	return server.Run(ctx, &mcp.StdioTransport{})
}
