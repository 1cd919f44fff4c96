// ABOUTME: Merge MCP tool handler
// ABOUTME: Implements merge_snapshots for previewing a reconcile without touching state
package handlers

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harperreed/studysync/merge"
	"github.com/harperreed/studysync/models"
)

type MergeSnapshotsInput struct {
	Local  *models.SyncSnapshot `json:"local" jsonschema:"Local snapshot (fields map plus updatedAt)"`
	Remote *models.SyncSnapshot `json:"remote,omitempty" jsonschema:"Remote snapshot; omit when the remote has no row"`
}

type MergeSnapshotsOutput struct {
	Merged models.SyncSnapshot `json:"merged"`
}

// MergeSnapshots is stateless; it previews what a pull would write locally.
func MergeSnapshots(_ context.Context, request *mcp.CallToolRequest, input MergeSnapshotsInput) (*mcp.CallToolResult, MergeSnapshotsOutput, error) {
	if input.Local == nil {
		return nil, MergeSnapshotsOutput{}, fmt.Errorf("local is required")
	}
	remote := models.NewSnapshot()
	if input.Remote != nil {
		remote = *input.Remote
	}
	return nil, MergeSnapshotsOutput{Merged: merge.MergeData(*input.Local, remote)}, nil
}
