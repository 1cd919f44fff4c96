// ABOUTME: Sync MCP tool handlers
// ABOUTME: Implements sync_status, sync_push, sync_pull and sync_flush tools
package handlers

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harperreed/studysync/sync"
)

type SyncHandlers struct {
	orch *sync.Orchestrator
}

func NewSyncHandlers(o *sync.Orchestrator) *SyncHandlers {
	return &SyncHandlers{orch: o}
}

type SyncStatusInput struct{}

type SyncStatusOutput struct {
	Status   sync.StatusReport `json:"status"`
	DeviceID string            `json:"device_id,omitempty"`
}

func (h *SyncHandlers) SyncStatus(_ context.Context, request *mcp.CallToolRequest, input SyncStatusInput) (*mcp.CallToolResult, SyncStatusOutput, error) {
	return nil, SyncStatusOutput{
		Status:   h.orch.Status(),
		DeviceID: h.orch.Config().DeviceID,
	}, nil
}

type SyncPushInput struct {
	Trigger string `json:"trigger,omitempty" jsonschema:"What requested the push (default manual)"`
}

// SyncOutput wraps a sync result with the queue depth afterwards.
type SyncOutput struct {
	Result     sync.SyncResult `json:"result"`
	QueueDepth int             `json:"queue_depth"`
}

func (h *SyncHandlers) SyncPush(ctx context.Context, request *mcp.CallToolRequest, input SyncPushInput) (*mcp.CallToolResult, SyncOutput, error) {
	trigger := input.Trigger
	if trigger == "" {
		trigger = sync.TriggerManual
	}
	return nil, h.output(h.orch.PushToRemote(ctx, trigger)), nil
}

type SyncPullInput struct{}

func (h *SyncHandlers) SyncPull(ctx context.Context, request *mcp.CallToolRequest, input SyncPullInput) (*mcp.CallToolResult, SyncOutput, error) {
	return nil, h.output(h.orch.PullFromRemote(ctx)), nil
}

type SyncFlushInput struct{}

func (h *SyncHandlers) SyncFlush(ctx context.Context, request *mcp.CallToolRequest, input SyncFlushInput) (*mcp.CallToolResult, SyncOutput, error) {
	return nil, h.output(h.orch.FlushRetryQueue(ctx)), nil
}

func (h *SyncHandlers) output(res sync.SyncResult) SyncOutput {
	return SyncOutput{Result: res, QueueDepth: h.orch.Queue().Len()}
}
