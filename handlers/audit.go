// ABOUTME: Audit log MCP tool handlers
// ABOUTME: Implements audit_verify, audit_tail and audit_graph tools
package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harperreed/studysync/audit"
	"github.com/harperreed/studysync/models"
	"github.com/harperreed/studysync/viz"
)

const defaultTail = 20

type AuditHandlers struct {
	log *audit.Log
}

func NewAuditHandlers(log *audit.Log) *AuditHandlers {
	return &AuditHandlers{log: log}
}

type AuditVerifyInput struct{}

type AuditVerifyOutput struct {
	Result models.VerifyResult `json:"result"`
	Hash   string              `json:"hash"`
}

func (h *AuditHandlers) AuditVerify(_ context.Context, request *mcp.CallToolRequest, input AuditVerifyInput) (*mcp.CallToolResult, AuditVerifyOutput, error) {
	return nil, AuditVerifyOutput{
		Result: h.log.Verify(),
		Hash:   h.log.Hasher().Name(),
	}, nil
}

type AuditTailInput struct {
	Limit  int    `json:"limit,omitempty" jsonschema:"Number of newest entries to return (default 20)"`
	Action string `json:"action,omitempty" jsonschema:"Only entries whose action starts with this prefix, e.g. sync. or auth."`
}

type AuditTailOutput struct {
	Entries []models.AuditLogEntry `json:"entries"`
	Count   int                    `json:"count"`
}

func (h *AuditHandlers) AuditTail(_ context.Context, request *mcp.CallToolRequest, input AuditTailInput) (*mcp.CallToolResult, AuditTailOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = defaultTail
	}

	entries := h.log.Entries()
	if input.Action != "" {
		filtered := entries[:0]
		for _, e := range entries {
			if strings.HasPrefix(e.Action, input.Action) {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}
	if len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	if entries == nil {
		entries = []models.AuditLogEntry{}
	}
	return nil, AuditTailOutput{Entries: entries, Count: len(entries)}, nil
}

type AuditGraphInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"Draw only the newest entries (default all)"`
}

type AuditGraphOutput struct {
	DOTSource string `json:"dot_source"`
	NodeCount int    `json:"node_count"`
	EdgeCount int    `json:"edge_count"`
}

func (h *AuditHandlers) AuditGraph(_ context.Context, request *mcp.CallToolRequest, input AuditGraphInput) (*mcp.CallToolResult, AuditGraphOutput, error) {
	dot, err := viz.NewGraphGenerator(input.Limit).GenerateAuditChainGraph(h.log.Entries(), h.log.Verify())
	if err != nil {
		return nil, AuditGraphOutput{}, fmt.Errorf("failed to generate graph: %w", err)
	}

	// Count nodes and edges for stats
	return nil, AuditGraphOutput{
		DOTSource: dot,
		NodeCount: strings.Count(dot, "[label="),
		EdgeCount: strings.Count(dot, "->"),
	}, nil
}
