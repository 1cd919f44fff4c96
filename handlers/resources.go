// ABOUTME: MCP resource handlers for exposing sync state
// ABOUTME: Provides read-only access to status, the local snapshot and the audit log via URI
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harperreed/studysync/audit"
	"github.com/harperreed/studysync/sync"
)

const resourceScheme = "studysync://"

type ResourceHandlers struct {
	orch *sync.Orchestrator
}

func NewResourceHandlers(o *sync.Orchestrator) *ResourceHandlers {
	return &ResourceHandlers{orch: o}
}

// ReadResource handles resource read requests
func (h *ResourceHandlers) ReadResource(ctx context.Context, request *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	uri := request.Params.URI
	if !strings.HasPrefix(uri, resourceScheme) {
		return nil, fmt.Errorf("invalid URI scheme: expected %s", resourceScheme)
	}

	switch strings.TrimPrefix(uri, resourceScheme) {
	case "status":
		return jsonResource(uri, h.orch.Status())
	case "snapshot":
		return jsonResource(uri, h.orch.Local().BuildLocalPayload())
	case "queue":
		return jsonResource(uri, h.orch.Queue().Entries())
	case "audit":
		data, err := audit.Encode(h.orch.Audit().Entries(), audit.FormatJSON)
		if err != nil {
			return nil, err
		}
		return textResource(uri, "application/json", string(data)), nil
	default:
		return nil, fmt.Errorf("unknown resource: %s", uri)
	}
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", uri, err)
	}
	return textResource(uri, "application/json", string(data)), nil
}

func textResource(uri, mime, text string) *mcp.ReadResourceResult {
	return &mcp.ReadResourceResult{Contents: []*mcp.ResourceContents{
		{
			URI:      uri,
			MIMEType: mime,
			Text:     text,
		},
	}}
}
