// ABOUTME: Graphviz rendering of the hash-chained audit log
// ABOUTME: One node per entry, edges follow previousHash, broken links drawn in red
package viz

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"

	"github.com/harperreed/studysync/models"
)

// Output formats for RenderAuditChain.
const (
	FormatDOT = "dot"
	FormatSVG = "svg"
	FormatPNG = "png"
)

var severityColors = map[string]string{
	models.SeverityInfo:     "lightblue",
	models.SeverityWarning:  "lightyellow",
	models.SeverityCritical: "lightpink",
}

// GraphGenerator draws audit chains.
type GraphGenerator struct {
	// Limit keeps only the newest entries; zero draws everything.
	Limit int
}

func NewGraphGenerator(limit int) *GraphGenerator {
	return &GraphGenerator{Limit: limit}
}

// GenerateAuditChainGraph returns DOT source for the chain.
func (g *GraphGenerator) GenerateAuditChainGraph(entries []models.AuditLogEntry, result models.VerifyResult) (string, error) {
	var buf bytes.Buffer
	if err := g.RenderAuditChain(context.Background(), &buf, entries, result, FormatDOT); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderAuditChain writes the chain to w as dot, svg or png.
func (g *GraphGenerator) RenderAuditChain(ctx context.Context, w io.Writer, entries []models.AuditLogEntry, result models.VerifyResult, format string) error {
	var gvFormat graphviz.Format
	switch format {
	case FormatDOT, "":
		gvFormat = graphviz.XDOT
	case FormatSVG:
		gvFormat = graphviz.SVG
	case FormatPNG:
		gvFormat = graphviz.PNG
	default:
		return fmt.Errorf("unsupported graph format %q", format)
	}

	gv, err := graphviz.New(ctx)
	if err != nil {
		return fmt.Errorf("failed to create graphviz instance: %w", err)
	}
	defer func() { _ = gv.Close() }()

	graph, err := gv.Graph()
	if err != nil {
		return fmt.Errorf("failed to create graph: %w", err)
	}
	defer func() { _ = graph.Close() }()

	graph.SetRankDir(cgraph.LRRank)
	graph.SetLabel(chainLabel(result))

	// Indexes in result refer to the full chain.
	offset := 0
	if g.Limit > 0 && len(entries) > g.Limit {
		offset = len(entries) - g.Limit
		entries = entries[offset:]
	}

	var prev *cgraph.Node
	if offset > 0 || result.Truncated > 0 {
		prev, err = graph.CreateNodeByName("anchor")
		if err != nil {
			return fmt.Errorf("failed to create anchor node: %w", err)
		}
		prev.SetLabel(fmt.Sprintf("%d earlier entries", offset+result.Truncated))
		prev.SetShape("note")
	}

	for i, e := range entries {
		idx := offset + i
		node, err := graph.CreateNodeByName(fmt.Sprintf("entry_%d", idx))
		if err != nil {
			return fmt.Errorf("failed to create node: %w", err)
		}
		node.SetLabel(fmt.Sprintf("%s\n%s\n%s", e.Action, e.Timestamp, short(e.Hash)))
		node.SetShape("box")
		node.SetStyle("filled")
		color, ok := severityColors[e.Severity]
		if !ok {
			color = "white"
		}
		node.SetFillColor(color)

		broken := !result.OK && result.BrokenAt == idx
		if broken {
			node.SetColor("red")
		}

		if prev != nil {
			edge, err := graph.CreateEdgeByName(fmt.Sprintf("link_%d", idx), prev, node)
			if err != nil {
				return fmt.Errorf("failed to create edge: %w", err)
			}
			edge.SetLabel(short(e.PreviousHash))
			if broken {
				edge.SetColor("red")
				edge.SetStyle("dashed")
			}
		}
		prev = node
	}

	if err := gv.Render(ctx, graph, gvFormat, w); err != nil {
		return fmt.Errorf("failed to render graph: %w", err)
	}
	return nil
}

func chainLabel(r models.VerifyResult) string {
	if r.OK {
		return fmt.Sprintf("audit chain: %d entries, valid", r.Total)
	}
	return fmt.Sprintf("audit chain: %d entries, broken at %d", r.Total, r.BrokenAt)
}

func short(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
