// ABOUTME: Audit log CLI commands
// ABOUTME: verify, tail, export in table and graph formats, and the chain graph
package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/harperreed/studysync/audit"
	"github.com/harperreed/studysync/models"
	"github.com/harperreed/studysync/viz"
)

// AuditCommand routes audit subcommands.
func AuditCommand(ctx context.Context, app *App, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: studysync audit <verify|tail|export|graph> [args]")
	}
	switch args[0] {
	case "verify":
		return auditVerify(app.Audit, os.Stdout)
	case "tail":
		return auditTail(app.Audit, os.Stdout, args[1:])
	case "export":
		return auditExport(ctx, app.Audit, os.Stdout, args[1:])
	case "graph":
		return auditGraph(ctx, app.Audit, os.Stdout, args[1:])
	}
	return fmt.Errorf("unknown audit command: %s", args[0])
}

func auditVerify(log *audit.Log, w io.Writer) error {
	res := log.Verify()
	if res.OK {
		_, _ = fmt.Fprintf(w, "✓ Audit chain valid (%d entries, %s)\n", res.Total, log.Hasher().Name())
		if res.Truncated > 0 {
			_, _ = fmt.Fprintf(w, "  %d older entries were dropped; the chain is anchored after them\n", res.Truncated)
		}
		return nil
	}
	if res.Corrupt {
		_, _ = fmt.Fprintln(w, "✗ Audit log is unreadable; it will be moved aside on the next append")
		return fmt.Errorf("audit chain verification failed")
	}
	_, _ = fmt.Fprintf(w, "✗ Audit chain broken at entry %d of %d\n", res.BrokenAt, res.Total)
	_, _ = fmt.Fprintf(w, "  expected: %s\n", res.ExpectedHash)
	_, _ = fmt.Fprintf(w, "  observed: %s\n", res.ObservedHash)
	return fmt.Errorf("audit chain verification failed")
}

func auditTail(log *audit.Log, w io.Writer, args []string) error {
	fs := flag.NewFlagSet("audit tail", flag.ContinueOnError)
	limit := fs.Int("limit", 20, "Number of entries to show")
	action := fs.String("action", "", "Only show actions with this prefix")
	if err := fs.Parse(args); err != nil {
		return err
	}

	entries := log.Entries()
	if *action != "" {
		filtered := entries[:0:0]
		for _, e := range entries {
			if strings.HasPrefix(e.Action, *action) {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}
	if *limit > 0 && len(entries) > *limit {
		entries = entries[len(entries)-*limit:]
	}

	if len(entries) == 0 {
		_, _ = fmt.Fprintln(w, "No audit entries")
		return nil
	}
	for _, e := range entries {
		_, _ = fmt.Fprintf(w, "%s  %-8s %-24s %s\n", e.Timestamp, severityMark(e.Severity), e.Action, resourceLabel(e))
	}
	return nil
}

func auditExport(ctx context.Context, log *audit.Log, w io.Writer, args []string) error {
	fs := flag.NewFlagSet("audit export", flag.ContinueOnError)
	format := fs.String("format", audit.FormatJSON, "Output format: csv, json, yaml, dot, svg or png")
	output := fs.String("output", "", "Write to this file instead of stdout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *output != "" {
		f, err := os.Create(*output)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", *output, err)
		}
		defer func() { _ = f.Close() }()
		w = f
	}

	switch *format {
	case viz.FormatDOT, viz.FormatSVG, viz.FormatPNG:
		return viz.NewGraphGenerator(0).RenderAuditChain(ctx, w, log.Entries(), log.Verify(), *format)
	}

	data, err := log.Export(*format)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func auditGraph(ctx context.Context, log *audit.Log, w io.Writer, args []string) error {
	fs := flag.NewFlagSet("audit graph", flag.ContinueOnError)
	limit := fs.Int("limit", 25, "Newest entries to draw (0 for all)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	dot, err := viz.NewGraphGenerator(*limit).GenerateAuditChainGraph(log.Entries(), log.Verify())
	if err != nil {
		return fmt.Errorf("failed to generate graph: %w", err)
	}
	_, err = fmt.Fprintln(w, dot)
	return err
}

func severityMark(s string) string {
	switch s {
	case models.SeverityCritical:
		return "✗ crit"
	case models.SeverityWarning:
		return "⚠ warn"
	}
	return "  info"
}

func resourceLabel(e models.AuditLogEntry) string {
	if e.ResourceID == "" {
		return e.ResourceType
	}
	return e.ResourceType + "/" + e.ResourceID
}
