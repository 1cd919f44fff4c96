// ABOUTME: Local field and offline merge commands
// ABOUTME: field get/set/list edit device state, merge reconciles two snapshot files
package cli

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/harperreed/studysync/merge"
	"github.com/harperreed/studysync/models"
	"github.com/harperreed/studysync/sync"
)

// FieldCommand routes field subcommands.
func FieldCommand(app *App, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: studysync field <get|set|list> [args]")
	}
	switch args[0] {
	case "get":
		return fieldGet(app.Orch.Local(), os.Stdout, args[1:])
	case "set":
		return fieldSet(app.Orch.Local(), os.Stdout, args[1:])
	case "list":
		return fieldList(app.Orch.Local(), os.Stdout)
	}
	return fmt.Errorf("unknown field command: %s", args[0])
}

func fieldGet(local *sync.LocalState, w io.Writer, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: studysync field get <name>")
	}
	out, err := json.MarshalIndent(local.Field(args[0]), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode field: %w", err)
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}

// fieldSet stores a JSON value, stamped with the current time.
func fieldSet(local *sync.LocalState, w io.Writer, args []string) error {
	fs := flag.NewFlagSet("field set", flag.ContinueOnError)
	force := fs.Bool("force", false, "Allow names outside the tracked fields")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return fmt.Errorf("usage: studysync field set [--force] <name> <json>")
	}
	name, raw := fs.Arg(0), fs.Arg(1)
	if !*force && !slices.Contains(models.TrackedFields, name) {
		return fmt.Errorf("unknown field %q (tracked: %v)", name, models.TrackedFields)
	}

	var data any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return fmt.Errorf("value is not valid JSON: %w", err)
	}
	f := local.SetField(name, data)
	_, err := fmt.Fprintf(w, "✓ %s updated at %s\n", name, f.UpdatedAt)
	return err
}

func fieldList(local *sync.LocalState, w io.Writer) error {
	snap := local.BuildLocalPayload()
	for _, name := range models.TrackedFields {
		f := snap.Field(name)
		ts := f.UpdatedAt
		if ts == "" {
			ts = "never"
		}
		if _, err := fmt.Fprintf(w, "  %-10s %s\n", name, ts); err != nil {
			return err
		}
	}
	return nil
}

// MergeCommand reconciles two snapshot files and prints the result. It
// touches neither the local store nor the remote.
func MergeCommand(args []string) error {
	fs := flag.NewFlagSet("merge", flag.ContinueOnError)
	output := fs.String("output", "", "Write the merged snapshot to this file instead of stdout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return fmt.Errorf("usage: studysync merge [--output file] <local.json> <remote.json>")
	}

	local, err := readSnapshot(fs.Arg(0))
	if err != nil {
		return err
	}
	remote, err := readSnapshot(fs.Arg(1))
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(merge.MergeData(local, remote), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode merged snapshot: %w", err)
	}
	out = append(out, '\n')

	if *output == "" {
		_, err = os.Stdout.Write(out)
		return err
	}
	if err := os.WriteFile(*output, out, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", *output, err)
	}
	fmt.Printf("✓ Merged snapshot written to %s\n", *output)
	return nil
}

// readSnapshot accepts either a snapshot object or a bare map of fields.
// Bare values go through the same unwrapping as stored fields.
func readSnapshot(path string) (models.SyncSnapshot, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return models.SyncSnapshot{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return models.SyncSnapshot{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	snap := models.NewSnapshot()
	if fields, ok := probe["fields"]; ok {
		var m map[string]json.RawMessage
		if err := json.Unmarshal(fields, &m); err != nil {
			return models.SyncSnapshot{}, fmt.Errorf("failed to parse fields in %s: %w", path, err)
		}
		probe = m
	}
	for name, value := range probe {
		snap.Fields[name] = sync.UnwrapJSON(value)
	}
	for _, f := range snap.Fields {
		snap.UpdatedAt = merge.LatestTimestamp(snap.UpdatedAt, f.UpdatedAt)
	}
	return snap, nil
}
