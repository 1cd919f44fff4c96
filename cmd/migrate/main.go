// ABOUTME: Import utility for moving a browser localStorage dump into the local store
// ABOUTME: Merges wrapped or legacy raw fields into badger with dry-run support

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/harperreed/studysync/audit"
	"github.com/harperreed/studysync/kvstore"
	"github.com/harperreed/studysync/logging"
	"github.com/harperreed/studysync/merge"
	"github.com/harperreed/studysync/models"
	"github.com/harperreed/studysync/sync"
)

func main() {
	in := flag.String("in", "", "Path to the localStorage JSON dump (required)")
	dataDir := flag.String("data-dir", "", "Local data directory (default: from config)")
	dryRun := flag.Bool("dry-run", false, "Show what would happen without making changes")
	all := flag.Bool("all", false, "Import keys outside the tracked fields too")
	flag.Parse()

	logger, err := logging.New(logging.Options{Level: "info"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if *in == "" {
		logger.Fatal("-in flag is required")
	}

	cfg, err := sync.LoadConfig()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}

	if err := run(cfg, *in, *dryRun, *all, logger); err != nil {
		logger.Fatal("import failed", zap.Error(err))
	}
	logger.Info("import completed")
}

func run(cfg *sync.Config, path string, dryRun, all bool, logger *zap.Logger) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read dump: %w", err)
	}
	fields, err := parseDump(raw, cfg.KeyPrefix, all)
	if err != nil {
		return err
	}
	if len(fields) == 0 {
		logger.Warn("dump contains no importable fields", zap.String("path", path))
		return nil
	}

	var store kvstore.Store
	if dryRun {
		store = kvstore.NewMemory()
	} else {
		b, err := kvstore.OpenBadger(cfg.DataPath())
		if err != nil {
			return fmt.Errorf("failed to open local store: %w", err)
		}
		store = b
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = sync.DefaultKeyPrefix
	}
	prefixed := kvstore.WithPrefix(store, prefix)
	defer func() { _ = prefixed.Close() }()

	imported := importFields(prefixed, fields, logger)

	hasher, err := audit.HasherByName(cfg.AuditHash)
	if err != nil {
		return err
	}
	log := audit.New(prefixed, audit.Options{Hasher: hasher, Logger: logger})
	if _, err := log.Append("migrate.import", "local_storage", "", models.SeverityInfo, map[string]any{
		"source": path,
		"fields": imported,
	}); err != nil {
		return fmt.Errorf("failed to record import: %w", err)
	}

	if dryRun {
		logger.Info("dry run, nothing written", zap.Strings("fields", imported))
	}
	return nil
}

// parseDump reads a localStorage dump. Values are usually JSON strings, as
// the browser stores them, but already-decoded values are accepted too.
// Keys may carry the storage prefix.
func parseDump(raw []byte, prefix string, all bool) (map[string]models.SyncField, error) {
	var dump map[string]json.RawMessage
	if err := json.Unmarshal(raw, &dump); err != nil {
		return nil, fmt.Errorf("failed to parse dump: %w", err)
	}

	out := make(map[string]models.SyncField)
	for key, value := range dump {
		name := strings.TrimPrefix(key, prefix)
		if !all && !slices.Contains(models.TrackedFields, name) {
			continue
		}

		var encoded string
		if err := json.Unmarshal(value, &encoded); err == nil {
			out[name] = sync.UnwrapJSON([]byte(encoded))
			continue
		}
		out[name] = sync.UnwrapJSON(value)
	}
	return out, nil
}

// importFields merges each dumped field with whatever is already stored,
// so importing never loses newer local edits.
func importFields(store kvstore.Store, fields map[string]models.SyncField, logger *zap.Logger) []string {
	local := sync.NewLocalState(store, logger)
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	slices.Sort(names)

	snap := models.NewSnapshot()
	for _, name := range names {
		existing := local.Field(name)
		merged := merge.MergeField(existing, fields[name])
		snap.Fields[name] = merged
		logger.Info("importing field",
			zap.String("field", name),
			zap.String("dump_updated_at", fields[name].UpdatedAt),
			zap.String("merged_updated_at", merged.UpdatedAt))
	}
	local.ApplyReconciledPayload(snap)
	return names
}
