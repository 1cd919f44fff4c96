// ABOUTME: Entry point for the studysync CLI, daemon and MCP server
// ABOUTME: Routes to sync, audit, backend and interface commands based on arguments
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/harperreed/studysync/cli"
	"github.com/harperreed/studysync/logging"
	"github.com/harperreed/studysync/sync"
)

const version = "0.2.0"

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	// Global flags
	showVersion := flag.Bool("version", false, "Show version and exit")
	dataDir := flag.String("data-dir", "", "Local data directory (default: ~/.local/share/studysync/data)")

	// Parse global flags but don't fail on unknown (for subcommands)
	_ = flag.CommandLine.Parse(os.Args[1:])

	if *showVersion {
		fmt.Printf("studysync version %s\n", version)
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(0)
	}

	command := args[0]
	commandArgs := args[1:]

	cfg, err := sync.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}

	ctx := context.Background()

	switch command {
	// Commands that never touch the local store
	case "init":
		run(cli.InitCommand(cfg, commandArgs))
	case "merge":
		run(cli.MergeCommand(commandArgs))
	case "serve":
		logger, err := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
		if err != nil {
			log.Fatalf("Failed to start logger: %v", err)
		}
		err = cli.ServeCommand(ctx, cfg, logger, commandArgs)
		_ = logger.Sync()
		run(err)

	// MCP server: stdout is the protocol, keep logs off it
	case "mcp":
		app := open(cfg, cli.Options{Quiet: true})
		finish(app, cli.MCPCommand(ctx, app, version))

	case "tui":
		app := open(cfg, cli.Options{Quiet: true})
		finish(app, cli.TUICommand(ctx, app, commandArgs))

	case "login", "logout", "status", "push", "pull", "flush", "daemon",
		"field", "audit", "dashboard", "charm":
		app := open(cfg, cli.Options{})
		finish(app, dispatch(ctx, app, command, commandArgs))

	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func dispatch(ctx context.Context, app *cli.App, command string, args []string) error {
	switch command {
	case "login":
		return cli.LoginCommand(ctx, app, args)
	case "logout":
		return cli.LogoutCommand(ctx, app, args)
	case "status":
		return cli.StatusCommand(app, args)
	case "push":
		return cli.PushCommand(ctx, app, args)
	case "pull":
		return cli.PullCommand(ctx, app, args)
	case "flush":
		return cli.FlushCommand(ctx, app, args)
	case "daemon":
		return cli.DaemonCommand(ctx, app, args)
	case "field":
		return cli.FieldCommand(app, args)
	case "audit":
		return cli.AuditCommand(ctx, app, args)
	case "dashboard":
		return cli.DashboardCommand(app, args)
	case "charm":
		return cli.CharmCommand(ctx, app, args)
	}
	return fmt.Errorf("unknown command: %s", command)
}

func open(cfg *sync.Config, opts cli.Options) *cli.App {
	app, err := cli.OpenApp(cfg, opts)
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}
	return app
}

// finish closes the app before run can exit; deferred calls do not survive
// os.Exit.
func finish(app *cli.App, err error) {
	if cerr := app.Close(); cerr != nil {
		log.Printf("Warning: failed to close cleanly: %v", cerr)
	}
	run(err)
}

// run exits non-zero on error.
func run(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf(`studysync v%s - Offline-first study progress sync

USAGE:
  studysync [global flags] <command> [subcommand] [flags]

GLOBAL FLAGS:
  --version              Show version and exit
  --data-dir <path>      Local data directory (default: ~/.local/share/studysync/data)

SETUP:
  studysync init            Configure this device
    --remote <kind>           http, sqlite or charm (default: http)
    --server <url>            Server URL (http)
    --db <path>               Database path (sqlite)
    --charm-host <host>       Charm server host (charm)
    --auto-sync               Push periodically while the daemon runs

  studysync login           Sign in and run the first pull, push and flush
    --email <email>           Account email (prompted when empty)
    --password-stdin          Read the password from stdin

  studysync logout          Sign out and forget the stored token

SYNC COMMANDS:
  studysync status          Show configuration, session, queue and audit state
  studysync push            Push local fields to the remote
  studysync pull            Merge the remote row into local fields
  studysync flush           Retry the queued push
  studysync daemon          Run periodic sync until interrupted
    --interval <dur>          Push interval (default: 2m, min 30s)
    --retry-interval <dur>    Retry queue interval (default: 5m, min 30s)

LOCAL DATA:
  studysync field get <name>            Print a stored field
  studysync field set [--force] <name> <json>  Store a field, stamped now
  studysync field list                  List fields and their timestamps
  studysync merge [--output file] <local.json> <remote.json>
                                        Reconcile two snapshots offline

AUDIT COMMANDS:
  studysync audit verify    Check the hash chain
  studysync audit tail      Show recent entries
    --limit <n>               Entries to show (default: 20)
    --action <prefix>         Filter by action prefix
  studysync audit export    Export the log
    --format <fmt>            csv, json, yaml, dot, svg or png (default: json)
    --output <file>           Output file (default: stdout)
  studysync audit graph     Print the chain as a Graphviz DOT graph
    --limit <n>               Newest entries to draw (default: 25)

INTERFACES:
  studysync dashboard       Print a summary dashboard
  studysync tui             Interactive terminal UI
  studysync mcp             Start MCP server (for Claude Desktop integration)

SELF-HOSTED BACKEND:
  studysync serve           Run the REST backend
    --db <path>               Database path (default: remote_db from config)
    --addr <addr>             Listen address (default: :8420)
    --token-ttl <dur>         Access token lifetime (default: 1h)
  studysync serve user add --email <email>   Create an account
  studysync serve token --email <email>      Issue a token pair
  studysync serve devices                    List device sync history

CHARM:
  studysync charm link      Link this device's SSH key to a charm account
  studysync charm status    Show charm account and stored rows
  studysync charm wipe      Delete local charm data (requires --confirm)

EXAMPLES:
  # Sync through a self-hosted server
  studysync serve --db ~/studysync.db &
  studysync serve user add --email me@example.com
  studysync init --remote http --server http://localhost:8420
  studysync login --email me@example.com

  # Record progress offline, then push when back online
  studysync field set progress '{"lesson-1": true}'
  studysync push

  # Export the audit log for review
  studysync audit export --format csv --output audit.csv

`, version)
}
