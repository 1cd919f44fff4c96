// ABOUTME: Charm account subcommands
// ABOUTME: link, status and wipe against the charm KV backing store
package cli

import (
	"context"
	"fmt"

	"github.com/harperreed/studysync/charm"
	"github.com/harperreed/studysync/sync"
)

// CharmCommand routes charm subcommands. It reuses the app's charm remote
// when that is the configured backend.
func CharmCommand(ctx context.Context, app *App, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: studysync charm <link|status|wipe> [args]")
	}

	remote, ok := app.Remote.(*charm.Remote)
	if !ok {
		client, err := charm.NewClient(charm.NewConfig(app.Config.CharmHost, app.Config.KeyPrefix))
		if err != nil {
			return fmt.Errorf("failed to open charm client: %w", err)
		}
		remote = charm.NewRemote(client)
	}

	switch args[0] {
	case "link":
		if err := charm.LinkCommand(ctx, remote, args[1:]); err != nil {
			return err
		}
		if app.Config.Remote != sync.RemoteCharm {
			fmt.Println("\nTo sync through charm, run 'studysync init --remote charm'")
		}
		return nil
	case "status":
		return charm.StatusCommand(remote.Client(), args[1:])
	case "wipe":
		return charm.WipeCommand(remote.Client(), args[1:])
	}
	return fmt.Errorf("unknown charm command: %s", args[0])
}
