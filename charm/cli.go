// ABOUTME: CLI commands for the Charm KV remote
// ABOUTME: Link, status and wipe using SSH key auth, no password needed

package charm

import (
	"context"
	"flag"
	"fmt"
	"strings"
)

// LinkCommand links this device to a Charm account.
// Charm authenticates with the device's SSH key, so there is no password.
func LinkCommand(ctx context.Context, r *Remote, args []string) error {
	fs := flag.NewFlagSet("charm link", flag.ExitOnError)
	_ = fs.Parse(args)

	cfg := r.client.Config()
	fmt.Printf("Linking to Charm Cloud (%s)...\n\n", cfg.Host)

	if err := r.Ping(ctx); err != nil {
		return fmt.Errorf("link failed: %w", err)
	}

	user, err := r.Link(ctx)
	if err != nil {
		fmt.Println("✓ Device linked (ID unavailable)")
		return nil //nolint:nilerr // Linking succeeded, only the id lookup failed
	}
	fmt.Printf("✓ Linked to account: %s\n", user.ID)
	return nil
}

// StatusCommand shows the charm connection and stored rows.
func StatusCommand(c *Client, args []string) error {
	fs := flag.NewFlagSet("charm status", flag.ExitOnError)
	_ = fs.Parse(args)

	cfg := c.Config()
	fmt.Println("Charm Status")
	fmt.Println("────────────")
	fmt.Printf("Server:    %s\n", cfg.Host)
	fmt.Printf("Prefix:    %s\n", cfg.KeyPrefix)

	id, err := c.ID()
	if err != nil {
		fmt.Println("\nStatus: Not linked")
		fmt.Println("\nCharm uses SSH keys for authentication - no login required!")
		return nil //nolint:nilerr // Not linked is a valid state, not an error
	}
	fmt.Println("\nStatus: Linked")
	fmt.Printf("ID:        %s\n", id)

	keys, err := c.KeysWithPrefix(cfg.KeyPrefix)
	if err == nil {
		counts := map[string]int{}
		for _, k := range keys {
			rest := strings.TrimPrefix(k, cfg.KeyPrefix)
			if ns, _, ok := strings.Cut(rest, "/"); ok {
				counts[ns]++
			}
		}
		fmt.Printf("Rows:      %d profiles, %d progress, %d leaderboard\n",
			counts["profiles"], counts["progress"], counts["leaderboard"])
	}
	return nil
}

// WipeCommand resets the local charm store.
// WARNING: This deletes all local charm data!
func WipeCommand(c *Client, args []string) error {
	fs := flag.NewFlagSet("charm wipe", flag.ExitOnError)
	confirm := fs.Bool("confirm", false, "Confirm data wipe")
	_ = fs.Parse(args)

	if !*confirm {
		fmt.Println("WARNING: This will delete ALL local charm data!")
		fmt.Println()
		fmt.Println("To confirm, run:")
		fmt.Println("  studysync charm wipe --confirm")
		return nil
	}

	if err := c.Reset(); err != nil {
		return fmt.Errorf("failed to reset KV store: %w", err)
	}

	fmt.Println("✓ All charm data wiped")
	fmt.Println("Your Charm account is still linked.")
	return nil
}
