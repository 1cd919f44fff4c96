// ABOUTME: Interactive terminal UI and dashboard commands
// ABOUTME: Runs the bubbletea program with the scheduler in the background
package cli

import (
	"context"
	"flag"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/harperreed/studysync/tui"
	"github.com/harperreed/studysync/viz"
)

// TUICommand opens the full-screen interface.
func TUICommand(ctx context.Context, app *App, args []string) error {
	fs := flag.NewFlagSet("tui", flag.ContinueOnError)
	background := fs.Bool("background", true, "Run periodic sync and retries while open")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *background {
		app.Orch.Start(ctx)
		defer app.Orch.Stop()
	}

	p := tea.NewProgram(tui.NewModel(app.Orch), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}
	return nil
}

// DashboardCommand prints a one-shot summary.
func DashboardCommand(app *App, args []string) error {
	fs := flag.NewFlagSet("dashboard", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	fmt.Print(viz.RenderDashboard(viz.GenerateDashboardStats(app.Orch, time.Now())))
	return nil
}
