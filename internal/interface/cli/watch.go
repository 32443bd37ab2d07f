package cli

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/nexustext/nxagent/internal/interface/tui"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the current session in a live view",
	Long: `Open a live terminal view of the current session: status, reasoning
trace, and the approval panel when the backend pauses.

Keys: a approve all, n approve nothing, d dismiss panel, q quit.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	database, err := openDB()
	if err != nil {
		return err
	}
	defer func() { _ = database.Close() }()

	controller := newController(newClient(cfg), database)
	defer controller.Teardown()

	ok, err := controller.RestoreFromSlot(database)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no current session; start one with 'nxagent run'")
	}

	p := tea.NewProgram(tui.New(controller), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("watch view failed: %w", err)
	}
	return nil
}
