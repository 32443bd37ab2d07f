package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Re-attach to the current session",
	Long: `Restore the checkpointed session and follow it to completion.

A session that was still running when a previous invocation exited keeps
executing on the backend; this re-attaches polling to it. A session that
already finished just prints its outcome.`,
	RunE: runResumeSession,
}

func init() {
	rootCmd.AddCommand(resumeCmd)
}

func runResumeSession(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	database, err := openDB()
	if err != nil {
		return err
	}
	defer func() { _ = database.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	controller := newController(newClient(cfg), database)
	defer controller.Teardown()

	ok, err := controller.RestoreFromSlot(database)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no current session; start one with 'nxagent run'")
	}

	sess := controller.Session()
	fmt.Printf("Resumed session %s (%s)\n", sess.SessionID, sess.Status)
	return followSession(ctx, controller)
}
