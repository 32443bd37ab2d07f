package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nexustext/nxagent/internal/core/models"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current session",
	Long: `Show the locally checkpointed session without contacting the backend.

Reflects the last applied server snapshot; for a live view use
'nxagent resume' or 'nxagent watch'.`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	database, err := openDB()
	if err != nil {
		return err
	}
	defer func() { _ = database.Close() }()

	sess, ok, err := database.LoadSlot()
	if err != nil {
		return err
	}
	if !ok {
		fmt.Println("No current session. Start one with 'nxagent run'.")
		return nil
	}

	fmt.Printf("Session:   %s\n", sess.SessionID)
	fmt.Printf("Dataset:   %s\n", sess.DatasetID)
	if sess.Objective != "" {
		fmt.Printf("Objective: %s\n", truncate(sess.Objective, 80))
	}
	fmt.Printf("Mode:      %s\n", sess.ControlMode)
	fmt.Printf("Status:    %s\n", sess.Status)
	fmt.Printf("Steps:     %d\n", len(sess.LogEntries))
	fmt.Printf("Insights:  %d\n", len(sess.Insights))
	fmt.Printf("Updated:   %s\n", formatTimestamp(sess.UpdatedAt))

	switch {
	case sess.Status == models.StatusPendingApproval && sess.PendingApproval != nil:
		fmt.Printf("\nWaiting for approval: %s\n", sess.PendingApproval.Message)
		for i, h := range sess.PendingApproval.Hypotheses {
			fmt.Printf("  [%d] %s\n", i+1, h)
		}
		fmt.Println("\nResolve with 'nxagent approve'.")
	case sess.Status == models.StatusRunning:
		fmt.Println("\nRe-attach with 'nxagent resume' or 'nxagent watch'.")
	case sess.Status == models.StatusCompleted:
		fmt.Println("\nArchive with 'nxagent sessions save'.")
	}

	if sess.PipelineResult != nil && sess.PipelineResult.ReportID != "" {
		fmt.Printf("\nReport %s ready: download with 'nxagent report download %s'\n",
			sess.PipelineResult.ReportID, sess.PipelineResult.ReportID)
	}
	return nil
}
