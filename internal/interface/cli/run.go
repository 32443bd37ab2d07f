package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nexustext/nxagent/internal/core/models"
	"github.com/nexustext/nxagent/internal/core/session"
)

var (
	runDataset   string
	runObjective string
	runMode      string
	runNoFollow  bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start an autonomous analysis session",
	Long: `Start a new analysis session and follow its reasoning trace.

The session polls the backend until it completes, errors, or pauses for
approval. In semi_auto and guided modes the backend stops before exploring
candidate hypotheses; you pick which ones to pursue at the prompt.

The in-flight session is checkpointed locally on every update, so an
interrupted invocation can be picked up later with 'nxagent resume'.

Examples:
  nxagent run --dataset ds1 --objective "find churn drivers"
  nxagent run --dataset ds1 --mode full_auto
  nxagent run --dataset ds1 --no-follow`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&runDataset, "dataset", "", "Dataset to analyze (required)")
	runCmd.Flags().StringVar(&runObjective, "objective", "", "Free-text analysis goal")
	runCmd.Flags().StringVar(&runMode, "mode", "semi_auto", "Control mode: full_auto, semi_auto, guided")
	runCmd.Flags().BoolVar(&runNoFollow, "no-follow", false, "Start the session and exit; follow later with 'nxagent resume'")
}

func runRun(cmd *cobra.Command, args []string) error {
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

	sess, err := controller.Start(ctx, session.StartOptions{
		DatasetID:   runDataset,
		Objective:   runObjective,
		ControlMode: models.ControlMode(runMode),
	})
	if err != nil {
		return err
	}

	fmt.Printf("Session %s started (%s, dataset %s)\n", sess.SessionID, sess.ControlMode, sess.DatasetID)

	if runNoFollow {
		fmt.Println("Not following; check in with 'nxagent status' or 'nxagent resume'.")
		return nil
	}
	return followSession(ctx, controller)
}

// followSession prints the reasoning trace as it grows and prompts on
// approval waits, until the session reaches a terminal state or the context
// is cancelled. Log lists are server-side snapshots, so only the suffix
// beyond what was already printed is shown.
func followSession(ctx context.Context, controller *session.Controller) error {
	reader := bufio.NewReader(os.Stdin)
	printed := 0

	for {
		sess := controller.Session()

		if printed > len(sess.LogEntries) {
			// A new session replaced the one we were following
			printed = 0
		}
		for _, entry := range sess.LogEntries[printed:] {
			printLogEntry(entry)
		}
		printed = len(sess.LogEntries)

		if sess.Status == models.StatusPendingApproval && !controller.ApprovalDismissed() {
			approved, dismissed, err := promptApproval(reader, sess.PendingApproval)
			if err != nil {
				return err
			}
			if dismissed {
				controller.DismissApproval()
				fmt.Println("Approval dismissed locally. The backend is still waiting; resolve it with 'nxagent approve'.")
				return nil
			}
			if _, err := controller.Resume(ctx, approved); err != nil {
				return err
			}
			continue
		}

		if sess.Status.Terminal() {
			printOutcome(sess)
			return nil
		}

		select {
		case <-ctx.Done():
			fmt.Println("\nDetached. The session keeps running; pick it up with 'nxagent resume'.")
			return nil
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func printLogEntry(entry models.LogEntry) {
	ts := entry.Timestamp.Local().Format("15:04:05")
	fmt.Printf("[%s] %-11s %s", ts, entry.Phase, entry.Thought)
	if entry.Action != "" {
		fmt.Printf(" -> %s", entry.Action)
	}
	if entry.Result != "" {
		fmt.Printf(" (%s)", truncate(entry.Result, 60))
	}
	fmt.Printf("  [%.0f%%]\n", entry.Confidence*100)
}

// promptApproval asks the operator which hypotheses to pursue. Returns the
// approved subset, or dismissed=true when the panel is closed undecided.
func promptApproval(reader *bufio.Reader, req *models.ApprovalRequest) (approved []string, dismissed bool, err error) {
	fmt.Println()
	fmt.Printf("Approval needed: %s\n", req.Message)
	for i, h := range req.Hypotheses {
		fmt.Printf("  [%d] %s\n", i+1, h)
	}
	fmt.Print("Approve (e.g. 1,3 / all / none / skip): ")

	line, err := reader.ReadString('\n')
	if err != nil {
		return nil, false, fmt.Errorf("read approval choice: %w", err)
	}

	switch choice := strings.ToLower(strings.TrimSpace(line)); choice {
	case "all", "":
		return append([]string(nil), req.Hypotheses...), false, nil
	case "none":
		// Valid: "approve nothing", which the backend may treat as a soft
		// rejection.
		return []string{}, false, nil
	case "skip":
		return nil, true, nil
	default:
		for _, tok := range strings.Split(choice, ",") {
			idx, convErr := strconv.Atoi(strings.TrimSpace(tok))
			if convErr != nil || idx < 1 || idx > len(req.Hypotheses) {
				return nil, false, fmt.Errorf("invalid choice %q", tok)
			}
			approved = append(approved, req.Hypotheses[idx-1])
		}
		return approved, false, nil
	}
}

func printOutcome(sess models.Session) {
	fmt.Println()
	switch sess.Status {
	case models.StatusCompleted:
		fmt.Printf("Session %s completed with %d insight(s).\n", sess.SessionID, len(sess.Insights))
		for _, ins := range sess.Insights {
			fmt.Printf("\n* %s (grounding %.0f%%)\n", ins.Title, ins.GroundingScore*100)
			if ins.Description != "" {
				fmt.Printf("  %s\n", ins.Description)
			}
			for _, rec := range ins.Recommendations {
				fmt.Printf("  - %s\n", rec)
			}
		}
		fmt.Println("\nArchive it with 'nxagent sessions save'.")
	case models.StatusError:
		fmt.Printf("Session %s failed. Start a new run to retry.\n", sess.SessionID)
	}
}
