package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nexustext/nxagent/internal/core/models"
)

var (
	approveAll    bool
	approveNone   bool
	approveFollow bool
)

var approveCmd = &cobra.Command{
	Use:   "approve [hypothesis numbers...]",
	Short: "Resolve a pending approval",
	Long: `Approve hypotheses on the session that is waiting for a decision.

Restores the checkpointed session first, so this works from a fresh
invocation after 'nxagent run' was interrupted.

Examples:
  nxagent approve 1 3
  nxagent approve --all
  nxagent approve --none        # approve nothing; the backend may treat this as a soft rejection
  nxagent approve --all --follow`,
	RunE: runApprove,
}

var rejectCmd = &cobra.Command{
	Use:   "reject",
	Short: "Dismiss a pending approval locally",
	Long: `Dismiss the pending approval panel without deciding.

This is local only: the backend is NOT notified and keeps waiting, so the
session stays stalled in pending_approval. Use 'nxagent approve' to actually
resolve it.`,
	RunE: runReject,
}

func init() {
	rootCmd.AddCommand(approveCmd)
	rootCmd.AddCommand(rejectCmd)
	approveCmd.Flags().BoolVar(&approveAll, "all", false, "Approve every candidate hypothesis")
	approveCmd.Flags().BoolVar(&approveNone, "none", false, "Approve nothing")
	approveCmd.Flags().BoolVar(&approveFollow, "follow", false, "Keep following the session after approving")
}

func runApprove(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	database, err := openDB()
	if err != nil {
		return err
	}
	defer func() { _ = database.Close() }()

	ctx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	controller := newController(newClient(cfg), database)
	defer controller.Teardown()

	ok, err := controller.RestoreFromSlot(database)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no current session; nothing to approve")
	}

	sess := controller.Session()
	if sess.Status != models.StatusPendingApproval {
		return fmt.Errorf("session %s is %s, not awaiting approval", sess.SessionID, sess.Status)
	}

	approved, err := selectHypotheses(sess.PendingApproval, args)
	if err != nil {
		return err
	}

	fmt.Printf("Approving %d of %d hypothesis(es)...\n", len(approved), len(sess.PendingApproval.Hypotheses))
	sess, err = controller.Resume(ctx, approved)
	if err != nil {
		return err
	}

	if approveFollow && !sess.Status.Terminal() {
		return followSession(ctx, controller)
	}

	fmt.Printf("Session %s is now %s.\n", sess.SessionID, sess.Status)
	if sess.Status == models.StatusPendingApproval {
		fmt.Println("The backend paused again; run 'nxagent approve' once more.")
	}
	if sess.Status.Terminal() {
		printOutcome(sess)
	}
	return nil
}

func selectHypotheses(req *models.ApprovalRequest, args []string) ([]string, error) {
	switch {
	case approveAll && approveNone:
		return nil, fmt.Errorf("--all and --none are mutually exclusive")
	case approveAll:
		return append([]string(nil), req.Hypotheses...), nil
	case approveNone:
		return []string{}, nil
	case len(args) == 0:
		return nil, fmt.Errorf("pick hypotheses by number, or use --all / --none")
	}

	var approved []string
	for _, arg := range args {
		idx, err := strconv.Atoi(strings.TrimSpace(arg))
		if err != nil || idx < 1 || idx > len(req.Hypotheses) {
			return nil, fmt.Errorf("invalid hypothesis number %q (1-%d)", arg, len(req.Hypotheses))
		}
		approved = append(approved, req.Hypotheses[idx-1])
	}
	return approved, nil
}

func runReject(cmd *cobra.Command, args []string) error {
	database, err := openDB()
	if err != nil {
		return err
	}
	defer func() { _ = database.Close() }()

	sess, ok, err := database.LoadSlot()
	if err != nil {
		return err
	}
	if !ok || sess.Status != models.StatusPendingApproval {
		return fmt.Errorf("no session awaiting approval")
	}

	fmt.Printf("Dismissed the approval panel for session %s.\n", sess.SessionID)
	fmt.Println("Warning: the backend was not notified and is still waiting.")
	fmt.Println("The session stays in pending_approval until you run 'nxagent approve'.")
	return nil
}
