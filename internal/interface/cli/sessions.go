package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/atotto/clipboard"
	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/nexustext/nxagent/internal/core/models"
	"github.com/nexustext/nxagent/internal/core/session"
)

var (
	sessionsDataset string
	sessionsSince   string
	sessionsUntil   string
	sessionsLimit   int
	sessionsCopy    bool
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Browse and archive finished sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List archived sessions",
	Long: `List archived sessions, newest first.

Consults the backend and mirrors the result locally; when the backend is
unreachable the local mirror is shown instead, with a notice.

Date filters accept natural language via --since/--until.

Examples:
  nxagent sessions list --dataset ds1
  nxagent sessions list --dataset ds1 --since "last week" --limit 10
  nxagent sessions list --until "2026-06-01"`,
	RunE: runSessionsList,
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show an archived session",
	Long: `Fetch a full archived session, including its reasoning trace and
insights.

Examples:
  nxagent sessions show a7f3
  nxagent sessions show a7f3 --copy`,
	Args: cobra.ExactArgs(1),
	RunE: runSessionsShow,
}

var sessionsSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "Archive the current session",
	Long: `Ask the backend to archive the current session.

Only completed sessions can be archived; anything still in flight is
rejected without touching its state.`,
	RunE: runSessionsSave,
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
	sessionsCmd.AddCommand(sessionsSaveCmd)

	sessionsListCmd.Flags().StringVar(&sessionsDataset, "dataset", "", "Filter by dataset")
	sessionsListCmd.Flags().StringVar(&sessionsSince, "since", "", "Only sessions created after this date (natural language OK)")
	sessionsListCmd.Flags().StringVar(&sessionsUntil, "until", "", "Only sessions created before this date (natural language OK)")
	sessionsListCmd.Flags().IntVar(&sessionsLimit, "limit", 20, "Maximum number of sessions to display")

	sessionsShowCmd.Flags().BoolVar(&sessionsCopy, "copy", false, "Copy the session ID to the clipboard")
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	database, err := openDB()
	if err != nil {
		return err
	}
	defer func() { _ = database.Close() }()

	archive := session.NewArchive(newClient(cfg), database)
	summaries, fromCache, err := archive.List(context.Background(), sessionsDataset)
	if err != nil {
		return err
	}
	if fromCache {
		fmt.Fprintln(os.Stderr, "Backend unreachable; showing locally cached summaries (may be stale).")
	}

	since, err := parseWhen(sessionsSince)
	if err != nil {
		return fmt.Errorf("--since: %w", err)
	}
	until, err := parseWhen(sessionsUntil)
	if err != nil {
		return fmt.Errorf("--until: %w", err)
	}

	shown := 0
	for _, s := range summaries {
		if since != nil && s.CreatedAt.Before(*since) {
			continue
		}
		if until != nil && s.CreatedAt.After(*until) {
			continue
		}
		if shown >= sessionsLimit {
			break
		}
		shown++

		fmt.Printf("[%d] %s\n", shown, s.ID)
		if s.Objective != "" {
			fmt.Printf("    Objective: %s\n", truncate(s.Objective, 80))
		}
		fmt.Printf("    Dataset:  %s\n", s.DatasetID)
		fmt.Printf("    Status:   %s, %d insight(s)\n", s.Status, s.InsightCount)
		fmt.Printf("    Created:  %s\n", formatTimestamp(s.CreatedAt))
		fmt.Println()
	}

	if shown == 0 {
		fmt.Println("No archived sessions found.")
	}
	return nil
}

// parseWhen turns a natural-language or ISO date into a time, nil when empty
func parseWhen(input string) (*time.Time, error) {
	if input == "" {
		return nil, nil
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	if result, err := w.Parse(input, time.Now()); err == nil && result != nil {
		return &result.Time, nil
	}

	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, input); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("could not parse date %q", input)
}

func runSessionsShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	archive := session.NewArchive(newClient(cfg), nil)
	sess, err := archive.Get(context.Background(), args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Session %s (%s)\n", sess.SessionID, sess.Status)
	fmt.Printf("Dataset:   %s\n", sess.DatasetID)
	if sess.Objective != "" {
		fmt.Printf("Objective: %s\n", sess.Objective)
	}
	fmt.Printf("Mode:      %s\n", sess.ControlMode)
	fmt.Printf("Created:   %s\n", formatTimestamp(sess.StartedAt))

	if len(sess.LogEntries) > 0 {
		fmt.Printf("\nReasoning trace (%d steps):\n", len(sess.LogEntries))
		for _, entry := range sess.LogEntries {
			printLogEntry(entry)
		}
	}

	if len(sess.Insights) > 0 {
		fmt.Printf("\nInsights:\n")
		for _, ins := range sess.Insights {
			fmt.Printf("\n* %s (grounding %.0f%%)\n", ins.Title, ins.GroundingScore*100)
			if ins.Description != "" {
				fmt.Printf("  %s\n", ins.Description)
			}
			for _, ev := range ins.Evidence {
				fmt.Printf("  evidence: %s\n", truncate(ev, 100))
			}
			for _, rec := range ins.Recommendations {
				fmt.Printf("  - %s\n", rec)
			}
		}
	}

	if sessionsCopy {
		if err := clipboard.WriteAll(sess.SessionID); err != nil {
			fmt.Fprintf(os.Stderr, "Could not copy to clipboard: %v\n", err)
		} else {
			fmt.Println("\nSession ID copied to clipboard.")
		}
	}
	return nil
}

func runSessionsSave(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
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
		return fmt.Errorf("no current session to archive")
	}
	if sess.Status != models.StatusCompleted {
		// Soft rejection: the live session is untouched.
		fmt.Printf("Session %s is %s; only completed sessions can be archived.\n", sess.SessionID, sess.Status)
		return nil
	}

	archive := session.NewArchive(newClient(cfg), database)
	if err := archive.Save(context.Background(), sess); err != nil {
		// Archival failure is a notice, not a session-state change.
		fmt.Fprintf(os.Stderr, "Archiving failed: %v\n", err)
		fmt.Fprintln(os.Stderr, "The session is still checkpointed locally; try again later.")
		return nil
	}

	fmt.Printf("Session %s archived.\n", sess.SessionID)
	return nil
}
