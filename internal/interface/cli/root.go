package cli

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/nexustext/nxagent/internal/core/config"
	"github.com/nexustext/nxagent/internal/core/db"
	"github.com/nexustext/nxagent/internal/core/session"
	"github.com/nexustext/nxagent/internal/core/nexus"
)

var (
	dbPath      string
	serverURL   string
	authToken   string
	versionInfo string
)

// SetVersion sets the version information from build-time ldflags
func SetVersion(version, commit, date string) {
	versionInfo = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)
	rootCmd.Version = versionInfo
}

// Execute runs the CLI
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "nxagent",
	Short: "NexusText analysis agent client",
	Long: `nxagent - run, track, and archive autonomous analysis sessions

Drives long-running agent sessions on a NexusText backend: start a run,
follow its reasoning trace, resolve human-in-the-loop approvals, recover
in-flight sessions across invocations, and browse the session archive.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", config.DefaultDBPath(), "Local state database path")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "Backend URL (overrides config)")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", "", "Bearer token (overrides config)")
}

// loadConfig merges file config with command-line overrides
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if serverURL != "" {
		cfg.ServerURL = strings.TrimRight(serverURL, "/")
	}
	if authToken != "" {
		cfg.AuthToken = authToken
	}
	return cfg, nil
}

func newClient(cfg *config.Config) *nexus.Client {
	return nexus.NewClient(cfg.ServerURL,
		nexus.WithAuthToken(cfg.AuthToken),
		nexus.WithHTTPClient(&http.Client{Timeout: cfg.RequestTimeout}),
	)
}

func openDB() (*db.DB, error) {
	database, err := db.New(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return database, nil
}

// newController builds a controller wired for ephemeral autosave
func newController(client *nexus.Client, database *db.DB) *session.Controller {
	coordinator := session.NewPipelineCoordinator(client, client)
	c := session.NewController(client, coordinator)
	if database != nil {
		c.AttachSlot(database)
	}
	return c
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return fmt.Sprintf("%s (%s)", t.Local().Format("2006-01-02 15:04"), humanize.Time(t))
}

// truncate shortens long free text for one-line display
func truncate(s string, maxLen int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
