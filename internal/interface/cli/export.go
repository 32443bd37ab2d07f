package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nexustext/nxagent/internal/core/export"
	"github.com/nexustext/nxagent/internal/core/session"
)

var exportOutput string

var exportCmd = &cobra.Command{
	Use:   "export <session-id>",
	Short: "Export an archived session as a markdown digest",
	Long: `Render an archived session's insights into a markdown digest.

The digest template can be customized by placing a mustache template at
~/.config/nxagent/digest_template.md.

Examples:
  nxagent export a7f3
  nxagent export a7f3 --output ~/digests/churn.md
  nxagent export a7f3 -o digest.md`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file path (default: digest-<id>.md)")
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	sessionID := args[0]
	archive := session.NewArchive(newClient(cfg), nil)
	sess, err := archive.Get(context.Background(), sessionID)
	if err != nil {
		return err
	}

	digest, err := export.Digest(*sess, cfg.DigestTemplate)
	if err != nil {
		return err
	}

	outputPath := exportOutput
	if outputPath == "" {
		shortID := sessionID
		if len(shortID) > 8 {
			shortID = shortID[:8]
		}
		outputPath = fmt.Sprintf("digest-%s.md", shortID)
	}
	if !filepath.IsAbs(outputPath) {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get current directory: %w", err)
		}
		outputPath = filepath.Join(cwd, outputPath)
	}

	if err := os.WriteFile(outputPath, []byte(digest), 0644); err != nil {
		return fmt.Errorf("write digest: %w", err)
	}

	fmt.Printf("Digest written to %s\n", outputPath)
	return nil
}
