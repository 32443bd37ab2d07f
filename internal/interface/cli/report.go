package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nexustext/nxagent/internal/core/nexus"
)

var reportOut string

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Work with generated reports",
}

var reportDownloadCmd = &cobra.Command{
	Use:   "download <report-id>",
	Short: "Download a generated report",
	Long: `Fetch a report produced by a pipeline run and write it to disk.

Examples:
  nxagent report download r42 --out churn-report.pdf`,
	Args: cobra.ExactArgs(1),
	RunE: runReportDownload,
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.AddCommand(reportDownloadCmd)
	reportDownloadCmd.Flags().StringVarP(&reportOut, "out", "o", "", "Output file path (default: report-<id>)")
}

func runReportDownload(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	reportID := args[0]
	out := reportOut
	if out == "" {
		out = fmt.Sprintf("report-%s", reportID)
	}

	if err := downloadReport(context.Background(), newClient(cfg), reportID, out); err != nil {
		return err
	}
	fmt.Printf("Report written to %s\n", out)
	return nil
}

func downloadReport(ctx context.Context, client *nexus.Client, reportID, outPath string) error {
	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", outPath, err)
	}

	n, err := client.DownloadReport(ctx, reportID, f)
	if closeErr := f.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(outPath)
		return fmt.Errorf("download report %s: %w", reportID, err)
	}
	if n == 0 {
		_ = os.Remove(outPath)
		return fmt.Errorf("report %s is empty", reportID)
	}
	return nil
}
