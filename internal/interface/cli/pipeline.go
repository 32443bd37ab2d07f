package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"github.com/nexustext/nxagent/internal/core/session"
)

var (
	pipelineDataset   string
	pipelineObjective string
	pipelineFormat    string
	pipelineOut       string
	pipelineCopyURL   bool
)

var pipelineCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "Run analysis and report generation in one shot",
	Long: `Run the full analysis-to-report chain as a single blocking request.

Pipeline mode bypasses phase polling and the approval gate entirely: the
backend runs the equivalent of full_auto and answers once the whole chain
has finished or failed. Expect the call to take a while.

Formats: pdf, pptx, docx, excel.

Examples:
  nxagent pipeline --dataset ds1 --objective "quarterly churn report"
  nxagent pipeline --dataset ds1 --format pptx --out report.pptx`,
	RunE: runPipeline,
}

func init() {
	rootCmd.AddCommand(pipelineCmd)
	pipelineCmd.Flags().StringVar(&pipelineDataset, "dataset", "", "Dataset to analyze (required)")
	pipelineCmd.Flags().StringVar(&pipelineObjective, "objective", "", "Free-text analysis goal")
	pipelineCmd.Flags().StringVar(&pipelineFormat, "format", "pdf", "Report format: pdf, pptx, docx, excel")
	pipelineCmd.Flags().StringVar(&pipelineOut, "out", "", "Download the report to this file when the chain finishes")
	pipelineCmd.Flags().BoolVar(&pipelineCopyURL, "copy-url", false, "Copy the report download URL to the clipboard")
}

func runPipeline(cmd *cobra.Command, args []string) error {
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

	client := newClient(cfg)
	controller := newController(client, database)
	defer controller.Teardown()

	fmt.Println("Running pipeline (this blocks until the report is ready)...")
	sess, err := controller.Start(ctx, session.StartOptions{
		DatasetID: pipelineDataset,
		Objective: pipelineObjective,
		Pipeline:  &session.PipelineOptions{OutputFormat: pipelineFormat},
	})
	if err != nil {
		return err
	}

	result := sess.PipelineResult
	fmt.Printf("Pipeline completed: %d analysis job(s), %d insight(s).\n", result.JobCount, len(sess.Insights))
	if result.ReportID != "" {
		fmt.Printf("Report: %s\n", result.ReportID)
	}

	if pipelineCopyURL && result.DownloadURL != "" {
		if err := clipboard.WriteAll(cfg.ServerURL + result.DownloadURL); err != nil {
			fmt.Fprintf(os.Stderr, "Could not copy URL to clipboard: %v\n", err)
		} else {
			fmt.Println("Download URL copied to clipboard.")
		}
	}

	if pipelineOut != "" && result.ReportID != "" {
		if err := downloadReport(ctx, client, result.ReportID, pipelineOut); err != nil {
			// Download failures are soft: the session itself finished fine.
			fmt.Fprintf(os.Stderr, "Report download failed: %v\n", err)
			fmt.Fprintf(os.Stderr, "Retry with 'nxagent report download %s --out %s'\n", result.ReportID, pipelineOut)
			return nil
		}
		fmt.Printf("Report written to %s\n", pipelineOut)
	}
	return nil
}
