package session

import (
	"context"
	"fmt"
	"io"

	"github.com/nexustext/nxagent/internal/core/nexus"
)

// PipelineCoordinator runs analysis and report generation as one atomic
// remote operation. Pipeline mode always runs the full_auto equivalent:
// there is no approval gate and no polling, just a single blocking call.
type PipelineCoordinator struct {
	backend    Backend
	downloader ReportDownloader
}

// ReportDownloader fetches a generated report artifact
type ReportDownloader interface {
	DownloadReport(ctx context.Context, reportID string, w io.Writer) (int64, error)
}

// NewPipelineCoordinator creates a coordinator over the given backend
func NewPipelineCoordinator(backend Backend, downloader ReportDownloader) *PipelineCoordinator {
	return &PipelineCoordinator{backend: backend, downloader: downloader}
}

// Run executes the full analysis-to-report chain. The backend blocks until
// the chain finishes or fails.
func (p *PipelineCoordinator) Run(ctx context.Context, datasetID, objective, outputFormat string) (*nexus.PipelineOutcome, error) {
	out, err := p.backend.RunPipeline(ctx, nexus.PipelineRequest{
		DatasetID:    datasetID,
		Objective:    objective,
		OutputFormat: outputFormat,
	})
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	return out, nil
}

// Download streams the generated artifact into w. This is a pass-through,
// not part of the session state machine.
func (p *PipelineCoordinator) Download(ctx context.Context, reportID string, w io.Writer) (int64, error) {
	if p.downloader == nil {
		return 0, fmt.Errorf("no report downloader configured")
	}
	return p.downloader.DownloadReport(ctx, reportID, w)
}
