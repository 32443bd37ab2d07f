// Package nexus is a typed HTTP client for the NexusText agent API.
//
// It owns the wire contract: request/response shapes are normalized into the
// client-side session model here, and untrusted payloads (notably the
// pending-approval object) are validated at this boundary.
package nexus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nexustext/nxagent/internal/core/models"
)

// DefaultTimeout bounds a single request. The backend's reasoning calls can
// be slow, so this is deliberately generous.
const DefaultTimeout = 120 * time.Second

// APIError is a non-2xx response from the backend
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Body)
}

// Client talks to one NexusText backend
type Client struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithAuthToken sets a bearer token sent on every request
func WithAuthToken(token string) Option {
	return func(c *Client) { c.authToken = strings.TrimSpace(token) }
}

// WithHTTPClient replaces the underlying HTTP client (used in tests and for
// custom timeouts)
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a client for the given base URL
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// doJSON issues a request with a JSON body and decodes a JSON response.
// A nil body skips the request payload; a nil out discards the response.
func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	var buf io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		buf = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Correlation-ID", uuid.NewString())
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// StartRequest begins an autonomous analysis run
type StartRequest struct {
	DatasetID   string             `json:"dataset_id"`
	Objective   string             `json:"objective"`
	ControlMode models.ControlMode `json:"hitl_mode"`
}

// StartAnalysis starts a run and returns the backend's immediate snapshot.
// The server may answer running, pending_approval, or even completed
// synchronously for trivial datasets.
func (c *Client) StartAnalysis(ctx context.Context, req StartRequest) (*Snapshot, error) {
	var wire statusWire
	if err := c.doJSON(ctx, http.MethodPost, "/agent/start", req, &wire); err != nil {
		return nil, err
	}
	return wire.normalize()
}

// SessionStatus fetches the current state of a running session
func (c *Client) SessionStatus(ctx context.Context, sessionID string) (*Snapshot, error) {
	var wire statusWire
	path := "/agent/" + url.PathEscape(sessionID) + "/logs"
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &wire); err != nil {
		return nil, err
	}
	snap, err := wire.normalize()
	if err != nil {
		return nil, err
	}
	if snap.SessionID == "" {
		snap.SessionID = sessionID
	}
	return snap, nil
}

// Approve sends the approved hypothesis subset and returns the snapshot the
// backend reaches after resuming. An empty list is valid; the backend may
// treat it as a soft rejection.
func (c *Client) Approve(ctx context.Context, sessionID string, hypotheses []string) (*Snapshot, error) {
	if hypotheses == nil {
		hypotheses = []string{}
	}
	body := map[string][]string{"approved_hypotheses": hypotheses}
	var wire statusWire
	path := "/agent/" + url.PathEscape(sessionID) + "/approve"
	if err := c.doJSON(ctx, http.MethodPost, path, body, &wire); err != nil {
		return nil, err
	}
	snap, err := wire.normalize()
	if err != nil {
		return nil, err
	}
	if snap.SessionID == "" {
		snap.SessionID = sessionID
	}
	return snap, nil
}

// PipelineRequest runs analysis and report generation as one atomic call
type PipelineRequest struct {
	DatasetID    string `json:"dataset_id"`
	Objective    string `json:"objective"`
	OutputFormat string `json:"output_format"`
}

// RunPipeline executes the full analysis-to-report chain in a single round
// trip. The backend blocks until the chain finishes or fails.
func (c *Client) RunPipeline(ctx context.Context, req PipelineRequest) (*PipelineOutcome, error) {
	var wire pipelineWire
	if err := c.doJSON(ctx, http.MethodPost, "/agent/pipeline", req, &wire); err != nil {
		return nil, err
	}
	return wire.normalize()
}

// SaveSession asks the backend to archive a finished session
func (c *Client) SaveSession(ctx context.Context, sessionID string) error {
	path := "/agent/" + url.PathEscape(sessionID) + "/save"
	return c.doJSON(ctx, http.MethodPost, path, nil, nil)
}

// ListSessions returns summaries of archived sessions for a dataset
func (c *Client) ListSessions(ctx context.Context, datasetID string) ([]models.SavedSessionSummary, error) {
	var wire struct {
		Sessions []savedSummaryWire `json:"sessions"`
	}
	path := "/agent/sessions?dataset_id=" + url.QueryEscape(datasetID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &wire); err != nil {
		return nil, err
	}
	summaries := make([]models.SavedSessionSummary, 0, len(wire.Sessions))
	for _, s := range wire.Sessions {
		summaries = append(summaries, s.normalize())
	}
	return summaries, nil
}

// GetSession fetches a full archived session. Archived sessions are by
// definition finished, so the result always carries a terminal status.
func (c *Client) GetSession(ctx context.Context, savedSessionID string) (*models.Session, error) {
	var wire savedSessionWire
	path := "/agent/session/" + url.PathEscape(savedSessionID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &wire); err != nil {
		return nil, err
	}
	return wire.normalize()
}

// DownloadReport streams a generated report artifact into w and returns the
// number of bytes written
func (c *Client) DownloadReport(ctx context.Context, reportID string, w io.Writer) (int64, error) {
	path := "/reports/" + url.PathEscape(reportID) + "/download"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return 0, err
	}
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(resp.Body)
		return 0, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}

	return io.Copy(w, resp.Body)
}
