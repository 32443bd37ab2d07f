package db

import (
	"fmt"
	"time"

	"github.com/nexustext/nxagent/internal/core/models"
)

// MirrorSummaries replaces the cached summaries for a dataset with the
// latest server-reported list. Called after every successful backend list.
func (db *DB) MirrorSummaries(datasetID string, summaries []models.SavedSessionSummary) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM saved_sessions WHERE dataset_id = ?`, datasetID); err != nil {
		return fmt.Errorf("clear cached summaries: %w", err)
	}

	for _, s := range summaries {
		_, err := tx.Exec(`
			INSERT INTO saved_sessions (id, dataset_id, objective, status, insight_count, created_at, cached_at)
			VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		`, s.ID, s.DatasetID, s.Objective, string(s.Status), s.InsightCount, s.CreatedAt)
		if err != nil {
			return fmt.Errorf("cache summary %s: %w", s.ID, err)
		}
	}

	return tx.Commit()
}

// CachedSummaries lists locally cached summaries, newest first. An empty
// datasetID lists across all datasets.
func (db *DB) CachedSummaries(datasetID string) ([]models.SavedSessionSummary, error) {
	query := `
		SELECT id, dataset_id, COALESCE(objective, ''), status, insight_count, created_at
		FROM saved_sessions
	`
	var args []interface{}
	if datasetID != "" {
		query += ` WHERE dataset_id = ?`
		args = append(args, datasetID)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query cached summaries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var summaries []models.SavedSessionSummary
	for rows.Next() {
		var s models.SavedSessionSummary
		var status string
		var createdAt time.Time
		if err := rows.Scan(&s.ID, &s.DatasetID, &s.Objective, &status, &s.InsightCount, &createdAt); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		s.Status = models.Status(status)
		s.CreatedAt = createdAt
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}
