// Package export renders completed sessions into shareable artifacts.
package export

import (
	"fmt"
	"math"

	"github.com/cbroglie/mustache"
	"github.com/nexustext/nxagent/internal/core/models"
)

// Digest renders a markdown digest of a session's insights using the given
// mustache template. Only meaningful for finished sessions, but rendering an
// unfinished one is harmless: it just shows whatever insights exist so far.
func Digest(sess models.Session, template string) (string, error) {
	insights := make([]map[string]interface{}, 0, len(sess.Insights))
	for _, ins := range sess.Insights {
		insights = append(insights, map[string]interface{}{
			"title":             ins.Title,
			"description":       ins.Description,
			"grounding_percent": int(math.Round(ins.GroundingScore * 100)),
			"evidence":          ins.Evidence,
			"recommendations":   ins.Recommendations,
		})
	}

	data := map[string]interface{}{
		"session_id":    sess.SessionID,
		"dataset_id":    sess.DatasetID,
		"objective":     sess.Objective,
		"status":        string(sess.Status),
		"insight_count": len(sess.Insights),
		"insights":      insights,
	}

	out, err := mustache.Render(template, data)
	if err != nil {
		return "", fmt.Errorf("render digest: %w", err)
	}
	return out, nil
}
