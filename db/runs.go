// ABOUTME: Database operations for the sync_runs audit table
// ABOUTME: Appends one row per completed pass for diagnostics
package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/harperreed/sheetbridge/models"
)

// RunEntry is one row of the sync_runs audit log.
type RunEntry struct {
	ID         string
	Direction  string
	Created    int
	Updated    int
	Skipped    int
	Failed     int
	Conflicts  int
	DurationMs int64
	StartedAt  time.Time
}

// RecordRun appends a pass report to the audit log.
func RecordRun(db *sql.DB, report *models.SyncReport) error {
	_, err := db.Exec(`
		INSERT INTO sync_runs (id, direction, created, updated, skipped, failed, conflicts, duration_ms, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		report.PassID,
		string(report.Direction),
		report.Created,
		report.Updated,
		report.SkippedTotal(),
		len(report.Failed),
		len(report.Conflicts),
		report.DurationMs,
		report.StartedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to record sync run: %w", err)
	}

	return nil
}

// RecentRuns returns the most recent pass entries, newest first.
func RecentRuns(db *sql.DB, limit int) ([]RunEntry, error) {
	rows, err := db.Query(`
		SELECT id, direction, created, updated, skipped, failed, conflicts, duration_ms, started_at
		FROM sync_runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []RunEntry
	for rows.Next() {
		var e RunEntry
		err := rows.Scan(
			&e.ID,
			&e.Direction,
			&e.Created,
			&e.Updated,
			&e.Skipped,
			&e.Failed,
			&e.Conflicts,
			&e.DurationMs,
			&e.StartedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync run: %w", err)
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync runs: %w", err)
	}

	return entries, nil
}
