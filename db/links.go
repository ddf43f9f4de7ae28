// ABOUTME: Database operations for the sync_links table
// ABOUTME: Persists row/lead linkage and last-synced hashes keyed by fingerprint
package db

import (
	"database/sql"
	"fmt"
	"time"
)

// Link is the durable record of a sheet-row/CRM-lead pairing. Fingerprint is
// the normalized email|phone key; email and phone are stored separately so
// entries stay findable when one identifying field changed.
type Link struct {
	Fingerprint    string
	RowID          string
	ExternalID     string
	Email          string
	Phone          string
	LastSyncedHash string
	LastSyncedAt   time.Time
}

// GetLink retrieves a link by fingerprint. Returns nil when not found.
func GetLink(db *sql.DB, fingerprint string) (*Link, error) {
	var link Link
	var rowID, externalID, email, phone sql.NullString

	err := db.QueryRow(`
		SELECT fingerprint, row_id, external_id, email, phone, last_synced_hash, last_synced_at
		FROM sync_links
		WHERE fingerprint = ?
	`, fingerprint).Scan(
		&link.Fingerprint,
		&rowID,
		&externalID,
		&email,
		&phone,
		&link.LastSyncedHash,
		&link.LastSyncedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync link: %w", err)
	}

	link.RowID = rowID.String
	link.ExternalID = externalID.String
	link.Email = email.String
	link.Phone = phone.String

	return &link, nil
}

// UpsertLink inserts or replaces a link keyed by fingerprint.
func UpsertLink(db *sql.DB, link *Link) error {
	_, err := db.Exec(`
		INSERT INTO sync_links (fingerprint, row_id, external_id, email, phone, last_synced_hash, last_synced_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(fingerprint) DO UPDATE SET
			row_id = excluded.row_id,
			external_id = excluded.external_id,
			email = excluded.email,
			phone = excluded.phone,
			last_synced_hash = excluded.last_synced_hash,
			last_synced_at = excluded.last_synced_at
	`,
		link.Fingerprint,
		link.RowID,
		link.ExternalID,
		link.Email,
		link.Phone,
		link.LastSyncedHash,
		link.LastSyncedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to upsert sync link: %w", err)
	}

	return nil
}

// AllLinks retrieves every link, used by the matcher's full scan.
func AllLinks(db *sql.DB) ([]Link, error) {
	rows, err := db.Query(`
		SELECT fingerprint, row_id, external_id, email, phone, last_synced_hash, last_synced_at
		FROM sync_links
		ORDER BY fingerprint
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync links: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var links []Link
	for rows.Next() {
		var link Link
		var rowID, externalID, email, phone sql.NullString

		err := rows.Scan(
			&link.Fingerprint,
			&rowID,
			&externalID,
			&email,
			&phone,
			&link.LastSyncedHash,
			&link.LastSyncedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync link: %w", err)
		}

		link.RowID = rowID.String
		link.ExternalID = externalID.String
		link.Email = email.String
		link.Phone = phone.String

		links = append(links, link)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync links: %w", err)
	}

	return links, nil
}
