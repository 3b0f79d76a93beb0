package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jacklau/icedb/internal/aggregate"
	"github.com/jacklau/icedb/internal/fingerprint"
)

// replaceGroups stores groups for repo in the given order, replacing any
// previously stored groups.
func replaceGroups(tx *sql.Tx, repo string, groups []aggregate.Group) error {
	if _, err := tx.Exec(`DELETE FROM fingerprints WHERE repo = ?`, repo); err != nil {
		return fmt.Errorf("clearing fingerprints: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO fingerprints (repo, position, fingerprint, issues, issue_count, strong)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for i, g := range groups {
		fp, err := fingerprint.Marshal(g.Fingerprint)
		if err != nil {
			return fmt.Errorf("marshaling fingerprint %d: %w", i, err)
		}
		issues, err := json.Marshal(g.Issues)
		if err != nil {
			return fmt.Errorf("marshaling issues for fingerprint %d: %w", i, err)
		}
		strong := 0
		if g.Fingerprint.IsStrong() {
			strong = 1
		}
		if _, err := stmt.Exec(repo, i, string(fp), string(issues), len(g.Issues), strong); err != nil {
			return fmt.Errorf("inserting fingerprint %d: %w", i, err)
		}
	}
	return nil
}

// ListGroups returns the stored groups for repo in their stored order.
func (d *DB) ListGroups(repo string) ([]aggregate.Group, error) {
	rows, err := d.db.Query(`
		SELECT fingerprint, issues FROM fingerprints
		WHERE repo = ? ORDER BY position`,
		repo,
	)
	if err != nil {
		return nil, fmt.Errorf("querying fingerprints: %w", err)
	}
	defer rows.Close()

	var groups []aggregate.Group
	for rows.Next() {
		var fp, issues string
		if err := rows.Scan(&fp, &issues); err != nil {
			return nil, fmt.Errorf("scanning fingerprint: %w", err)
		}
		var g aggregate.Group
		if err := json.Unmarshal([]byte(fp), &g.Fingerprint); err != nil {
			return nil, fmt.Errorf("decoding fingerprint: %w", err)
		}
		if err := json.Unmarshal([]byte(issues), &g.Issues); err != nil {
			return nil, fmt.Errorf("decoding issues: %w", err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}
