package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jacklau/icedb/internal/github"
)

// ReplaceIssues replaces the stored snapshot of repo's issues with issues.
// The previous snapshot is removed in the same transaction, so readers see
// either the old set or the new one.
func (d *DB) ReplaceIssues(repo string, issues []github.Issue) error {
	return d.inTx(func(tx *sql.Tx) error {
		return replaceIssues(tx, repo, issues)
	})
}

func replaceIssues(tx *sql.Tx, repo string, issues []github.Issue) error {
	if _, err := tx.Exec(`DELETE FROM issues WHERE repo = ?`, repo); err != nil {
		return fmt.Errorf("clearing issues: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO issues (repo, number, id, state, title, body, labels)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(repo, number) DO UPDATE SET
			id = excluded.id,
			state = excluded.state,
			title = excluded.title,
			body = excluded.body,
			labels = excluded.labels`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, issue := range issues {
		labels := issue.Labels
		if labels == nil {
			labels = []github.Label{}
		}
		labelsJSON, err := json.Marshal(labels)
		if err != nil {
			return fmt.Errorf("marshaling labels for #%d: %w", issue.Number, err)
		}

		var body sql.NullString
		if issue.Body != nil {
			body = sql.NullString{String: *issue.Body, Valid: true}
		}

		if _, err := stmt.Exec(repo, issue.Number, issue.ID, string(issue.State),
			issue.Title, body, string(labelsJSON)); err != nil {
			return fmt.Errorf("inserting issue #%d: %w", issue.Number, err)
		}
	}
	return nil
}

// ListIssues returns the stored issues for repo ordered by number.
func (d *DB) ListIssues(repo string) ([]github.Issue, error) {
	rows, err := d.db.Query(`
		SELECT number, id, state, title, body, labels
		FROM issues WHERE repo = ? ORDER BY number`,
		repo,
	)
	if err != nil {
		return nil, fmt.Errorf("querying issues: %w", err)
	}
	defer rows.Close()

	var issues []github.Issue
	for rows.Next() {
		var issue github.Issue
		var state, labels string
		var body sql.NullString

		if err := rows.Scan(&issue.Number, &issue.ID, &state, &issue.Title, &body, &labels); err != nil {
			return nil, fmt.Errorf("scanning issue: %w", err)
		}
		issue.State = github.State(state)
		if body.Valid {
			s := body.String
			issue.Body = &s
		}
		if err := json.Unmarshal([]byte(labels), &issue.Labels); err != nil {
			return nil, fmt.Errorf("decoding labels for #%d: %w", issue.Number, err)
		}
		issues = append(issues, issue)
	}
	return issues, rows.Err()
}
