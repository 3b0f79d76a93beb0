package store

import "fmt"

// RepoStats holds aggregate statistics for a single repository.
type RepoStats struct {
	Repo         string
	IssueCount   int
	OpenCount    int
	GroupCount   int
	SharedCount  int // groups with two or more issues
	StrongShared int // shared groups with an ICE message and a query stack
	LastRun      *Run
}

// GetRepoStats returns aggregate statistics for a single repo.
func (d *DB) GetRepoStats(repo string) (*RepoStats, error) {
	stats := &RepoStats{Repo: repo}

	err := d.db.QueryRow(
		`SELECT COUNT(*), COALESCE(SUM(state = 'open'), 0) FROM issues WHERE repo = ?`, repo,
	).Scan(&stats.IssueCount, &stats.OpenCount)
	if err != nil {
		return nil, fmt.Errorf("counting issues: %w", err)
	}

	err = d.db.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(SUM(issue_count >= 2), 0),
		       COALESCE(SUM(issue_count >= 2 AND strong = 1), 0)
		FROM fingerprints WHERE repo = ?`, repo,
	).Scan(&stats.GroupCount, &stats.SharedCount, &stats.StrongShared)
	if err != nil {
		return nil, fmt.Errorf("counting fingerprints: %w", err)
	}

	runs, err := d.ListRuns(repo, 1)
	if err != nil {
		return nil, err
	}
	if len(runs) > 0 {
		stats.LastRun = &runs[0]
	}

	return stats, nil
}

// ListRepos returns every repository with stored issues, fingerprints or runs.
func (d *DB) ListRepos() ([]string, error) {
	rows, err := d.db.Query(`
		SELECT repo FROM issues
		UNION SELECT repo FROM fingerprints
		UNION SELECT repo FROM runs
		ORDER BY repo`)
	if err != nil {
		return nil, fmt.Errorf("querying repos: %w", err)
	}
	defer rows.Close()

	var repos []string
	for rows.Next() {
		var r string
		if err := rows.Scan(&r); err != nil {
			return nil, fmt.Errorf("scanning repo: %w", err)
		}
		repos = append(repos, r)
	}
	return repos, rows.Err()
}

// GetAllRepoStats returns statistics for all stored repos.
func (d *DB) GetAllRepoStats() ([]RepoStats, error) {
	repos, err := d.ListRepos()
	if err != nil {
		return nil, fmt.Errorf("listing repos: %w", err)
	}

	var results []RepoStats
	for _, repo := range repos {
		stats, err := d.GetRepoStats(repo)
		if err != nil {
			return nil, fmt.Errorf("getting stats for %s: %w", repo, err)
		}
		results = append(results, *stats)
	}

	return results, nil
}
