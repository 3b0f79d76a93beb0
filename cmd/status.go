package cmd

import (
	"fmt"
	"io"
	"os"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jacklau/icedb/internal/aggregate"
	"github.com/jacklau/icedb/internal/dedup"
	"github.com/jacklau/icedb/internal/github"
	"github.com/jacklau/icedb/internal/notify"
	"github.com/jacklau/icedb/internal/store"
)

// maxSharedShown caps the groups listed by "status owner/repo".
const maxSharedShown = 10

var statusCmd = &cobra.Command{
	Use:   "status [owner/repo]",
	Short: "Show what the store knows about each repository",
	Long: `Display statistics from the SQLite mirror: issue counts, fingerprint
groups, groups shared by several issues and the last sort run. Given a
repository, also list its largest shared fingerprints.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	logger := setupLogger()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Store.Path == "" {
		return fmt.Errorf("no store configured (set store.path)")
	}

	c, err := initComponents(cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing components: %w", err)
	}
	defer c.Close()

	out := cmd.OutOrStdout()
	if len(args) == 1 {
		owner, repo, err := parseRepoArg(args[0])
		if err != nil {
			return err
		}
		return showRepo(out, c.Store, owner+"/"+repo)
	}

	allStats, err := c.Store.GetAllRepoStats()
	if err != nil {
		return fmt.Errorf("querying stats: %w", err)
	}

	if len(allStats) == 0 {
		fmt.Fprintln(out, "No repositories recorded yet.")
		fmt.Fprintln(out, "Run 'icedb fetch <owner/repo>' and 'icedb sort' to get started.")
		return nil
	}

	printStats(out, allStats)

	fmt.Fprintln(out)
	dbSize, err := dbFileSize(cfg.Store.Path)
	if err != nil {
		fmt.Fprintf(out, "Database: %s (size unknown)\n", cfg.Store.Path)
	} else {
		fmt.Fprintf(out, "Database: %s (%s)\n", cfg.Store.Path, formatBytes(dbSize))
	}

	return nil
}

// showRepo prints the stats row of one repository and its largest shared
// fingerprint groups.
func showRepo(out io.Writer, db *store.DB, repo string) error {
	stats, err := db.GetRepoStats(repo)
	if err != nil {
		return fmt.Errorf("querying stats: %w", err)
	}
	groups, err := db.ListGroups(repo)
	if err != nil {
		return fmt.Errorf("listing groups: %w", err)
	}
	issues, err := db.ListIssues(repo)
	if err != nil {
		return fmt.Errorf("listing issues: %w", err)
	}

	printStats(out, []store.RepoStats{*stats})
	printSharedGroups(out, groups, dedup.IndexIssues(issues))
	return nil
}

// printSharedGroups lists groups linking more than one issue, largest first.
func printSharedGroups(out io.Writer, groups []aggregate.Group, issues map[int]github.Issue) {
	var shared []aggregate.Group
	for _, g := range groups {
		if len(g.Issues) > 1 {
			shared = append(shared, g)
		}
	}
	if len(shared) == 0 {
		fmt.Fprintln(out, "\nNo fingerprint is shared by more than one issue.")
		return
	}
	slices.SortStableFunc(shared, func(a, b aggregate.Group) int {
		return len(b.Issues) - len(a.Issues)
	})

	fmt.Fprintln(out, "\nLargest shared fingerprints:")
	for i, g := range shared {
		if i == maxSharedShown {
			fmt.Fprintf(out, "  and %d more\n", len(shared)-maxSharedShown)
			break
		}
		kind := "weak"
		if g.Fingerprint.IsStrong() {
			kind = "strong"
		}
		fmt.Fprintf(out, "  %-9s %-6s %s\n", notify.Pluralize(len(g.Issues), "issue"), kind, notify.FormatSignature(g.Fingerprint))
		fmt.Fprintf(out, "            %s\n", notify.FormatIssues(g.Issues, issues))
	}
}

func printStats(out io.Writer, allStats []store.RepoStats) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "REPOSITORY\tISSUES\tOPEN\tFINGERPRINTS\tSHARED\tSTRONG\tLAST SORT")
	fmt.Fprintln(w, "----------\t------\t----\t------------\t------\t------\t---------")

	var totalIssues, totalOpen, totalGroups, totalShared, totalStrong int
	for _, s := range allStats {
		lastSort := "never"
		if s.LastRun != nil {
			lastSort = formatTimeAgo(s.LastRun.FinishedAt)
		}

		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\t%s\n",
			s.Repo, s.IssueCount, s.OpenCount, s.GroupCount, s.SharedCount, s.StrongShared, lastSort)

		totalIssues += s.IssueCount
		totalOpen += s.OpenCount
		totalGroups += s.GroupCount
		totalShared += s.SharedCount
		totalStrong += s.StrongShared
	}

	if len(allStats) > 1 {
		fmt.Fprintf(w, "TOTAL\t%d\t%d\t%d\t%d\t%d\t\n",
			totalIssues, totalOpen, totalGroups, totalShared, totalStrong)
	}
	w.Flush()
}

// formatTimeAgo formats a time as a human-readable relative string.
func formatTimeAgo(t time.Time) string {
	d := time.Since(t)

	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		mins := int(d.Minutes())
		if mins == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", mins)
	case d < 24*time.Hour:
		hours := int(d.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	default:
		days := int(d.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	}
}

// formatBytes formats bytes into a human-readable string.
func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}

// dbFileSize returns the size in bytes of the database file.
func dbFileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
