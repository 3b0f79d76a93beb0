package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/jacklau/icedb/internal/aggregate"
	"github.com/jacklau/icedb/internal/dedup"
	"github.com/jacklau/icedb/internal/github"
	"github.com/jacklau/icedb/internal/notify"
	"github.com/jacklau/icedb/internal/records"
)

var (
	dupNotify   string
	dupOpenOnly bool
	dupJSON     bool
	dupMin      int
)

var dupCmd = &cobra.Command{
	Use:   "dup [owner/repo]",
	Short: "List fingerprint groups that look like duplicate reports",
	Long: `Dup reads the fingerprint and issue files and lists every group that links
several issues with the same ICE message and query stack. Matching is exact:
reports of one crash that differ in incidental text are not merged.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDup,
}

func init() {
	dupCmd.Flags().StringVar(&dupNotify, "notify", "", "send the report to slack, discord or both (bare flag uses configured webhooks)")
	dupCmd.Flags().Lookup("notify").NoOptDefVal = "auto"
	dupCmd.Flags().BoolVar(&dupOpenOnly, "open-only", false, "hide groups whose issues are all closed")
	dupCmd.Flags().BoolVar(&dupJSON, "json", false, "print groups as JSON lines")
	dupCmd.Flags().IntVar(&dupMin, "min-issues", 0, "issues a group must link (overrides defaults.min_issues)")
	rootCmd.AddCommand(dupCmd)
}

func runDup(cmd *cobra.Command, args []string) error {
	logger := setupLogger()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if dupMin > 0 {
		cfg.Defaults.MinIssues = dupMin
	}

	owner, repo := "local", "issues"
	if len(args) > 0 || cfg.Source.Repo != "" {
		if owner, repo, err = resolveRepo(cfg, args); err != nil {
			return err
		}
	}

	var n notify.Notifier
	if dupNotify != "" {
		kind := dupNotify
		if kind == "auto" {
			kind = ""
		}
		if n, err = createNotifier(cfg, kind); err != nil {
			return fmt.Errorf("creating notifier: %w", err)
		}
		if n == nil {
			return fmt.Errorf("--notify given but no webhook is configured")
		}
	}

	// Correlation reads only the record files.
	cfg.Store.Path = ""
	c, err := initComponents(cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing components: %w", err)
	}
	defer c.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	res, err := createPipeline(c, owner, repo, nil, n).Dup(ctx, n != nil)
	if err != nil {
		return err
	}

	signals := res.Signals
	if dupOpenOnly {
		signals = filterOpen(signals)
	}

	out := cmd.OutOrStdout()
	if dupJSON {
		groups := make([]aggregate.Group, len(signals))
		for i, s := range signals {
			groups[i] = s.Group
		}
		if err := records.EncodeGroups(out, groups); err != nil {
			return fmt.Errorf("encoding groups: %w", err)
		}
	} else {
		printSignals(out, owner+"/"+repo, signals, res.Issues)
	}

	if res.NotifyErr != nil {
		return fmt.Errorf("sending notification: %w", res.NotifyErr)
	}
	if res.Notified {
		fmt.Fprintln(cmd.ErrOrStderr(), "Notification sent.")
	}
	return nil
}

func filterOpen(signals []dedup.Signal) []dedup.Signal {
	var open []dedup.Signal
	for _, s := range signals {
		if s.AnyOpen {
			open = append(open, s)
		}
	}
	return open
}

// printSignals writes a human-readable listing. Groups with an open issue
// are highlighted; color is disabled automatically when out is not a terminal.
func printSignals(out io.Writer, repo string, signals []dedup.Signal, issues map[int]github.Issue) {
	bold := color.New(color.Bold)
	openColor := color.New(color.FgRed, color.Bold)
	closedColor := color.New(color.Faint)
	warn := color.New(color.FgYellow)

	bold.Fprintf(out, "Possible duplicates in %s: %s\n", repo, notify.Pluralize(len(signals), "group"))

	for _, s := range signals {
		fp := s.Group.Fingerprint
		fmt.Fprintln(out)
		if s.AnyOpen {
			openColor.Fprintf(out, "● %s\n", notify.FormatSignature(fp))
		} else {
			closedColor.Fprintf(out, "○ %s\n", notify.FormatSignature(fp))
		}
		if q := notify.FormatTopQuery(fp); q != "" {
			fmt.Fprintf(out, "  query:  %s\n", q)
		}
		fmt.Fprintf(out, "  issues: %s\n", notify.FormatIssues(s.Group.Issues, issues))
		if open := s.OpenIssues(issues); len(open) > 1 {
			fmt.Fprintf(out, "  %d open reports of the same crash\n", len(open))
		}
		if len(s.Missing) > 0 {
			warn.Fprintf(out, "  not in issue file: %v\n", s.Missing)
		}
	}

	fmt.Fprintln(out)
	warn.Fprintf(out, "note: %s\n", dedup.Limitation)
}
