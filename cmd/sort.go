package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

var (
	sortWorkers  int
	sortProgress bool
)

var sortCmd = &cobra.Command{
	Use:   "sort [owner/repo]",
	Short: "Group issues by crash fingerprint",
	Long: `Sort extracts a fingerprint from every issue in the issue file, groups
issues with identical fingerprints and atomically replaces the fingerprint
file. Issues whose bodies yield no fingerprint are left out.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSort,
}

func init() {
	sortCmd.Flags().IntVarP(&sortWorkers, "workers", "w", 0, "concurrent extractions (overrides defaults.workers)")
	sortCmd.Flags().BoolVar(&sortProgress, "progress", false, "show stage progress on stderr")
	rootCmd.AddCommand(sortCmd)
}

func runSort(cmd *cobra.Command, args []string) error {
	logger := setupLogger()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if sortWorkers > 0 {
		cfg.Defaults.Workers = sortWorkers
	}

	// The repository only labels the store mirror; fall back to "local".
	owner, repo := "local", "issues"
	if len(args) > 0 || cfg.Source.Repo != "" {
		if owner, repo, err = resolveRepo(cfg, args); err != nil {
			return err
		}
	}

	c, err := initComponents(cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing components: %w", err)
	}
	defer c.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var done <-chan struct{}
	if sortProgress {
		stages := 3
		if c.Store != nil {
			stages++
		}
		done = trackStages(ctx, c.Broker, newProgressBar(stages, "sort", cmd.ErrOrStderr()))
	}

	res, err := createPipeline(c, owner, repo, nil, nil).Sort(ctx)
	if done != nil {
		c.Broker.Close()
		<-done
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Examined %d issues: %d fingerprints, %d without a fingerprint\n",
		res.Stats.Issues, res.Stats.Groups, res.Stats.Dropped)
	shared := 0
	for _, g := range res.Groups {
		if len(g.Issues) > 1 {
			shared++
		}
	}
	fmt.Fprintf(out, "%d fingerprints are shared by more than one issue\n", shared)
	fmt.Fprintf(out, "Wrote %s (run %s)\n", cfg.Paths.Fingerprints, res.RunID)
	return nil
}
