package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
)

var fetchLabel string

var fetchCmd = &cobra.Command{
	Use:   "fetch [owner/repo]",
	Short: "Download labeled issues into the issue file",
	Long: `Fetch downloads every issue, open or closed, carrying the configured label
(I-ICE by default) and atomically replaces the issue file with them.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runFetch,
}

func init() {
	fetchCmd.Flags().StringVar(&fetchLabel, "label", "", "label to fetch (overrides source.label)")
	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, args []string) error {
	logger := setupLogger()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if fetchLabel != "" {
		cfg.Source.Label = fetchLabel
	}

	owner, repo, err := resolveRepo(cfg, args)
	if err != nil {
		return err
	}

	fetcher, err := newFetcher(cfg, logger)
	if err != nil {
		return err
	}

	c, err := initComponents(cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing components: %w", err)
	}
	defer c.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	start := time.Now()
	res, err := createPipeline(c, owner, repo, fetcher, nil).Fetch(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Fetched %d issues (%d open) from %s/%s in %s\n",
		res.Issues, res.Open, owner, repo, time.Since(start).Round(time.Millisecond))
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", cfg.Paths.Issues)
	return nil
}
