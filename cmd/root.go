package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jacklau/icedb/internal/aggregate"
	"github.com/jacklau/icedb/internal/config"
	"github.com/jacklau/icedb/internal/dedup"
	"github.com/jacklau/icedb/internal/github"
	"github.com/jacklau/icedb/internal/notify"
	"github.com/jacklau/icedb/internal/pipeline"
	"github.com/jacklau/icedb/internal/pubsub"
	"github.com/jacklau/icedb/internal/store"

	gogithub "github.com/google/go-github/v60/github"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "icedb",
	Short: "Fingerprint rustc ICE reports and find duplicates",
	Long: `icedb fetches internal compiler error reports from a GitHub repository,
extracts a crash fingerprint from each report body, groups reports with
identical fingerprints and flags groups that look like duplicate reports.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", fmt.Sprintf("config file (default %s)", defaultConfigPath()))
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".icedb", "config.yaml")
	}
	return filepath.Join(home, ".icedb", "config.yaml")
}

func setupLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}

// loadConfig reads the config file. A missing file at the default location
// yields the default configuration; an explicit --config must exist.
func loadConfig() (*config.Config, error) {
	if cfgFile != "" {
		return config.Load(cfgFile)
	}
	cfg, err := config.Load(defaultConfigPath())
	if errors.Is(err, fs.ErrNotExist) {
		return config.Default(), nil
	}
	return cfg, err
}

// components holds initialized components for use by subcommands.
type components struct {
	Config *config.Config
	Store  *store.DB
	Broker *pubsub.Broker[pipeline.Progress]
	Logger *slog.Logger
}

// initComponents opens the store when one is configured.
func initComponents(cfg *config.Config, logger *slog.Logger) (*components, error) {
	c := &components{
		Config: cfg,
		Logger: logger,
		Broker: pubsub.NewBroker[pipeline.Progress](),
	}

	if cfg.Store.Path != "" {
		if cfg.Store.Path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0o755); err != nil {
				return nil, fmt.Errorf("creating store directory: %w", err)
			}
		}
		db, err := store.Open(cfg.Store.Path)
		if err != nil {
			return nil, fmt.Errorf("opening store: %w", err)
		}
		c.Store = db
	}

	return c, nil
}

// Close releases the store and ends progress subscriptions.
func (c *components) Close() {
	c.Broker.Close()
	if c.Store != nil {
		c.Store.Close()
	}
}

// newGitHubClient builds an authenticated client from the github config.
func newGitHubClient(cfg *config.Config) (*gogithub.Client, error) {
	switch cfg.GitHub.Auth {
	case "app":
		appID, err := strconv.ParseInt(cfg.GitHub.AppID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing app_id: %w", err)
		}
		installID, err := strconv.ParseInt(cfg.GitHub.InstallationID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing installation_id: %w", err)
		}
		client, err := github.NewAppClient(appID, installID, []byte(cfg.GitHub.PrivateKey), cfg.GitHub.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("creating GitHub client: %w", err)
		}
		return client, nil
	default:
		token := cfg.GitHub.Token
		if token == "" {
			token = os.Getenv("GITHUB_TOKEN")
		}
		if token == "" {
			return nil, errors.New("GitHub token not configured (set github.token or GITHUB_TOKEN)")
		}
		return github.NewTokenClient(token), nil
	}
}

// newFetcher builds a Fetcher using the source paging settings.
func newFetcher(cfg *config.Config, logger *slog.Logger) (*github.Fetcher, error) {
	client, err := newGitHubClient(cfg)
	if err != nil {
		return nil, err
	}
	return github.NewFetcher(client,
		github.WithPerPage(cfg.Source.PerPage),
		github.WithRequestsPerSecond(cfg.Source.RequestsPerSecond),
		github.WithFetcherLogger(logger),
	), nil
}

// createNotifier builds a Notifier from config and flag override.
// It returns nil when no webhook is configured.
func createNotifier(cfg *config.Config, notifyFlag string) (notify.Notifier, error) {
	if notifyFlag == "" {
		return notify.FromWebhooks(cfg.Notify.SlackWebhook, cfg.Notify.DiscordWebhook), nil
	}
	return notify.NewNotifier(notifyFlag, cfg.Notify.SlackWebhook, cfg.Notify.DiscordWebhook)
}

// resolveRepo picks the repository from the command argument, falling back
// to source.repo.
func resolveRepo(cfg *config.Config, args []string) (owner, repo string, err error) {
	if len(args) > 0 {
		return parseRepoArg(args[0])
	}
	if cfg.Source.Repo == "" {
		return "", "", errors.New("no repository given (pass owner/repo or set source.repo)")
	}
	return parseRepoArg(cfg.Source.Repo)
}

// createPipeline builds a Pipeline from components.
func createPipeline(c *components, owner, repo string, source pipeline.IssueSource, n notify.Notifier) *pipeline.Pipeline {
	cfg := c.Config

	engineOpts := []dedup.Option{
		dedup.WithMinIssues(cfg.Defaults.MinIssues),
		dedup.WithLogger(c.Logger),
	}
	if cfg.Defaults.MessageOnly {
		engineOpts = append(engineOpts, dedup.WithMessageOnly())
	}

	deps := pipeline.Deps{
		Source: source,
		Aggregator: aggregate.New(
			aggregate.WithWorkers(cfg.Defaults.Workers),
			aggregate.WithLogger(c.Logger),
		),
		Engine:   dedup.NewEngine(engineOpts...),
		Notifier: n,
		Broker:   c.Broker,
		Logger:   c.Logger,
	}
	// A nil *store.DB must not become a non-nil interface.
	if c.Store != nil {
		deps.Store = c.Store
	}

	return pipeline.New(pipeline.Options{
		Owner:            owner,
		Repo:             repo,
		Label:            cfg.Source.Label,
		IssuesPath:       cfg.Paths.Issues,
		FingerprintsPath: cfg.Paths.Fingerprints,
	}, deps)
}
