package cmd

import (
	"bytes"
	"errors"
	"io/fs"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/jacklau/icedb/internal/config"
	"github.com/jacklau/icedb/internal/notify"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func TestCreateNotifier(t *testing.T) {
	cfg := config.Default()

	n, err := createNotifier(cfg, "")
	if err != nil {
		t.Fatalf("createNotifier failed: %v", err)
	}
	if n != nil {
		t.Errorf("expected nil notifier without webhooks, got %T", n)
	}

	if _, err := createNotifier(cfg, "slack"); err == nil {
		t.Error("expected error for slack without webhook")
	}

	cfg.Notify.SlackWebhook = "https://hooks.slack.com/services/x"
	n, err = createNotifier(cfg, "")
	if err != nil {
		t.Fatalf("createNotifier failed: %v", err)
	}
	if _, ok := n.(*notify.SlackNotifier); !ok {
		t.Errorf("expected *SlackNotifier, got %T", n)
	}

	cfg.Notify.DiscordWebhook = "https://discord.com/api/webhooks/x"
	n, err = createNotifier(cfg, "")
	if err != nil {
		t.Fatalf("createNotifier failed: %v", err)
	}
	if _, ok := n.(*notify.MultiNotifier); !ok {
		t.Errorf("expected *MultiNotifier, got %T", n)
	}

	if _, err := createNotifier(cfg, "email"); err == nil {
		t.Error("expected error for unsupported notifier type")
	}
}

func TestResolveRepo(t *testing.T) {
	cfg := config.Default()

	if _, _, err := resolveRepo(cfg, nil); err == nil {
		t.Error("expected error with no argument and no source.repo")
	}

	cfg.Source.Repo = "rust-lang/rust"
	owner, repo, err := resolveRepo(cfg, nil)
	if err != nil {
		t.Fatalf("resolveRepo failed: %v", err)
	}
	if owner != "rust-lang" || repo != "rust" {
		t.Errorf("got %s/%s, want rust-lang/rust", owner, repo)
	}

	owner, repo, err = resolveRepo(cfg, []string{"other/project"})
	if err != nil {
		t.Fatalf("resolveRepo failed: %v", err)
	}
	if owner != "other" || repo != "project" {
		t.Errorf("argument should win over config, got %s/%s", owner, repo)
	}
}

func TestInitComponents(t *testing.T) {
	cfg := config.Default()
	cfg.Store.Path = ":memory:"

	c, err := initComponents(cfg, quietLogger())
	if err != nil {
		t.Fatalf("initComponents failed: %v", err)
	}
	defer c.Close()

	if c.Store == nil {
		t.Fatal("expected store to be opened")
	}
	if c.Broker == nil {
		t.Fatal("expected broker")
	}
	if _, err := c.Store.ListRepos(); err != nil {
		t.Errorf("ListRepos failed: %v", err)
	}
}

func TestInitComponentsCreatesStoreDirectory(t *testing.T) {
	cfg := config.Default()
	cfg.Store.Path = filepath.Join(t.TempDir(), "nested", "icedb.db")

	c, err := initComponents(cfg, quietLogger())
	if err != nil {
		t.Fatalf("initComponents failed: %v", err)
	}
	defer c.Close()

	if c.Store == nil {
		t.Fatal("expected store to be opened")
	}
}

func TestInitComponentsWithoutStore(t *testing.T) {
	cfg := config.Default()
	cfg.Store.Path = ""

	c, err := initComponents(cfg, quietLogger())
	if err != nil {
		t.Fatalf("initComponents failed: %v", err)
	}
	defer c.Close()

	if c.Store != nil {
		t.Error("expected no store when store.path is empty")
	}

	p := createPipeline(c, "rust-lang", "rust", nil, nil)
	if p == nil {
		t.Fatal("createPipeline returned nil")
	}
}

func TestNewGitHubClientMissingToken(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "")

	cfg := config.Default()
	if _, err := newGitHubClient(cfg); err == nil {
		t.Error("expected error without a token")
	}

	cfg.GitHub.Token = "ghp_test"
	if _, err := newGitHubClient(cfg); err != nil {
		t.Errorf("newGitHubClient failed: %v", err)
	}
}

func TestNewGitHubClientAppBadIDs(t *testing.T) {
	cfg := config.Default()
	cfg.GitHub.Auth = "app"
	cfg.GitHub.AppID = "not-a-number"
	cfg.GitHub.InstallationID = "1"

	if _, err := newGitHubClient(cfg); err == nil {
		t.Error("expected error for non-numeric app_id")
	}
}

func TestLoadConfigExplicitMissingFile(t *testing.T) {
	old := cfgFile
	defer func() { cfgFile = old }()

	cfgFile = filepath.Join(t.TempDir(), "missing.yaml")
	_, err := loadConfig()
	if err == nil {
		t.Fatal("expected error for missing explicit config")
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected fs.ErrNotExist, got %v", err)
	}
}
