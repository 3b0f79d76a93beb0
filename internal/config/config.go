package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration.
type Config struct {
	GitHub   GitHubConfig   `yaml:"github"`
	Source   SourceConfig   `yaml:"source"`
	Paths    PathsConfig    `yaml:"paths"`
	Store    StoreConfig    `yaml:"store"`
	Defaults DefaultsConfig `yaml:"defaults"`
	Notify   NotifyConfig   `yaml:"notify"`
}

// GitHubConfig holds GitHub authentication settings.
type GitHubConfig struct {
	Auth           string `yaml:"auth"`
	Token          string `yaml:"token"`
	AppID          string `yaml:"app_id"`
	InstallationID string `yaml:"installation_id"`
	PrivateKeyPath string `yaml:"private_key_path"`
	PrivateKey     string `yaml:"private_key"`
}

// SourceConfig selects which issues are fetched.
type SourceConfig struct {
	Repo              string  `yaml:"repo"`
	Label             string  `yaml:"label"`
	PerPage           int     `yaml:"per_page"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// PathsConfig locates the record files.
type PathsConfig struct {
	Issues       string `yaml:"issues"`
	Fingerprints string `yaml:"fingerprints"`
}

// StoreConfig holds storage settings. An empty path disables the SQLite mirror.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// DefaultsConfig holds default operational parameters.
type DefaultsConfig struct {
	Workers           int    `yaml:"workers"`
	MinIssues         int    `yaml:"min_issues"`
	MessageOnly       bool   `yaml:"message_only"`
	RequestTimeoutRaw string `yaml:"request_timeout"`
}

// NotifyConfig holds notification webhook URLs.
type NotifyConfig struct {
	SlackWebhook   string `yaml:"slack_webhook"`
	DiscordWebhook string `yaml:"discord_webhook"`
}

// RequestTimeout returns the parsed request timeout duration.
func (d DefaultsConfig) RequestTimeout() (time.Duration, error) {
	if d.RequestTimeoutRaw == "" {
		return 30 * time.Second, nil
	}
	return time.ParseDuration(d.RequestTimeoutRaw)
}

// Owner returns the owner half of Source.Repo.
func (s SourceConfig) Owner() string {
	owner, _, _ := strings.Cut(s.Repo, "/")
	return owner
}

// Name returns the repository half of Source.Repo.
func (s SourceConfig) Name() string {
	_, name, _ := strings.Cut(s.Repo, "/")
	return name
}

// envVarPattern matches ${VAR} patterns.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR} placeholders with environment variable values.
// Returns an error if any referenced variable is not set.
func expandEnvVars(data []byte) ([]byte, error) {
	var missing []string

	result := envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := envVarPattern.FindSubmatch(match)[1]
		val, ok := os.LookupEnv(string(varName))
		if !ok {
			missing = append(missing, string(varName))
			return match
		}
		return []byte(val)
	})

	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	return result, nil
}

// expandTilde replaces a leading "~" with the user's home directory.
func expandTilde(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// Default returns the configuration used when no config file exists.
func Default() *Config {
	cfg := &Config{Store: StoreConfig{Path: defaultStorePath}}
	applyDefaults(cfg)
	return cfg
}

// Load reads and parses a config file from the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse parses config from raw YAML bytes, expanding env vars and validating.
func Parse(data []byte) (*Config, error) {
	expanded, err := expandEnvVars(data)
	if err != nil {
		return nil, err
	}

	// An explicit empty store.path disables the mirror, so its default is
	// set before decoding rather than in applyDefaults.
	cfg := Config{Store: StoreConfig{Path: defaultStorePath}}
	if err := yaml.Unmarshal(expanded, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

const defaultStorePath = "./db/icedb.db"

func applyDefaults(cfg *Config) {
	if cfg.GitHub.Auth == "" {
		cfg.GitHub.Auth = "token"
	}
	if cfg.Source.Label == "" {
		cfg.Source.Label = "I-ICE"
	}
	if cfg.Source.PerPage == 0 {
		cfg.Source.PerPage = 100
	}
	if cfg.Paths.Issues == "" {
		cfg.Paths.Issues = "./db/issues.jsonl"
	}
	if cfg.Paths.Fingerprints == "" {
		cfg.Paths.Fingerprints = "./db/ices.jsonl"
	}
	if cfg.Defaults.Workers == 0 {
		cfg.Defaults.Workers = 4
	}
	if cfg.Defaults.MinIssues == 0 {
		cfg.Defaults.MinIssues = 2
	}
	if cfg.Defaults.RequestTimeoutRaw == "" {
		cfg.Defaults.RequestTimeoutRaw = "30s"
	}
	cfg.Paths.Issues = expandTilde(cfg.Paths.Issues)
	cfg.Paths.Fingerprints = expandTilde(cfg.Paths.Fingerprints)
	cfg.Store.Path = expandTilde(cfg.Store.Path)
}

func validate(cfg *Config) error {
	switch cfg.GitHub.Auth {
	case "token", "app":
	default:
		return fmt.Errorf("unsupported github auth %q (want token or app)", cfg.GitHub.Auth)
	}

	if cfg.Source.Repo != "" {
		owner, name, ok := strings.Cut(cfg.Source.Repo, "/")
		if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
			return fmt.Errorf("source.repo must be owner/repo, got %q", cfg.Source.Repo)
		}
	}
	if cfg.Source.PerPage < 1 || cfg.Source.PerPage > 100 {
		return fmt.Errorf("per_page must be between 1 and 100, got %d", cfg.Source.PerPage)
	}
	if cfg.Source.RequestsPerSecond < 0 {
		return fmt.Errorf("requests_per_second must not be negative, got %f", cfg.Source.RequestsPerSecond)
	}

	if cfg.Defaults.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", cfg.Defaults.Workers)
	}
	if cfg.Defaults.MinIssues < 2 {
		return fmt.Errorf("min_issues must be at least 2, got %d", cfg.Defaults.MinIssues)
	}

	if _, err := time.ParseDuration(cfg.Defaults.RequestTimeoutRaw); err != nil {
		return fmt.Errorf("invalid request_timeout %q: %w", cfg.Defaults.RequestTimeoutRaw, err)
	}

	return nil
}
