package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Interactive setup for icedb configuration",
	Long:  `Creates a default configuration file with guided prompts.`,
	RunE:  runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

// initAnswers holds the values gathered by runInit.
type initAnswers struct {
	Repo       string
	Auth       string
	AppID      string
	KeyPath    string
	SlackURL   string
	DiscordURL string
}

func runInit(cmd *cobra.Command, args []string) error {
	reader := bufio.NewReader(cmd.InOrStdin())
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "Welcome to icedb setup!")
	fmt.Fprintln(out, "This will create a configuration file for you.")
	fmt.Fprintln(out)

	configPath := cfgFile
	if configPath == "" {
		configPath = defaultConfigPath()
	}

	if _, err := os.Stat(configPath); err == nil {
		fmt.Fprintf(out, "Config file already exists at %s\n", configPath)
		answer := prompt(reader, out, "Overwrite? [y/N]: ")
		answer = strings.ToLower(answer)
		if answer != "y" && answer != "yes" {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	var a initAnswers
	a.Repo = prompt(reader, out, "Repository to track (owner/repo) [rust-lang/rust]: ")
	if a.Repo == "" {
		a.Repo = "rust-lang/rust"
	}
	if _, _, err := parseRepoArg(a.Repo); err != nil {
		return err
	}

	a.Auth = prompt(reader, out, "GitHub auth (token/app) [token]: ")
	if a.Auth == "" {
		a.Auth = "token"
	}
	if a.Auth != "token" && a.Auth != "app" {
		return fmt.Errorf("unsupported auth %q", a.Auth)
	}
	if a.Auth == "app" {
		a.AppID = prompt(reader, out, "GitHub App ID: ")
		a.KeyPath = prompt(reader, out, "GitHub private key path: ")
	}

	a.SlackURL = prompt(reader, out, "Slack webhook URL (or press Enter to skip): ")
	a.DiscordURL = prompt(reader, out, "Discord webhook URL (or press Enter to skip): ")

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(configPath, []byte(buildConfigYAML(a)), 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	fmt.Fprintf(out, "\nConfig written to %s\n", configPath)
	if a.Auth == "token" {
		fmt.Fprintln(out, "Export GITHUB_TOKEN before running 'icedb fetch'.")
	}
	return nil
}

func prompt(reader *bufio.Reader, out io.Writer, question string) string {
	fmt.Fprint(out, question)
	answer, _ := reader.ReadString('\n')
	return strings.TrimSpace(answer)
}

func buildConfigYAML(a initAnswers) string {
	var b strings.Builder

	b.WriteString("# icedb configuration\n")

	b.WriteString("github:\n")
	fmt.Fprintf(&b, "  auth: %s\n", a.Auth)
	if a.Auth == "app" {
		fmt.Fprintf(&b, "  app_id: %q\n", a.AppID)
		b.WriteString("  # installation_id: YOUR_INSTALLATION_ID\n")
		if a.KeyPath != "" {
			fmt.Fprintf(&b, "  private_key_path: %s\n", a.KeyPath)
		} else {
			b.WriteString("  # private_key_path: /path/to/private-key.pem\n")
		}
	} else {
		b.WriteString("  token: ${GITHUB_TOKEN}\n")
	}
	b.WriteString("\n")

	b.WriteString("source:\n")
	fmt.Fprintf(&b, "  repo: %s\n", a.Repo)
	b.WriteString("  label: I-ICE\n")
	b.WriteString("  per_page: 100\n")
	b.WriteString("  requests_per_second: 1\n")
	b.WriteString("\n")

	b.WriteString("paths:\n")
	b.WriteString("  issues: ./db/issues.jsonl\n")
	b.WriteString("  fingerprints: ./db/ices.jsonl\n")
	b.WriteString("\n")

	b.WriteString("store:\n")
	b.WriteString("  path: ./db/icedb.db\n")
	b.WriteString("\n")

	b.WriteString("defaults:\n")
	b.WriteString("  workers: 4\n")
	b.WriteString("  min_issues: 2\n")
	b.WriteString("  message_only: false\n")
	b.WriteString("  request_timeout: 30s\n")
	b.WriteString("\n")

	b.WriteString("notify:\n")
	if a.SlackURL != "" {
		fmt.Fprintf(&b, "  slack_webhook: %s\n", a.SlackURL)
	} else {
		b.WriteString("  # slack_webhook: https://hooks.slack.com/services/...\n")
	}
	if a.DiscordURL != "" {
		fmt.Fprintf(&b, "  discord_webhook: %s\n", a.DiscordURL)
	} else {
		b.WriteString("  # discord_webhook: https://discord.com/api/webhooks/...\n")
	}

	return b.String()
}
