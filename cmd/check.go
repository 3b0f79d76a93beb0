package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/jacklau/icedb/internal/fingerprint"
	"github.com/jacklau/icedb/internal/github"
)

var checkCmd = &cobra.Command{
	Use:   "check <file|-|owner/repo#number>",
	Short: "Print the fingerprint of a single report",
	Long: `Check extracts a fingerprint from one report body and prints it as JSON.
The body is read from a file, from stdin when the argument is "-", or fetched
from GitHub when the argument has the form owner/repo#number.`,
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	body, err := readCheckBody(cmd, args[0])
	if err != nil {
		return err
	}
	if !utf8.ValidString(body) {
		return errors.New("report body is not valid UTF-8")
	}
	return printCheck(cmd.OutOrStdout(), fingerprint.Extract(body))
}

func readCheckBody(cmd *cobra.Command, arg string) (string, error) {
	if arg == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), nil
	}

	data, err := os.ReadFile(arg)
	if err == nil {
		return string(data), nil
	}
	if !errors.Is(err, os.ErrNotExist) || !strings.Contains(arg, "#") {
		return "", fmt.Errorf("reading %s: %w", arg, err)
	}

	owner, repo, number, err := parseIssueRef(arg)
	if err != nil {
		return "", err
	}

	cfg, err := loadConfig()
	if err != nil {
		return "", fmt.Errorf("loading config: %w", err)
	}
	fetcher, err := newFetcher(cfg, setupLogger())
	if err != nil {
		return "", err
	}
	issue, err := fetcher.Get(context.Background(), owner, repo, number)
	if err != nil {
		return "", err
	}
	if note := labelNote(issue, cfg.Source.Label); note != "" {
		fmt.Fprintln(cmd.ErrOrStderr(), note)
	}
	return issue.BodyText(), nil
}

// labelNote warns when a fetched issue lacks the label fetch selects by, so
// it would not be part of the issue file.
func labelNote(issue github.Issue, label string) string {
	if label == "" || issue.HasLabel(label) {
		return ""
	}
	return fmt.Sprintf("note: #%d is not labeled %s; fetch will not include it", issue.Number, label)
}

func printCheck(out io.Writer, fp fingerprint.Fingerprint) error {
	data, err := fingerprint.Marshal(fp)
	if err != nil {
		return fmt.Errorf("encoding fingerprint: %w", err)
	}
	fmt.Fprintln(out, string(data))

	present := fp.Present()
	if len(present) == 0 {
		fmt.Fprintln(out, "No fingerprint fields found; this report would be left out of grouping.")
		return nil
	}
	fmt.Fprintf(out, "fields: %s\n", strings.Join(present, ", "))
	if fp.IsStrong() {
		fmt.Fprintln(out, "strong signature: reports with this fingerprint are flagged as duplicates")
	}
	return nil
}
