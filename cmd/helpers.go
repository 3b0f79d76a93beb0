package cmd

import (
	"fmt"
	"strconv"
	"strings"
)

// parseRepoArg splits "owner/repo".
func parseRepoArg(repoArg string) (owner, repo string, err error) {
	parts := strings.SplitN(repoArg, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" || strings.Contains(parts[1], "/") {
		return "", "", fmt.Errorf("invalid repo format: expected owner/repo, got %q", repoArg)
	}
	return parts[0], parts[1], nil
}

// parseIssueRef splits "owner/repo#number".
func parseIssueRef(ref string) (owner, repo string, number int, err error) {
	hashIdx := strings.LastIndex(ref, "#")
	if hashIdx == -1 {
		return "", "", 0, fmt.Errorf("invalid format: expected owner/repo#number, got %q", ref)
	}

	owner, repo, err = parseRepoArg(ref[:hashIdx])
	if err != nil {
		return "", "", 0, err
	}

	numStr := ref[hashIdx+1:]
	number, err = strconv.Atoi(numStr)
	if err != nil || number <= 0 {
		return "", "", 0, fmt.Errorf("invalid issue number %q", numStr)
	}

	return owner, repo, number, nil
}
