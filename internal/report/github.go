package report

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
)

// WriteGitHubOutput appends outputs to the file named by GITHUB_OUTPUT.
// Single-line values use name=value; multi-line values use the heredoc
// form with a random delimiter.
func WriteGitHubOutput(path string, outputs []Output) error {
	if path == "" {
		return nil
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open GitHub output file: %w", err)
	}
	defer f.Close()

	var sb strings.Builder
	for _, o := range outputs {
		if strings.ContainsAny(o.Value, "\r\n") {
			delim := "ghadelimiter_" + uuid.NewString()
			fmt.Fprintf(&sb, "%s<<%s\n%s\n%s\n", o.Name, delim, o.Value, delim)
			continue
		}
		fmt.Fprintf(&sb, "%s=%s\n", o.Name, o.Value)
	}

	if _, err := f.WriteString(sb.String()); err != nil {
		return fmt.Errorf("failed to write GitHub output file: %w", err)
	}
	return nil
}
