package sink

import (
	"context"

	"github.com/kubilitics/kubilitics-gate/internal/report"
)

// GitHubOutputSink appends the pipeline outputs to the GITHUB_OUTPUT file.
type GitHubOutputSink struct {
	path string
}

// NewGitHubOutputSink creates a sink writing to path.
func NewGitHubOutputSink(path string) *GitHubOutputSink {
	return &GitHubOutputSink{path: path}
}

func (s *GitHubOutputSink) Name() string { return "github_output" }

func (s *GitHubOutputSink) Deliver(_ context.Context, d Delivery) error {
	return report.WriteGitHubOutput(s.path, d.Outputs)
}
