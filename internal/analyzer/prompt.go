package analyzer

import (
	"fmt"
	"strings"

	"github.com/kubilitics/kubilitics-gate/internal/health"
	"github.com/kubilitics/kubilitics-gate/internal/llm/types"
)

const systemPrompt = `You are a site reliability engineer acting as a deployment gate.
You receive telemetry for four categories: performance, infrastructure, platform and trend.
Assess each category on its own evidence. A score of 100 means fully healthy; 0 means unusable.
Count only issues that should stop a production rollout as critical issues.
missing_metrics counts core signals the backend failed to return. Treat missing data as risk, never as health.
Answer with the requested labels only, one per line, with no extra commentary.`

// BuildPrompt renders the snapshot and run context into the system and user
// messages sent to the model.
func BuildPrompt(snap health.Snapshot, rc health.RunContext) []types.Message {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Pipeline: %s | Commit: %s | Environment: %s | Namespace: %s\n",
		rc.PipelineID, rc.ShortSHA(), rc.Environment, rc.Namespace)
	if rc.DetectedEnv != "" {
		fmt.Fprintf(&sb, "Runtime: %s\n", rc.DetectedEnv)
	}

	sb.WriteString("\nTelemetry:\n")
	for _, r := range snap.Readings() {
		fmt.Fprintf(&sb, "- %s\n", r.Summary())
	}

	if corr := Correlate(snap); len(corr) > 0 {
		sb.WriteString("\nCorrelations:\n")
		for _, c := range corr {
			fmt.Fprintf(&sb, "- %s\n", c)
		}
	}

	sb.WriteString("\nRespond in exactly this format:\n")
	for _, c := range health.Categories() {
		fmt.Fprintf(&sb, "%s: <number 0-100>\n", Label(c, fieldScore))
		fmt.Fprintf(&sb, "%s: <integer count of critical issues>\n", Label(c, fieldIssues))
		fmt.Fprintf(&sb, "%s: <one sentence>\n", Label(c, fieldNote))
	}
	sb.WriteString("SUMMARY: <one sentence overall verdict>\n")

	return []types.Message{
		{Role: types.RoleSystem, Content: systemPrompt},
		{Role: types.RoleUser, Content: sb.String()},
	}
}
