package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/kubilitics/kubilitics-gate/internal/health"
	"github.com/kubilitics/kubilitics-gate/internal/rollback"
	"github.com/kubilitics/kubilitics-gate/internal/scoring"
)

// Format is the rendering of a report on stdout or in a file.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatText, FormatJSON, FormatYAML:
		return f, nil
	}
	return "", fmt.Errorf("unknown output format %q (want text, json or yaml)", s)
}

// Render writes doc to w in the given format.
func Render(w io.Writer, doc Document, format Format) error {
	p := NewPrinter(w)
	switch format {
	case FormatJSON:
		return p.JSON(doc)
	case FormatYAML:
		return p.YAML(doc)
	case FormatText, "":
		renderText(p, doc)
		return nil
	}
	return fmt.Errorf("unknown output format %q", format)
}

func renderText(p *Printer, doc Document) {
	if doc.Initial != nil {
		renderReport(p, doc.Initial)
		p.Println()
	}
	renderReport(p, doc.Report)

	if doc.Rollback != nil {
		p.Println()
		renderAdvice(p, doc.Rollback)
	}

	p.Println()
	for _, o := range doc.Outputs {
		p.Printf("%s=%s\n", o.Name, o.Value)
	}
}

func renderReport(p *Printer, r *health.HealthReport) {
	p.Header(fmt.Sprintf("Deployment health (%s phase, %s mode)", r.Phase, r.Mode))
	p.Printf("Run %s  pipeline %s  commit %s  environment %s  namespace %s\n",
		shortID(r.RunID), r.Context.PipelineID, r.Context.ShortSHA(), r.Context.Environment, r.Context.Namespace)
	p.Println()

	rows := make([][]string, 0, len(r.Assessments))
	for _, a := range r.Assessments {
		note := a.Narrative
		if a.Defaulted {
			note = "[default] " + note
		}
		rows = append(rows, []string{
			string(a.Category),
			fmt.Sprintf("%.2f", a.SubScore),
			strconv.Itoa(a.IssuesFound),
			note,
		})
	}
	p.Table([]string{"CATEGORY", "SCORE", "ISSUES", "NOTE"}, rows)
	p.Println()

	p.Printf("Overall: %s/100 (%s), %d critical issues, threshold %.2f\n",
		scoring.FormatScore(r.OverallScore), scoring.Grade(r.OverallScore), r.CriticalIssues, r.Threshold)
	if r.Summary != "" {
		p.Printf("Summary: %s\n", r.Summary)
	}
	for _, c := range r.Correlations {
		p.Printf("Correlation: %s\n", c)
	}
	if len(r.Actions) > 0 {
		p.Println("Recommended actions:")
		for _, a := range r.Actions {
			p.Printf("  - [%s] %s\n", a.Priority, a.Description)
		}
	}

	if r.Recommendation == health.RecommendationDeploy {
		p.Success("Recommendation: DEPLOY")
		return
	}
	if r.BlockingMode {
		p.Warning("Recommendation: BLOCK")
	} else {
		p.Warning("Recommendation: BLOCK (non-blocking mode, pipeline continues)")
	}
}

func renderAdvice(p *Printer, adv *rollback.Advice) {
	t := adv.ScoreTrend
	p.Printf("Score trend: %.2f -> %.2f (%+.2f, %s)\n", t.From, t.To, t.DeltaScore, t.Direction)
	p.Printf("Critical issues: %d -> %d\n", adv.IssuesFrom, adv.IssuesTo)
	if !adv.Suggested {
		p.Success("No regression between phases")
		return
	}
	p.Warning("Rollback suggested")
	for _, r := range adv.Reasons {
		p.Printf("  - %s\n", r)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
