package analyzer

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/kubilitics/kubilitics-gate/internal/health"
)

// Extraction is the parsed model verdict for one category.
type Extraction struct {
	Score  float64
	Issues int
	Note   string
}

// Label fields requested from the model for every category.
const (
	fieldScore  = "SCORE"
	fieldIssues = "ISSUES"
	fieldNote   = "NOTE"
)

// maxIssues caps parsed issue counts so the conversion to int cannot wrap.
const maxIssues = math.MaxInt32

var (
	numberRe  = regexp.MustCompile(`[-+]?\d+(?:\.\d+)?(?:[eE][-+]?\d+)?`)
	summaryRe = labelRe("SUMMARY")
	labels    = buildLabels()
)

// labelRe matches a label at the start of a line, tolerating markdown
// bullets, numbered list markers, table pipes and emphasis, any case, and
// `_`, space or `-` between words. The submatch is the remainder of the line.
func labelRe(words ...string) *regexp.Regexp {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}
	return regexp.MustCompile(`(?i)^[\s*#>|\-]*(?:\d+[.)]\s*)?[\s*#>|\-]*` + strings.Join(quoted, `[\s_\-]+`) + `\b[\s*|]*[:=]?(.*)$`)
}

func buildLabels() map[health.Category]map[string]*regexp.Regexp {
	out := make(map[health.Category]map[string]*regexp.Regexp, 4)
	for _, c := range health.Categories() {
		name := strings.ToUpper(string(c))
		out[c] = map[string]*regexp.Regexp{
			fieldScore:  labelRe(name, fieldScore),
			fieldIssues: labelRe(name, fieldIssues),
			fieldNote:   labelRe(name, fieldNote),
		}
	}
	return out
}

// Label returns the canonical label the model is asked to emit, e.g.
// PERFORMANCE_SCORE.
func Label(cat health.Category, field string) string {
	return strings.ToUpper(string(cat)) + "_" + field
}

// Extract parses the verdict for cat from free-form model output. It fails
// when either the score or the issue count is missing or out of float range,
// or when the issue count is negative. Scores are clamped to [0,100].
// Fractional issue counts round up and huge ones are capped at maxIssues.
func Extract(text string, cat health.Category) (Extraction, bool) {
	res, ok := labels[cat]
	if !ok {
		return Extraction{}, false
	}
	lines := splitLines(text)

	score, ok := findNumber(lines, res[fieldScore])
	if !ok {
		return Extraction{}, false
	}
	issues, ok := findNumber(lines, res[fieldIssues])
	if !ok || issues < 0 {
		return Extraction{}, false
	}

	return Extraction{
		Score:  clampScore(score),
		Issues: issueCount(issues),
		Note:   findText(lines, res[fieldNote]),
	}, true
}

// ExtractSummary returns the SUMMARY line of the model output, if any.
func ExtractSummary(text string) string {
	return findText(splitLines(text), summaryRe)
}

func issueCount(v float64) int {
	return int(math.Min(math.Ceil(v), maxIssues))
}

func splitLines(text string) []string {
	return strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
}

// findNumber returns the first numeric token after the first occurrence of
// the label. The next line is consulted only when nothing follows the label
// on its own line.
func findNumber(lines []string, re *regexp.Regexp) (float64, bool) {
	for i, line := range lines {
		m := re.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		rest := m[1]
		if strings.TrimSpace(strings.Trim(rest, "*:=| \t")) == "" && i+1 < len(lines) {
			rest = lines[i+1]
		}
		tok := numberRe.FindString(rest)
		if tok == "" {
			return 0, false
		}
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return 0, false
		}
		return v, true
	}
	return 0, false
}

func findText(lines []string, re *regexp.Regexp) string {
	for i, line := range lines {
		m := re.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		text := strings.TrimSpace(strings.Trim(m[1], "*:| \t"))
		if text == "" && i+1 < len(lines) {
			text = strings.TrimSpace(lines[i+1])
		}
		return text
	}
	return ""
}
