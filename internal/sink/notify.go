package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kubilitics/kubilitics-gate/internal/health"
	"github.com/kubilitics/kubilitics-gate/internal/report"
	"github.com/kubilitics/kubilitics-gate/internal/scoring"
	"github.com/kubilitics/kubilitics-gate/internal/tracing"
)

// TelegramAPIBase is the Bot API root used when none is configured.
const TelegramAPIBase = "https://api.telegram.org"

// ChannelType identifies a notification channel.
type ChannelType string

const (
	ChannelTelegram ChannelType = "telegram"
	ChannelSlack    ChannelType = "slack"
	ChannelWebhook  ChannelType = "webhook"
)

// NotifyOn selects which runs produce a notification.
type NotifyOn string

const (
	NotifyAlways NotifyOn = "always"
	// NotifyBlock sends only on a block or a rollback suggestion.
	NotifyBlock NotifyOn = "block"
)

// Notification is the generic webhook payload.
type Notification struct {
	Event      string          `json:"event"`
	OccurredAt string          `json:"occurred_at"`
	Text       string          `json:"text"`
	Document   report.Document `json:"document"`
}

// NotifierSink posts a run summary to one chat or webhook channel.
type NotifierSink struct {
	channel  ChannelType
	url      string
	chatID   string
	notifyOn NotifyOn
	client   *http.Client
	now      func() time.Time
}

// NewTelegramSink sends Markdown messages through the Bot API sendMessage
// method. An empty apiBase uses TelegramAPIBase.
func NewTelegramSink(apiBase, botToken, chatID string, on NotifyOn) *NotifierSink {
	if apiBase == "" {
		apiBase = TelegramAPIBase
	}
	u := strings.TrimRight(apiBase, "/") + "/bot" + botToken + "/sendMessage"
	return newNotifierSink(ChannelTelegram, u, on, chatID)
}

// NewSlackSink posts {"text": ...} to a Slack incoming webhook.
func NewSlackSink(webhookURL string, on NotifyOn) *NotifierSink {
	return newNotifierSink(ChannelSlack, webhookURL, on, "")
}

// NewWebhookSink posts the full Notification JSON to url.
func NewWebhookSink(url string, on NotifyOn) *NotifierSink {
	return newNotifierSink(ChannelWebhook, url, on, "")
}

func newNotifierSink(ch ChannelType, url string, on NotifyOn, chatID string) *NotifierSink {
	if on == "" {
		on = NotifyBlock
	}
	return &NotifierSink{
		channel:  ch,
		url:      url,
		chatID:   chatID,
		notifyOn: on,
		client:   &http.Client{Timeout: 10 * time.Second, Transport: tracing.Transport(nil)},
		now:      time.Now,
	}
}

func (s *NotifierSink) Name() string { return "notify_" + string(s.channel) }

// Deliver sends the notification, or returns ErrSkipped when the run does
// not match the notify_on filter.
func (s *NotifierSink) Deliver(ctx context.Context, d Delivery) error {
	if !s.wants(d) {
		return ErrSkipped
	}

	var payload interface{}
	switch s.channel {
	case ChannelTelegram:
		payload = map[string]interface{}{
			"chat_id":                  s.chatID,
			"text":                     s.markdown(d),
			"parse_mode":               "Markdown",
			"disable_web_page_preview": true,
		}
	case ChannelSlack:
		payload = map[string]string{"text": s.markdown(d)}
	default:
		payload = Notification{
			Event:      EventName(d),
			OccurredAt: s.now().UTC().Format(time.RFC3339),
			Text:       report.AnalysisSummary(d.Report),
			Document:   d.Document(),
		}
	}
	return s.post(ctx, payload)
}

func (s *NotifierSink) wants(d Delivery) bool {
	if s.notifyOn == NotifyAlways {
		return true
	}
	return d.Blocked() || d.RollbackSuggested()
}

func (s *NotifierSink) post(ctx context.Context, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Kubilitics-Gate/1.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d from %s: %s", resp.StatusCode, s.channel, strings.TrimSpace(string(respBody)))
	}

	if s.channel == ChannelTelegram {
		var tg struct {
			OK          bool   `json:"ok"`
			Description string `json:"description"`
		}
		if err := json.Unmarshal(respBody, &tg); err == nil && !tg.OK {
			return fmt.Errorf("telegram rejected message: %s", tg.Description)
		}
	}
	return nil
}

// EventName classifies a delivery for webhook consumers.
func EventName(d Delivery) string {
	switch {
	case d.RollbackSuggested():
		return "gate.rollback_suggested"
	case d.Blocked():
		return "gate.block"
	default:
		return "gate.deploy"
	}
}

// Emoji picks the severity marker shown at the top of chat messages.
func Emoji(d Delivery) string {
	switch {
	case d.RollbackSuggested():
		return "🔄"
	case d.Blocked() && d.Report.BlockingMode:
		return "🚨"
	case d.Blocked():
		return "⚠️"
	default:
		return "🚀"
	}
}

// maxNotifiedActions bounds the action list in chat messages.
const maxNotifiedActions = 3

func (s *NotifierSink) markdown(d Delivery) string {
	r := d.Report
	var b strings.Builder

	fmt.Fprintf(&b, "%s *Kubilitics Deployment Gate*\n\n", Emoji(d))
	fmt.Fprintf(&b, "*Pipeline:* `%s`\n", r.Context.PipelineID)
	fmt.Fprintf(&b, "*Environment:* `%s`\n", r.Context.Environment)
	fmt.Fprintf(&b, "*Namespace:* `%s`\n", r.Context.Namespace)
	fmt.Fprintf(&b, "*Commit:* `%s`\n", r.Context.ShortSHA())
	fmt.Fprintf(&b, "*Time:* %s\n\n", s.now().UTC().Format("2006-01-02 15:04:05 UTC"))

	fmt.Fprintf(&b, "*Recommendation:* `%s`\n", r.Recommendation)
	fmt.Fprintf(&b, "*Health score:* %s/100 (%s), threshold %.2f\n", scoring.FormatScore(r.OverallScore), scoring.Grade(r.OverallScore), r.Threshold)
	fmt.Fprintf(&b, "*Critical issues:* %d\n", r.CriticalIssues)
	fmt.Fprintf(&b, "*Mode:* %s\n", r.Mode)

	var flagged []string
	for _, a := range r.Assessments {
		if a.IssuesFound > 0 {
			flagged = append(flagged, fmt.Sprintf("• %s: %.2f, %d issue(s)", a.Category, a.SubScore, a.IssuesFound))
		}
	}
	if len(flagged) > 0 {
		b.WriteString("\n*Flagged categories:*\n")
		b.WriteString(strings.Join(flagged, "\n"))
		b.WriteString("\n")
	}

	if d.Advice != nil {
		fmt.Fprintf(&b, "\n*Rollback suggested:* %t\n", d.Advice.Suggested)
		for _, reason := range d.Advice.Reasons {
			fmt.Fprintf(&b, "• %s\n", reason)
		}
	}

	if len(r.Actions) > 0 {
		b.WriteString("\n*Recommended actions:*\n")
		for _, a := range r.Actions[:min(len(r.Actions), maxNotifiedActions)] {
			fmt.Fprintf(&b, "• [%s] %s\n", a.Priority, a.Description)
		}
	}

	if r.Recommendation == health.RecommendationBlock {
		fmt.Fprintf(&b, "\n*Next step:* run `kubectl get pods -n %s`", r.Context.Namespace)
	}
	return strings.TrimRight(b.String(), "\n")
}
