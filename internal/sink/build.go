package sink

import (
	"context"

	"go.uber.org/zap"

	"github.com/kubilitics/kubilitics-gate/internal/config"
	"github.com/kubilitics/kubilitics-gate/internal/db"
)

// FromConfig builds the sinks enabled in cfg. store may be nil when the
// archive is disabled. Sinks that cannot be constructed (an unreachable NATS
// server, a broken AWS config) are logged and left out.
func FromConfig(ctx context.Context, cfg *config.Config, store db.ReportStore, logger *zap.Logger) []Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	var sinks []Sink

	if cfg.Report.GitHubOutput != "" {
		sinks = append(sinks, NewGitHubOutputSink(cfg.Report.GitHubOutput))
	}
	if store != nil {
		sinks = append(sinks, NewArchiveSink(store))
	}

	on := NotifyOn(cfg.Notify.NotifyOn)
	if cfg.Notify.TelegramBotToken != "" && cfg.Notify.TelegramChatID != "" {
		sinks = append(sinks, NewTelegramSink("", cfg.Notify.TelegramBotToken, cfg.Notify.TelegramChatID, on))
	}
	if cfg.Notify.SlackWebhookURL != "" {
		sinks = append(sinks, NewSlackSink(cfg.Notify.SlackWebhookURL, on))
	}
	if cfg.Notify.WebhookURL != "" {
		sinks = append(sinks, NewWebhookSink(cfg.Notify.WebhookURL, on))
	}

	if cfg.Publish.NATSURL != "" {
		p, err := NewNATSPublisher(cfg.Publish.NATSURL, cfg.Publish.NATSSubject, logger)
		if err != nil {
			logger.Warn("NATS publisher disabled", zap.Error(err))
		} else {
			sinks = append(sinks, p)
		}
	}

	if cfg.Publish.S3Bucket != "" {
		u, err := NewS3Uploader(ctx, S3Config{
			Bucket:          cfg.Publish.S3Bucket,
			Region:          cfg.Publish.S3Region,
			Endpoint:        cfg.Publish.S3Endpoint,
			Prefix:          cfg.Publish.S3Prefix,
			AccessKeyID:     cfg.Publish.S3AccessKeyID,
			SecretAccessKey: cfg.Publish.S3SecretAccessKey,
			UsePathStyle:    cfg.Publish.S3UsePathStyle,
		})
		if err != nil {
			logger.Warn("S3 uploader disabled", zap.Error(err))
		} else {
			sinks = append(sinks, u)
		}
	}

	if cfg.Metrics.PushgatewayURL != "" {
		sinks = append(sinks, NewPushgatewaySink(cfg.Metrics.PushgatewayURL, cfg.Metrics.Job))
	}

	return sinks
}
