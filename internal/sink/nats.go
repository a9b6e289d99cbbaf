package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// jetStreamPublisher is the subset of nats.JetStreamContext the sink uses.
type jetStreamPublisher interface {
	PublishMsg(m *nats.Msg, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// NATSPublisher publishes report documents to a JetStream subject.
type NATSPublisher struct {
	nc      *nats.Conn
	js      jetStreamPublisher
	subject string
	logger  *zap.Logger
}

// NewNATSPublisher connects to natsURL and binds a JetStream context.
func NewNATSPublisher(natsURL, subject string, logger *zap.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	log := logger.Named("nats")

	nc, err := nats.Connect(natsURL,
		nats.Name("kubilitics-gate"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(3),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Warn("NATS disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}

	log.Info("Connected to NATS", zap.String("url", natsURL), zap.String("subject", subject))
	return &NATSPublisher{nc: nc, js: js, subject: subject, logger: log}, nil
}

func (p *NATSPublisher) Name() string { return "nats" }

// Deliver publishes synchronously and waits for the stream ack, since the
// process exits right after delivery.
func (p *NATSPublisher) Deliver(ctx context.Context, d Delivery) error {
	msg, err := natsMessage(p.subject, d)
	if err != nil {
		return err
	}

	ack, err := p.js.PublishMsg(msg, nats.Context(ctx))
	if err != nil {
		return fmt.Errorf("failed to publish report: %w", err)
	}

	p.logger.Debug("Report published",
		zap.String("subject", p.subject),
		zap.String("stream", ack.Stream),
		zap.Uint64("sequence", ack.Sequence),
		zap.Int("size", len(msg.Data)),
	)
	return nil
}

// natsMessage builds the message for d. The run id doubles as the JetStream
// dedupe id so a retried publish is stored once.
func natsMessage(subject string, d Delivery) (*nats.Msg, error) {
	data, err := json.Marshal(d.Document())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}

	msg := nats.NewMsg(subject)
	msg.Data = data
	msg.Header.Set(nats.MsgIdHdr, d.Report.RunID)
	msg.Header.Set("Kubilitics-Event", EventName(d))
	msg.Header.Set("Kubilitics-Recommendation", string(d.Report.Recommendation))
	if d.ValidationID != "" {
		msg.Header.Set("Kubilitics-Validation-Id", d.ValidationID)
	}
	return msg, nil
}

// Close closes the NATS connection.
func (p *NATSPublisher) Close() error {
	if p.nc != nil {
		p.logger.Info("Closing NATS connection")
		p.nc.Close()
	}
	return nil
}
