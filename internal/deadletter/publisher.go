package deadletter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/ggovsaas/waorders/internal/apperrors"
	"github.com/ggovsaas/waorders/internal/model"
	"github.com/ggovsaas/waorders/internal/observer"
	"github.com/ggovsaas/waorders/pkg/logger"
	"github.com/ggovsaas/waorders/pkg/utils"
)

// Publisher writes failed ingest events to a JetStream dead-letter stream so
// they survive the gateway's always-200 contract. The webhook response never
// waits on this path; a failed publish is logged and dropped.
type Publisher interface {
	PublishFailedIngest(ctx context.Context, event model.InboundMessageEvent, cause error) error
	Close()
}

// Entry is the persisted dead-letter record.
type Entry struct {
	Event      model.InboundMessageEvent `json:"event"`
	Error      string                    `json:"error"`
	OccurredAt time.Time                 `json:"occurred_at"`
}

// NatsPublisher implements Publisher over NATS JetStream.
type NatsPublisher struct {
	nc          *nats.Conn
	js          nats.JetStreamContext
	stream      string
	baseSubject string
}

var _ Publisher = (*NatsPublisher)(nil)

// NewNatsPublisher connects to NATS and ensures the dead-letter stream exists.
func NewNatsPublisher(url, stream, baseSubject string) (*NatsPublisher, error) {
	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Log.Warn("NATS disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Log.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ErrorHandler(func(nc *nats.Conn, s *nats.Subscription, err error) {
			logger.Log.Error("NATS error", zap.Error(err))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to connect to NATS: %w", apperrors.ErrNATS, err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("%w: failed to create JetStream context: %w", apperrors.ErrNATS, err)
	}

	p := &NatsPublisher{
		nc:          nc,
		js:          js,
		stream:      stream,
		baseSubject: baseSubject,
	}

	if err := p.ensureStream(); err != nil {
		nc.Close()
		return nil, err
	}

	return p, nil
}

func (p *NatsPublisher) ensureStream() error {
	info, err := p.js.StreamInfo(p.stream)
	if err != nil && !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("%w: failed to get stream info for '%s': %w", apperrors.ErrNATS, p.stream, err)
	}
	if info != nil {
		return nil
	}

	_, err = p.js.AddStream(&nats.StreamConfig{
		Name:     p.stream,
		Subjects: []string{p.baseSubject + ".>"},
		Storage:  nats.FileStorage,
		MaxAge:   7 * 24 * time.Hour,
	})
	if err != nil {
		return fmt.Errorf("%w: failed to add stream '%s': %w", apperrors.ErrNATS, p.stream, err)
	}
	logger.Log.Info("Created dead-letter stream",
		zap.String("name", p.stream),
		zap.String("subject", p.baseSubject+".>"))
	return nil
}

// PublishFailedIngest records one failed ingest event under
// <base>.<storeID>. The external message id is the JetStream Msg-Id header,
// so a retried provider delivery that fails again does not produce a second
// dead-letter entry.
func (p *NatsPublisher) PublishFailedIngest(ctx context.Context, event model.InboundMessageEvent, cause error) error {
	entry := Entry{
		Event:      event,
		Error:      cause.Error(),
		OccurredAt: utils.Now(),
	}

	subject := fmt.Sprintf("%s.%s", p.baseSubject, event.StoreID)
	msg := nats.NewMsg(subject)
	msg.Data = utils.MustMarshalJSON(entry)
	msg.Header.Set(nats.MsgIdHdr, event.ExternalMessageID)

	if _, err := p.js.PublishMsg(msg, nats.Context(ctx)); err != nil {
		logger.FromContext(ctx).Error("Failed to publish dead-letter entry",
			zap.String("subject", subject),
			zap.String("external_message_id", event.ExternalMessageID),
			zap.Error(err))
		return fmt.Errorf("%w: dead-letter publish failed: %w", apperrors.ErrNATS, err)
	}

	observer.IncDeadLetterPublished(event.StoreID)
	logger.FromContext(ctx).Info("Published dead-letter entry",
		zap.String("subject", subject),
		zap.String("external_message_id", event.ExternalMessageID))
	return nil
}

// Close drains the NATS connection.
func (p *NatsPublisher) Close() {
	if p.nc != nil && !p.nc.IsClosed() {
		if err := p.nc.Drain(); err != nil {
			logger.Log.Warn("Failed to drain NATS connection", zap.Error(err))
		}
	}
}

// NoopPublisher satisfies Publisher when NATS is disabled.
type NoopPublisher struct{}

var _ Publisher = (*NoopPublisher)(nil)

// PublishFailedIngest drops the entry.
func (NoopPublisher) PublishFailedIngest(ctx context.Context, event model.InboundMessageEvent, cause error) error {
	return nil
}

// Close is a no-op.
func (NoopPublisher) Close() {}
