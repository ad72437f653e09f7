// Package natsbus carries content items, human decisions and outcome
// notifications over NATS subjects.
package natsbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/sekretar-core/internal/core/domain"
	"github.com/kirillkom/sekretar-core/internal/infrastructure/resilience"
)

type Subjects struct {
	Content  string
	Decision string
	Notify   string
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	Retrier              *resilience.Retrier
	Logger               *slog.Logger
}

type Bus struct {
	conn     *nats.Conn
	subjects Subjects
	retrier  *resilience.Retrier
	logger   *slog.Logger
}

func New(url string, subjects Subjects, options Options) (*Bus, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := nats.Connect(
		url,
		nats.Name("sekretar-core"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Bus{
		conn:     conn,
		subjects: subjects,
		retrier:  options.Retrier,
		logger:   logger,
	}, nil
}

func (b *Bus) Close() {
	if b.conn != nil {
		b.conn.Close()
	}
}

// SubscribeContent consumes inbound content items until the context is
// done. Decode failures are logged and dropped; there is nothing to retry.
func (b *Bus) SubscribeContent(ctx context.Context, handler func(context.Context, domain.ContentItem) error) error {
	return b.subscribe(ctx, b.subjects.Content, func(handlerCtx context.Context, data []byte) {
		var item domain.ContentItem
		if err := json.Unmarshal(data, &item); err != nil {
			b.logger.Error("content_message_malformed", "error", err)
			return
		}
		if item.ID == "" {
			b.logger.Error("content_message_missing_id")
			return
		}
		if err := handler(handlerCtx, item); err != nil {
			if domain.IsKind(err, domain.ErrAlreadyProcessed) {
				b.logger.Info("content_redelivery_ignored", "content_id", item.ID)
				return
			}
			if domain.IsKind(err, domain.ErrCanceled) {
				b.logger.Info("content_canceled", "content_id", item.ID)
				return
			}
			b.logger.Error("content_handler_failed", "content_id", item.ID, "error", err)
		}
	})
}

// DecisionAction is what the human chose for a parked confirmation.
type DecisionAction string

const (
	ActionConfirm DecisionAction = "confirm"
	ActionDismiss DecisionAction = "dismiss"
	ActionCancel  DecisionAction = "cancel"
)

type decisionMessage struct {
	ConfirmationID string         `json:"confirmation_id,omitempty"`
	ContentID      string         `json:"content_id,omitempty"`
	Action         DecisionAction `json:"action"`
	TopicID        string         `json:"topic_id,omitempty"`
}

func parseDecision(data []byte) (decisionMessage, error) {
	var msg decisionMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return decisionMessage{}, fmt.Errorf("decode decision: %w", err)
	}
	switch msg.Action {
	case ActionConfirm:
		if msg.ConfirmationID == "" {
			return decisionMessage{}, errors.New("decision missing confirmation_id")
		}
		if msg.TopicID == "" {
			return decisionMessage{}, errors.New("confirm decision missing topic_id")
		}
	case ActionDismiss:
		if msg.ConfirmationID == "" {
			return decisionMessage{}, errors.New("decision missing confirmation_id")
		}
	case ActionCancel:
		if msg.ContentID == "" {
			return decisionMessage{}, errors.New("cancel decision missing content_id")
		}
	default:
		return decisionMessage{}, fmt.Errorf("unknown decision action %q", msg.Action)
	}
	return msg, nil
}

type decisionHandler interface {
	Decide(ctx context.Context, confirmationID, chosenTopicID string) error
	Dismiss(ctx context.Context, confirmationID string) error
	Cancel(ctx context.Context, contentID string) error
}

// SubscribeDecisions consumes confirm/dismiss decisions until the context
// is done. A decision for an expired confirmation is logged, not an error:
// the sweep won that race.
func (b *Bus) SubscribeDecisions(ctx context.Context, handler decisionHandler) error {
	return b.subscribe(ctx, b.subjects.Decision, func(handlerCtx context.Context, data []byte) {
		msg, err := parseDecision(data)
		if err != nil {
			b.logger.Error("decision_message_malformed", "error", err)
			return
		}

		switch msg.Action {
		case ActionConfirm:
			err = handler.Decide(handlerCtx, msg.ConfirmationID, msg.TopicID)
		case ActionDismiss:
			err = handler.Dismiss(handlerCtx, msg.ConfirmationID)
		case ActionCancel:
			err = handler.Cancel(handlerCtx, msg.ContentID)
		}
		if err != nil {
			if domain.IsKind(err, domain.ErrExpired) || domain.IsKind(err, domain.ErrNotFound) {
				b.logger.Info("decision_too_late", "confirmation_id", msg.ConfirmationID, "error", err)
				return
			}
			b.logger.Error("decision_handler_failed", "confirmation_id", msg.ConfirmationID, "error", err)
		}
	})
}

func (b *Bus) subscribe(ctx context.Context, subject string, handle func(context.Context, []byte)) error {
	sub, err := b.conn.QueueSubscribe(subject, "sekretar-workers", func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}
		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		handle(handlerCtx, msg.Data)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", subject, err)
	}

	if err := b.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := b.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

func (b *Bus) publish(ctx context.Context, subject string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s message: %w", subject, err)
	}

	call := func(context.Context) error {
		if err := b.conn.Publish(subject, data); err != nil {
			return fmt.Errorf("nats publish %s: %w", subject, err)
		}
		return nil
	}

	if b.retrier != nil {
		err = b.retrier.Do(ctx, "nats.publish", classifyNATSError, call)
	} else {
		err = call(ctx)
	}
	return wrapTemporaryIfNeeded(err)
}
