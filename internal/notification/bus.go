package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"

	"github.com/anonto42/reviewinn/backend/internal/domain"
	"github.com/anonto42/reviewinn/backend/internal/models"
	"github.com/anonto42/reviewinn/backend/pkg/logging"
)

const topic = "notifications.create"

// BusConfig tunes the retry policy of the trigger router.
type BusConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	CloseTimeout    time.Duration
}

func DefaultBusConfig() BusConfig {
	return BusConfig{
		MaxRetries:      3,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		CloseTimeout:    10 * time.Second,
	}
}

type creator interface {
	Create(ctx context.Context, ev Event) (*models.Notification, error)
}

// Bus decouples triggers from persistence. Publish is fire-and-forget; the
// router persists each event with exponential retry and drops it with a log
// line once retries are exhausted.
type Bus struct {
	pubsub *gochannel.GoChannel
	router *message.Router
	log    zerolog.Logger
}

func NewBus(svc creator, cfg BusConfig) (*Bus, error) {
	wlog := watermillLogger{log: logging.With("notification_bus")}
	pubsub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 256}, wlog)

	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: cfg.CloseTimeout}, wlog)
	if err != nil {
		return nil, fmt.Errorf("create notification router: %w", err)
	}

	b := &Bus{pubsub: pubsub, router: router, log: logging.With("notification_bus")}
	retry := middleware.Retry{
		MaxRetries:      cfg.MaxRetries,
		InitialInterval: cfg.InitialInterval,
		MaxInterval:     cfg.MaxInterval,
		Multiplier:      2,
		Logger:          wlog,
	}
	router.AddMiddleware(b.dropExhausted, retry.Middleware, middleware.Recoverer)

	router.AddNoPublisherHandler("persist_notification", topic, pubsub, func(msg *message.Message) error {
		var ev Event
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			b.log.Error().Err(err).Str("message_uuid", msg.UUID).Msg("undecodable notification event")
			return nil
		}
		ctx := msg.Context()
		if id := msg.Metadata.Get("request_id"); id != "" {
			ctx = logging.ContextWithRequestID(ctx, id)
		}
		if _, err := svc.Create(ctx, ev); err != nil {
			if domain.Known(err) {
				logging.Ctx(ctx).Warn().Err(err).Str("type", ev.Type).Msg("notification rejected")
				return nil
			}
			return err
		}
		return nil
	})
	return b, nil
}

// dropExhausted is the outermost middleware: whatever still fails after
// retries is logged and acked so gochannel does not redeliver it forever.
func (b *Bus) dropExhausted(h message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		out, err := h(msg)
		if err != nil {
			b.log.Error().Err(err).Str("message_uuid", msg.UUID).Msg("notification dropped after retries")
			return nil, nil
		}
		return out, nil
	}
}

// Publish queues ev. Errors are logged, never returned.
func (b *Bus) Publish(ctx context.Context, ev Event) {
	if ev.selfInflicted() {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("type", ev.Type).Msg("encode notification event")
		return
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	if id := logging.RequestIDFromContext(ctx); id != "" {
		msg.Metadata.Set("request_id", id)
	}
	if err := b.pubsub.Publish(topic, msg); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("type", ev.Type).Uint("recipient_id", ev.RecipientID).Msg("publish notification event")
	}
}

// Running is closed once the router subscribed to the topic.
func (b *Bus) Running() chan struct{} {
	return b.router.Running()
}

// Serve implements suture.Service. The router cannot be restarted once
// closed, so a failure tells the supervisor not to retry.
func (b *Bus) Serve(ctx context.Context) error {
	err := b.router.Run(ctx)
	_ = b.pubsub.Close()
	if err != nil {
		return fmt.Errorf("%w: notification router: %v", suture.ErrDoNotRestart, err)
	}
	return nil
}

func (b *Bus) String() string { return "notification-bus" }

// watermillLogger adapts zerolog to watermill.LoggerAdapter.
type watermillLogger struct {
	log    zerolog.Logger
	fields watermill.LogFields
}

func (l watermillLogger) event(e *zerolog.Event, fields watermill.LogFields) *zerolog.Event {
	for k, v := range l.fields {
		e = e.Interface(k, v)
	}
	for k, v := range fields {
		e = e.Interface(k, v)
	}
	return e
}

func (l watermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	l.event(l.log.Error().Err(err), fields).Msg(msg)
}

func (l watermillLogger) Info(msg string, fields watermill.LogFields) {
	l.event(l.log.Debug(), fields).Msg(msg)
}

func (l watermillLogger) Debug(msg string, fields watermill.LogFields) {
	l.event(l.log.Trace(), fields).Msg(msg)
}

func (l watermillLogger) Trace(msg string, fields watermill.LogFields) {
	l.event(l.log.Trace(), fields).Msg(msg)
}

func (l watermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return watermillLogger{log: l.log, fields: l.fields.Add(fields)}
}
