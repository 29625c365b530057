package events

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// EventRouter owns the pub/sub pair that session streams run on, plus the
// watermill router that dispatches named handlers. Without explicit
// publisher/subscriber options it creates an in-process gochannel transport
// configured so Publish returns only once every subscriber has acked;
// producers therefore resolve strictly after their chunks have been folded.
type EventRouter struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber

	logger  zerolog.Logger
	router  *message.Router
	pubsub  *gochannel.GoChannel
	verbose bool
}

type EventRouterOption func(*EventRouter)

func WithPublisher(pub message.Publisher) EventRouterOption {
	return func(r *EventRouter) { r.Publisher = pub }
}

func WithSubscriber(sub message.Subscriber) EventRouterOption {
	return func(r *EventRouter) { r.Subscriber = sub }
}

func WithLogger(logger zerolog.Logger) EventRouterOption {
	return func(r *EventRouter) { r.logger = logger }
}

func WithVerbose(verbose bool) EventRouterOption {
	return func(r *EventRouter) { r.verbose = verbose }
}

func NewEventRouter(options ...EventRouterOption) (*EventRouter, error) {
	ret := &EventRouter{
		logger: log.With().Str("component", "event-router").Logger(),
	}
	for _, o := range options {
		o(ret)
	}

	wmLogger := NewWatermillLogger(ret.logger)
	if ret.Publisher == nil || ret.Subscriber == nil {
		pubsub := gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer:            64,
			BlockPublishUntilSubscriberAck: true,
		}, wmLogger)
		ret.pubsub = pubsub
		if ret.Publisher == nil {
			ret.Publisher = pubsub
		}
		if ret.Subscriber == nil {
			ret.Subscriber = pubsub
		}
	}

	router, err := message.NewRouter(message.RouterConfig{}, wmLogger)
	if err != nil {
		return nil, errors.Wrap(err, "create message router")
	}
	ret.router = router

	return ret, nil
}

// AddHandler registers a named no-publish handler on a topic, fed by the
// router's own subscriber.
func (e *EventRouter) AddHandler(name string, topic string, f func(msg *message.Message) error) {
	e.AddHandlerWithOptions(name, topic, f)
}

type HandlerOption func(*handlerConfig)

type handlerConfig struct {
	subscriber message.Subscriber
}

// WithHandlerSubscriber feeds one handler from its own subscriber instead
// of the shared one. Used to give observers a dedicated redis consumer.
func WithHandlerSubscriber(sub message.Subscriber) HandlerOption {
	return func(c *handlerConfig) { c.subscriber = sub }
}

func (e *EventRouter) AddHandlerWithOptions(name string, topic string, f func(msg *message.Message) error, options ...HandlerOption) {
	cfg := &handlerConfig{subscriber: e.Subscriber}
	for _, o := range options {
		o(cfg)
	}
	if e.verbose {
		e.logger.Debug().Str("handler", name).Str("topic", topic).Msg("registering handler")
	}
	e.router.AddNoPublisherHandler(name, topic, cfg.subscriber, message.NoPublishHandlerFunc(f))
}

// Run starts the router loop and blocks until the context is cancelled or
// the router shuts down.
func (e *EventRouter) Run(ctx context.Context) error {
	e.logger.Debug().Msg("running event router")
	defer e.logger.Debug().Msg("event router stopped")
	return e.router.Run(ctx)
}

// RunHandlers starts handlers registered after Run. The router must
// already be running.
func (e *EventRouter) RunHandlers(ctx context.Context) error {
	return e.router.RunHandlers(ctx)
}

// Running closes once the router has started and all handlers are up.
// Publish nothing before this closes or in-process subscribers will miss it.
func (e *EventRouter) Running() <-chan struct{} {
	return e.router.Running()
}

func (e *EventRouter) Close() error {
	e.logger.Debug().Msg("closing event router")
	if err := e.router.Close(); err != nil {
		e.logger.Warn().Err(err).Msg("failed to close message router")
	}
	if e.pubsub != nil {
		return e.pubsub.Close()
	}
	var firstErr error
	if err := e.Publisher.Close(); err != nil {
		firstErr = err
	}
	if err := e.Subscriber.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// DumpRawEvents is a debugging handler that logs every payload verbatim.
func (e *EventRouter) DumpRawEvents(msg *message.Message) error {
	e.logger.Info().Str("message_id", msg.UUID).RawJSON("payload", msg.Payload).Msg("event")
	return nil
}
