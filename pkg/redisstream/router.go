package redisstream

import (
	"context"
	"strings"

	"github.com/ThreeDotsLabs/watermill/message"
	rstream "github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/cricket/pkg/events"
)

// BuildPublisher returns a Redis Streams publisher for mirroring
// session topics into an external stream.
func BuildPublisher(addr string) (message.Publisher, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	return rstream.NewPublisher(rstream.PublisherConfig{
		Client:     client,
		Marshaller: rstream.DefaultMarshallerUnmarshaller{},
	}, events.NewWatermillLogger(log.Logger))
}

// BuildGroupSubscriber returns a Redis Streams subscriber bound to the
// given consumer group/name. Use with events.WithHandlerSubscriber to
// isolate handlers.
func BuildGroupSubscriber(addr, group, consumer string) (message.Subscriber, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	return rstream.NewSubscriber(rstream.SubscriberConfig{
		Client:        client,
		Unmarshaller:  rstream.DefaultMarshallerUnmarshaller{},
		ConsumerGroup: group,
		Consumer:      consumer,
	}, events.NewWatermillLogger(log.Logger))
}

// Mirror returns a handler that republishes every frame to pub under
// the same topic. Mirroring is best effort: failures are logged and
// never stall the in-process stream.
func Mirror(pub message.Publisher, topic string) func(*message.Message) error {
	logger := log.With().Str("component", "redis-mirror").Str("topic", topic).Logger()
	return func(msg *message.Message) error {
		if err := pub.Publish(topic, message.NewMessage(msg.UUID, msg.Payload)); err != nil {
			logger.Warn().Err(err).Msg("could not mirror frame")
		}
		return nil
	}
}

// EnsureGroupAtTail creates the consumer group for a given stream at the tail ($) if it doesn't exist.
// This prevents full historical replay on first subscribe.
func EnsureGroupAtTail(ctx context.Context, addr, stream, group string) error {
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer func() { _ = client.Close() }()

	err := client.XGroupCreateMkStream(ctx, stream, group, "$").Err()
	if err != nil {
		// Ignore BUSYGROUP errors (group already exists)
		if strings.Contains(err.Error(), "BUSYGROUP") {
			return nil
		}
		return err
	}
	log.Info().Str("stream", stream).Str("group", group).Msg("created redis consumer group at $ (tail)")
	return nil
}
