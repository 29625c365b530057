package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/cricket/pkg/events"
	"github.com/go-go-golems/cricket/pkg/redisstream"
)

func newTailCommand() *cobra.Command {
	var (
		addr     string
		group    string
		consumer string
		raw      bool
	)

	cmd := &cobra.Command{
		Use:   "tail <session-id>",
		Short: "Follow a mirrored session stream from Redis",
		Long: `Follows the Redis Streams mirror of a session started with
--redis-mirror. The consumer group is created at the stream tail, so
only frames published after the tail attaches are shown.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if addr == "" {
				addr = settings.RedisAddr
			}
			if addr == "" {
				addr = redisstream.DefaultAddr
			}

			topic := events.Topic(args[0])
			if err := redisstream.EnsureGroupAtTail(ctx, addr, topic, group); err != nil {
				return errors.Wrap(err, "create consumer group")
			}

			sub, err := redisstream.BuildGroupSubscriber(addr, group, consumer)
			if err != nil {
				return errors.Wrap(err, "build redis subscriber")
			}
			defer func() { _ = sub.Close() }()

			messages, err := sub.Subscribe(ctx, topic)
			if err != nil {
				return errors.Wrapf(err, "subscribe to %s", topic)
			}

			out := cmd.OutOrStdout()
			printFrame := events.ChunkPrinterFunc("tail", out)
			for msg := range messages {
				if raw {
					_, _ = fmt.Fprintf(out, "%s %s\n", msg.UUID, string(msg.Payload))
				} else if err := printFrame(msg); err != nil {
					msg.Nack()
					return err
				}
				msg.Ack()
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Redis address (default: the configured address)")
	cmd.Flags().StringVar(&group, "group", redisstream.DefaultGroup, "Consumer group name")
	cmd.Flags().StringVar(&consumer, "consumer", redisstream.DefaultConsumer, "Consumer name within the group")
	cmd.Flags().BoolVar(&raw, "raw", false, "Print raw frame payloads instead of rendering chunks")

	return cmd
}
