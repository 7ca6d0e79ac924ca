package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"vigil-go/internal/config"
	"vigil-go/internal/queue"
)

// Consumer implements queue.Consumer using a Kafka consumer group.
type Consumer struct {
	reader  *kafka.Reader
	logger  *slog.Logger
	handler queue.MessageHandler
}

// NewConsumer creates a new Kafka consumer.
func NewConsumer(cfg *config.KafkaConfig, logger *slog.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.ConsumerGroup,
		MinBytes: 1,
		MaxBytes: 10e6,
	})

	return &Consumer{
		reader: reader,
		logger: logger,
	}
}

// Start begins consuming messages. Blocks until the context is cancelled
// or the reader is closed.
func (c *Consumer) Start(ctx context.Context, handler queue.MessageHandler) error {
	c.handler = handler

	for {
		kafkaMsg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to fetch message: %w", err)
		}

		msg := &queue.Message{
			Key:   kafkaMsg.Key,
			Value: kafkaMsg.Value,
		}
		if len(kafkaMsg.Headers) > 0 {
			msg.Headers = make(map[string]string, len(kafkaMsg.Headers))
			for _, h := range kafkaMsg.Headers {
				msg.Headers[h.Key] = string(h.Value)
			}
		}

		if err := handler(ctx, msg); err != nil {
			// Leave the offset uncommitted so the batch is redelivered.
			c.logger.Error("failed to handle message",
				slog.String("error", err.Error()),
				slog.Int64("offset", kafkaMsg.Offset),
			)
			continue
		}

		if err := c.reader.CommitMessages(ctx, kafkaMsg); err != nil {
			c.logger.Error("failed to commit message",
				slog.String("error", err.Error()),
				slog.Int64("offset", kafkaMsg.Offset),
			)
		}
	}
}

// Close closes the Kafka reader.
func (c *Consumer) Close() error {
	if c.reader != nil {
		return c.reader.Close()
	}
	return nil
}
