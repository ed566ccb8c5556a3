package kafka

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"

	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// MessageHandler processes incoming Kafka messages
type MessageHandler func(ctx context.Context, msg *IncomingMessage) error

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer handles Kafka message consumption
type Consumer struct {
	reader  messageReader
	topic   string
	logger  ectologger.Logger
	handler MessageHandler
	// newBackOff paces redelivery of a message whose handler failed
	newBackOff func() backoff.BackOff
	wg         sync.WaitGroup
	cancel     context.CancelFunc
}

// ConsumerConfig holds Kafka consumer configuration
type ConsumerConfig struct {
	Brokers       []string
	Topic         string
	ConsumerGroup string
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(cfg ConsumerConfig, logger ectologger.Logger, handler MessageHandler) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.ConsumerGroup,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		MaxWait:        500 * time.Millisecond,
		StartOffset:    kafka.FirstOffset,
		CommitInterval: 0,
	})

	return newConsumer(reader, cfg.Topic, logger, handler)
}

func newConsumer(reader messageReader, topic string, logger ectologger.Logger, handler MessageHandler) *Consumer {
	return &Consumer{
		reader:     reader,
		topic:      topic,
		logger:     logger,
		handler:    handler,
		newBackOff: defaultBackOff,
	}
}

func defaultBackOff() backoff.BackOff {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	policy.MaxInterval = 30 * time.Second
	policy.MaxElapsedTime = 0
	return policy
}

// Start begins consuming messages
func (c *Consumer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go c.consumeLoop(ctx)

	c.logger.WithContext(ctx).WithField("topic", c.topic).Info("Kafka consumer started")
	return nil
}

// Stop gracefully stops the consumer
func (c *Consumer) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	return c.reader.Close()
}

func (c *Consumer) consumeLoop(ctx context.Context) {
	defer c.wg.Done()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) || ctx.Err() != nil {
				c.logger.WithContext(ctx).Info("Consumer loop stopping")
				return
			}
			c.logger.WithContext(ctx).WithError(err).Error("Failed to fetch message")
			continue
		}

		c.processMessage(ctx, msg)
	}
}

// processMessage handles one message until it succeeds or is found to be
// poison, and only then commits it. The loop does not fetch the next message
// in the meantime, so a later commit on the partition can never move the
// group offset past a message that was not handled.
func (c *Consumer) processMessage(ctx context.Context, msg kafka.Message) {
	incoming := newIncomingMessage(msg)
	ctx = incoming.Context(ctx)

	ctx, span := tracing.StartSpan(ctx, "kafka.Consumer.processMessage")
	defer span.End()

	log := c.logger.WithContext(ctx).WithFields(map[string]any{
		"topic":     msg.Topic,
		"partition": msg.Partition,
		"offset":    msg.Offset,
	})

	err := backoff.RetryNotify(func() error {
		err := c.handler(ctx, incoming)
		if errors.Is(err, ErrPoisonMessage) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(c.newBackOff(), ctx), func(err error, wait time.Duration) {
		metrics.RecordKafkaMessage(msg.Topic, "failed")
		log.WithError(err).WithField("retry_in", wait.String()).Warn("Failed to process message, retrying")
	})

	switch {
	case err == nil:
		metrics.RecordKafkaMessage(msg.Topic, "processed")
	case errors.Is(err, ErrPoisonMessage):
		metrics.RecordKafkaMessage(msg.Topic, "poison")
		log.WithError(err).Error("Dropping message that cannot be processed")
	default:
		// shutting down; the offset stays uncommitted and is fetched again on restart
		log.WithError(err).Warn("Stopped before message was processed (not committing)")
		return
	}

	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		log.WithError(err).Error("Failed to commit message")
	}
}

// Health returns the consumer health status
func (c *Consumer) Health() bool {
	return c.reader != nil
}
