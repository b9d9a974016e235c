package queue

import (
	"context"
	"errors"
	"time"

	"github.com/OFFIS-RIT/litgraph/pkg/logger"

	"github.com/rabbitmq/amqp091-go"
)

const (
	DefaultMaxRetries = 10
	retriesHeader     = "x-retries"
)

// Handler processes one run request. Returning an error sends the message
// to the retry queue.
type Handler func(ctx context.Context, req RunRequest) error

// Consumer applies a Handler to deliveries of one queue and routes failures
// to <queue>_retry, then <queue>_dlq once MaxRetries is reached.
type Consumer struct {
	ch         Publisher
	queueName  string
	handle     Handler
	maxRetries int
}

func NewConsumer(ch Publisher, queueName string, handle Handler) *Consumer {
	return &Consumer{
		ch:         ch,
		queueName:  queueName,
		handle:     handle,
		maxRetries: DefaultMaxRetries,
	}
}

// Run handles deliveries one at a time until ctx ends or the delivery
// channel closes.
func (c *Consumer) Run(ctx context.Context, deliveries <-chan amqp091.Delivery) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("[Queue] Stopping consumer", "queue", c.queueName)
			return
		case msg, ok := <-deliveries:
			if !ok {
				logger.Info("[Queue] Delivery channel closed", "queue", c.queueName)
				return
			}
			c.Handle(ctx, msg)
		}
	}
}

// Handle processes msg and acknowledges it exactly once.
func (c *Consumer) Handle(ctx context.Context, msg amqp091.Delivery) {
	start := time.Now()
	logger.Info("[Queue] Received message", "queue", c.queueName)

	req, err := DecodeRunRequest(msg.Body)
	if err == nil {
		err = c.handle(ctx, req)
	}

	switch {
	case err == nil:
		if ackErr := msg.Ack(false); ackErr != nil {
			logger.Error("[Queue] Failed to ack message", "err", ackErr)
		}
		logger.Info("[Queue] Message processed successfully", "queue", c.queueName, "run", req.RunID, "duration", time.Since(start))
	case errors.Is(err, ErrMalformedRequest):
		logger.Error("[Queue] Dropping malformed message to DLQ", "queue", c.queueName, "err", err)
		c.deadLetter(ctx, msg)
	default:
		logger.Error("[Queue] Error processing message", "queue", c.queueName, "run", req.RunID, "err", err)
		c.retry(ctx, msg)
	}
}

func (c *Consumer) retry(ctx context.Context, msg amqp091.Delivery) {
	retries := RetryCount(msg.Headers)
	if retries >= c.maxRetries {
		c.deadLetter(ctx, msg)
		return
	}

	headers := amqp091.Table{}
	for k, v := range msg.Headers {
		headers[k] = v
	}
	headers[retriesHeader] = int32(retries + 1)

	retryName := c.queueName + "_retry"
	if err := PublishFIFO(ctx, c.ch, retryName, msg.Body, headers); err != nil {
		logger.Error("[Queue] Failed to publish to retry queue", "retry_queue", retryName, "err", err)
		_ = msg.Nack(false, true)
		return
	}
	_ = msg.Ack(false)
}

func (c *Consumer) deadLetter(ctx context.Context, msg amqp091.Delivery) {
	dlqName := c.queueName + "_dlq"
	logger.Info("[Queue] Sending message to DLQ", "dlq", dlqName)
	if err := PublishFIFO(ctx, c.ch, dlqName, msg.Body, msg.Headers); err != nil {
		logger.Error("[Queue] Failed to publish to DLQ", "dlq", dlqName, "err", err)
		_ = msg.Nack(false, true)
		return
	}
	_ = msg.Ack(false)
}

// RetryCount reads the retry header. AMQP tables round-trip integers with
// varying widths, so every integer type is accepted.
func RetryCount(headers amqp091.Table) int {
	switch v := headers[retriesHeader].(type) {
	case int:
		return v
	case int8:
		return int(v)
	case int16:
		return int(v)
	case int32:
		return int(v)
	case int64:
		return int(v)
	case uint8:
		return int(v)
	case uint16:
		return int(v)
	case uint32:
		return int(v)
	}
	return 0
}
