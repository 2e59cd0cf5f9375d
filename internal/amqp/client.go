package amqp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// ErrPermanent marks handler failures that retrying cannot fix. Deliveries
// failing with it are rejected without requeue.
var ErrPermanent = errors.New("permanent failure")

// Config names the broker topology.
type Config struct {
	URL          string
	Exchange     string
	RequestQueue string
	ResultQueue  string
	Prefetch     int
}

type Client struct {
	conn    *amqp091.Connection
	channel *amqp091.Channel
	cfg     Config
}

// NewClient dials the broker, retrying connection errors with exponential
// backoff until ctx is done, and declares the exchange and both queues.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	conn, err := dialWithRetry(ctx, cfg.URL)
	if err != nil {
		return nil, err
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	client := &Client{conn: conn, channel: channel, cfg: cfg}
	if err := client.setup(); err != nil {
		client.Close()
		return nil, fmt.Errorf("setup exchange and queues: %w", err)
	}
	return client, nil
}

func dialWithRetry(ctx context.Context, url string) (*amqp091.Connection, error) {
	for attempt := 0; ; attempt++ {
		conn, err := amqp091.Dial(url)
		if err == nil {
			return conn, nil
		}
		if !isConnectionError(err) {
			return nil, fmt.Errorf("dial AMQP: %w", err)
		}
		wait := exponentialBackoff(attempt)
		slog.WarnContext(ctx, "AMQP dial failed, retrying", "attempt", attempt+1, "wait", wait, "error", err)
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("dial AMQP: %w", errors.Join(ctx.Err(), err))
		case <-time.After(wait):
		}
	}
}

// exponentialBackoff returns 1s doubled per attempt, capped at 30s.
func exponentialBackoff(attempt int) time.Duration {
	const maxWait = 30 * time.Second
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 5 {
		return maxWait
	}
	d := time.Second << uint(attempt)
	if d > maxWait {
		return maxWait
	}
	return d
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection refused", "connection reset", "connection closed", "eof", "no such host", "i/o timeout", "broken pipe"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func (c *Client) setup() error {
	err := c.channel.ExchangeDeclare(
		c.cfg.Exchange, // name
		"direct",       // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	for _, q := range []string{c.cfg.RequestQueue, c.cfg.ResultQueue} {
		if _, err := c.channel.QueueDeclare(q, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", q, err)
		}
		// Routing key equals the queue name on the direct exchange.
		if err := c.channel.QueueBind(q, q, c.cfg.Exchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", q, err)
		}
	}

	if c.cfg.Prefetch > 0 {
		if err := c.channel.Qos(c.cfg.Prefetch, 0, false); err != nil {
			return fmt.Errorf("set qos: %w", err)
		}
	}
	return nil
}

func (c *Client) publish(ctx context.Context, routingKey string, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return c.channel.PublishWithContext(
		ctx,
		c.cfg.Exchange, // exchange
		routingKey,     // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
}

// PublishAnalysisRequest enqueues a sheet analysis for the worker.
func (c *Client) PublishAnalysisRequest(ctx context.Context, msg *AnalysisRequestMessage) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := c.publish(ctx, c.cfg.RequestQueue, body); err != nil {
		return fmt.Errorf("publish analysis request: %w", err)
	}
	slog.InfoContext(ctx, "Published analysis request",
		"request_id", msg.RequestID,
		"exchange", c.cfg.Exchange,
		"queue", c.cfg.RequestQueue)
	return nil
}

// PublishAnalysisCompleted announces a finished analysis on the result queue.
func (c *Client) PublishAnalysisCompleted(ctx context.Context, msg *AnalysisCompletedMessage) error {
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := c.publish(ctx, c.cfg.ResultQueue, body); err != nil {
		return fmt.Errorf("publish analysis result: %w", err)
	}
	slog.InfoContext(ctx, "Published analysis result",
		"analysis_id", msg.AnalysisID,
		"status", msg.Status,
		"queue", c.cfg.ResultQueue)
	return nil
}

// RequestHandler processes one analysis request.
type RequestHandler func(ctx context.Context, msg *AnalysisRequestMessage) error

// ConsumeAnalysisRequests delivers requests to handler until ctx is done.
// Malformed messages and ErrPermanent failures are rejected; other handler
// errors requeue the delivery.
func (c *Client) ConsumeAnalysisRequests(ctx context.Context, handler RequestHandler) error {
	msgs, err := c.channel.Consume(
		c.cfg.RequestQueue, // queue
		"",                 // consumer
		false,              // auto-ack (we want manual ack)
		false,              // exclusive
		false,              // no-local
		false,              // no-wait
		nil,                // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	slog.InfoContext(ctx, "Started consuming analysis requests", "queue", c.cfg.RequestQueue)
	return consume(ctx, msgs, handler)
}

func consume(ctx context.Context, msgs <-chan amqp091.Delivery, handler RequestHandler) error {
	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Stopping message consumption", "reason", ctx.Err())
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return errors.New("message channel closed")
			}
			handleDelivery(ctx, delivery, handler)
		}
	}
}

// Outcome of one delivery, for logging and tests.
type outcome string

const (
	outcomeAcked    outcome = "acked"
	outcomeRejected outcome = "rejected"
	outcomeRequeued outcome = "requeued"
)

func handleDelivery(ctx context.Context, delivery amqp091.Delivery, handler RequestHandler) outcome {
	msg, err := AnalysisRequestMessageFromJSON(delivery.Body)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to decode analysis request", "error", err)
		delivery.Nack(false, false) // reject and don't requeue
		return outcomeRejected
	}

	slog.InfoContext(ctx, "Processing analysis request", "request_id", msg.RequestID, "sheet", msg.SheetName)
	if err := handler(ctx, msg); err != nil {
		if errors.Is(err, ErrPermanent) {
			slog.ErrorContext(ctx, "Analysis request failed permanently", "request_id", msg.RequestID, "error", err)
			delivery.Nack(false, false)
			return outcomeRejected
		}
		slog.ErrorContext(ctx, "Failed to handle analysis request", "request_id", msg.RequestID, "error", err)
		delivery.Nack(false, true) // reject and requeue
		return outcomeRequeued
	}

	delivery.Ack(false)
	slog.InfoContext(ctx, "Successfully processed analysis request", "request_id", msg.RequestID)
	return outcomeAcked
}

// Healthy reports whether the connection is still open.
func (c *Client) Healthy() bool {
	return c.conn != nil && !c.conn.IsClosed()
}

func (c *Client) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
