package amqp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// Circuit breaker states
const (
	StateClosed int32 = iota
	StateOpen
	StateHalfOpen
)

const (
	maxFailures    = 5
	openTimeout    = 30 * time.Second
	maxBackoff     = 30 * time.Second
	publishRetries = 3
)

// Client publishes and consumes ledger change events on a fanout exchange.
// An empty queue name declares a server-named exclusive queue, so every
// process receives every event.
type Client struct {
	url          string
	exchangeName string
	queueName    string

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel
	queue   string

	failureCount int64
	state        int32
	lastFailure  time.Time
}

func NewClient(url, exchangeName, queueName string) (*Client, error) {
	client := &Client{
		url:          url,
		exchangeName: exchangeName,
		queueName:    queueName,
	}

	if _, err := client.ensureChannel(); err != nil {
		return nil, err
	}

	return client, nil
}

// ensureChannel returns the open channel, dialing and declaring the
// topology if the previous connection was lost.
func (c *Client) ensureChannel() (*amqp091.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.channel != nil && !c.channel.IsClosed() {
		return c.channel, nil
	}
	c.closeLocked()

	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	c.conn = conn
	c.channel = channel

	if err := c.setupLocked(); err != nil {
		c.closeLocked()
		return nil, fmt.Errorf("setup exchange and queue: %w", err)
	}

	return channel, nil
}

func (c *Client) setupLocked() error {
	// Declare exchange
	err := c.channel.ExchangeDeclare(
		c.exchangeName, // name
		"fanout",       // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	// Named queues survive restarts; anonymous ones belong to this process only.
	named := c.queueName != ""
	q, err := c.channel.QueueDeclare(
		c.queueName, // name
		named,       // durable
		!named,      // delete when unused
		!named,      // exclusive
		false,       // no-wait
		nil,         // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	c.queue = q.Name

	// Fanout exchanges ignore the routing key
	err = c.channel.QueueBind(
		q.Name,         // queue name
		"",             // routing key
		c.exchangeName, // exchange
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}

	return nil
}

// PublishLedgerChanged publishes a change event. Connection failures are
// retried with exponential backoff; repeated failures open the circuit
// breaker and further publishes fail fast until it half-opens.
func (c *Client) PublishLedgerChanged(ctx context.Context, msg *LedgerChangedMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.isCircuitOpen() {
		return fmt.Errorf("circuit breaker is open, dropping change for user %s", msg.UserID)
	}

	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < publishRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(exponentialBackoff(attempt - 1)):
			}
		}

		lastErr = c.publish(ctx, body)
		if lastErr == nil {
			c.recordSuccess()
			slog.InfoContext(ctx, "Published ledger change",
				"user_id", msg.UserID,
				"op", msg.Op,
				"transaction_id", msg.TransactionID,
				"exchange", c.exchangeName)
			return nil
		}

		c.recordFailure()
		if !isConnectionError(lastErr) || c.isCircuitOpen() {
			break
		}
		slog.WarnContext(ctx, "AMQP publish failed, reconnecting", "attempt", attempt+1, "error", lastErr)
		c.resetConnection()
	}

	return fmt.Errorf("publish message: %w", lastErr)
}

func (c *Client) publish(ctx context.Context, body []byte) error {
	channel, err := c.ensureChannel()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return channel.PublishWithContext(
		ctx,
		c.exchangeName, // exchange
		"",             // routing key
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

// ConsumeLedgerChanges delivers change events to handler until ctx is done,
// reconnecting with backoff when the broker goes away. Malformed bodies are
// dropped; handler errors requeue the message.
func (c *Client) ConsumeLedgerChanges(ctx context.Context, handler func(context.Context, *LedgerChangedMessage) error) error {
	for attempt := 0; ; attempt++ {
		err := c.consumeOnce(ctx, handler)
		if ctx.Err() != nil {
			slog.InfoContext(ctx, "Stopping message consumption", "reason", ctx.Err())
			return ctx.Err()
		}
		if err != nil && !isConnectionError(err) {
			return err
		}

		delay := exponentialBackoff(attempt)
		slog.WarnContext(ctx, "AMQP consumer lost connection, retrying", "error", err, "retry_in", delay)
		c.resetConnection()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

func (c *Client) consumeOnce(ctx context.Context, handler func(context.Context, *LedgerChangedMessage) error) error {
	channel, err := c.ensureChannel()
	if err != nil {
		return err
	}

	c.mu.Lock()
	queue := c.queue
	c.mu.Unlock()

	msgs, err := channel.Consume(
		queue, // queue
		"",    // consumer
		false, // auto-ack (we want manual ack)
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	slog.InfoContext(ctx, "Started consuming ledger changes", "queue", queue)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return fmt.Errorf("message channel closed")
			}

			msg, err := LedgerChangedMessageFromJSON(delivery.Body)
			if err != nil {
				slog.ErrorContext(ctx, "Failed to unmarshal message", "error", err)
				delivery.Nack(false, false) // reject and don't requeue
				continue
			}

			if err := handler(ctx, msg); err != nil {
				slog.ErrorContext(ctx, "Failed to handle message",
					"error", err,
					"user_id", msg.UserID,
					"op", msg.Op)
				delivery.Nack(false, true) // reject and requeue
				continue
			}

			delivery.Ack(false)
			slog.DebugContext(ctx, "Processed ledger change",
				"user_id", msg.UserID,
				"op", msg.Op,
				"transaction_id", msg.TransactionID)
		}
	}
}

// Ping reports whether the broker connection is usable.
func (c *Client) Ping() error {
	if c.isCircuitOpen() {
		return errors.New("circuit breaker is open")
	}
	_, err := c.ensureChannel()
	return err
}

func (c *Client) resetConnection() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Client) closeLocked() {
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var err error
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		err = c.conn.Close()
		c.conn = nil
	}
	return err
}

func (c *Client) recordSuccess() {
	atomic.StoreInt64(&c.failureCount, 0)
	atomic.StoreInt32(&c.state, StateClosed)
}

func (c *Client) recordFailure() {
	failures := atomic.AddInt64(&c.failureCount, 1)
	c.mu.Lock()
	c.lastFailure = time.Now()
	c.mu.Unlock()
	if failures >= maxFailures || atomic.LoadInt32(&c.state) == StateHalfOpen {
		atomic.StoreInt32(&c.state, StateOpen)
	}
}

// isCircuitOpen reports whether publishes should fail fast. An open circuit
// moves to half-open once openTimeout has passed since the last failure.
func (c *Client) isCircuitOpen() bool {
	if atomic.LoadInt32(&c.state) != StateOpen {
		return false
	}
	c.mu.Lock()
	last := c.lastFailure
	c.mu.Unlock()
	if time.Since(last) > openTimeout {
		atomic.CompareAndSwapInt32(&c.state, StateOpen, StateHalfOpen)
		return false
	}
	return true
}

// exponentialBackoff returns 1s doubled per attempt, capped at maxBackoff.
func exponentialBackoff(attempt int) time.Duration {
	if attempt >= 5 {
		return maxBackoff
	}
	d := time.Second << attempt
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) {
		return true
	}
	msg := err.Error()
	for _, s := range []string{
		"connection refused",
		"connection closed",
		"EOF",
		"broken pipe",
		"use of closed network connection",
		"message channel closed",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
