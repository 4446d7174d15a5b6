package amqp

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"cuzdan/internal/core"
	"cuzdan/internal/log"
)

// Circuit breaker states.
const (
	StateClosed int32 = iota
	StateOpen
	StateHalfOpen
)

const (
	maxFailures    = 5
	openTimeout    = 30 * time.Second
	maxBackoff     = 30 * time.Second
	publishTimeout = 5 * time.Second
)

var (
	ErrCircuitOpen    = errors.New("circuit breaker is open")
	ErrDeliveryClosed = errors.New("delivery channel closed")
	ErrNotConnected   = errors.New("amqp client not connected")
)

type Client struct {
	url          string
	exchangeName string
	queueName    string
	logger       *log.Logger

	connMu  sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel

	state        int32
	failureCount int64
	breakerMu    sync.Mutex
	lastFailure  time.Time
}

// NewClient dials the broker and declares a fanout exchange with one durable
// queue bound to it.
func NewClient(url, exchangeName, queueName string, logger *log.Logger) (*Client, error) {
	if logger == nil {
		logger = log.Discard()
	}
	client := &Client{
		url:          url,
		exchangeName: exchangeName,
		queueName:    queueName,
		logger:       logger.WithComponent(log.ComponentAMQP),
	}
	if err := client.connect(); err != nil {
		return nil, err
	}
	return client, nil
}

func (c *Client) lg() *log.Logger {
	if c.logger == nil {
		return log.Discard()
	}
	return c.logger
}

func (c *Client) connect() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	c.closeLocked()

	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	c.conn = conn
	c.channel = channel

	if err := c.setup(); err != nil {
		c.closeLocked()
		return fmt.Errorf("setup exchange and queue: %w", err)
	}
	return nil
}

func (c *Client) setup() error {
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

	_, err = c.channel.QueueDeclare(
		c.queueName, // name
		true,        // durable
		false,       // delete when unused
		false,       // exclusive
		false,       // no-wait
		nil,         // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	// Fanout exchanges ignore the routing key.
	err = c.channel.QueueBind(c.queueName, "", c.exchangeName, false, nil)
	if err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}

	return nil
}

func (c *Client) currentChannel() (*amqp091.Channel, error) {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.channel == nil || c.channel.IsClosed() {
		return nil, ErrNotConnected
	}
	return c.channel, nil
}

// PublishRateUpdated announces rate on the exchange. Publishing is refused
// while the circuit breaker is open.
func (c *Client) PublishRateUpdated(ctx context.Context, rate core.ExchangeRate, source string) error {
	if c.isCircuitOpen() {
		return fmt.Errorf("publish rate update: %w", ErrCircuitOpen)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := NewRateUpdatedMessage(rate, source).ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	channel, err := c.currentChannel()
	if err != nil {
		if rerr := c.connect(); rerr != nil {
			c.recordFailure()
			return fmt.Errorf("reconnect before publish: %w", rerr)
		}
		if channel, err = c.currentChannel(); err != nil {
			c.recordFailure()
			return err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = channel.PublishWithContext(
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
	if err != nil {
		c.recordFailure()
		return fmt.Errorf("publish message: %w", err)
	}
	c.recordSuccess()

	c.lg().InfoContext(ctx, "Published rate update",
		log.NewFields().WithOperation(log.OpPublish).WithRate(rate.Rate, source).ToSlice()...)
	return nil
}

// ConsumeRateUpdates delivers every valid rate message to handler until ctx
// is done. Malformed messages are dropped, handler failures are requeued and
// lost connections are re-established with exponential backoff.
func (c *Client) ConsumeRateUpdates(ctx context.Context, handler func(context.Context, core.ExchangeRate) error) error {
	attempt := 0
	for {
		err := c.consume(ctx, handler)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !errors.Is(err, ErrDeliveryClosed) && !errors.Is(err, ErrNotConnected) && !isConnectionError(err) {
			return err
		}

		wait := exponentialBackoff(attempt)
		c.lg().WarnContext(ctx, "Rate consumer lost connection, reconnecting",
			"error", err, "attempt", attempt, "backoff", wait)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}

		if err := c.connect(); err != nil {
			c.lg().ErrorContext(ctx, "Reconnect failed", "error", err, "attempt", attempt)
			attempt++
			continue
		}
		attempt = 0
	}
}

func (c *Client) consume(ctx context.Context, handler func(context.Context, core.ExchangeRate) error) error {
	channel, err := c.currentChannel()
	if err != nil {
		return err
	}

	msgs, err := channel.Consume(
		c.queueName, // queue
		"",          // consumer
		false,       // auto-ack
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	c.lg().InfoContext(ctx, "Started consuming rate updates", "queue", c.queueName)

	for {
		select {
		case <-ctx.Done():
			c.lg().InfoContext(ctx, "Stopping message consumption", "reason", ctx.Err())
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return ErrDeliveryClosed
			}
			c.handleDelivery(ctx, delivery, handler)
		}
	}
}

func (c *Client) handleDelivery(ctx context.Context, delivery amqp091.Delivery, handler func(context.Context, core.ExchangeRate) error) {
	msg, err := RateUpdatedMessageFromJSON(delivery.Body)
	var rate core.ExchangeRate
	if err == nil {
		rate, err = msg.ExchangeRate()
	}
	if err != nil {
		c.lg().ErrorContext(ctx, "Dropping malformed rate message",
			log.NewFields().WithOperation(log.OpConsume).WithError(err).ToSlice()...)
		delivery.Nack(false, false)
		return
	}

	if err := handler(ctx, rate); err != nil {
		c.lg().ErrorContext(ctx, "Failed to handle rate message",
			log.NewFields().WithOperation(log.OpConsume).WithRate(rate.Rate, msg.Source).WithError(err).ToSlice()...)
		delivery.Nack(false, true)
		return
	}

	delivery.Ack(false)
	c.lg().DebugContext(ctx, "Processed rate message",
		log.NewFields().WithOperation(log.OpConsume).WithRate(rate.Rate, msg.Source).ToSlice()...)
}

func (c *Client) isCircuitOpen() bool {
	switch atomic.LoadInt32(&c.state) {
	case StateOpen:
		c.breakerMu.Lock()
		last := c.lastFailure
		c.breakerMu.Unlock()
		if time.Since(last) > openTimeout {
			atomic.CompareAndSwapInt32(&c.state, StateOpen, StateHalfOpen)
			return false
		}
		return true
	default:
		return false
	}
}

func (c *Client) recordSuccess() {
	atomic.StoreInt64(&c.failureCount, 0)
	atomic.StoreInt32(&c.state, StateClosed)
}

func (c *Client) recordFailure() {
	c.breakerMu.Lock()
	c.lastFailure = time.Now()
	c.breakerMu.Unlock()

	failures := atomic.AddInt64(&c.failureCount, 1)
	if failures >= maxFailures || atomic.LoadInt32(&c.state) == StateHalfOpen {
		atomic.StoreInt32(&c.state, StateOpen)
	}
}

// exponentialBackoff returns 1s, 2s, 4s, ... capped at maxBackoff.
func exponentialBackoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := time.Duration(math.Pow(2, float64(attempt))) * time.Second
	if d > maxBackoff || d <= 0 {
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
	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"connection refused",
		"connection closed",
		"connection reset",
		"eof",
		"broken pipe",
		"use of closed network connection",
		"not open",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

func (c *Client) Close() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.closeLocked()
}

func (c *Client) closeLocked() error {
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		if err != nil && !errors.Is(err, amqp091.ErrClosed) {
			return err
		}
	}
	return nil
}
