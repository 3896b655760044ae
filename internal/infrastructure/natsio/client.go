package natsio

import (
	"context"
	"fmt"
	"sync"
	"time"

	nats "github.com/nats-io/nats.go"

	"github.com/nerrad567/climate-core/internal/infrastructure/config"
)

const (
	defaultDrainTimeout = 10 * time.Second
	defaultWorkers      = 8
	workQueueSize       = 256

	// HeaderMessageID is the JetStream-style deduplication header.
	HeaderMessageID = "Nats-Msg-Id"
)

// Message is one delivery translated to topic form.
type Message struct {
	Subject string
	// Topic is Subject with "." replaced by "/".
	Topic     string
	Payload   []byte
	MessageID string
}

// Handler processes one message. A returned error is logged.
type Handler func(msg Message) error

// Logger interface for optional logging support.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Client is a NATS connection feeding a worker pool.
type Client struct {
	nc      *nats.Conn
	workers int
	closed  chan struct{}

	mu      sync.Mutex
	subs    []*nats.Subscription
	work    chan func()
	wg      sync.WaitGroup
	closing bool

	loggerMu sync.RWMutex
	logger   Logger
}

// Connect dials the NATS server named in cfg.
func Connect(cfg config.NATSConfig) (*Client, error) {
	c := &Client{
		workers: defaultWorkers,
		closed:  make(chan struct{}),
		work:    make(chan func(), workQueueSize),
	}

	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.DrainTimeout(defaultDrainTimeout),
		nats.MaxReconnects(-1),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			if logger := c.getLogger(); logger != nil {
				subject := ""
				if sub != nil {
					subject = sub.Subject
				}
				logger.Error("NATS async error", "subject", subject, "error", err)
			}
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if logger := c.getLogger(); logger != nil && err != nil {
				logger.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			close(c.closed)
		}),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	c.nc = nc

	c.wg.Add(c.workers)
	for i := 0; i < c.workers; i++ {
		go c.worker()
	}
	return c, nil
}

// SetLogger sets a logger for async errors and handler failures.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

func (c *Client) worker() {
	defer c.wg.Done()
	for job := range c.work {
		job()
	}
}

// Subscribe delivers messages on subject to handler via the worker pool.
func (c *Client) Subscribe(subject string, handler Handler) error {
	if handler == nil {
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closing {
		return ErrClosed
	}

	sub, err := c.nc.Subscribe(subject, func(m *nats.Msg) {
		msg := toMessage(m)
		c.work <- func() { c.dispatch(handler, msg) }
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}
	c.subs = append(c.subs, sub)
	return nil
}

// SubscriptionCount returns the number of subscriptions created.
func (c *Client) SubscriptionCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

// SubscribeFilter subscribes using an MQTT-style topic filter.
func (c *Client) SubscribeFilter(filter string, handler Handler) error {
	subject, err := SubjectFromFilter(filter)
	if err != nil {
		return err
	}
	return c.Subscribe(subject, handler)
}

func toMessage(m *nats.Msg) Message {
	msg := Message{
		Subject: m.Subject,
		Topic:   TopicFromSubject(m.Subject),
		Payload: m.Data,
	}
	if m.Header != nil {
		msg.MessageID = m.Header.Get(HeaderMessageID)
	}
	return msg
}

func (c *Client) dispatch(handler Handler, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			if logger := c.getLogger(); logger != nil {
				logger.Error("NATS handler panic recovered", "subject", msg.Subject, "panic", r)
			}
		}
	}()
	if err := handler(msg); err != nil {
		if logger := c.getLogger(); logger != nil {
			logger.Warn("NATS handler returned error", "subject", msg.Subject, "error", err)
		}
	}
}

// Publish sends payload on subject.
func (c *Client) Publish(subject string, payload []byte) error {
	return c.nc.Publish(subject, payload)
}

// HealthCheck reports whether the connection is usable.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !c.nc.IsConnected() {
		return fmt.Errorf("natsio: not connected (status %v)", c.nc.Status())
	}
	return nil
}

// Drain stops new deliveries, lets pending ones reach the workers, waits for
// every handler to return and closes the connection. It returns ctx.Err() if
// ctx ends first.
func (c *Client) Drain(ctx context.Context) error {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return nil
	}
	c.closing = true
	c.mu.Unlock()

	if err := c.nc.Drain(); err != nil {
		c.nc.Close()
	}

	select {
	case <-c.closed:
	case <-ctx.Done():
		c.nc.Close()
		return ctx.Err()
	}

	// The connection is closed, so no subscription callback can still be
	// queueing work.
	close(c.work)

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
