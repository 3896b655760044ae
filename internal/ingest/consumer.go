package ingest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrStopped is returned by Consumer.Handle after Stop.
var ErrStopped = errors.New("ingest: consumer stopped")

// DefaultMaxInFlight bounds concurrent Ingest calls when none is configured.
const DefaultMaxInFlight = 64

// Ingester is the single-message operation a Consumer drives.
type Ingester interface {
	Ingest(ctx context.Context, topic string, payload []byte, meta Meta) (*Result, error)
}

// Observer is notified of every accepted reading. Implementations must not
// block; they run on the delivering goroutine.
type Observer interface {
	ReadingIngested(ctx context.Context, res *Result)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, res *Result)

// ReadingIngested implements Observer.
func (f ObserverFunc) ReadingIngested(ctx context.Context, res *Result) { f(ctx, res) }

// Logger is the logging interface used by the consumer.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Stats is a snapshot of consumer counters.
type Stats struct {
	Accepted       uint64     `json:"accepted"`
	Duplicates     uint64     `json:"duplicates"`
	Rejected       uint64     `json:"rejected"`
	UnknownDevices uint64     `json:"unknown_devices"`
	Failed         uint64     `json:"failed"`
	DevicesCreated uint64     `json:"devices_created"`
	InFlight       int64      `json:"in_flight"`
	LastAcceptedAt *time.Time `json:"last_accepted_at,omitempty"`
	Stopped        bool       `json:"stopped"`
}

// Consumer adapts transport deliveries to an Ingester.
//
// Handle may be called from many goroutines. At most maxInFlight calls run
// Ingest at once; the rest wait for a slot or for their context.
type Consumer struct {
	ingester  Ingester
	logger    Logger
	observers []Observer
	slots     chan struct{}

	mu       sync.RWMutex
	stopped  bool
	inFlight sync.WaitGroup

	accepted       atomic.Uint64
	duplicates     atomic.Uint64
	rejected       atomic.Uint64
	unknownDevices atomic.Uint64
	failed         atomic.Uint64
	devicesCreated atomic.Uint64
	active         atomic.Int64
	lastAccepted   atomic.Int64
}

// NewConsumer creates a Consumer. maxInFlight <= 0 selects DefaultMaxInFlight.
func NewConsumer(ingester Ingester, maxInFlight int) *Consumer {
	if maxInFlight <= 0 {
		maxInFlight = DefaultMaxInFlight
	}
	return &Consumer{
		ingester: ingester,
		logger:   noopLogger{},
		slots:    make(chan struct{}, maxInFlight),
	}
}

// SetLogger sets the logger for rejections and failures.
func (c *Consumer) SetLogger(logger Logger) {
	if logger != nil {
		c.logger = logger
	}
}

// AddObserver registers an observer. Call before the first Handle.
func (c *Consumer) AddObserver(o Observer) {
	c.observers = append(c.observers, o)
}

// Handle ingests one delivery.
//
// A free slot is always taken, even with ctx already cancelled. Cancelling
// ctx only abandons a wait for a busy slot, and the dropped delivery counts
// as failed. Once Ingest has started it runs to completion. The returned error is the pipeline's typed error,
// already logged and counted.
func (c *Consumer) Handle(ctx context.Context, topicName string, payload []byte, meta Meta) (*Result, error) {
	c.mu.RLock()
	if c.stopped {
		c.mu.RUnlock()
		return nil, ErrStopped
	}
	c.inFlight.Add(1)
	c.mu.RUnlock()
	defer c.inFlight.Done()

	if err := c.acquire(ctx); err != nil {
		c.failed.Add(1)
		c.logger.Warn("delivery dropped while waiting for a slot",
			"topic", topicName, "message_id", meta.MessageID, "error", err)
		return nil, err
	}
	defer func() { <-c.slots }()

	c.active.Add(1)
	defer c.active.Add(-1)

	res, err := c.ingester.Ingest(context.WithoutCancel(ctx), topicName, payload, meta)
	c.record(topicName, meta, res, err)
	if err != nil {
		return nil, err
	}

	for _, o := range c.observers {
		o.ReadingIngested(ctx, res)
	}
	return res, nil
}

func (c *Consumer) acquire(ctx context.Context) error {
	select {
	case c.slots <- struct{}{}:
		return nil
	default:
	}
	select {
	case c.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Consumer) record(topicName string, meta Meta, res *Result, err error) {
	switch Classify(err) {
	case OutcomeAccepted:
		c.accepted.Add(1)
		c.lastAccepted.Store(time.Now().UnixNano())
		if res.DeviceCreated {
			c.devicesCreated.Add(1)
			c.logger.Info("device auto-provisioned", "device_uid", res.DeviceID)
		}
		c.logger.Debug("reading ingested",
			"device_uid", res.DeviceID,
			"insert_id", res.InsertID,
			"retained", res.Retained,
		)
	case OutcomeDuplicate:
		c.duplicates.Add(1)
		c.logger.Info("duplicate reading dropped",
			append(rejectionAttrs(err), "topic", topicName, "message_id", meta.MessageID)...)
	case OutcomeUnknownDevice:
		c.unknownDevices.Add(1)
		c.logger.Warn("reading rejected: device must be provisioned first",
			append(rejectionAttrs(err), "topic", topicName, "error", err)...)
	case OutcomeTopic, OutcomeValidation:
		c.rejected.Add(1)
		c.logger.Warn("reading rejected",
			append(rejectionAttrs(err), "topic", topicName, "error", err)...)
	default:
		c.failed.Add(1)
		c.logger.Error("ingestion failed",
			append(rejectionAttrs(err), "topic", topicName, "error", err)...)
	}
}

// Stop refuses new deliveries. Calls already inside Handle continue.
func (c *Consumer) Stop() {
	c.mu.Lock()
	c.stopped = true
	c.mu.Unlock()
}

// Wait blocks until every in-flight Handle call has returned or ctx is done.
// Call Stop first, or new deliveries may keep it waiting.
func (c *Consumer) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.inFlight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns a snapshot of the counters.
func (c *Consumer) Stats() Stats {
	c.mu.RLock()
	stopped := c.stopped
	c.mu.RUnlock()

	st := Stats{
		Accepted:       c.accepted.Load(),
		Duplicates:     c.duplicates.Load(),
		Rejected:       c.rejected.Load(),
		UnknownDevices: c.unknownDevices.Load(),
		Failed:         c.failed.Load(),
		DevicesCreated: c.devicesCreated.Load(),
		InFlight:       c.active.Load(),
		Stopped:        stopped,
	}
	if ns := c.lastAccepted.Load(); ns != 0 {
		t := time.Unix(0, ns).UTC()
		st.LastAcceptedAt = &t
	}
	return st
}
