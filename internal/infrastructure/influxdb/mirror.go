package influxdb

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/climate-core/internal/infrastructure/config"
	"github.com/nerrad567/climate-core/internal/ingest"
)

// Measurement is the InfluxDB measurement readings are written to.
const Measurement = "climate"

// unplacedRoom is the room tag of a reading from a device with no placement.
const unplacedRoom = "unplaced"

const (
	pingTimeout          = 5 * time.Second
	defaultBatchSize     = 100
	defaultFlushInterval = 10 * time.Second
)

var _ ingest.Observer = (*Mirror)(nil)

// Mirror copies accepted readings into an InfluxDB v2 bucket.
//
// SQLite stays the system of record. Writes are batched and asynchronous, so
// a failed write surfaces through the SetOnError callback and never fails an
// ingestion.
type Mirror struct {
	client influxdb2.Client
	writer api.WriteAPI

	// mu guards closed against writes racing Close; the client must not be
	// written to after it is closed.
	mu     sync.RWMutex
	closed bool

	onError atomic.Pointer[func(error)]
}

// Connect pings the server and starts the batched writer.
// It returns ErrDisabled when the mirror is switched off.
func Connect(cfg config.InfluxDBConfig) (*Mirror, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	batch := uint(defaultBatchSize)
	if cfg.BatchSize > 0 {
		batch = uint(cfg.BatchSize)
	}
	flush := defaultFlushInterval
	if cfg.FlushInterval > 0 {
		flush = time.Duration(cfg.FlushInterval) * time.Second
	}

	opts := influxdb2.DefaultOptions().
		SetBatchSize(batch).
		SetFlushInterval(uint(flush.Milliseconds())).
		SetPrecision(time.Millisecond)
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := ping(ctx, client); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	m := &Mirror{client: client, writer: client.WriteAPI(cfg.Org, cfg.Bucket)}
	go m.forwardErrors(m.writer.Errors())
	return m, nil
}

func ping(ctx context.Context, client influxdb2.Client) error {
	ok, err := client.Ping(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("server not ready")
	}
	return nil
}

func (m *Mirror) forwardErrors(errs <-chan error) {
	for err := range errs {
		if cb := m.onError.Load(); cb != nil {
			(*cb)(err)
		}
	}
}

// SetOnError sets the callback for asynchronous batch write failures.
func (m *Mirror) SetOnError(callback func(err error)) {
	if callback == nil {
		m.onError.Store(nil)
		return
	}
	m.onError.Store(&callback)
}

// ReadingPoint builds the point for an accepted reading.
//
// Tags: device, room (or "unplaced"), source when known. Fields: temperature,
// humidity. The point is stamped with the reading time, not the ingestion time.
func ReadingPoint(res *ingest.Result) *write.Point {
	room := unplacedRoom
	if res.RoomID != nil {
		room = *res.RoomID
	}
	p := influxdb2.NewPointWithMeasurement(Measurement).
		AddTag("device", res.DeviceID).
		AddTag("room", room).
		AddField("temperature", res.Reading.Temperature).
		AddField("humidity", res.Reading.Humidity).
		SetTime(res.Reading.Timestamp)
	if res.Source != "" {
		p.AddTag("source", res.Source)
	}
	return p
}

// ReadingIngested queues the reading for the batched writer. Readings that
// arrive after Close are dropped.
func (m *Mirror) ReadingIngested(_ context.Context, res *ingest.Result) {
	if res == nil {
		return
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return
	}
	m.writer.WritePoint(ReadingPoint(res))
}

// Flush blocks until every queued point has been sent.
func (m *Mirror) Flush() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.closed {
		m.writer.Flush()
	}
}

// HealthCheck pings the server.
func (m *Mirror) HealthCheck(ctx context.Context) error {
	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := ping(ctx, m.client); err != nil {
		return fmt.Errorf("influxdb health check: %w", err)
	}
	return nil
}

// Close flushes queued points and releases the client. It is safe to call
// more than once.
func (m *Mirror) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.client == nil {
		m.closed = true
		return nil
	}
	m.closed = true
	m.writer.Flush()
	m.client.Close()
	return nil
}
