package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nerrad567/climate-core/internal/device"
	"github.com/nerrad567/climate-core/internal/reading"
	"github.com/nerrad567/climate-core/internal/topic"
)

// stubIngester returns canned outcomes and can block until released.
type stubIngester struct {
	err     error
	release chan struct{}

	mu      sync.Mutex
	running int
	peak    int
	calls   int
}

func (s *stubIngester) Ingest(ctx context.Context, name string, _ []byte, meta Meta) (*Result, error) {
	s.mu.Lock()
	s.calls++
	s.running++
	if s.running > s.peak {
		s.peak = s.running
	}
	s.mu.Unlock()

	if s.release != nil {
		<-s.release
	}

	s.mu.Lock()
	s.running--
	s.mu.Unlock()

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if s.err != nil {
		return nil, s.err
	}
	return &Result{Success: true, DeviceID: name, Retained: meta.Retained}, nil
}

type recordingLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *recordingLogger) log(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, level+" "+msg)
}

func (l *recordingLogger) Debug(msg string, _ ...any) { l.log("DEBUG", msg) }
func (l *recordingLogger) Info(msg string, _ ...any)  { l.log("INFO", msg) }
func (l *recordingLogger) Warn(msg string, _ ...any)  { l.log("WARN", msg) }
func (l *recordingLogger) Error(msg string, _ ...any) { l.log("ERROR", msg) }

func (l *recordingLogger) has(line string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, got := range l.lines {
		if got == line {
			return true
		}
	}
	return false
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want Outcome
	}{
		{nil, OutcomeAccepted},
		{&topic.TopicFormatError{Kind: topic.KindMismatch}, OutcomeTopic},
		{&reading.ValidationError{Kind: reading.KindTemperatureRange, Field: "temperature"}, OutcomeValidation},
		{&device.UnknownDeviceError{UID: "x"}, OutcomeUnknownDevice},
		{&reading.DuplicateReadingError{Reason: reading.ReasonDedupKey}, OutcomeDuplicate},
		{fmt.Errorf("wrapped: %w", &reading.DuplicateReadingError{}), OutcomeDuplicate},
		{errors.New("disk I/O error"), OutcomeFailed},
	}
	for _, tt := range tests {
		if got := Classify(tt.err); got != tt.want {
			t.Errorf("Classify(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
	if Rejected(nil) || Rejected(errors.New("boom")) {
		t.Error("Rejected() true for success or failure")
	}
	if !Rejected(&device.UnknownDeviceError{UID: "x"}) {
		t.Error("Rejected(unknown device) = false")
	}
}

func TestConsumer_StatsAndLogging(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name  string
		err   error
		line  string
		check func(Stats) bool
	}{
		{"accepted", nil, "DEBUG reading ingested", func(s Stats) bool { return s.Accepted == 1 && s.LastAcceptedAt != nil }},
		{"duplicate", &reading.DuplicateReadingError{Reason: reading.ReasonDedupKey}, "INFO duplicate reading dropped", func(s Stats) bool { return s.Duplicates == 1 }},
		{"unknown", &device.UnknownDeviceError{UID: "x"}, "WARN reading rejected: device must be provisioned first", func(s Stats) bool { return s.UnknownDevices == 1 }},
		{"validation", &reading.ValidationError{Kind: reading.KindMissingField, Field: "ts"}, "WARN reading rejected", func(s Stats) bool { return s.Rejected == 1 }},
		{"failure", errors.New("database is locked"), "ERROR ingestion failed", func(s Stats) bool { return s.Failed == 1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := &recordingLogger{}
			c := NewConsumer(&stubIngester{err: tt.err}, 1)
			c.SetLogger(logger)

			_, err := c.Handle(ctx, "t", nil, Meta{})
			if !errors.Is(err, tt.err) && !(tt.err == nil && err == nil) {
				t.Errorf("Handle() error = %v, want %v", err, tt.err)
			}
			if !tt.check(c.Stats()) {
				t.Errorf("Stats() = %+v", c.Stats())
			}
			if !logger.has(tt.line) {
				t.Errorf("log lines = %v, want %q", logger.lines, tt.line)
			}
		})
	}
}

func TestConsumer_Observers(t *testing.T) {
	c := NewConsumer(&stubIngester{}, 4)
	var seen []string
	c.AddObserver(ObserverFunc(func(_ context.Context, res *Result) {
		seen = append(seen, res.DeviceID)
	}))

	if _, err := c.Handle(context.Background(), "temp001", nil, Meta{}); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	rejecting := NewConsumer(&stubIngester{err: &device.UnknownDeviceError{UID: "x"}}, 4)
	rejecting.AddObserver(ObserverFunc(func(context.Context, *Result) {
		t.Error("observer called for a rejected reading")
	}))
	rejecting.Handle(context.Background(), "x", nil, Meta{}) //nolint:errcheck

	if len(seen) != 1 || seen[0] != "temp001" {
		t.Errorf("observer saw %v, want [temp001]", seen)
	}
}

func TestConsumer_BoundsInFlight(t *testing.T) {
	stub := &stubIngester{release: make(chan struct{})}
	c := NewConsumer(stub, 2)

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.Handle(context.Background(), fmt.Sprintf("dev-%d", i), nil, Meta{}) //nolint:errcheck
		}(i)
	}

	// Let the first two in, then release everyone.
	deadline := time.After(2 * time.Second)
	for {
		stub.mu.Lock()
		running := stub.running
		stub.mu.Unlock()
		if running == 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for in-flight calls")
		case <-time.After(5 * time.Millisecond):
		}
	}
	close(stub.release)
	wg.Wait()

	if stub.peak > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", stub.peak)
	}
	if got := c.Stats().Accepted; got != 6 {
		t.Errorf("Accepted = %d, want 6", got)
	}
}

func TestConsumer_StopAndWait(t *testing.T) {
	stub := &stubIngester{release: make(chan struct{})}
	c := NewConsumer(stub, 4)

	var started atomic.Bool
	done := make(chan error, 1)
	go func() {
		started.Store(true)
		_, err := c.Handle(context.Background(), "temp001", nil, Meta{})
		done <- err
	}()

	for {
		stub.mu.Lock()
		calls := stub.calls
		stub.mu.Unlock()
		if started.Load() && calls == 1 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	c.Stop()
	if _, err := c.Handle(context.Background(), "temp002", nil, Meta{}); !errors.Is(err, ErrStopped) {
		t.Errorf("Handle() after Stop error = %v, want ErrStopped", err)
	}

	short, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := c.Wait(short); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait() with a call in flight = %v, want DeadlineExceeded", err)
	}

	close(stub.release)
	if err := c.Wait(context.Background()); err != nil {
		t.Errorf("Wait() error = %v", err)
	}
	if err := <-done; err != nil {
		t.Errorf("in-flight Handle() error = %v, want nil", err)
	}
	if st := c.Stats(); !st.Stopped || st.Accepted != 1 {
		t.Errorf("Stats() = %+v", st)
	}
}

func TestConsumer_InFlightIgnoresCancellation(t *testing.T) {
	stub := &stubIngester{release: make(chan struct{})}
	c := NewConsumer(stub, 1)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := c.Handle(ctx, "temp001", nil, Meta{})
		done <- err
	}()
	for {
		stub.mu.Lock()
		calls := stub.calls
		stub.mu.Unlock()
		if calls == 1 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	cancel()
	close(stub.release)
	if err := <-done; err != nil {
		t.Errorf("Handle() error = %v, want the started ingestion to finish", err)
	}
}

func TestConsumer_CancelledContextWithFreeSlot(t *testing.T) {
	c := NewConsumer(&stubIngester{}, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for i := 0; i < 50; i++ {
		if _, err := c.Handle(ctx, "temp001", nil, Meta{}); err != nil {
			t.Fatalf("Handle() #%d error = %v, want the free slot to be taken", i, err)
		}
	}
	if st := c.Stats(); st.Accepted != 50 || st.Failed != 0 {
		t.Errorf("Stats() = %+v, want 50 accepted and no failures", st)
	}
}

func TestConsumer_CancelledWhileWaitingCountsAsFailed(t *testing.T) {
	stub := &stubIngester{release: make(chan struct{})}
	c := NewConsumer(stub, 1)
	logger := &recordingLogger{}
	c.SetLogger(logger)

	done := make(chan error, 1)
	go func() {
		_, err := c.Handle(context.Background(), "temp001", nil, Meta{})
		done <- err
	}()
	for {
		stub.mu.Lock()
		calls := stub.calls
		stub.mu.Unlock()
		if calls == 1 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Handle(ctx, "temp002", nil, Meta{MessageID: "7"}); !errors.Is(err, context.Canceled) {
		t.Errorf("Handle() with busy slot error = %v, want context.Canceled", err)
	}
	if got := c.Stats().Failed; got != 1 {
		t.Errorf("Failed = %d, want 1", got)
	}
	if !logger.has("WARN delivery dropped while waiting for a slot") {
		t.Errorf("log lines = %v, want a dropped-delivery warning", logger.lines)
	}

	close(stub.release)
	if err := <-done; err != nil {
		t.Errorf("first Handle() error = %v", err)
	}
}

func TestConsumer_EndToEnd(t *testing.T) {
	env := setupTestEnv(t)
	p := env.pipeline(t, device.NewAutoProvision(env.devices))
	c := NewConsumer(p, 8)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			body := fmt.Sprintf(`{"temperature":21,"humidity":40,"ts":"2026-03-01T10:%02d:00Z"}`, i)
			c.Handle(context.Background(), "home/house-1/sensors/temp042/reading", []byte(body), Meta{}) //nolint:errcheck
		}(i)
	}
	wg.Wait()

	st := c.Stats()
	if st.Accepted != 20 || st.DevicesCreated != 1 {
		t.Errorf("Stats() = %+v, want 20 accepted and 1 device created", st)
	}
	if n := env.countReadings(t); n != 20 {
		t.Errorf("readings = %d, want 20", n)
	}
}
