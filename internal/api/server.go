package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/climate-core/internal/device"
	"github.com/nerrad567/climate-core/internal/infrastructure/config"
	"github.com/nerrad567/climate-core/internal/infrastructure/logging"
	"github.com/nerrad567/climate-core/internal/ingest"
	"github.com/nerrad567/climate-core/internal/location"
	"github.com/nerrad567/climate-core/internal/reading"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// HealthChecker is implemented by every component reported on /health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// StatsSource reports ingestion counters.
type StatsSource interface {
	Stats() ingest.Stats
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config      config.APIConfig
	WS          config.WebSocketConfig
	Security    config.SecurityConfig
	Logger      *logging.Logger
	Devices     device.Repository
	Rooms       location.Repository
	Readings    reading.Repository
	Provisioner *device.Provisioner
	// Ingest is optional; /ingest/stats returns 503 without it.
	Ingest StatsSource
	// Policy is the device resolution policy name reported by /ingest/stats.
	Policy string
	// Health lists the components checked by /health, by name.
	Health map[string]HealthChecker
	// Hub is created by New when nil.
	Hub     *Hub
	Version string
}

// Server is the HTTP API server.
type Server struct {
	cfg         config.APIConfig
	wsCfg       config.WebSocketConfig
	secCfg      config.SecurityConfig
	logger      *logging.Logger
	devices     device.Repository
	rooms       location.Repository
	readings    reading.Repository
	provisioner *device.Provisioner
	ingest      StatsSource
	policy      string
	health      map[string]HealthChecker
	version     string

	hub     *Hub
	cache   *responseCache
	limiter *rateLimiter
	server  *http.Server
	cancel  context.CancelFunc
}

// New creates a new API server with the given dependencies.
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Devices == nil || deps.Rooms == nil || deps.Readings == nil {
		return nil, fmt.Errorf("device, room and reading repositories are required")
	}
	if deps.Provisioner == nil {
		deps.Provisioner = device.NewProvisioner(deps.Devices, deps.Rooms)
	}

	s := &Server{
		cfg:         deps.Config,
		wsCfg:       deps.WS,
		secCfg:      deps.Security,
		logger:      deps.Logger,
		devices:     deps.Devices,
		rooms:       deps.Rooms,
		readings:    deps.Readings,
		provisioner: deps.Provisioner,
		ingest:      deps.Ingest,
		policy:      deps.Policy,
		health:      deps.Health,
		version:     deps.Version,
		hub:         deps.Hub,
	}
	if s.hub == nil {
		s.hub = NewHub(deps.WS, deps.Logger)
	}
	if deps.Config.Cache.Enabled {
		s.cache = newResponseCache(time.Duration(deps.Config.Cache.TTL) * time.Second)
	}
	if deps.Config.RateLimit.Enabled {
		s.limiter = newRateLimiter(deps.Config.RateLimit.RequestsPerMinute, deps.Config.RateLimit.Burst)
	}
	return s, nil
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *Hub { return s.hub }

// ReadingIngested implements ingest.Observer: cached latest-reading
// responses are dropped and the reading is pushed to WebSocket clients.
func (s *Server) ReadingIngested(_ context.Context, res *ingest.Result) {
	if s.cache != nil {
		s.cache.flush()
	}
	s.hub.BroadcastReading(res)
}

// Handler returns the fully wired router. Start serves it; tests use it
// with httptest.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start begins listening for HTTP connections in a background goroutine.
// The server can be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server, waiting up to 10 seconds for
// in-flight requests.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
