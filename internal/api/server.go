package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/flockweigh/flockweigh-core/internal/audit"
	"github.com/flockweigh/flockweigh-core/internal/calibration"
	"github.com/flockweigh/flockweigh-core/internal/device"
	"github.com/flockweigh/flockweigh-core/internal/events"
	"github.com/flockweigh/flockweigh-core/internal/heartbeat"
	"github.com/flockweigh/flockweigh-core/internal/infrastructure/config"
	"github.com/flockweigh/flockweigh-core/internal/infrastructure/database"
	"github.com/flockweigh/flockweigh-core/internal/infrastructure/influxdb"
	"github.com/flockweigh/flockweigh-core/internal/infrastructure/logging"
	"github.com/flockweigh/flockweigh-core/internal/infrastructure/mqtt"
	"github.com/flockweigh/flockweigh-core/internal/provisioning"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config       config.APIConfig
	WS           config.WebSocketConfig
	Logger       *logging.Logger
	Registry     *device.Registry
	Calibration  *calibration.Machine
	Heartbeat    *heartbeat.Dispatcher
	Provisioning *provisioning.Builder
	History      audit.Repository

	// Optional.
	Events   events.Publisher
	Bus      *events.Bus
	DB       *database.DB
	MQTT     *mqtt.Client
	InfluxDB *influxdb.Client
	Metrics  *Metrics
	Hub      *Hub // If set, the server uses this hub instead of creating its own
	Version  string
}

// Server is the HTTP server for Flockweigh Core.
type Server struct {
	cfg          config.APIConfig
	wsCfg        config.WebSocketConfig
	logger       *logging.Logger
	registry     *device.Registry
	calibration  *calibration.Machine
	heartbeat    *heartbeat.Dispatcher
	provisioning *provisioning.Builder
	history      audit.Repository
	events       events.Publisher
	bus          *events.Bus
	db           *database.DB
	mqtt         *mqtt.Client
	influx       *influxdb.Client
	metrics      *Metrics
	version      string
	startTime    time.Time
	server       *http.Server
	hub          *Hub
	externalHub  bool               // true if hub was injected externally
	cancel       context.CancelFunc // cancels the hub on Close()
}

// New creates a new API server with the given dependencies.
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("device registry is required")
	}
	if deps.Calibration == nil {
		return nil, fmt.Errorf("calibration machine is required")
	}
	if deps.Heartbeat == nil {
		return nil, fmt.Errorf("heartbeat dispatcher is required")
	}
	if deps.Provisioning == nil {
		return nil, fmt.Errorf("provisioning builder is required")
	}
	if deps.History == nil {
		return nil, fmt.Errorf("device history repository is required")
	}

	s := &Server{
		cfg:          deps.Config,
		wsCfg:        deps.WS,
		logger:       deps.Logger,
		registry:     deps.Registry,
		calibration:  deps.Calibration,
		heartbeat:    deps.Heartbeat,
		provisioning: deps.Provisioning,
		history:      deps.History,
		events:       deps.Events,
		bus:          deps.Bus,
		db:           deps.DB,
		mqtt:         deps.MQTT,
		influx:       deps.InfluxDB,
		metrics:      deps.Metrics,
		version:      deps.Version,
		startTime:    time.Now(),
	}
	if s.events == nil {
		s.events = events.Discard{}
	}
	if s.metrics == nil {
		s.metrics = NewMetrics()
	}

	// The hub is usually created by main so the event bus can broadcast
	// through it before the server starts.
	if deps.Hub != nil {
		s.hub = deps.Hub
		s.externalHub = true
	}

	return s, nil
}

// Start begins listening for HTTP connections in a background goroutine.
// The server can be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
		go s.hub.Run(srvCtx)
	}

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

// Hub returns the WebSocket hub, or nil before Start when none was injected.
func (s *Server) Hub() *Hub {
	return s.hub
}
