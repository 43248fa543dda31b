package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/device-server/internal/audit"
	"github.com/nerrad567/device-server/internal/device"
	"github.com/nerrad567/device-server/internal/gateway"
	"github.com/nerrad567/device-server/internal/infrastructure/config"
	"github.com/nerrad567/device-server/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Publisher sends messages to devices. *gateway.Gateway satisfies it.
type Publisher interface {
	SendMessage(ctx context.Context, topic string, payload []byte, opts ...gateway.SendOption) error
	SendJSON(ctx context.Context, topic string, v any, opts ...gateway.SendOption) error
	IsConnected() bool
}

// SettingsReader returns the last settings a device reported.
// *device.SettingsStore satisfies it.
type SettingsReader interface {
	Get(deviceID int) (*device.SettingsSnapshot, error)
}

// LatestCache returns the cached latest reading of a device.
// *cache.Cache satisfies it.
type LatestCache interface {
	GetLatest(ctx context.Context, deviceID int) ([]byte, error)
}

// Database is the subset of *database.DB used for health and metrics.
type Database interface {
	HealthCheck(ctx context.Context) error
	Stats() sql.DBStats
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger
	Gateway  Publisher
	Readings device.ReadingRepository
	Settings SettingsReader
	DB       Database
	Audit    audit.Repository // optional: /api/audit returns 500 without it
	Cache    LatestCache      // optional: latest reading falls back to the database
	Hub      *Hub             // optional: created and run by Start when nil
	Version  string
}

// Server is the HTTP API server of the device server.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	secCfg    config.SecurityConfig
	logger    *logging.Logger
	gateway   Publisher
	readings  device.ReadingRepository
	settings  SettingsReader
	db        Database
	auditRepo audit.Repository
	cache     LatestCache
	version   string
	startTime time.Time

	server      *http.Server
	hub         *Hub
	externalHub bool               // true if hub was injected externally
	cancel      context.CancelFunc // stops the hub on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (logger, gateway, readings, settings, database)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	switch {
	case deps.Logger == nil:
		return nil, fmt.Errorf("logger is required")
	case deps.Gateway == nil:
		return nil, fmt.Errorf("gateway is required")
	case deps.Readings == nil:
		return nil, fmt.Errorf("readings repository is required")
	case deps.Settings == nil:
		return nil, fmt.Errorf("settings store is required")
	case deps.DB == nil:
		return nil, fmt.Errorf("database is required")
	}

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		secCfg:    deps.Security,
		logger:    deps.Logger,
		gateway:   deps.Gateway,
		readings:  deps.Readings,
		settings:  deps.Settings,
		db:        deps.DB,
		auditRepo: deps.Audit,
		cache:     deps.Cache,
		version:   deps.Version,
		startTime: time.Now(),
	}

	// The live-feed handler broadcasts through the same hub, so main
	// usually creates it first.
	if deps.Hub != nil {
		s.hub = deps.Hub
		s.externalHub = true
	}

	return s, nil
}

// Hub returns the WebSocket hub, or nil before Start when none was injected.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub when none was injected, builds the router
// and launches the HTTP listener in a background goroutine. The server
// can be stopped with Close().
//
// Parameters:
//   - ctx: Parent context for the hub
//
// Returns:
//   - error: Currently always nil; listener errors are logged
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
		ReadTimeout:       s.cfg.Timeouts.ReadTimeout(),
		ReadHeaderTimeout: s.cfg.Timeouts.ReadTimeout(),
		WriteTimeout:      s.cfg.Timeouts.WriteTimeout(),
		IdleTimeout:       s.cfg.Timeouts.IdleTimeout(),
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

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
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
