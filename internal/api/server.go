package api

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"grimm.is/ngxweb/internal/audit"
	"grimm.is/ngxweb/internal/auth"
	"grimm.is/ngxweb/internal/clock"
	"grimm.is/ngxweb/internal/config"
	"grimm.is/ngxweb/internal/lb"
	"grimm.is/ngxweb/internal/logging"
	"grimm.is/ngxweb/internal/metrics"
	"grimm.is/ngxweb/internal/nginx"
	"grimm.is/ngxweb/internal/nginxconf"
	"grimm.is/ngxweb/internal/ratelimit"
	"grimm.is/ngxweb/internal/traffic"
)

// ServerConfig holds HTTP server security configuration.
type ServerConfig struct {
	ReadHeaderTimeout time.Duration // Slowloris prevention
	ReadTimeout       time.Duration // Body read limit
	WriteTimeout      time.Duration // Response timeout
	IdleTimeout       time.Duration // Keep-alive timeout
	MaxHeaderBytes    int           // Header size limit
	MaxBodyBytes      int64         // Request body size limit
	ShutdownTimeout   time.Duration
}

// Clients presenting this many bad API keys within AuthFailureWindow are
// refused until the window ends.
const (
	AuthFailureLimit  = 10
	AuthFailureWindow = time.Minute
)

// DefaultServerConfig returns secure default server configuration.
// WriteTimeout stays zero: realtime traffic connections are long-lived.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 16, // 64KB
		MaxBodyBytes:      10 << 20,
		ShutdownTimeout:   10 * time.Second,
	}
}

// ConfigService manages Nginx configuration files.
type ConfigService interface {
	List() ([]nginx.Config, error)
	Get(id string) (nginx.Config, error)
	Create(name, content string) (nginx.Config, error)
	Update(id, content string) (nginx.Config, error)
	Delete(id string) error
	Deploy(ctx context.Context, id string, validateOnly bool) (nginx.DeployResult, error)
	Diff(id, proposed string) (string, error)
	Blocks(id string) (nginxconf.DocumentView, error)
	Installed() bool
	HasConfigs() bool
	Version(ctx context.Context) (string, error)
}

// TrafficService answers access log queries.
type TrafficService interface {
	Logs(q traffic.Query) ([]traffic.Entry, error)
	Stats(q traffic.Query) (traffic.Stats, error)
	Export(w io.Writer, q traffic.Query) error
	Follow(ctx context.Context, q traffic.Query, fn func(traffic.Entry)) error
}

// PoolService edits the load balancer upstream pool.
type PoolService interface {
	List(ctx context.Context) ([]lb.Server, error)
	Get(ctx context.Context, id string) (lb.Server, error)
	Add(req lb.CreateRequest) (lb.Server, error)
	Update(id string, req lb.UpdateRequest) (lb.Server, error)
	Remove(id string) error
	Check(ctx context.Context, id string) (lb.Status, error)
}

// AuditLog records and lists audit events.
type AuditLog interface {
	Write(evt audit.Event) error
	Query(f audit.Filter) ([]audit.Event, error)
}

// Server handles API requests.
type Server struct {
	Config  *config.Config
	configs ConfigService
	traffic TrafficService
	pool    PoolService
	audit   AuditLog
	authMw  *auth.Middleware
	logger  *logging.Logger
	metrics *metrics.Registry
	clock   clock.Clock

	startTime time.Time
	mux       *http.ServeMux

	// failed API key attempts per client IP
	authFailures *ratelimit.Limiter
}

// ServerOptions holds dependencies for the API server
type ServerOptions struct {
	Config  *config.Config
	Configs ConfigService
	Traffic TrafficService
	Pool    PoolService  // Optional: load balancer routes answer 503 without it
	Audit   AuditLog     // Optional
	Logger  *logging.Logger
	Clock   clock.Clock
}

// NewServer creates a new API server with the provided options
func NewServer(opts ServerOptions) (*Server, error) {
	if opts.Config == nil {
		opts.Config = config.Default()
	}
	if opts.Configs == nil {
		return nil, errors.New("config service is required")
	}
	if opts.Traffic == nil {
		return nil, errors.New("traffic service is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.WithComponent("api")
	}

	s := &Server{
		Config:  opts.Config,
		configs: opts.Configs,
		traffic: opts.Traffic,
		pool:    opts.Pool,
		audit:   opts.Audit,
		logger:  logger,
		metrics: metrics.Get(),
		clock:   clock.Or(opts.Clock),
	}
	s.startTime = s.clock.Now()

	if api := opts.Config.API; api != nil && api.RequireAuth {
		verifier, err := auth.NewVerifier(api.APIKey, api.APIKeyHash)
		if err != nil {
			return nil, err
		}
		s.authFailures = ratelimit.NewLimiter(AuthFailureLimit, AuthFailureWindow, s.clock)
		s.authMw = auth.NewMiddleware(verifier, func(w http.ResponseWriter, r *http.Request) {
			if ip := getClientIP(r); !s.authFailures.Allow(ip) {
				s.logger.Warn("Too many failed API key attempts", "ip", ip)
			}
			WriteError(w, http.StatusUnauthorized, "Unauthorized", "a valid API key is required")
		})
	} else {
		s.logger.Info("Authentication disabled by configuration")
	}

	s.initRoutes()
	return s, nil
}

// initRoutes initializes the HTTP router
func (s *Server) initRoutes() {
	mux := http.NewServeMux()
	s.mux = mux

	// Public endpoints
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.Handle("GET /metrics", metrics.Handler())

	// Configurations
	mux.Handle("GET /api/config", s.require(s.handleListConfigs))
	mux.Handle("POST /api/config", s.require(s.handleCreateConfig))
	mux.Handle("POST /api/config/deploy", s.require(s.handleDeployConfig))
	mux.Handle("GET /api/config/{id}", s.require(s.handleGetConfig))
	mux.Handle("PUT /api/config/{id}", s.require(s.handleUpdateConfig))
	mux.Handle("DELETE /api/config/{id}", s.require(s.handleDeleteConfig))
	mux.Handle("POST /api/config/{id}/deploy", s.require(s.handleDeployConfig))
	mux.Handle("GET /api/config/{id}/blocks", s.require(s.handleConfigBlocks))
	mux.Handle("POST /api/config/{id}/diff", s.require(s.handleConfigDiff))

	// Traffic
	mux.Handle("GET /api/traffic", s.require(s.handleTraffic))
	mux.Handle("GET /api/traffic/stats", s.require(s.handleTrafficStats))
	mux.Handle("GET /api/traffic/export", s.require(s.handleTrafficExport))
	mux.Handle("GET /api/traffic/realtime", s.require(s.handleTrafficRealtime))

	// Load balancer
	mux.Handle("GET /api/load-balancer/servers", s.require(s.requirePool(s.handleListServers)))
	mux.Handle("POST /api/load-balancer/servers", s.require(s.requirePool(s.handleCreateServer)))
	mux.Handle("GET /api/load-balancer/servers/{id}", s.require(s.requirePool(s.handleGetServer)))
	mux.Handle("PUT /api/load-balancer/servers/{id}", s.require(s.requirePool(s.handleUpdateServer)))
	mux.Handle("DELETE /api/load-balancer/servers/{id}", s.require(s.requirePool(s.handleDeleteServer)))
	mux.Handle("GET /api/load-balancer/servers/{id}/health", s.require(s.requirePool(s.handleServerHealth)))

	// Audit
	mux.Handle("GET /api/audit", s.require(s.handleAuditQuery))
}

// require wraps a handler with API key authentication when it is enabled.
func (s *Server) require(handler http.HandlerFunc) http.Handler {
	if s.authMw == nil {
		return handler
	}
	return s.throttleAuth(s.authMw.RequireKey(handler))
}

// throttleAuth refuses clients that exhausted their failed key attempts.
func (s *Server) throttleAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := getClientIP(r)
		if s.authFailures.Exhausted(ip) {
			retry := int(s.authFailures.RetryAfter(ip).Seconds()) + 1
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			WriteError(w, http.StatusTooManyRequests, "Too many failed authentication attempts")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requirePool ensures the load balancer pool is configured.
func (s *Server) requirePool(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.pool == nil {
			WriteError(w, http.StatusServiceUnavailable, "Load balancer pool is not configured")
			return
		}
		next(w, r)
	}
}

// Handler returns the HTTP handler with middleware applied.
func (s *Server) Handler() http.Handler {
	cfg := DefaultServerConfig()

	var origins []string
	if s.Config.API != nil {
		origins = s.Config.API.CORSOrigins
	}

	// Chain: logging -> metrics -> CORS -> body limit -> mux
	return s.loggingMiddleware(
		s.metricsMiddleware(
			corsMiddleware(origins)(
				s.maxBodyMiddleware(cfg.MaxBodyBytes)(s.mux))))
}

// Start listens on addr and serves until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listener)
}

// Serve serves on listener until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	cfg := DefaultServerConfig()
	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	if s.authFailures != nil {
		s.authFailures.StartCleanup(ctx, AuthFailureWindow, 10*AuthFailureWindow)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("API server starting", "addr", listener.Addr().String())
		errCh <- server.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}
