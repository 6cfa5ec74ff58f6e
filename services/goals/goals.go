// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package goals provides the Cairn goal tracking service.
//
// The service wires the goal store, the identity provider, the tracker and
// the HTTP API into one process:
//
//	┌──────────┐   ┌────────────┐   ┌──────────┐   ┌──────────────┐
//	│   gin    │──▶│  handlers  │──▶│ tracker  │──▶│ store.Store  │
//	│ (otelgin)│   │            │   │          │   │badger/sqlite │
//	└──────────┘   └────────────┘   └──────────┘   └──────────────┘
//	      │              │                                ▲
//	      ▼              ▼                                │
//	 prometheus     identity.Provider ────────────────────┘
//
// # Usage
//
//	cfg := goals.Config{Port: 12310, JWTSecret: secret}
//	svc, err := goals.New(cfg, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	svc.Run()
//
// # Extension Points
//
// extensions.ServiceOptions replaces the token validator and the audit sink:
//
//	opts := extensions.DefaultOptions().WithAudit(sink)
//	svc, err := goals.New(cfg, &opts)
package goals

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/AleutianAI/cairn/pkg/extensions"
	"github.com/AleutianAI/cairn/pkg/logging"
	"github.com/AleutianAI/cairn/services/goals/audit"
	"github.com/AleutianAI/cairn/services/goals/identity"
	"github.com/AleutianAI/cairn/services/goals/middleware"
	"github.com/AleutianAI/cairn/services/goals/observability"
	"github.com/AleutianAI/cairn/services/goals/routes"
	"github.com/AleutianAI/cairn/services/goals/store"
	badgerstore "github.com/AleutianAI/cairn/services/goals/store/badger"
	"github.com/AleutianAI/cairn/services/goals/store/sqlite"
	"github.com/AleutianAI/cairn/services/goals/tracker"
)

// ServiceName tags traces, logs and metrics.
const ServiceName = "cairn"

// Store backends accepted by Config.StoreBackend.
const (
	BackendBadger = "badger"
	BackendSQLite = "sqlite"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Service defines the lifecycle of the goal tracking service.
//
// # Thread Safety
//
// Router may be used concurrently. Run or Serve is called at most once.
// Shutdown may be called from any goroutine and more than once.
type Service interface {
	// Run listens on the configured port and blocks until the server stops.
	// Returns nil after a clean Shutdown.
	Run() error

	// Serve accepts connections on ln until Shutdown.
	Serve(ln net.Listener) error

	// Router returns the configured Gin router, mainly for tests.
	Router() *gin.Engine

	// Shutdown stops the HTTP server and releases every resource.
	Shutdown(ctx context.Context) error
}

// =============================================================================
// Configuration
// =============================================================================

// Config holds the service configuration. Zero values take the defaults
// listed on each field.
type Config struct {
	// Port for the HTTP server. Default: 12310.
	Port int

	// GinMode is "debug", "release" or "test". Default: gin's current mode.
	GinMode string

	// StoreBackend is "badger" or "sqlite". Default: "badger".
	StoreBackend string

	// StorePath is the badger directory or sqlite file. Empty with the badger
	// backend runs in memory.
	StorePath string

	// JWTSecret signs session tokens. Required, at least 32 bytes.
	JWTSecret string

	// TokenTTL is the session lifetime. Default: 7 days.
	TokenTTL time.Duration

	// BcryptCost for password hashes. Default: bcrypt.DefaultCost.
	BcryptCost int

	// OTelEndpoint is the OTLP gRPC collector. Empty disables export.
	OTelEndpoint string

	// CascadeDeletes removes weeks and reflections with their goal.
	CascadeDeletes bool

	// SweepConcurrency bounds the reflections feed fan-out. Default: 4.
	SweepConcurrency int

	// AuthRatePerMinute and AuthBurst throttle signup and login per client
	// IP. Default: 10 per minute, burst 5. A negative rate disables it.
	AuthRatePerMinute int
	AuthBurst         int

	// AuditLogPath enables the hash-chained audit file. It takes precedence
	// over ServiceOptions.AuditLogger.
	AuditLogPath string

	// Logger receives service logs. Default: logging.Default().
	Logger *logging.Logger
}

func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 12310
	}
	if cfg.StoreBackend == "" {
		cfg.StoreBackend = BackendBadger
	}
	cfg.StoreBackend = strings.ToLower(strings.TrimSpace(cfg.StoreBackend))
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 7 * 24 * time.Hour
	}
	if cfg.SweepConcurrency <= 0 {
		cfg.SweepConcurrency = 4
	}
	if cfg.AuthRatePerMinute == 0 {
		cfg.AuthRatePerMinute = 10
	}
	if cfg.AuthBurst <= 0 {
		cfg.AuthBurst = 5
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return cfg
}

// =============================================================================
// Store Construction
// =============================================================================

// OpenStore opens the configured backend.
//
// # Inputs
//
//   - backend: "badger" or "sqlite".
//   - path: Directory (badger) or file (sqlite). Empty badger path is in-memory.
//   - logger: Receives backend logs. May be nil.
//
// # Outputs
//
//   - store.Store: Caller owns it and must Close it.
//   - error: Unknown backend or open failure.
func OpenStore(ctx context.Context, backend, path string, logger *logging.Logger) (store.Store, error) {
	switch backend {
	case BackendBadger, "":
		if path == "" {
			return badgerstore.OpenInMemory()
		}
		cfg := badgerstore.DefaultConfig(path)
		if logger != nil {
			cfg.Logger = logger.Slog()
		}
		return badgerstore.Open(cfg)
	case BackendSQLite:
		return sqlite.Open(ctx, path)
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}

// =============================================================================
// Service Implementation
// =============================================================================

type service struct {
	config Config
	opts   extensions.ServiceOptions
	logger *logging.Logger

	store    store.Store
	identity *identity.Provider
	tracker  *tracker.Tracker
	metrics  *observability.Metrics
	registry *prometheus.Registry
	router   *gin.Engine

	chain         *audit.ChainLogger
	unsubscribe   func()
	tracerCleanup func(context.Context)

	mu          sync.Mutex
	server      *http.Server
	cleanupOnce sync.Once
}

var _ Service = (*service)(nil)

// New builds the service and every dependency it owns.
//
// # Description
//
// Opens the store, starts the identity provider, registers metrics and
// builds the router. On any failure everything already opened is released.
//
// # Inputs
//
//   - cfg: Service configuration. JWTSecret is required.
//   - opts: Extension points. Nil uses extensions.DefaultOptions().
//
// # Outputs
//
//   - Service: Ready to Run.
//   - error: Non-nil if a dependency could not be initialized.
func New(cfg Config, opts *extensions.ServiceOptions) (Service, error) {
	s := &service{config: applyConfigDefaults(cfg)}
	s.logger = s.config.Logger

	if opts != nil {
		s.opts = *opts
	} else {
		s.opts = extensions.DefaultOptions()
	}
	if s.opts.AuditLogger == nil {
		s.opts.AuditLogger = &extensions.NopAuditLogger{}
	}

	if err := s.init(); err != nil {
		s.cleanup()
		return nil, err
	}
	return s, nil
}

func (s *service) init() error {
	if s.config.OTelEndpoint != "" {
		cleanup, err := s.initTracer()
		if err != nil {
			return fmt.Errorf("failed to initialize tracer: %w", err)
		}
		s.tracerCleanup = cleanup
	}

	s.registry = prometheus.NewRegistry()
	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	s.metrics = observability.NewMetrics(s.registry)

	st, err := OpenStore(context.Background(), s.config.StoreBackend, s.config.StorePath, s.logger)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	s.store = st

	if s.config.AuditLogPath != "" {
		chain, err := audit.Open(s.config.AuditLogPath)
		if err != nil {
			return fmt.Errorf("failed to open audit log: %w", err)
		}
		s.chain = chain
		s.opts.AuditLogger = chain
	}

	provider, err := identity.New(st, identity.Config{
		Secret:     s.config.JWTSecret,
		Issuer:     ServiceName,
		TokenTTL:   s.config.TokenTTL,
		BcryptCost: s.config.BcryptCost,
	}, identity.WithLogger(s.logger))
	if err != nil {
		return fmt.Errorf("failed to initialize identity: %w", err)
	}
	s.identity = provider
	s.unsubscribe = provider.Subscribe(s.onSessionEvent)

	s.tracker = tracker.New(st, tracker.Config{
		CascadeDeletes:   s.config.CascadeDeletes,
		SweepConcurrency: s.config.SweepConcurrency,
	},
		tracker.WithLogger(s.logger),
		tracker.WithAuditLogger(s.opts.AuditLogger),
		tracker.WithObserver(s.metrics),
	)

	s.initRouter()

	s.logger.Info("goal service initialized",
		"store", s.config.StoreBackend,
		"in_memory", s.config.StoreBackend == BackendBadger && s.config.StorePath == "",
		"tracing", s.tracerCleanup != nil,
		"audit_chain", s.chain != nil)
	return nil
}

func (s *service) onSessionEvent(ev identity.Event) {
	s.metrics.RecordSessionEvent(string(ev.Type))
	s.logger.Info("session event", "type", string(ev.Type), "user_id", ev.UserID)
	_ = s.opts.AuditLogger.Log(context.Background(), extensions.AuditEvent{
		EventType:    "session." + string(ev.Type),
		Timestamp:    ev.At,
		UserID:       ev.UserID,
		ResourceType: "session",
		Outcome:      "success",
	})
}

// initTracer installs the OTLP gRPC exporter as the global tracer provider.
//
// # Outputs
//
//   - func(context.Context): Flushes and stops the provider.
//   - error: Non-nil if the exporter cannot be created.
//
// # Limitations
//
//   - Uses an insecure gRPC connection, meant for a local collector.
func (s *service) initTracer() (func(context.Context), error) {
	ctx := context.Background()

	conn, err := grpc.NewClient(s.config.OTelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String(ServiceName)))
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))

	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	cleanup := func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceProvider.Shutdown(ctx); err != nil {
			s.logger.Error("failed to shutdown tracer provider", "error", err)
		}
		_ = conn.Close()
	}
	return cleanup, nil
}

func (s *service) initRouter() {
	if s.config.GinMode != "" {
		gin.SetMode(s.config.GinMode)
	}
	s.router = gin.New()
	s.router.Use(gin.Logger(), gin.Recovery())
	s.router.Use(otelgin.Middleware(ServiceName))
	s.router.Use(s.metrics.GinMiddleware())

	var limiter *middleware.IPRateLimiter
	if s.config.AuthRatePerMinute > 0 {
		limiter = middleware.NewIPRateLimiter(middleware.RateLimitConfig{
			PerMinute: s.config.AuthRatePerMinute,
			Burst:     s.config.AuthBurst,
		})
	}

	routes.SetupRoutes(s.router, routes.Deps{
		Tracker:     s.tracker,
		Identity:    s.identity,
		Auth:        s.opts.AuthProvider,
		AuthLimiter: limiter,
		Metrics:     promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}),
	})
}

// Run listens on the configured port. It returns nil after Shutdown.
func (s *service) Run() error {
	addr := fmt.Sprintf(":%d", s.config.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.cleanup()
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return s.Serve(ln)
}

func (s *service) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.server != nil {
		s.mu.Unlock()
		_ = ln.Close()
		return errors.New("service already serving")
	}
	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	server := s.server
	s.mu.Unlock()

	s.logger.Info("goal service listening", "addr", ln.Addr().String())
	err := server.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	s.cleanup()
	return err
}

func (s *service) Router() *gin.Engine {
	return s.router
}

// Shutdown drains in-flight requests then releases the store, the identity
// provider, the audit log and the tracer.
func (s *service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	server := s.server
	s.mu.Unlock()

	var err error
	if server != nil {
		if err = server.Shutdown(ctx); err != nil {
			err = fmt.Errorf("shutdown http server: %w", err)
		}
	}
	s.cleanup()
	return err
}

func (s *service) cleanup() {
	s.cleanupOnce.Do(func() {
		if s.unsubscribe != nil {
			s.unsubscribe()
		}
		if s.identity != nil {
			if err := s.identity.Close(); err != nil {
				s.logger.Warn("identity close error", "error", err)
			}
		}
		if err := s.opts.AuditLogger.Flush(context.Background()); err != nil {
			s.logger.Warn("audit flush error", "error", err)
		}
		if s.chain != nil {
			if err := s.chain.Close(); err != nil {
				s.logger.Warn("audit log close error", "error", err)
			}
		}
		if s.store != nil {
			if err := s.store.Close(); err != nil {
				s.logger.Warn("store close error", "error", err)
			}
		}
		if s.tracerCleanup != nil {
			s.tracerCleanup(context.Background())
		}
	})
}
