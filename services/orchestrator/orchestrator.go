// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package orchestrator provides the Movi HTTP service.
//
// This package wires every component of the assistant into one process:
// the fleet database, the session store, the language model, the safety
// validator, the turn pipeline, event fan-out, and the HTTP routes.
//
// # Usage
//
//	cfg := orchestrator.Config{Port: 12210}
//	svc, err := orchestrator.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := svc.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Tests inject fakes with the Option functions, e.g. WithLLMClient.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/AleutianAI/movi/services/agent/events"
	"github.com/AleutianAI/movi/services/agent/nlu"
	"github.com/AleutianAI/movi/services/agent/pipeline"
	"github.com/AleutianAI/movi/services/agent/safety"
	"github.com/AleutianAI/movi/services/agent/store"
	"github.com/AleutianAI/movi/services/agent/tools"
	"github.com/AleutianAI/movi/services/fleet"
	"github.com/AleutianAI/movi/services/llm"
	"github.com/AleutianAI/movi/services/orchestrator/handlers"
	"github.com/AleutianAI/movi/services/orchestrator/middleware"
	"github.com/AleutianAI/movi/services/orchestrator/observability"
	"github.com/AleutianAI/movi/services/orchestrator/routes"
	"github.com/AleutianAI/movi/services/speech"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Service defines the contract for the Movi service.
//
// # Description
//
// Service abstracts the server lifecycle so the CLI and tests can drive it
// the same way.
//
// # Thread Safety
//
// Run blocks and must be called at most once. Router and Turns are safe to
// call at any time after New.
type Service interface {
	// Run serves HTTP until ctx is cancelled or the server fails, then shuts
	// down gracefully and releases every resource.
	Run(ctx context.Context) error

	// Router returns the configured engine for in-process testing.
	Router() *gin.Engine

	// Turns returns the turn orchestrator.
	Turns() *pipeline.Orchestrator

	// Close releases resources without serving. Run calls it on exit.
	Close() error
}

// =============================================================================
// Configuration
// =============================================================================

// Config holds service configuration.
type Config struct {
	// Port is the HTTP listen port. Default: 12210.
	Port int `yaml:"port" validate:"omitempty,min=1,max=65535"`

	// GinMode is "debug", "release" or "test". Default: release.
	GinMode string `yaml:"gin_mode" validate:"omitempty,oneof=debug release test"`

	// ShutdownTimeout bounds graceful shutdown. Default: 10s.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	LLM    llm.Config   `yaml:"llm"`
	Speech SpeechConfig `yaml:"speech"`

	Fleet    FleetConfig    `yaml:"fleet"`
	Sessions SessionsConfig `yaml:"sessions"`

	// RulesPath overrides the embedded safety policy.
	RulesPath string `yaml:"rules_path"`

	Agent     AgentConfig     `yaml:"agent"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Events    EventsConfig    `yaml:"events"`
	Security  SecurityConfig  `yaml:"security"`
	VoiceRoom VoiceRoomConfig `yaml:"voice_room"`
}

// SpeechConfig enables the voice endpoint.
type SpeechConfig struct {
	Enabled       bool `yaml:"enabled"`
	speech.Config `yaml:",inline"`
}

// FleetConfig locates the fleet database.
type FleetConfig struct {
	// DSN is a SQLite path or DSN. Default: ":memory:".
	DSN string `yaml:"dsn"`

	// Seed loads the demo data on start. An empty database is always seeded.
	Seed bool `yaml:"seed"`
}

// SessionsConfig selects the session store.
type SessionsConfig struct {
	// Backend is "memory" or "badger". Default: memory.
	Backend string `yaml:"backend" validate:"omitempty,oneof=memory badger"`

	// Path is the badger directory.
	Path string `yaml:"path"`
}

// AgentConfig tunes the turn pipeline.
type AgentConfig struct {
	HistoryLimit       int           `yaml:"history_limit" validate:"omitempty,min=1"`
	MaxConcurrentTurns int           `yaml:"max_concurrent_turns" validate:"omitempty,min=0"`
	AnalyzeTimeout     time.Duration `yaml:"analyze_timeout"`
	ToolTimeout        time.Duration `yaml:"tool_timeout"`
	CheckTimeout       time.Duration `yaml:"check_timeout"`
}

// TelemetryConfig selects the trace exporter.
type TelemetryConfig struct {
	// Exporter is "otlp", "stdout" or "none". Default: none.
	Exporter string `yaml:"exporter" validate:"omitempty,oneof=otlp stdout none"`

	// Endpoint is the OTLP gRPC collector address.
	Endpoint string `yaml:"endpoint"`

	// ServiceName is the trace resource name. Default: "movi".
	ServiceName string `yaml:"service_name"`
}

// EventsConfig forwards pipeline events to NATS when NATSURL is set.
type EventsConfig struct {
	NATSURL string `yaml:"nats_url"`
	Subject string `yaml:"subject"`
}

// SecurityConfig guards the /movi API.
type SecurityConfig struct {
	// APIKey enables bearer token auth. Empty disables auth.
	APIKey string `yaml:"-"`

	// RequestsPerSecond limits each client. Zero disables rate limiting.
	RequestsPerSecond float64 `yaml:"requests_per_second" validate:"omitempty,min=0"`
	Burst             int     `yaml:"burst" validate:"omitempty,min=0"`
}

// VoiceRoomConfig holds the credentials for voice room tokens.
type VoiceRoomConfig struct {
	URL       string `yaml:"url"`
	APIKey    string `yaml:"-"`
	APISecret string `yaml:"-"`
}

// =============================================================================
// Options
// =============================================================================

// Option configures dependencies that are normally built from Config.
type Option func(*service)

// WithLLMClient uses client instead of building one from Config.LLM.
func WithLLMClient(client llm.LLMClient) Option {
	return func(s *service) { s.llmClient = client }
}

// WithSpeech uses the given speech backends and enables the voice endpoint.
func WithSpeech(t speech.Transcriber, syn speech.Synthesizer) Option {
	return func(s *service) {
		s.transcriber = t
		s.synthesizer = syn
	}
}

// WithLogger sets the service logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *service) {
		if l != nil {
			s.logger = l
		}
	}
}

// =============================================================================
// Implementation
// =============================================================================

type service struct {
	config Config
	logger *slog.Logger

	router      *gin.Engine
	fleetDB     *fleet.DB
	sessions    store.Store
	llmClient   llm.LLMClient
	transcriber speech.Transcriber
	synthesizer speech.Synthesizer
	turns       *pipeline.Orchestrator
	emitter     *events.Emitter
	nats        *events.NATSPublisher
	metrics     *observability.Metrics
	registry    *prometheus.Registry

	tracerCleanup func(context.Context)
}

// New creates the service.
//
// # Description
//
// Builds and wires every component in dependency order. On failure the
// components created so far are released.
//
// # Inputs
//
//   - cfg: Service configuration. Zero values take defaults.
//   - opts: Dependency overrides.
//
// # Outputs
//
//   - Service: Ready to Run.
//   - error: Non-nil if a required component fails to start.
func New(cfg Config, opts ...Option) (Service, error) {
	s := &service{
		config: applyConfigDefaults(cfg),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	cleanup, err := s.initTracer()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}
	s.tracerCleanup = cleanup

	s.registry = prometheus.NewRegistry()
	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	s.metrics = observability.NewMetrics(s.registry)

	steps := []struct {
		name string
		fn   func() error
	}{
		{"fleet database", s.initFleet},
		{"session store", s.initSessions},
		{"LLM client", s.initLLMClient},
		{"speech", s.initSpeech},
		{"events", s.initEvents},
		{"turn pipeline", s.initPipeline},
	}
	for _, step := range steps {
		if err := step.fn(); err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to initialize %s: %w", step.name, err)
		}
	}

	if err := s.initRouter(); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to initialize router: %w", err)
	}
	return s, nil
}

// Run implements Service.
func (s *service) Run(ctx context.Context) error {
	defer s.Close()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("Starting Movi server", "port", s.config.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		s.logger.Info("Shutting down Movi server")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Router implements Service.
func (s *service) Router() *gin.Engine {
	return s.router
}

// Turns implements Service.
func (s *service) Turns() *pipeline.Orchestrator {
	return s.turns
}

// Close implements Service. It is safe to call more than once.
func (s *service) Close() error {
	var errs []error
	if s.nats != nil {
		errs = append(errs, s.nats.Close())
		s.nats = nil
	}
	if s.sessions != nil {
		errs = append(errs, s.sessions.Close())
		s.sessions = nil
	}
	if s.fleetDB != nil {
		errs = append(errs, s.fleetDB.Close())
		s.fleetDB = nil
	}
	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
		s.tracerCleanup = nil
	}
	return errors.Join(errs...)
}

// =============================================================================
// Initialization
// =============================================================================

func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 12210
	}
	if cfg.GinMode == "" {
		cfg.GinMode = gin.ReleaseMode
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Fleet.DSN == "" {
		cfg.Fleet.DSN = ":memory:"
	}
	if cfg.Sessions.Backend == "" {
		cfg.Sessions.Backend = "memory"
	}
	if cfg.Telemetry.Exporter == "" {
		cfg.Telemetry.Exporter = "none"
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "movi"
	}
	return cfg
}

func (s *service) initTracer() (func(context.Context), error) {
	ctx := context.Background()

	var exporter sdktrace.SpanExporter
	switch s.config.Telemetry.Exporter {
	case "none":
		return nil, nil
	case "stdout":
		exp, err := stdouttrace.New(stdouttrace.WithWriter(os.Stderr))
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout exporter: %w", err)
		}
		exporter = exp
	case "otlp":
		if s.config.Telemetry.Endpoint == "" {
			return nil, errors.New("otlp exporter requires an endpoint")
		}
		conn, err := grpc.NewClient(s.config.Telemetry.Endpoint,
			grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
		}
		exp, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
		if err != nil {
			return nil, fmt.Errorf("failed to create trace exporter: %w", err)
		}
		exporter = exp
	default:
		return nil, fmt.Errorf("unknown trace exporter %q", s.config.Telemetry.Exporter)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String(s.config.Telemetry.ServiceName)))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter))

	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	s.logger.Info("Tracing enabled", "exporter", s.config.Telemetry.Exporter)
	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceProvider.Shutdown(ctx); err != nil {
			s.logger.Error("failed to shutdown trace provider", "error", err)
		}
	}, nil
}

func (s *service) initFleet() error {
	db, err := fleet.Open(s.config.Fleet.DSN, s.logger)
	if err != nil {
		return err
	}
	s.fleetDB = db

	ctx := context.Background()
	seed := s.config.Fleet.Seed
	if !seed {
		trips, err := db.ListTrips(ctx)
		if err != nil {
			return fmt.Errorf("failed to inspect fleet database: %w", err)
		}
		seed = len(trips) == 0
	}
	if seed {
		sum, err := db.Seed(ctx)
		if err != nil {
			return fmt.Errorf("failed to seed fleet database: %w", err)
		}
		s.logger.Info("Seeded fleet database", "trips", sum.Trips, "routes", sum.Routes, "vehicles", sum.Vehicles)
	}
	return nil
}

func (s *service) initSessions() error {
	switch s.config.Sessions.Backend {
	case "memory":
		s.sessions = store.NewMemoryStore()
	case "badger":
		cfg := store.DefaultBadgerConfig(s.config.Sessions.Path)
		cfg.Logger = s.logger
		st, err := store.OpenBadgerStore(cfg)
		if err != nil {
			return err
		}
		s.sessions = st
	default:
		return fmt.Errorf("unknown session backend %q", s.config.Sessions.Backend)
	}
	s.logger.Info("Session store ready", "backend", s.config.Sessions.Backend)
	return nil
}

func (s *service) initLLMClient() error {
	if s.llmClient != nil {
		return nil
	}
	client, err := llm.New(s.config.LLM)
	if err != nil {
		return err
	}
	s.llmClient = client
	s.logger.Info("LLM client ready", "provider", s.config.LLM.Provider, "model", s.config.LLM.Model)
	return nil
}

func (s *service) initSpeech() error {
	if s.transcriber != nil || !s.config.Speech.Enabled {
		return nil
	}
	sp, err := speech.NewOpenAISpeech(s.config.Speech.Config)
	if err != nil {
		return err
	}
	s.transcriber = sp
	s.synthesizer = sp
	return nil
}

func (s *service) initEvents() error {
	s.emitter = events.NewEmitter(events.WithLogger(s.logger))
	s.emitter.Subscribe(events.LoggingHandler(s.logger, slog.LevelDebug))
	s.emitter.Subscribe(s.metrics.EventHandler())

	if s.config.Events.NATSURL == "" {
		return nil
	}
	pub, err := events.NewNATSPublisher(events.NATSConfig{
		URL:     s.config.Events.NATSURL,
		Subject: s.config.Events.Subject,
	}, s.logger)
	if err != nil {
		s.logger.Warn("NATS unavailable, events stay local", "url", s.config.Events.NATSURL, "error", err)
		return nil
	}
	s.nats = pub
	s.emitter.Subscribe(pub.Handler())
	return nil
}

func (s *service) initPipeline() error {
	policy, err := safety.LoadPolicy(s.config.RulesPath)
	if err != nil {
		return err
	}
	normalizer, err := policy.Normalizer()
	if err != nil {
		return err
	}

	registry := tools.NewRegistry()
	if err := s.fleetDB.RegisterTools(registry); err != nil {
		return err
	}

	var flagged []string
	for _, desc := range registry.Descriptors() {
		if desc.HighImpact {
			flagged = append(flagged, desc.Name)
		}
	}
	validator, err := safety.NewValidator(policy.HighImpact, s.fleetDB.Checkers(), &safety.Config{
		CheckTimeout:      s.config.Agent.CheckTimeout,
		Logger:            s.logger,
		HighImpactActions: flagged,
	})
	if err != nil {
		return err
	}
	dispatcher := tools.NewDispatcher(registry, normalizer, &tools.DispatcherOptions{
		DefaultTimeout: s.config.Agent.ToolTimeout,
		Logger:         s.logger,
	})

	analyzerOpts := []nlu.AnalyzerOption{nlu.WithAnalyzerLogger(s.logger)}
	if s.config.Agent.AnalyzeTimeout > 0 {
		analyzerOpts = append(analyzerOpts, nlu.WithAnalyzeTimeout(s.config.Agent.AnalyzeTimeout))
	}
	if vision, ok := s.llmClient.(llm.VisionClient); ok {
		analyzerOpts = append(analyzerOpts, nlu.WithVision(vision))
	}

	turns, err := pipeline.New(pipeline.Dependencies{
		Store:     s.sessions,
		Analyzer:  nlu.NewAnalyzer(s.llmClient, registry, analyzerOpts...),
		Validator: validator,
		Executor:  dispatcher,
		Replier:   nlu.NewSynthesizer(s.llmClient, s.logger),
	},
		pipeline.WithEmitter(s.emitter),
		pipeline.WithLogger(s.logger),
		pipeline.WithHistoryLimit(s.config.Agent.HistoryLimit),
		pipeline.WithMaxConcurrentTurns(s.config.Agent.MaxConcurrentTurns),
	)
	if err != nil {
		return err
	}
	s.turns = turns
	s.logger.Info("Turn pipeline ready", "tools", registry.Count(), "high_impact_rules", len(policy.HighImpact))
	return nil
}

func (s *service) initRouter() error {
	gin.SetMode(s.config.GinMode)
	s.router = gin.New()
	s.router.Use(gin.Recovery())
	s.router.Use(otelgin.Middleware(s.config.Telemetry.ServiceName))

	deps := routes.Deps{
		Turns:          s.turns,
		Transcriber:    s.transcriber,
		Synthesizer:    s.synthesizer,
		VoiceHub:       handlers.NewVoiceHub(),
		Metrics:        s.metrics,
		MetricsHandler: promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}),
		Chat:           handlers.DefaultChatOptions(),
	}

	if key := strings.TrimSpace(s.config.Security.APIKey); key != "" {
		provider, err := middleware.NewAPIKeyProvider([]byte(key))
		if err != nil {
			return err
		}
		deps.Auth = provider
	}
	if s.config.Security.RequestsPerSecond > 0 {
		deps.RateLimiter = middleware.NewRateLimiter(middleware.RateLimitConfig{
			RequestsPerSecond: s.config.Security.RequestsPerSecond,
			Burst:             s.config.Security.Burst,
		})
	}
	if room := s.config.VoiceRoom; room.APIKey != "" && room.APISecret != "" {
		issuer, err := handlers.NewVoiceTokenIssuer(handlers.VoiceTokenConfig{
			URL:       room.URL,
			APIKey:    room.APIKey,
			APISecret: []byte(room.APISecret),
		})
		if err != nil {
			return err
		}
		deps.VoiceTokens = issuer
	}

	routes.SetupRoutes(s.router, deps)
	return nil
}
