package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/vaidashi/coffee-queue/internal/clients"
	"github.com/vaidashi/coffee-queue/internal/config"
	"github.com/vaidashi/coffee-queue/internal/database"
	"github.com/vaidashi/coffee-queue/internal/outbox"
	"github.com/vaidashi/coffee-queue/internal/repository"
	"github.com/vaidashi/coffee-queue/internal/service"
	"github.com/vaidashi/coffee-queue/internal/store"
	"github.com/vaidashi/coffee-queue/internal/store/memory"
	"github.com/vaidashi/coffee-queue/pkg/circuitbreaker"
	"github.com/vaidashi/coffee-queue/pkg/kafka"
	"github.com/vaidashi/coffee-queue/pkg/logger"
	"github.com/vaidashi/coffee-queue/pkg/middleware"
	"github.com/vaidashi/coffee-queue/pkg/rabbitmq"
)

// routePrefixes mounts every route at the root and under /api
var routePrefixes = []string{"", "/api"}

type Server struct {
	config              *config.Config
	logger              logger.Logger
	router              *mux.Router
	handler             http.Handler
	httpServer          *http.Server
	db                  *database.Database
	orderStore          store.OrderStore
	storeBreaker        *circuitbreaker.CircuitBreaker
	orderService        *service.OrderService
	outboxProcessor     *outbox.Processor
	kafkaProducer       *kafka.Producer
	rabbitConn          rabbitmq.Connection
	rateLimiter         *middleware.RateLimiterMiddleware
	endpointRateLimiter *middleware.EndpointRateLimiterMiddleware
	gracefulDegradation *middleware.GracefulDegradation
}

// NewServer wires the order store selected by cfg, the event pipeline and the HTTP routes.
// service options are passed through to the order service.
func NewServer(cfg *config.Config, logger logger.Logger, opts ...service.Option) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Server{
		config: cfg,
		logger: logger,
		router: mux.NewRouter(),
	}

	if err := s.openStore(); err != nil {
		return nil, err
	}

	s.outboxProcessor = outbox.NewProcessor(outbox.DefaultProcessorConfig(), logger)
	s.outboxProcessor.RegisterHandler(outbox.AllEvents, outbox.NewLoggingHandler(logger))

	if cfg.Kafka.Enabled {
		producer, err := kafka.NewProducer(cfg.Kafka.Brokers, logger)
		if err != nil {
			s.closeStore()
			return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
		}
		s.kafkaProducer = producer
		s.outboxProcessor.RegisterHandler(outbox.AllEvents, outbox.NewKafkaHandler(producer, cfg.Kafka.OrdersTopic, logger))
	}

	if cfg.RabbitMQ.Enabled {
		conn, err := rabbitmq.Dial(cfg.RabbitMQ.URL)
		if err != nil {
			// notifications are best effort
			logger.Error("Failed to connect to RabbitMQ, notifications disabled", "error", err)
		} else {
			s.rabbitConn = conn
			publisher := rabbitmq.NewFanoutPublisher(conn, cfg.RabbitMQ.Exchange, logger)
			s.outboxProcessor.RegisterHandler(outbox.AllEvents, outbox.NewRabbitMQHandler(publisher, logger))
		}
	}

	opts = append([]service.Option{service.WithRetention(cfg.RetentionWindow)}, opts...)
	s.orderService = service.NewOrderService(s.orderStore, s.outboxProcessor, logger, opts...)

	s.gracefulDegradation = middleware.NewGracefulDegradation(logger, essentialPaths()...)
	if cfg.RateLimit.Enabled {
		s.rateLimiter = middleware.NewRateLimiterMiddleware(&middleware.RateLimiterConfig{
			GlobalMaxTokens: 200,
			GlobalMaxRate:   100,
			GlobalMinRate:   20,
			GlobalThreshold: 0.75,
			IPMaxTokens:     cfg.RateLimit.IPMaxTokens,
			IPRefillRate:    cfg.RateLimit.IPRefillRate,
		}, logger)

		s.endpointRateLimiter = middleware.NewEndpointRateLimiterMiddleware(logger)
		for _, prefix := range routePrefixes {
			s.endpointRateLimiter.SetLimit(http.MethodPost+":"+prefix+"/orders", 10, 1)
		}
	}

	s.setupRoutes()
	s.handler = middleware.CORS(middleware.DefaultCORSConfig(), s.router)
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.outboxProcessor.Start()
	return s, nil
}

// openStore connects the backend named by the config
func (s *Server) openStore() error {
	switch s.config.StoreBackend {
	case config.BackendPostgres, config.BackendSQLite:
		db, err := database.New(s.config, s.logger)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := db.RunMigrations(); err != nil {
			db.Close()
			return fmt.Errorf("failed to run database migrations: %w", err)
		}
		s.db = db
		s.orderStore = repository.NewOrderRepository(db, s.logger)

	case config.BackendAirtable:
		breaker := circuitbreaker.NewCircuitBreaker(circuitbreaker.CircuitBreakerConfig{
			FailureThreshold: 5,
			ResetTimeout:     30 * time.Second,
			HalfOpenMaxCalls: 2,
		})
		client, err := clients.NewAirtableClient(s.config.Airtable, breaker, s.logger)
		if err != nil {
			return err
		}
		s.storeBreaker = breaker
		s.orderStore = client

	default:
		s.orderStore = memory.New()
	}

	s.logger.Info("Order store ready", "backend", s.config.StoreBackend)
	return nil
}

func (s *Server) closeStore() {
	if s.db == nil {
		return
	}
	if err := s.db.Close(); err != nil {
		s.logger.Error("Error closing database connection", "error", err)
	}
}

// Handler returns the fully wrapped HTTP handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start starts the HTTP server
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)

	// drain queued events before the brokers go away
	s.outboxProcessor.Stop()

	if s.kafkaProducer != nil {
		if err := s.kafkaProducer.Close(); err != nil {
			s.logger.Error("Error closing Kafka producer", "error", err)
		}
	}

	if s.rabbitConn != nil {
		if err := s.rabbitConn.Close(); err != nil {
			s.logger.Error("Error closing RabbitMQ connection", "error", err)
		}
	}

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}

	s.closeStore()
	return err
}

func essentialPaths() []string {
	var paths []string
	for _, prefix := range routePrefixes {
		paths = append(paths, prefix+"/orders", prefix+"/health", prefix+"/admin")
	}
	return paths
}

// setupRoutes configures all the routes for our API
func (s *Server) setupRoutes() {
	s.router.Use(s.loggingMiddleware)
	if s.rateLimiter != nil {
		s.router.Use(s.rateLimiter.Middleware)
		s.router.Use(s.endpointRateLimiter.Middleware)
	}
	s.router.Use(s.gracefulDegradation.Middleware)

	for _, prefix := range routePrefixes {
		r := s.router

		r.HandleFunc(prefix+"/health", s.healthCheckHandler).Methods(http.MethodGet)

		r.HandleFunc(prefix+"/orders", s.getOrdersHandler).Methods(http.MethodGet)
		r.HandleFunc(prefix+"/orders", s.createOrderHandler).Methods(http.MethodPost)
		r.HandleFunc(prefix+"/orders", s.updateOrderStatusHandler).Methods(http.MethodPatch)
		r.HandleFunc(prefix+"/orders", s.deleteOrderHandler).Methods(http.MethodDelete)
		r.HandleFunc(prefix+"/queue", s.getQueueHandler).Methods(http.MethodGet)

		// Admin API for monitoring and management
		r.HandleFunc(prefix+"/admin/circuit-breaker", s.getCircuitBreakerStatusHandler).Methods(http.MethodGet)
		r.HandleFunc(prefix+"/admin/circuit-breaker/reset", s.resetCircuitBreakerHandler).Methods(http.MethodPost)
		r.HandleFunc(prefix+"/admin/rate-limits", s.getRateLimitsHandler).Methods(http.MethodGet)
		r.HandleFunc(prefix+"/admin/rate-limits", s.setEndpointRateLimitHandler).Methods(http.MethodPost)
		r.HandleFunc(prefix+"/admin/events", s.getEventMetricsHandler).Methods(http.MethodGet)
	}
}

// Middleware for logging requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := middleware.NewStatusCodeWriter(w)

		next.ServeHTTP(sw, r)

		s.logger.Info("Request processed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.StatusCode,
			"duration", time.Since(start),
			"remoteAddr", r.RemoteAddr,
		)
	})
}
