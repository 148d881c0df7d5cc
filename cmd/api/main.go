package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/leadgate/leadgate/internal/config"
	"github.com/leadgate/leadgate/internal/entity"
	"github.com/leadgate/leadgate/internal/infra/database"
	"github.com/leadgate/leadgate/internal/infra/http/handlers"
	"github.com/leadgate/leadgate/internal/infra/http/middleware"
	"github.com/leadgate/leadgate/internal/infra/integration/hubspot"
	"github.com/leadgate/leadgate/internal/infra/queue"
	"github.com/leadgate/leadgate/internal/infra/ratelimit"
	"github.com/leadgate/leadgate/internal/logging"
	"github.com/leadgate/leadgate/internal/usecase"
)

func main() {
	godotenv.Load()

	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Rate-limit backend. Config validation already guarantees Redis in
	// production; the in-memory store only serves single-instance setups.
	var rdb *redis.Client
	var limitStore usecase.RateLimitStoreInterface
	if cfg.RateLimit.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RateLimit.RedisAddr,
			Password: cfg.RateLimit.RedisPassword,
			DB:       cfg.RateLimit.RedisDB,
		})
		defer rdb.Close()
		limitStore = ratelimit.NewRedisStore(rdb)
		logger.Info("rate limiting with Redis backend", zap.String("addr", cfg.RateLimit.RedisAddr))
	} else {
		memStore := ratelimit.NewMemoryStore()
		memStore.StartJanitor(ctx, 10*time.Minute)
		limitStore = memStore
		logger.Warn("Redis not configured, using in-memory rate limiting (single instance only)")
	}
	limitStore = &instrumentedRateLimitStore{next: limitStore}

	// Optional needs_sync hand-off queue.
	var rabbitMQ *queue.RabbitMQ
	var producer usecase.QueueProducerInterface
	if cfg.Queue.Enabled {
		rabbitMQ, err = queue.NewRabbitMQ(cfg.Queue.URL)
		if err != nil {
			logger.Fatal("RabbitMQ init failed", zap.Error(err))
		}
		defer rabbitMQ.Close()
		producer = queue.NewProducer(rabbitMQ.Conn, rabbitMQ.Ch)
	}

	leadRepo := database.NewSupabaseLeadRepository(
		cfg.Supabase.URL,
		cfg.Supabase.ServiceRoleKey,
		time.Duration(cfg.Supabase.TimeoutSeconds)*time.Second,
	)
	crmClient := hubspot.NewClient(
		cfg.HubSpot.BaseURL,
		cfg.HubSpot.Token,
		time.Duration(cfg.HubSpot.TimeoutSeconds)*time.Second,
	)
	syncEngine := &instrumentedSyncEngine{
		next: usecase.NewHubSpotSyncEngine(crmClient, logger),
	}

	submitContactUC := usecase.NewSubmitContactUseCase(
		leadRepo,
		limitStore,
		syncEngine,
		producer,
		logger,
		cfg.RateLimit.Limit,
		cfg.RateLimit.Window,
	)

	contactHandler := handlers.NewContactHandler(submitContactUC, logger)

	var rabbitConn *amqp091.Connection
	if rabbitMQ != nil {
		rabbitConn = rabbitMQ.Conn
	}
	healthHandler := handlers.NewHealthHandler(rdb, rabbitConn, cfg.Supabase.URL, cfg.HubSpot.Token != "")

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Metrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "X-Correlation-Id"},
	}))

	r.Post("/contact", contactHandler.Handle)
	r.Get("/health", healthHandler.Handle)
	r.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port), zap.String("environment", cfg.Environment))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
}

// instrumentedSyncEngine records CRM sync outcomes without coupling the
// usecase layer to prometheus.
type instrumentedSyncEngine struct {
	next usecase.SyncEngineInterface
}

func (e *instrumentedSyncEngine) Sync(ctx context.Context, lead *entity.Lead) usecase.SyncResult {
	result := e.next.Sync(ctx, lead)
	middleware.RecordCRMSync(result.Status)
	return result
}

// instrumentedRateLimitStore surfaces backend failures as a counter; the
// pipeline fails open on them, so the metric is the only operator signal.
type instrumentedRateLimitStore struct {
	next usecase.RateLimitStoreInterface
}

func (s *instrumentedRateLimitStore) CheckAndIncrement(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	allowed, err := s.next.CheckAndIncrement(ctx, key, limit, window)
	if err != nil {
		middleware.RecordRateLimitBackendError()
	}
	return allowed, err
}
