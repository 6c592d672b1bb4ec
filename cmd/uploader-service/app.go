package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/sync/errgroup"

	"finpasser/internal/acknowledgment"
	"finpasser/internal/audit"
	"finpasser/internal/blob"
	"finpasser/internal/broker"
	"finpasser/internal/config"
	"finpasser/internal/constants"
	"finpasser/internal/dedup"
	"finpasser/internal/ingress"
	"finpasser/internal/logger"
	"finpasser/internal/monitor"
	"finpasser/internal/query"
	"finpasser/internal/reconcile"
	"finpasser/internal/record"
	"finpasser/pkg/bootstrap"
	"finpasser/pkg/health"
	"finpasser/pkg/metrics"
	"finpasser/pkg/migrations"
	"finpasser/pkg/ratelimit"
	"finpasser/pkg/tracing"
)

type App struct {
	*bootstrap.Base
	dbConnector    *bootstrap.DatabaseConnector
	db             *sql.DB
	redis          *redis.Client
	mongo          *mongo.Client
	blobs          *blob.CircuitBreakerStore
	ackHandler     broker.HandlerFunc
	monitor        *monitor.Monitor
	tracerProvider *tracing.TracerProvider
	server         *http.Server
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName(constants.ServiceUploader)
	}
	return &App{
		Base:        bootstrap.NewBase(cfg, log),
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	tp, err := tracing.Init(a.Config.Tracing, constants.ServiceUploader)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	metrics.RegisterIngressMetrics()
	metrics.RegisterBrokerMetrics()
	metrics.RegisterReconcileMetrics()
	metrics.RegisterDatabaseMetrics()
	if a.Config.CircuitBreaker.Enabled {
		metrics.RegisterCircuitBreakerMetrics()
	}

	if a.db, err = a.dbConnector.InitPostgreSQL(ctx); err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	if a.redis, err = a.dbConnector.InitRedis(ctx); err != nil {
		return fmt.Errorf("failed to initialize Redis: %w", err)
	}
	if a.mongo, err = a.dbConnector.InitMongoDB(ctx); err != nil {
		return fmt.Errorf("failed to initialize MongoDB: %w", err)
	}

	if err := a.initBlobStore(ctx); err != nil {
		return fmt.Errorf("failed to initialize blob store: %w", err)
	}

	if err := a.InitBroker(constants.ServiceUploader); err != nil {
		return fmt.Errorf("failed to initialize broker: %w", err)
	}

	store := record.NewPostgresStore(a.db, constants.ServiceUploader)

	recorder, err := a.initAudit(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize audit trail: %w", err)
	}
	var sink reconcile.AuditSink
	if recorder != nil {
		sink = recorder
	}
	reconciler := reconcile.NewReconciler(store, sink, a.Logger, constants.ServiceUploader)

	a.ackHandler = acknowledgment.NewHandler(reconciler, a.Logger).Handle
	if a.redis != nil {
		repo := dedup.NewCircuitBreakerRepository(dedup.NewRepository(a.redis), a.Config.CircuitBreaker)
		cache := dedup.NewCache(repo, a.Config.Database.Redis.TTL, a.Logger, constants.ServiceUploader)
		a.ackHandler = cache.Wrap(a.Config.Broker.Kafka.AckTopic, a.ackHandler)
	}

	if a.Config.Monitor.Enabled {
		a.monitor = monitor.New(store, a.Config.Monitor, a.Logger)
	}

	extractor, err := ingress.NewExtractor(a.Config.Ingress.BusinessID)
	if err != nil {
		return fmt.Errorf("failed to initialize business id extractor: %w", err)
	}
	service := ingress.NewService(store, a.blobs, a.Producer, extractor, a.Config.Broker.Kafka.UploadTopic, a.Logger, constants.ServiceUploader)

	queryHandler := query.NewHandler(store, a.blobs, &query.StatsStatuses{
		Pending: record.StatusSentToRouter,
		Done:    record.StatusDelivered,
	}, a.Logger)
	if recorder != nil {
		queryHandler.WithAudit(recorder)
	}

	a.initHTTPServer(ctx, ingress.NewHandler(service, a.Config.Ingress.MaxUploadBytes, a.Logger), queryHandler)
	return nil
}

func (a *App) initBlobStore(ctx context.Context) error {
	s3Store, err := blob.NewS3Store(ctx, a.Config.Storage, a.Logger)
	if err != nil {
		return err
	}
	if err := s3Store.EnsureBucket(ctx); err != nil {
		return err
	}
	a.blobs = blob.NewCircuitBreakerStore(s3Store, a.Config.CircuitBreaker)
	return nil
}

func (a *App) initAudit(ctx context.Context) (*audit.MongoRecorder, error) {
	if a.mongo == nil {
		return nil, nil
	}
	cfg := a.Config.Database.MongoDB
	dbName := cfg.Database
	if dbName == "" {
		dbName = constants.DefaultMongoDBName
	}
	db := a.mongo.Database(dbName)
	if err := migrations.EnsureAuditCollection(ctx, db, cfg.Collection); err != nil {
		return nil, err
	}
	return audit.NewMongoRecorder(db, cfg.Collection), nil
}

func (a *App) initHTTPServer(ctx context.Context, uploads *ingress.Handler, reads *query.Handler) {
	router := bootstrap.NewRouter(a.Config.Server, a.Logger, constants.ServiceUploader)

	healthRegistry := health.NewCheckerRegistry()
	healthRegistry.Register(health.NewPostgreSQLChecker(a.db))
	healthRegistry.Register(health.NewKafkaChecker(a.Config.Broker.Kafka.Brokers))
	healthRegistry.Register(health.NewBlobChecker(a.blobs))
	if a.redis != nil {
		healthRegistry.RegisterOptional(health.NewRedisChecker(a.redis))
	}
	if a.mongo != nil {
		healthRegistry.RegisterOptional(health.NewMongoDBChecker(a.mongo))
	}
	router.GET("/health", healthRegistry.Handler())

	if a.Config.Ingress.RateLimit.Enabled {
		uploads.RegisterRoutes(router, ratelimit.RateLimitMiddleware(ctx, a.Config.Ingress.RateLimit))
	} else {
		uploads.RegisterRoutes(router)
	}
	reads.RegisterRoutes(router)

	a.server = bootstrap.NewHTTPServer(a.Config.Server, router)
}

func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.InfowCtx(ctx, "HTTP server starting", "port", a.Config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gCtx), constants.ShutdownTimeout)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		a.Logger.InfowCtx(gCtx, "Starting delivery ack consumer", "topic", a.Config.Broker.Kafka.AckTopic)
		return a.Consumer.Consume(gCtx, a.Config.Broker.Kafka.AckTopic, a.ackHandler)
	})

	if a.monitor != nil {
		g.Go(func() error {
			return a.monitor.Run(gCtx)
		})
	}

	return g.Wait()
}

func (a *App) Shutdown(ctx context.Context) error {
	additionalShutdown := func(ctx context.Context) []error {
		var errs []error

		if a.tracerProvider != nil {
			if err := a.tracerProvider.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
			}
		}

		errs = append(errs, a.dbConnector.ShutdownDatabases(ctx, a.redis, a.db, a.mongo)...)

		return errs
	}

	return a.Base.Shutdown(ctx, additionalShutdown)
}
