package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/sync/errgroup"

	"finpasser/internal/audit"
	"finpasser/internal/broker"
	"finpasser/internal/config"
	"finpasser/internal/constants"
	"finpasser/internal/dedup"
	"finpasser/internal/delivery"
	"finpasser/internal/logger"
	"finpasser/internal/query"
	"finpasser/internal/reconcile"
	"finpasser/internal/record"
	"finpasser/pkg/bootstrap"
	"finpasser/pkg/health"
	"finpasser/pkg/metrics"
	"finpasser/pkg/migrations"
	"finpasser/pkg/tracing"
)

type App struct {
	*bootstrap.Base
	dbConnector     *bootstrap.DatabaseConnector
	db              *sql.DB
	redis           *redis.Client
	mongo           *mongo.Client
	deliveryHandler broker.HandlerFunc
	tracerProvider  *tracing.TracerProvider
	server          *http.Server
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName(constants.ServiceRouter)
	}
	return &App{
		Base:        bootstrap.NewBase(cfg, log),
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	tp, err := tracing.Init(a.Config.Tracing, constants.ServiceRouter)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

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

	if err := a.InitBroker(constants.ServiceRouter); err != nil {
		return fmt.Errorf("failed to initialize broker: %w", err)
	}

	store := record.NewPostgresStore(a.db, constants.ServiceRouter)

	var recorder *audit.MongoRecorder
	var sink reconcile.AuditSink
	if a.mongo != nil {
		cfg := a.Config.Database.MongoDB
		dbName := cfg.Database
		if dbName == "" {
			dbName = constants.DefaultMongoDBName
		}
		db := a.mongo.Database(dbName)
		if err := migrations.EnsureAuditCollection(ctx, db, cfg.Collection); err != nil {
			return fmt.Errorf("failed to initialize audit trail: %w", err)
		}
		recorder = audit.NewMongoRecorder(db, cfg.Collection)
		sink = recorder
	}
	reconciler := reconcile.NewReconciler(store, sink, a.Logger, constants.ServiceRouter)

	kafkaCfg := a.Config.Broker.Kafka
	a.deliveryHandler = delivery.NewHandler(reconciler, a.Producer, kafkaCfg.AckTopic, a.Logger, constants.ServiceRouter).Handle
	if a.redis != nil {
		repo := dedup.NewCircuitBreakerRepository(dedup.NewRepository(a.redis), a.Config.CircuitBreaker)
		cache := dedup.NewCache(repo, a.Config.Database.Redis.TTL, a.Logger, constants.ServiceRouter)
		a.deliveryHandler = cache.Wrap(kafkaCfg.UploadTopic, a.deliveryHandler)
	}

	router := bootstrap.NewRouter(a.Config.Server, a.Logger, constants.ServiceRouter)

	healthRegistry := health.NewCheckerRegistry()
	healthRegistry.Register(health.NewPostgreSQLChecker(a.db))
	healthRegistry.Register(health.NewKafkaChecker(kafkaCfg.Brokers))
	if a.redis != nil {
		healthRegistry.RegisterOptional(health.NewRedisChecker(a.redis))
	}
	if a.mongo != nil {
		healthRegistry.RegisterOptional(health.NewMongoDBChecker(a.mongo))
	}
	router.GET("/health", healthRegistry.Handler())

	queryHandler := query.NewHandler(store, nil, nil, a.Logger)
	if recorder != nil {
		queryHandler.WithAudit(recorder)
	}
	queryHandler.RegisterRoutes(router)

	a.server = bootstrap.NewHTTPServer(a.Config.Server, router)
	return nil
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
		a.Logger.InfowCtx(gCtx, "Starting upload event consumer", "topic", a.Config.Broker.Kafka.UploadTopic)
		return a.Consumer.Consume(gCtx, a.Config.Broker.Kafka.UploadTopic, a.deliveryHandler)
	})

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
