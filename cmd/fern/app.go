package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/Ramsey-B/fern/config"
	auditrepo "github.com/Ramsey-B/fern/internal/repositories/audit"
	profilerepo "github.com/Ramsey-B/fern/internal/repositories/profile"
	"github.com/Ramsey-B/fern/pkg/aggregation"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/dates"
	"github.com/Ramsey-B/fern/pkg/encryption"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/fieldmapping"
	"github.com/Ramsey-B/fern/pkg/graph"
	"github.com/Ramsey-B/fern/pkg/grouping"
	"github.com/Ramsey-B/fern/pkg/health"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/merging"
	"github.com/Ramsey-B/fern/pkg/middleware"
	"github.com/Ramsey-B/fern/pkg/processor"
	"github.com/Ramsey-B/fern/pkg/redis"
	aggregationroutes "github.com/Ramsey-B/fern/pkg/routes/aggregation"
	groupingroutes "github.com/Ramsey-B/fern/pkg/routes/grouping"
	mappingroutes "github.com/Ramsey-B/fern/pkg/routes/mapping"
	profileroutes "github.com/Ramsey-B/fern/pkg/routes/profile"
	validationroutes "github.com/Ramsey-B/fern/pkg/routes/validation"
	"github.com/Ramsey-B/fern/pkg/schema"
	"github.com/Ramsey-B/fern/pkg/startup"
)

const (
	depDatabase   = "database"
	depMigrations = "migrations"
	depRedis      = "redis"
	depGraph      = "graph"
	depProducer   = "kafka-producer"
	depServices   = "services"
	depConsumer   = "kafka-consumer"
	depHTTP       = "http"
)

// app owns every long-lived component. Components are created by startup
// dependencies in dependency order.
type app struct {
	cfg     *config.Config
	logger  ectologger.Logger
	startup *startup.Startup
	health  *health.Checker

	db       database.DB
	cache    *redis.Client
	graph    *graph.Client
	producer *kafka.Producer
	consumer *kafka.Consumer
	server   *http.Server
}

func newApp(cfg *config.Config, logger ectologger.Logger) *app {
	a := &app{
		cfg:     cfg,
		logger:  logger,
		startup: startup.NewStartup(logger, cfg.StartupMaxAttempts),
		health:  health.NewChecker(cfg.Version),
	}

	serviceDeps := []string{depDatabase, depMigrations}

	a.startup.AddDependency(startup.Func{
		Name:    depDatabase,
		OnStart: a.connectDatabase,
		OnStop: func(context.Context) error {
			return a.db.Close()
		},
	})
	a.startup.AddDependency(startup.Func{
		Name:     depMigrations,
		Requires: []string{depDatabase},
		OnStart: func(context.Context) error {
			migrations := database.NewMigrationService(logger, &database.MigrationConfig{
				MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
				Version:             cfg.DatabaseMigrationVersion,
				Force:               cfg.DatabaseMigrationForce,
				AutoRollback:        cfg.DatabaseMigrationAutoRollback,
			})
			return migrations.Migrate(cfg.DatabaseName, a.db)
		},
	})

	if cfg.RedisEnabled {
		serviceDeps = append(serviceDeps, depRedis)
		a.startup.AddDependency(startup.Func{
			Name:    depRedis,
			OnStart: a.connectRedis,
			OnStop: func(context.Context) error {
				return a.cache.Close()
			},
		})
	}

	if cfg.GraphEnabled {
		serviceDeps = append(serviceDeps, depGraph)
		a.startup.AddDependency(startup.Func{
			Name:    depGraph,
			OnStart: a.connectGraph,
			OnStop: func(ctx context.Context) error {
				return a.graph.Close(ctx)
			},
		})
	}

	if cfg.KafkaProducerEnabled {
		serviceDeps = append(serviceDeps, depProducer)
		a.startup.AddDependency(startup.Func{
			Name: depProducer,
			OnStart: func(context.Context) error {
				a.producer = kafka.NewProducer(kafka.ProducerConfig{
					Brokers:      cfg.KafkaBrokers,
					Topic:        cfg.KafkaEventsTopic,
					BatchSize:    cfg.KafkaBatchSize,
					BatchTimeout: time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
					RequiredAcks: cfg.KafkaRequiredAcks,
					Compression:  cfg.KafkaCompression,
				}, logger)
				return nil
			},
			OnStop: func(context.Context) error {
				return a.producer.Close()
			},
		})
	}

	a.startup.AddDependency(startup.Func{
		Name:     depServices,
		Requires: serviceDeps,
		OnStart:  a.buildServices,
	})

	a.startup.AddDependency(startup.Func{
		Name:     depHTTP,
		Requires: []string{depServices},
		OnStart:  a.serveHTTP,
		OnStop: func(ctx context.Context) error {
			return a.server.Shutdown(ctx)
		},
	})

	if cfg.KafkaConsumerEnabled {
		a.startup.AddDependency(startup.Func{
			Name:     depConsumer,
			Requires: []string{depServices},
			OnStart: func(ctx context.Context) error {
				return a.consumer.Start(ctx)
			},
			OnStop: func(context.Context) error {
				return a.consumer.Stop()
			},
		})
	}

	return a
}

func (a *app) start(ctx context.Context) error {
	if err := a.startup.Start(ctx); err != nil {
		return err
	}
	a.health.SetReady(true)
	return nil
}

func (a *app) stop(ctx context.Context) error {
	a.health.SetReady(false)
	return a.startup.Stop(ctx)
}

func (a *app) connectDatabase(ctx context.Context) error {
	db, err := database.Connect(ctx, database.ConnectionConfig{
		Driver:          a.cfg.DatabaseDriver,
		Host:            a.cfg.DatabaseHost,
		Port:            a.cfg.DatabasePort,
		User:            a.cfg.DatabaseUserName,
		Password:        a.cfg.DatabasePassword,
		Name:            a.cfg.DatabaseName,
		SSLMode:         a.cfg.DatabaseSSLMode,
		MaxOpenConns:    a.cfg.DatabaseMaxOpenConns,
		MaxIdleConns:    a.cfg.DatabaseMaxIdleConns,
		ConnMaxLifetime: a.cfg.DatabaseConnMaxLifetime,
	}, a.logger)
	if err != nil {
		return err
	}
	a.db = db
	a.health.AddCheck(depDatabase, db.PingContext)
	return nil
}

func (a *app) connectRedis(ctx context.Context) error {
	client, err := redis.NewClient(ctx, redis.Config{
		Host:      a.cfg.RedisHost,
		Port:      a.cfg.RedisPort,
		Password:  a.cfg.RedisPassword,
		DB:        a.cfg.RedisDB,
		KeyPrefix: a.cfg.RedisKeyPrefix,
	}, a.logger)
	if err != nil {
		return err
	}
	a.cache = client
	a.health.AddOptionalCheck(depRedis, client.Ping)
	return nil
}

func (a *app) connectGraph(ctx context.Context) error {
	client, err := graph.NewClient(graph.Config{
		Host:     a.cfg.GraphDBHost,
		Port:     a.cfg.GraphDBPort,
		Username: a.cfg.GraphDBUser,
		Password: a.cfg.GraphDBPassword,
		Database: a.cfg.GraphDBName,
	}, a.logger)
	if err != nil {
		return err
	}
	if err := client.VerifyConnectivity(ctx); err != nil {
		_ = client.Close(ctx)
		return fmt.Errorf("graph database unreachable: %w", err)
	}
	a.graph = client
	a.health.AddOptionalCheck(depGraph, client.VerifyConnectivity)
	return nil
}

// buildServices wires the domain services, routes and consumer on top of the
// connected infrastructure.
func (a *app) buildServices(ctx context.Context) error {
	cfg, logger := a.cfg, a.logger

	var resolver dates.Resolver = dates.NewLayoutResolver()
	if a.cache != nil {
		resolver = dates.NewCachedResolver(resolver, a.cache, cfg.DateCacheTTL, logger)
	}
	mapper, err := fieldmapping.NewMapper(logger, resolver)
	if err != nil {
		return err
	}

	var encryptor encryption.Encryptor = encryption.Plaintext{}
	if cfg.EncryptionKeyHex != "" {
		sealer, err := encryption.NewSealerFromHex(cfg.EncryptionKeyHex)
		if err != nil {
			return fmt.Errorf("invalid field encryption key: %w", err)
		}
		encryptor = sealer
	} else {
		logger.Warn("FIELD_ENCRYPTION_KEY is not set, profile fields are stored unencrypted")
	}

	profiles := profilerepo.NewRepository(a.db, logger)
	audits := auditrepo.NewRepository(a.db, logger)
	tx := database.NewTransactor(a.db, database.Serializable, logger)
	engine := merging.NewEngine(logger, profiles, audits, tx, encryptor)

	var emitter *events.Emitter
	if a.producer != nil {
		emitter = events.NewEmitter(a.producer, logger)
	}

	proc := processor.NewProcessor(logger, mapper, engine, optionalEmitter(emitter), processor.Config{
		MaxRetries:      cfg.MergeMaxRetries,
		InitialInterval: time.Duration(cfg.MergeRetryIntervalMs) * time.Millisecond,
	})

	grouper := grouping.NewEngine(logger, matching.NewScorer(), grouping.Config{
		MaxParallelBatches: cfg.GroupingMaxParallelBatches,
	})

	var projector *graph.GroupProjector
	if a.graph != nil {
		projector = graph.NewGroupProjector(a.graph, logger)
	}

	if err := registerServices(routeServices{
		logger:     logger,
		grouper:    grouper,
		projector:  projector,
		emitter:    emitter,
		aggregator: aggregation.NewAggregator(logger),
		mapper:     mapper,
		processor:  proc,
		profiles:   engine,
		audits:     audits,
		validation: schema.NewValidationService(engine, logger),
	}); err != nil {
		return fmt.Errorf("register services: %w", err)
	}

	e := a.newEcho()
	api := e.Group("/api/v1")
	groupingroutes.Register(api)
	aggregationroutes.Register(api)
	mappingroutes.Register(api)
	profileroutes.Register(api)
	validationroutes.Register(api)

	a.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           e,
		ReadTimeout:       time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second,
		IdleTimeout:       time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second,
		ReadHeaderTimeout: time.Duration(cfg.ReadHeaderTimeoutSeconds) * time.Second,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	if cfg.KafkaConsumerEnabled {
		a.consumer = kafka.NewConsumer(kafka.ConsumerConfig{
			Brokers:       cfg.KafkaBrokers,
			Topic:         cfg.KafkaExtractionTopic,
			ConsumerGroup: cfg.KafkaConsumerGroup,
		}, logger, proc.HandleMessage)
		a.health.AddOptionalCheck(depConsumer, func(context.Context) error {
			if !a.consumer.Health() {
				return errors.New("consumer is not running")
			}
			return nil
		})
	}

	logger.WithContext(ctx).WithFields(map[string]any{
		"encrypted":     cfg.EncryptionKeyHex != "",
		"date_cache":    a.cache != nil,
		"graph":         a.graph != nil,
		"events":        a.producer != nil,
		"kafka_consume": cfg.KafkaConsumerEnabled,
	}).Info("Services ready")
	return nil
}

func (a *app) newEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.ErrorHandler(a.logger)

	e.Use(echomw.Recover())
	e.Use(otelecho.Middleware(a.cfg.AppName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(a.logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: a.cfg.AllowOrigins,
		AllowMethods: a.cfg.AllowMethods,
	}))

	a.health.RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	return e
}

func (a *app) serveHTTP(context.Context) error {
	go func() {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.WithError(err).Error("HTTP server stopped")
		}
	}()
	return nil
}

// optionalEmitter keeps a nil *events.Emitter from becoming a non-nil interface
func optionalEmitter(e *events.Emitter) processor.Emitter {
	if e == nil {
		return nil
	}
	return e
}
