package main

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/Ramsey-B/thistle/config"
	"github.com/Ramsey-B/thistle/internal/handlers"
	"github.com/Ramsey-B/thistle/internal/repositories"
	"github.com/Ramsey-B/thistle/pkg/adapters"
	"github.com/Ramsey-B/thistle/pkg/adapters/httpfeed"
	"github.com/Ramsey-B/thistle/pkg/database"
	"github.com/Ramsey-B/thistle/pkg/drafting"
	"github.com/Ramsey-B/thistle/pkg/expressions"
	"github.com/Ramsey-B/thistle/pkg/health"
	"github.com/Ramsey-B/thistle/pkg/httpclient"
	"github.com/Ramsey-B/thistle/pkg/ingest"
	"github.com/Ramsey-B/thistle/pkg/kafka"
	"github.com/Ramsey-B/thistle/pkg/linking"
	"github.com/Ramsey-B/thistle/pkg/profiles"
	"github.com/Ramsey-B/thistle/pkg/queue"
	"github.com/Ramsey-B/thistle/pkg/redis"
	"github.com/Ramsey-B/thistle/pkg/scheduler"
	"github.com/Ramsey-B/thistle/pkg/sla"
	"github.com/Ramsey-B/thistle/pkg/startup"
	"github.com/Ramsey-B/thistle/pkg/store/memstore"
	"github.com/Ramsey-B/thistle/pkg/synchealth"
)

const (
	inflightKeyPrefix  = "thistle:inflight:"
	rateLimitKeyPrefix = "thistle:ratelimit:"
)

// store is everything the engine needs from persistence. Both the postgres
// repositories and memstore satisfy it.
type store interface {
	ingest.Store
	linking.Store
	profiles.Store
	sla.Store
	synchealth.Store
	scheduler.Store
	handlers.SyncStore
	handlers.SLARuleStore
}

type app struct {
	cfg    config.Config
	logger ectologger.Logger

	store    store
	db       *sqlx.DB
	redis    *redis.Client
	producer *kafka.Producer

	runner     *ingest.Runner
	repairer   *ingest.Repairer
	monitor    *synchealth.Monitor
	dispatcher handlers.Dispatcher
	startup    *startup.Startup
}

func newApp(cfg config.Config, logger ectologger.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger, startup: startup.NewStartup(logger, cfg.StartupMaxAttempts)}
	if err := a.openStore(); err != nil {
		a.close()
		return nil, err
	}
	if err := a.wire(); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

// openStore creates the store and its connections. Nothing is dialed until the
// postgres and redis startup dependencies run.
func (a *app) openStore() error {
	if a.cfg.StoreDriver == config.StoreDriverMemory {
		a.logger.Warn("Using the in-memory store; data is lost on restart")
		a.store = memstore.New()
		return nil
	}

	db, err := sqlx.Open("postgres", a.cfg.DatabaseURL())
	if err != nil {
		return fmt.Errorf("failed to open postgres: %w", err)
	}
	db.SetMaxOpenConns(a.cfg.DatabaseMaxOpenConns)
	db.SetMaxIdleConns(a.cfg.DatabaseMaxIdleConns)
	db.SetConnMaxLifetime(a.cfg.DatabaseConnMaxLifetime)
	a.db = db
	a.store = repositories.NewStore(database.NewDatabaseInstance(db, a.logger), a.logger)

	migrations := database.NewMigrationService(a.logger, database.MigrationConfig{
		FolderPath: a.cfg.DatabaseMigrationFolderPath,
		Version:    uint(a.cfg.DatabaseMigrationVersion),
	})
	a.startup.Add(startup.Func{
		ID: "postgres",
		OnStart: func(ctx context.Context) error {
			if err := db.PingContext(ctx); err != nil {
				return fmt.Errorf("failed to connect to postgres: %w", err)
			}
			return migrations.Migrate(db.DB)
		},
	})

	a.redis = redis.NewClient(redis.Config{
		Host:     a.cfg.RedisHost,
		Port:     a.cfg.RedisPort,
		Password: a.cfg.RedisPassword,
		DB:       a.cfg.RedisDB,
	}, a.logger)
	a.startup.Add(startup.Func{ID: "redis", OnStart: a.redis.Connect})
	return nil
}

func (a *app) wire() error {
	var (
		changes ingest.ChangePublisher
		alerts  synchealth.AlertPublisher
		escal   sla.ChangePublisher
	)
	if brokers := kafka.ParseBrokers(a.cfg.KafkaBrokers); len(brokers) > 0 {
		a.producer = kafka.NewProducer(kafka.Config{
			Brokers:           brokers,
			InteractionsTopic: a.cfg.KafkaInteractionsTopic,
			AlertsTopic:       a.cfg.KafkaAlertsTopic,
		}, a.logger)
		changes, alerts, escal = a.producer, a.producer, a.producer
	}

	client := httpclient.NewClient(httpclient.Config{
		Timeout:         a.cfg.HTTPClientTimeout,
		MaxIdleConns:    100,
		IdleConnTimeout: 90 * time.Second,
	}, a.logger)

	registry, err := a.registry(client)
	if err != nil {
		return err
	}

	var drafter drafting.Drafter
	if a.cfg.DraftingEnabled {
		drafter = drafting.NewHTTPDrafter(client, a.cfg.Drafting(), a.logger)
	}

	var (
		guard   ingest.Guard
		blocker ingest.Blocker
		locker  *redis.Locker
	)
	if a.redis != nil {
		guard = ingest.NewRedisGuard(redis.NewLocker(a.redis, inflightKeyPrefix))
		blocker = redis.NewRateLimiter(a.redis, rateLimitKeyPrefix)
		locker = redis.NewLocker(a.redis, scheduler.LockKeyPrefix)
	} else {
		guard = ingest.NewLocalGuard()
		blocker = ingest.NewLocalBlocker()
	}

	engine := sla.NewEngine(a.cfg.SLA(), a.logger)
	ingestor := ingest.NewIngestor(ingest.Components{
		Store:      a.store,
		Registry:   registry,
		Resolver:   ingest.NewResolver(a.store, engine, a.logger),
		Linker:     linking.NewLinker(a.store, a.cfg.Linking(), a.logger),
		Aggregator: profiles.NewAggregator(a.store, a.cfg.Profiles(), a.logger),
		Blocker:    blocker,
		Drafter:    drafter,
		Publisher:  changes,
	}, a.cfg.Ingest(), a.logger)

	a.runner = ingest.NewRunner(ingestor, a.store, guard, blocker, a.cfg.Ingest(), a.logger)
	a.repairer = ingest.NewRepairer(a.store, engine, a.logger)
	a.monitor = synchealth.NewMonitor(a.store, alerts, a.cfg.SyncHealth(), a.logger)

	var storeDeps []string
	if a.redis != nil {
		streams := redis.NewStreams(a.redis)
		queueConfig := a.cfg.Queue()
		processor := queue.NewProcessor(streams, a.runner, queueConfig, a.logger)
		a.dispatcher = queue.NewStreamDispatcher(streams, queueConfig.Stream)
		a.startup.Add(startup.Func{
			ID:      "workers",
			Needs:   []string{"postgres", "redis"},
			OnStart: processor.Start,
			OnStop:  processor.Stop,
		})
		storeDeps = []string{"postgres", "redis"}
	} else {
		local := queue.NewLocalDispatcher(a.runner, a.cfg.WorkerCount, a.logger)
		a.dispatcher = local
		a.startup.Add(startup.Func{
			ID: "workers",
			OnStop: func(context.Context) error {
				local.Wait()
				return nil
			},
		})
	}

	if a.cfg.SchedulerEnabled {
		s := scheduler.NewScheduler(
			a.store,
			a.dispatcher,
			locker,
			sla.NewEscalator(a.store, escal, a.cfg.SLA(), a.logger),
			a.monitor,
			a.cfg.Scheduler(),
			a.logger,
		)
		a.startup.Add(startup.Func{
			ID:      "scheduler",
			Needs:   append(storeDeps, "workers"),
			OnStart: s.Start,
			OnStop:  s.Stop,
		})
	}
	return nil
}

func (a *app) registry(client *httpclient.Client) (*adapters.Registry, error) {
	feeds, err := config.LoadFeeds(a.cfg.FeedsFile)
	if err != nil {
		return nil, err
	}
	if len(feeds) == 0 {
		a.logger.Warnf("No feeds configured in %s; every sync run will fail permanently", a.cfg.FeedsFile)
	}

	registry := adapters.NewRegistry()
	evaluator := expressions.NewEvaluator()
	for _, feed := range feeds {
		adapter, err := httpfeed.New(client, evaluator, feed.HTTPFeed(), a.logger)
		if err != nil {
			return nil, fmt.Errorf("feed %s/%s: %w", feed.Marketplace, feed.Channel, err)
		}
		registry.Register(feed.Marketplace, feed.Channel, adapter)
		a.logger.Infof("Registered feed %s/%s", feed.Marketplace, feed.Channel)
	}
	return registry, nil
}

func (a *app) registerChecks(checker *health.Checker) {
	if a.db != nil {
		checker.AddDatabase(a.db)
	}
	if a.redis != nil {
		checker.AddRedis(a.redis.Redis())
	}
}

func (a *app) start(ctx context.Context) error {
	return a.startup.Start(ctx)
}

func (a *app) stop(ctx context.Context) {
	if err := a.startup.Stop(ctx); err != nil {
		a.logger.WithError(err).Error("Failed to stop cleanly")
	}
}

func (a *app) close() {
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.WithError(err).Error("Failed to close kafka producer")
		}
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}
