package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"

	"github.com/RezaEskandarii/stepfire/client"
	"github.com/RezaEskandarii/stepfire/internal/db"
	"github.com/RezaEskandarii/stepfire/internal/eventlog"
	"github.com/RezaEskandarii/stepfire/internal/lock"
	"github.com/RezaEskandarii/stepfire/internal/logging"
	"github.com/RezaEskandarii/stepfire/internal/message_broaker"
	"github.com/RezaEskandarii/stepfire/internal/notify"
	"github.com/RezaEskandarii/stepfire/internal/scheduler"
	"github.com/RezaEskandarii/stepfire/internal/store"
	"github.com/RezaEskandarii/stepfire/internal/store/postgres"
	"github.com/RezaEskandarii/stepfire/types/config"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Container holds all application dependencies. It is the single source of truth
// for dependency injection and ensures connections and services are created once.
type Container struct {
	Config *config.StepfireConfig
	Log    zerolog.Logger

	// Storage connections (created once, shared by the store and the lock manager)
	DB    *sql.DB
	Redis *redis.Client

	TransactionStore store.TransactionStore

	// Infrastructure
	LockManager   lock.DistributedLockManager
	MessageBroker message_broaker.MessageBroker
	Events        eventlog.Logger

	Scheduler          *scheduler.Scheduler
	Listener           *notify.Listener
	TransactionManager *client.TransactionManager
}

// NewContainer creates and wires all dependencies. Single entry point for DI.
// Call this once per application lifecycle. ctx bounds dialing the message broker.
// Pass optional WithDB, WithRedis, WithMessageBroker to inject connections for testing.
func NewContainer(ctx context.Context, cfg *config.StepfireConfig, log zerolog.Logger, opts ...ContainerOption) (*Container, error) {
	opt := &containerConfig{}
	for _, o := range opts {
		o(opt)
	}

	log = log.With().Str("instance", cfg.Instance).Logger()

	conn := opt.db
	if conn == nil {
		var err error
		conn, err = initStorageConnection(cfg)
		if err != nil {
			return nil, fmt.Errorf("init storage: %w", err)
		}
	}

	redisClient := opt.redis
	if redisClient == nil && cfg.RedisConfig != nil {
		redisClient = newRedisClient(cfg.RedisConfig)
	}

	transactionStore, err := createTransactionStore(cfg.StorageDriver, conn)
	if err != nil {
		return nil, err
	}
	lockMgr, err := createDistributedLockManager(cfg.StorageDriver, conn)
	if err != nil {
		return nil, err
	}

	messageBroker := opt.broker
	if messageBroker == nil {
		messageBroker, err = createMessageBroker(ctx, cfg)
		if err != nil {
			// The event log is auxiliary: keep running with the zerolog sink only.
			log.Warn().Err(err).Str("driver", cfg.MQDriver.String()).Msg("message broker unavailable, event log goes to the process log only")
			messageBroker = nil
		}
	}

	var closers []io.Closer
	sinks := eventlog.Multi{eventlog.NewZerologLogger(logging.Component(log, "eventlog"))}
	if messageBroker != nil {
		brokerLogger := eventlog.NewBrokerLogger(messageBroker, cfg.Instance, cfg.EventBufferSize, logging.Component(log, "eventlog"))
		sinks = append(sinks, brokerLogger)
		closers = append(closers, brokerLogger)
	}

	sched := scheduler.New(transactionStore, sinks, logging.Component(log, "scheduler"),
		scheduler.WithTickInterval(cfg.TickInterval()),
		scheduler.WithExecutionTimeout(cfg.ExecutionTimeout()),
		scheduler.WithConnectRetryInterval(cfg.ConnectRetryInterval()),
		scheduler.WithMaxConcurrentRunners(cfg.MaxConcurrentRunners),
	)

	var listener *notify.Listener
	if redisClient != nil {
		listener = notify.NewListener(redisClient, cfg.RedisConfig.Channel, sched, logging.Component(log, "notify"))
		closers = append(closers, redisClient)
	}

	manager := client.NewTransactionManager(
		transactionStore,
		sched,
		lockMgr,
		listener,
		cfg.ResyncSpec,
		logging.Component(log, "manager"),
		closers...,
	)

	return &Container{
		Config:             cfg,
		Log:                log,
		DB:                 conn,
		Redis:              redisClient,
		TransactionStore:   transactionStore,
		LockManager:        lockMgr,
		MessageBroker:      messageBroker,
		Events:             sinks,
		Scheduler:          sched,
		Listener:           listener,
		TransactionManager: manager,
	}, nil
}

// initStorageConnection creates the database handle based on config.
func initStorageConnection(cfg *config.StepfireConfig) (*sql.DB, error) {
	switch cfg.StorageDriver {
	case config.Postgres:
		return db.Open(cfg.PostgresConfig.ConnectionUrl)
	default:
		return nil, fmt.Errorf("unsupported storage driver: %v", cfg.StorageDriver)
	}
}

func newRedisClient(cfg *config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// createMessageBroker returns nil without error when no message queue driver is configured.
func createMessageBroker(ctx context.Context, cfg *config.StepfireConfig) (message_broaker.MessageBroker, error) {
	switch cfg.MQDriver {
	case 0:
		return nil, nil
	case config.RabbitMQ:
		if cfg.RabbitMQConfig == nil {
			return nil, fmt.Errorf("message queue driver %s has no configuration", cfg.MQDriver)
		}
		broker, err := message_broaker.NewRabbitMQ(
			ctx,
			cfg.RabbitMQConfig.URL,
			cfg.RabbitMQConfig.Exchange,
			cfg.RabbitMQConfig.Queue,
			cfg.RabbitMQConfig.RoutingKey,
			cfg.RabbitMQConfig.ContentType,
		)
		if err != nil {
			return nil, err
		}
		return broker, nil
	default:
		return nil, fmt.Errorf("unsupported message queue driver: %v", cfg.MQDriver)
	}
}

func createTransactionStore(driver config.StorageDriver, db *sql.DB) (store.TransactionStore, error) {
	switch driver {
	case config.Postgres:
		return postgres.NewPostgresTransactionStore(db), nil
	default:
		return nil, fmt.Errorf("unsupported storage driver: %v", driver)
	}
}

func createDistributedLockManager(driver config.StorageDriver, db *sql.DB) (lock.DistributedLockManager, error) {
	switch driver {
	case config.Postgres:
		return lock.NewPostgresDistributedLockManager(db), nil
	default:
		return nil, fmt.Errorf("unsupported storage driver: %v", driver)
	}
}
