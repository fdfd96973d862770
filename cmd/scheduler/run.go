package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/RezaEskandarii/stepfire/internal/logging"
	"github.com/RezaEskandarii/stepfire/jobmanager"
	"github.com/RezaEskandarii/stepfire/types/config"
	cli "github.com/urfave/cli/v3"
)

func newRunCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Start the engine and execute transactions until interrupted",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML config file",
				Sources: cli.EnvVars("STEPFIRE_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "instance",
				Usage:   "Instance name (auto-generated if not provided)",
				Sources: cli.EnvVars("STEPFIRE_INSTANCE"),
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Postgres connection URL",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.IntFlag{
				Name:    "tick-interval-ms",
				Usage:   "Scheduler sweep interval in milliseconds",
				Sources: cli.EnvVars("STEPFIRE_TICK_INTERVAL_MS"),
			},
			&cli.IntFlag{
				Name:    "execution-timeout-ms",
				Usage:   "Timeout for one step call in milliseconds",
				Sources: cli.EnvVars("STEPFIRE_EXECUTION_TIMEOUT_MS"),
			},
			&cli.IntFlag{
				Name:    "max-runners",
				Usage:   "Transactions executing at once",
				Sources: cli.EnvVars("STEPFIRE_MAX_RUNNERS"),
			},
			&cli.StringFlag{
				Name:    "resync",
				Usage:   "Cron spec for re-adopting pending transactions, empty disables",
				Sources: cli.EnvVars("STEPFIRE_RESYNC"),
			},
			&cli.StringFlag{
				Name:    "redis-addr",
				Usage:   "Redis address for add/cancel notifications",
				Sources: cli.EnvVars("REDIS_ADDR"),
			},
			&cli.StringFlag{
				Name:    "redis-password",
				Sources: cli.EnvVars("REDIS_PASSWORD"),
			},
			&cli.IntFlag{
				Name:    "redis-db",
				Sources: cli.EnvVars("REDIS_DB"),
			},
			&cli.StringFlag{
				Name:    "redis-channel",
				Value:   config.DefaultRedisChannel,
				Sources: cli.EnvVars("STEPFIRE_REDIS_CHANNEL"),
			},
			&cli.StringFlag{
				Name:    "rabbitmq-url",
				Usage:   "RabbitMQ URL receiving the step event log",
				Sources: cli.EnvVars("RABBITMQ_URL"),
			},
			&cli.StringFlag{
				Name:    "rabbitmq-exchange",
				Value:   "stepfire.events",
				Sources: cli.EnvVars("STEPFIRE_RABBITMQ_EXCHANGE"),
			},
			&cli.StringFlag{
				Name:    "rabbitmq-queue",
				Value:   "stepfire.events",
				Sources: cli.EnvVars("STEPFIRE_RABBITMQ_QUEUE"),
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := buildConfig(cmd)
			if err != nil {
				return err
			}

			log := logging.New(cfg.LogLevel, cfg.LogConsole)

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			tm, err := jobmanager.New(ctx, cfg, log)
			if err != nil {
				return err
			}

			runErr := tm.Run(ctx)
			log.Info().Msg("shutting down gracefully")
			if err := tm.Close(); err != nil {
				log.Error().Err(err).Msg("shutdown finished with errors")
			}
			return runErr
		},
	}
}

// buildConfig layers flags that were explicitly set over the config file, or over the defaults
// when no file is given.
func buildConfig(cmd *cli.Command) (*config.StepfireConfig, error) {
	var opts []config.ContainerOption

	if cmd.IsSet("database-url") {
		opts = append(opts, config.WithPostgresConfig(config.PostgresConfig{ConnectionUrl: cmd.String("database-url")}))
	}
	if cmd.IsSet("tick-interval-ms") {
		opts = append(opts, config.WithTickInterval(cmd.Int("tick-interval-ms")))
	}
	if cmd.IsSet("execution-timeout-ms") {
		opts = append(opts, config.WithExecutionTimeout(cmd.Int("execution-timeout-ms")))
	}
	if cmd.IsSet("max-runners") {
		opts = append(opts, config.WithMaxConcurrentRunners(cmd.Int("max-runners")))
	}
	if cmd.IsSet("resync") {
		opts = append(opts, config.WithResyncSpec(cmd.String("resync")))
	}
	if cmd.IsSet("redis-addr") {
		opts = append(opts, config.WithRedisConfig(config.RedisConfig{
			Address:  cmd.String("redis-addr"),
			Password: cmd.String("redis-password"),
			DB:       cmd.Int("redis-db"),
			Channel:  cmd.String("redis-channel"),
		}))
	}
	if cmd.IsSet("rabbitmq-url") {
		opts = append(opts, config.WithRabbitMQConfig(config.RabbitMQConfig{
			URL:        cmd.String("rabbitmq-url"),
			Exchange:   cmd.String("rabbitmq-exchange"),
			Queue:      cmd.String("rabbitmq-queue"),
			RoutingKey: cmd.String("rabbitmq-queue"),
		}))
	}
	if cmd.IsSet("log-level") || cmd.IsSet("log-console") {
		opts = append(opts, config.WithLogLevel(cmd.String("log-level"), cmd.Bool("log-console")))
	}

	if path := cmd.String("config"); path != "" {
		if cmd.IsSet("instance") {
			instance := cmd.String("instance")
			opts = append(opts, func(c *config.StepfireConfig) error {
				c.Instance = instance
				return nil
			})
		}
		return config.LoadFile(path, opts...)
	}
	return config.NewStepfireConfig(cmd.String("instance"), opts...)
}
