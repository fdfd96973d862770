package main

import (
	"context"
	"fmt"

	"github.com/RezaEskandarii/stepfire/internal/notify"
	"github.com/RezaEskandarii/stepfire/types/config"
	"github.com/redis/go-redis/v9"
	cli "github.com/urfave/cli/v3"
)

func redisFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "redis-addr",
			Usage:    "Redis address the engine listens on",
			Required: true,
			Sources:  cli.EnvVars("REDIS_ADDR"),
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
		&cli.Int64Flag{
			Name:     "id",
			Usage:    "Transaction id",
			Required: true,
		},
	}
}

func newAddCommand() *cli.Command {
	return &cli.Command{
		Name:  "add",
		Usage: "Tell a running engine about a newly created transaction",
		Flags: append(redisFlags(), &cli.StringFlag{
			Name:  "schedule",
			Usage: `"now" or "YYYY-MM-DD HH:MM:SS" (UTC)`,
			Value: "now",
		}),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withPublisher(cmd, func(p *notify.Publisher) error {
				if err := p.Add(ctx, cmd.Int64("id"), cmd.String("schedule")); err != nil {
					return err
				}
				fmt.Printf("transaction %d sent to the engine\n", cmd.Int64("id"))
				return nil
			})
		},
	}
}

func newCancelCommand() *cli.Command {
	return &cli.Command{
		Name:  "cancel",
		Usage: "Ask a running engine to cancel a transaction",
		Flags: redisFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withPublisher(cmd, func(p *notify.Publisher) error {
				if err := p.Cancel(ctx, cmd.Int64("id")); err != nil {
					return err
				}
				fmt.Printf("cancel for transaction %d sent to the engine\n", cmd.Int64("id"))
				return nil
			})
		},
	}
}

func withPublisher(cmd *cli.Command, fn func(p *notify.Publisher) error) error {
	client := redis.NewClient(&redis.Options{
		Addr:     cmd.String("redis-addr"),
		Password: cmd.String("redis-password"),
		DB:       cmd.Int("redis-db"),
	})
	defer client.Close()

	return fn(notify.NewPublisher(client, cmd.String("redis-channel")))
}
