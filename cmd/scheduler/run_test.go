package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/RezaEskandarii/stepfire/types/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	cli "github.com/urfave/cli/v3"
)

func runBuildConfig(t *testing.T, args ...string) (*config.StepfireConfig, error) {
	t.Helper()

	var cfg *config.StepfireConfig
	var buildErr error

	run := newRunCommand()
	run.Action = func(ctx context.Context, cmd *cli.Command) error {
		cfg, buildErr = buildConfig(cmd)
		return nil
	}
	root := &cli.Command{
		Name: "stepfire",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "log-level", Value: "info"},
			&cli.BoolFlag{Name: "log-console"},
		},
		Commands: []*cli.Command{run},
	}

	require.NoError(t, root.Run(context.Background(), append([]string{"stepfire", "run"}, args...)))
	return cfg, buildErr
}

func TestBuildConfig_Flags(t *testing.T) {
	cfg, err := runBuildConfig(t,
		"--instance", "cli-node",
		"--database-url", "postgres://localhost/stepfire",
		"--tick-interval-ms", "250",
		"--max-runners", "3",
		"--redis-addr", "localhost:6379",
		"--resync", "",
	)
	require.NoError(t, err)

	assert.Equal(t, "cli-node", cfg.Instance)
	assert.Equal(t, 250*time.Millisecond, cfg.TickInterval())
	assert.Equal(t, 3, cfg.MaxConcurrentRunners)
	assert.Empty(t, cfg.ResyncSpec)
	require.NotNil(t, cfg.RedisConfig)
	assert.Equal(t, config.DefaultRedisChannel, cfg.RedisConfig.Channel)
	assert.Nil(t, cfg.RabbitMQConfig)
}

func TestBuildConfig_FileWithOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stepfire.yaml")
	require.NoError(t, os.WriteFile(path, []byte("instance: file-node\ntick_interval_ms: 500\npostgres:\n  url: postgres://localhost/a\n"), 0o600))

	cfg, err := runBuildConfig(t, "--config", path, "--tick-interval-ms", "100")
	require.NoError(t, err)

	assert.Equal(t, "file-node", cfg.Instance)
	assert.Equal(t, 100, cfg.TickIntervalMs)
	assert.Equal(t, "postgres://localhost/a", cfg.PostgresConfig.ConnectionUrl)
}

func TestBuildConfig_MissingDatabase(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	_, err := runBuildConfig(t, "--instance", "cli-node")
	assert.Error(t, err)
}
