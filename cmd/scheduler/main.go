package main

import (
	"context"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:                  "stepfire",
		Usage:                 "Run scheduled multi-step HTTP transactions",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (trace, debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("STEPFIRE_LOG_LEVEL"),
			},
			&cli.BoolFlag{
				Name:    "log-console",
				Usage:   "Human readable log output instead of JSON",
				Sources: cli.EnvVars("STEPFIRE_LOG_CONSOLE"),
			},
		},
		Commands: []*cli.Command{
			newRunCommand(),
			newAddCommand(),
			newCancelCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
