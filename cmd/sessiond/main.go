// Command sessiond serves the session API and manages its schema and keys.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
)

// Build information, set via ldflags.
var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newCLI().RunContext(ctx, os.Args)
	cancel()
	if err != nil {
		fmt.Fprintln(os.Stderr, "sessiond:", err)
		os.Exit(1)
	}
}

func newCLI() *cli.App {
	return &cli.App{
		Name:    "sessiond",
		Usage:   "identity sessions with rotating access and refresh tokens",
		Version: fmt.Sprintf("%s (commit: %s)", Version, Commit),
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:    "env-file",
				Usage:   "KEY=VALUE files loaded before configuration; set variables win",
				EnvVars: []string{"SESSIOND_ENV_FILE"},
				Value:   cli.NewStringSlice(".env"),
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			migrateCommand(),
			keygenCommand(),
		},
	}
}
