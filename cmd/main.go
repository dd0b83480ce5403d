package main

import (
	"context"
	"os"

	"github.com/joho/godotenv"
	"github.com/nmoreira/spotiproxy/internal/shared"
	"github.com/urfave/cli/v3"
)

func main() {
	logger := shared.NewLogger(nil)

	// Optional .env for local development; real deployments set the environment directly.
	_ = godotenv.Load()

	runner := NewRunner(logger, os.Stdout)

	app := &cli.Command{
		Name:     "spotiproxy",
		Usage:    "Session-aware proxy for the Spotify Web API",
		Version:  "0.1.0",
		Commands: []*cli.Command{serveCommand(runner), setupCommand(runner)},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		logger.Fatalf("application error: %v", err)
	}
}

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "config.toml",
	}
}

func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "Start the proxy HTTP server",
		Flags:  []cli.Flag{configFlag()},
		Action: r.Serve,
	}
}

func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "setup",
		Usage:  "Create a starter config file and initialize the track cache",
		Flags:  []cli.Flag{configFlag()},
		Action: r.Setup,
	}
}
