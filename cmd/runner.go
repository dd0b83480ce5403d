// submodule runner wires configuration into the running service
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/nmoreira/spotiproxy/internal/repositories"
	"github.com/nmoreira/spotiproxy/internal/server"
	"github.com/nmoreira/spotiproxy/internal/services"
	"github.com/nmoreira/spotiproxy/internal/sessions"
	"github.com/nmoreira/spotiproxy/internal/shared"
	"github.com/urfave/cli/v3"
)

// Runner holds the dependencies shared by all CLI commands.
type Runner struct {
	logger *log.Logger
	output io.Writer
}

// NewRunner creates a Runner writing human-readable output to the given writer.
func NewRunner(logger *log.Logger, output io.Writer) *Runner {
	if output == nil {
		output = os.Stdout
	}
	return &Runner{logger: logger, output: output}
}

// loadConfig loads the file named by --config, falling back to embedded
// defaults (plus environment overrides) when it is absent.
func (r *Runner) loadConfig(cmd *cli.Command) *shared.Config {
	path := cmd.String("config")
	if _, err := os.Stat(path); err == nil {
		config, err := shared.LoadConfig(path)
		if err == nil {
			return config
		}
		r.logger.Warnf("failed to load %s: %v", path, err)
	}
	return shared.DefaultConfig()
}

// Serve starts the proxy HTTP server and blocks until interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd)
	if err := config.Validate(); err != nil {
		return err
	}

	spotify, err := services.NewSpotifyService(map[string]string{
		"client_id":     config.Spotify.ClientID,
		"client_secret": config.Spotify.ClientSecret,
		"redirect_uri":  config.Spotify.RedirectURI,
		"scopes":        strings.Join(config.Spotify.Scopes, " "),
	})
	if err != nil {
		return err
	}

	manager := sessions.NewManager(
		sessions.NewMemoryStore(),
		spotify,
		shared.WithLogger(r.logger, "component", "sessions"),
	)

	var cache *repositories.TrackCacheAdapter
	if config.Database.Path != "" {
		db, err := shared.NewDatabase(config.Database.Path)
		if err != nil {
			return err
		}
		defer db.Close()

		shared.ConfigureDatabase(db, config.Database.MaxOpenConns, config.Database.MaxIdleConns)
		if err := shared.RunMigrations(db); err != nil {
			return err
		}
		cache = repositories.NewTrackCacheAdapter(repositories.NewTrackRepository(db))
	} else {
		r.logger.Warn("track cache disabled: no database path configured")
	}

	auth := server.NewAuthHandler(spotify, manager, config.Server.FrontendURL, shared.WithLogger(r.logger, "component", "auth"))
	api := server.NewAPIHandler(spotify, cache, shared.WithLogger(r.logger, "component", "api"))
	guard := server.SessionGuard(manager, shared.WithLogger(r.logger, "component", "guard"))

	srv := server.New(config, auth, api, guard, r.logger)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return srv.Run(ctx)
}

// Setup writes a starter config file and initializes the track cache schema.
func (r *Runner) Setup(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("config")
	if err := shared.CreateConfigFile(path); err != nil {
		r.logger.Warnf("config: %v", err)
	} else {
		fmt.Fprintf(r.output, "created %s\n", path)
	}

	config := r.loadConfig(cmd)
	if config.Database.Path == "" {
		return nil
	}

	db, err := shared.NewDatabase(config.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := shared.RunMigrations(db); err != nil {
		return err
	}

	fmt.Fprintf(r.output, "database ready at %s\n", config.Database.Path)
	return nil
}
