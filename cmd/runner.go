package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/podsession/internal/repositories"
	"github.com/desertthunder/podsession/internal/services"
	"github.com/desertthunder/podsession/internal/session"
	"github.com/desertthunder/podsession/internal/shared"
	"github.com/urfave/cli/v3"
)

// pruneEvery controls how many recorded events pass between history prunes.
const pruneEvery = 20

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// The database, backend and session manager are opened lazily by [Runner.connect] so that
// setup commands run without a configured backend.
type Runner struct {
	config     *shared.Config
	configPath string
	api        *services.APIService
	backend    session.Backend
	db         *sql.DB
	ownsDB     bool
	creds      *repositories.CredentialRepository
	events     *repositories.EventRepository
	session    *session.Manager
	logger     *log.Logger
	output     io.Writer
	recorded   atomic.Int64
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	API        *services.APIService
	Backend    session.Backend
	DB         *sql.DB
	Logger     *log.Logger
	Output     io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		api:        opts.API,
		backend:    opts.Backend,
		db:         opts.DB,
		logger:     opts.Logger,
		output:     opts.Output,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, authCommand, apiCommand, watchCommand, serveCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// loadConfig reads the config file named by --config, then applies .env and environment overrides.
//
// A missing config file falls back to the embedded defaults.
func (r *Runner) loadConfig(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	path := cmd.String("config")
	r.configPath = path

	config, err := shared.LoadConfig(path)
	switch {
	case errors.Is(err, shared.ErrMissingConfig):
		r.logger.Debug("config file not found, using defaults", "path", path)
		config = shared.DefaultConfig()
	case err != nil:
		return ctx, err
	}

	if err := shared.ApplyEnv(config, cmd.String("env-file")); err != nil {
		return ctx, err
	}

	level := config.Log.Level
	if v := cmd.String("log-level"); v != "" {
		level = v
	}
	shared.SetLogLevel(r.logger, shared.ParseLevel(level))

	r.config = config
	return ctx, nil
}

// connect opens the database and the backend, then bootstraps the session manager from the stored credential.
func (r *Runner) connect(ctx context.Context) (*session.Manager, error) {
	if r.session != nil {
		return r.session, nil
	}

	if r.db == nil {
		db, err := shared.OpenMigrated(r.config.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		r.db = db
		r.ownsDB = true
	}

	r.creds = repositories.NewCredentialRepository(r.db)
	r.events = repositories.NewEventRepository(r.db)

	if r.backend == nil {
		api, auth := services.NewFromConfig(r.config.Backend, r.creds.TokenSource())
		r.backend = auth
		if r.api == nil {
			r.api = api
		}
	}
	if r.api == nil {
		r.api = services.NewAPIService(r.config.Backend.BaseURL, services.NewHTTPClient(r.config.Backend))
	}

	r.session = session.New(r.backend, r.creds,
		session.WithLogger(shared.WithLogger(r.logger, "component", "session")),
		session.WithWatchdogInterval(r.config.Session.WatchdogInterval()),
		session.WithRefreshLead(r.config.Session.RefreshLead()),
		session.WithLogoutTimeout(r.config.Backend.LogoutTimeout()),
		session.WithEventHook(r.recordEvent),
	)

	if err := r.session.Bootstrap(ctx); err != nil {
		return nil, fmt.Errorf("failed to restore session: %w", err)
	}
	return r.session, nil
}

// recordEvent persists a session event and periodically trims history to the configured limit.
func (r *Runner) recordEvent(e session.Event) {
	if r.events == nil {
		return
	}
	if err := r.events.Record(e.Record()); err != nil {
		r.logger.Warn("failed to record session event", "kind", e.Kind, "err", err)
		return
	}

	if limit := r.config.Session.HistoryLimit; limit > 0 && r.recorded.Add(1)%pruneEvery == 0 {
		if n, err := r.events.Prune(limit); err != nil {
			r.logger.Warn("failed to prune session history", "err", err)
		} else if n > 0 {
			r.logger.Debug("pruned session history", "removed", n)
		}
	}
}

// Close stops the session manager and releases the database if the runner opened it.
func (r *Runner) Close() error {
	var errs []error
	if r.session != nil {
		errs = append(errs, r.session.Close())
		r.session = nil
	}
	if r.db != nil && r.ownsDB {
		errs = append(errs, r.db.Close())
		r.db = nil
	}
	return errors.Join(errs...)
}

// SetLogger swaps the runner's logger, used when the TUI takes over the terminal.
func (r *Runner) SetLogger(l *log.Logger) {
	r.logger = l
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
