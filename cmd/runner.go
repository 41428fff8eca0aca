package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	gojson "github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/reelsync/internal/merge"
	"github.com/desertthunder/reelsync/internal/queue"
	"github.com/desertthunder/reelsync/internal/services"
	"github.com/desertthunder/reelsync/internal/shared"
	"github.com/desertthunder/reelsync/internal/store"
	"github.com/desertthunder/reelsync/internal/tasks"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// The database, store and processor are opened lazily by the first command that needs them.
type Runner struct {
	config    *shared.Config
	api       *services.APIService
	logger    *log.Logger
	output    io.Writer
	db        *sql.DB
	store     *store.Store
	resolver  *merge.Resolver
	enricher  services.Enricher
	processor *tasks.Processor
	progress  chan tasks.ProgressUpdate
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config *shared.Config
	API    *services.APIService
	Logger *log.Logger
	Output io.Writer
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
		config: opts.Config,
		api:    opts.API,
		logger: opts.Logger,
		output: opts.Output,
	}
}

func (r *Runner) app() *cli.Command {
	return &cli.Command{
		Name:    "reelsync",
		Usage:   "Offline-first sync for shared movie recommendations",
		Version: "0.3.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable debug logging",
			},
		},
		Before:   r.configure,
		Commands: r.register(),
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, movieCommand, personCommand, listCommand, queueCommand, syncCommand,
		serveCommand, tuiCommand, exportCommand, apiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// configure loads the config file named by --config when it exists, otherwise keeps the current
// config with environment overrides applied, and then sets up logging.
func (r *Runner) configure(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	path := cmd.String("config")
	if _, err := os.Stat(path); err == nil {
		config, err := shared.LoadConfig(path)
		if err != nil {
			return ctx, err
		}
		r.config = config
	} else {
		if cmd.IsSet("config") {
			r.logger.Warn("config file not found, using defaults", "path", path)
		}
		if err := shared.LoadEnv(r.config, ".env"); err != nil {
			return ctx, err
		}
	}

	if file := r.config.Logging.File; file != "" {
		logger, err := shared.NewFileLogger(file)
		if err != nil {
			return ctx, err
		}
		r.SetLogger(logger)
	}

	level := shared.ParseLogLevel(r.config.Logging.Level)
	if cmd.Bool("verbose") {
		level = log.DebugLevel
	}
	shared.SetLogLevel(r.logger, level)
	return ctx, nil
}

// SetLogger replaces the logger used by the runner and everything it opens afterwards.
func (r *Runner) SetLogger(l *log.Logger) {
	r.logger = l
}

// open wires the database, queue, store, resolver and processor. It is a no-op once opened.
func (r *Runner) open(ctx context.Context) error {
	if r.store != nil {
		return nil
	}
	c := r.config

	db, err := shared.NewDatabase(c.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	shared.ConfigureDatabase(db, c.Database.Path, c.Database.MaxOpenConns, c.Database.MaxIdleConns)

	if err := shared.RunMigrations(ctx, db); err != nil {
		db.Close()
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	q := queue.New(db, queue.WithPolicy(queue.PolicyFromConfig(c.Sync)), queue.WithLogger(r.logger))
	if _, err := q.Recover(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to recover queue: %w", err)
	}

	s, err := store.Open(ctx, db, q, store.WithLogger(r.logger))
	if err != nil {
		db.Close()
		return fmt.Errorf("failed to open store: %w", err)
	}

	api := r.remote()
	r.db = db
	r.store = s
	r.resolver = merge.New(s, merge.WithLogger(r.logger))
	r.enricher = services.NewMetadataService(api)
	r.progress = make(chan tasks.ProgressUpdate, 50)
	r.processor = tasks.NewProcessor(s, services.NewSyncService(api), r.resolver,
		tasks.WithLogger(r.logger),
		tasks.WithInterval(c.Sync.Interval.Duration),
		tasks.WithEnricher(r.enricher),
		tasks.WithProgress(r.progress),
	)
	r.logger.Debug("store opened", "path", c.Database.Path, "device", s.DeviceID())
	return nil
}

// remote returns the API client, building it from the remote config on first use.
func (r *Runner) remote() *services.APIService {
	if r.api == nil {
		r.api = services.NewAPIServiceFromConfig(r.config.Remote)
	}
	return r.api
}

// Close releases whatever [Runner.open] acquired.
func (r *Runner) Close() {
	if r.processor != nil {
		r.processor.Close()
		r.processor = nil
	}
	if r.store != nil {
		r.store.Close()
		r.store = nil
	}
	if r.db != nil {
		r.db.Close()
		r.db = nil
	}
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = gojson.MarshalIndent(data, "", "  ")
	} else {
		output, err = gojson.Marshal(data)
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

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
