/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the paper-core fulfillment engine.
  Handles configuration, dependency injection, and graceful shutdown.

COMMANDS:
  serve     Run the HTTP API and the low stock monitor (default)
  migrate   Create or update the database schema and exit
  seed      Apply a YAML fixture or an embedded scenario and exit

STARTUP SEQUENCE (serve):
  1. Load config (.env, environment, flags)
  2. Initialize logging and the SQLite store
  3. Build ledger, approval guard and services
  4. Configure HTTP router
  5. Run server, monitor and signal watcher under one errgroup

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (SHUTDOWN_TIMEOUT, 30s)
  3. Stop the low stock monitor
  4. Close database connection

EXAMPLES:
  # Run with file database
  ./server serve --db=./data/fulfillment.db

  # Run with in-memory database and a demo scenario
  ./server seed --db=demo.db --scenario=partial-invoicing
  ./server serve --db=demo.db

  # Seed from a fixture file
  ./server seed --file=fixtures/plant.yaml --reset

SEE ALSO:
  - config/config.go: Environment keys
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/warp/fulfillment-engine/api"
	"github.com/warp/fulfillment-engine/config"
	"github.com/warp/fulfillment-engine/factory"
	"github.com/warp/fulfillment-engine/generic"
	"github.com/warp/fulfillment-engine/logging"
	"github.com/warp/fulfillment-engine/production"
	"github.com/warp/fulfillment-engine/staffing"
	"github.com/warp/fulfillment-engine/store/sqlite"
)

var version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// =============================================================================
// COMMANDS
// =============================================================================

type globalFlags struct {
	envFile  string
	dbPath   string
	port     int
	logLevel string
}

func newRootCmd() *cobra.Command {
	var flags globalFlags

	root := &cobra.Command{
		Use:           "server",
		Short:         "Paper-core order fulfillment engine",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.envFile, "env-file", ".env", "dotenv file to read before the environment")
	root.PersistentFlags().StringVar(&flags.dbPath, "db", "", "SQLite database path (overrides DB_PATH, \":memory:\" allowed)")
	root.PersistentFlags().IntVar(&flags.port, "port", 0, "HTTP server port (overrides PORT)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level (overrides LOG_LEVEL)")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), flags)
		},
	}
	root.RunE = serve.RunE

	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Create the database schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(flags)
			if err != nil {
				return err
			}
			defer app.close()
			if err := app.store.Migrate(cmd.Context()); err != nil {
				return err
			}
			app.log.Info().Str("db", app.cfg.DBPath).Msg("schema up to date")
			return nil
		},
	}

	var seedFile, seedScenario string
	var seedReset bool
	seed := &cobra.Command{
		Use:   "seed",
		Short: "Apply a YAML fixture or embedded scenario",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.Context(), flags, seedFile, seedScenario, seedReset)
		},
	}
	seed.Flags().StringVar(&seedFile, "file", "", "YAML fixture file")
	seed.Flags().StringVar(&seedScenario, "scenario", "", "Embedded scenario id")
	seed.Flags().BoolVar(&seedReset, "reset", false, "Clear the database first")
	seed.MarkFlagsMutuallyExclusive("file", "scenario")

	root.AddCommand(serve, migrate, seed)
	return root
}

func runServe(ctx context.Context, flags globalFlags) error {
	app, err := newApp(flags)
	if err != nil {
		return err
	}
	defer app.close()

	handler := api.NewHandler(app.store, app.production, app.staffing, logging.WithComponent(app.log, "api"))
	server := &http.Server{
		Addr:         app.cfg.Addr(),
		Handler:      api.NewRouter(handler, app.cfg.CORSOrigins),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	monitor := api.NewLowStockMonitor(app.store, app.log)
	monitor.CheckInterval = app.cfg.LowStockInterval
	monitor.Enabled = app.cfg.LowStockInterval > 0

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		app.log.Info().Str("addr", server.Addr).Str("version", version).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return monitor.Run(ctx)
	})

	g.Go(func() error {
		<-ctx.Done()
		app.log.Info().Msg("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	app.log.Info().Msg("server stopped")
	return nil
}

func runSeed(ctx context.Context, flags globalFlags, file, scenario string, reset bool) error {
	if file == "" && scenario == "" {
		return errors.New("one of --file or --scenario is required")
	}

	var (
		fx  factory.Fixture
		err error
	)
	if file != "" {
		fx, err = factory.LoadFixtureFile(file)
	} else {
		fx, err = factory.LoadScenario(scenario)
	}
	if err != nil {
		return err
	}

	app, err := newApp(flags)
	if err != nil {
		return err
	}
	defer app.close()

	if ctx == nil {
		ctx = context.Background()
	}
	if reset {
		if err := app.store.Reset(ctx); err != nil {
			return fmt.Errorf("failed to reset database: %w", err)
		}
	}

	sum, err := factory.NewSeeder(app.production, app.staffing, app.log).Apply(ctx, fx)
	if err != nil {
		return err
	}
	app.log.Info().
		Str("fixture", fx.Name).
		Int("resources", sum.Resources).
		Int("employees", sum.Employees).
		Strs("orders", sum.Orders).
		Strs("invoices", sum.Invoices).
		Msg("fixture applied")
	return nil
}

// =============================================================================
// WIRING
// =============================================================================

type app struct {
	cfg        config.Config
	log        zerolog.Logger
	store      *sqlite.Store
	production *production.Service
	staffing   *staffing.Service
}

func newApp(flags globalFlags) (*app, error) {
	cfg, err := config.Load(flags.envFile)
	if err != nil {
		return nil, err
	}
	if flags.dbPath != "" {
		cfg.DBPath = flags.dbPath
	}
	if flags.port != 0 {
		cfg.Port = flags.port
	}
	if flags.logLevel != "" {
		cfg.LogLevel = flags.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log, err := logging.Setup(cfg.Logging())
	if err != nil {
		return nil, err
	}

	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	ledger := generic.NewResourceLedger(store, logging.WithComponent(log, "ledger"))
	guard := generic.NewApprovalGuard(store, store, logging.WithComponent(log, "approvals"))

	return &app{
		cfg:        cfg,
		log:        log,
		store:      store,
		production: production.NewService(store, ledger, guard, cfg.InvoiceConfig(), logging.WithComponent(log, "production")),
		staffing:   staffing.NewService(store, ledger, guard, defaultCalendar(), logging.WithComponent(log, "staffing")),
	}, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.log.Error().Err(err).Msg("failed to close database")
	}
}

// defaultCalendar holds the fixed-date public holidays excluded from leave.
func defaultCalendar() generic.StaticCalendar {
	return generic.StaticCalendar{
		{Date: time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC), Name: "New Year's Day", Recurring: true},
		{Date: time.Date(2000, time.December, 25, 0, 0, 0, 0, time.UTC), Name: "Christmas Day", Recurring: true},
		{Date: time.Date(2000, time.December, 26, 0, 0, 0, 0, time.UTC), Name: "Boxing Day", Recurring: true},
	}
}
