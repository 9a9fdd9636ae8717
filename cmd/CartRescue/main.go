package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/BTreeMap/CartRescue/internal/api"
	"github.com/BTreeMap/CartRescue/internal/email"
	"github.com/BTreeMap/CartRescue/internal/pipeline"
	"github.com/BTreeMap/CartRescue/internal/scheduler"
	"github.com/BTreeMap/CartRescue/internal/store"
	"github.com/BTreeMap/CartRescue/internal/util"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for CartRescue state data
	DefaultStateDir = "/var/lib/cartrescue"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "cartrescue.db"
)

func main() {
	// Initialize structured logger
	initializeLogger()

	// Load environment configuration
	config := loadEnvironmentConfig()

	// Parse command line flags
	flags := parseCommandLineFlags(config)

	slog.Info("Bootstrapping CartRescue with configured modules")
	if err := run(flags); err != nil {
		slog.Error("CartRescue failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("CartRescue exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL   string
	StateDir      string
	APIAddr       string
	BaseURL       string
	TriggerSecret string
	Schedule      string
	MinAge        time.Duration
	MaxAge        time.Duration
	SendTimeout   time.Duration
	RunBudget     time.Duration
	Workers       int
	BatchLimit    int
}

// Flags holds command line flag values
type Flags struct {
	dbDSN         *string
	apiAddr       *string
	baseURL       *string
	triggerSecret *string
	schedule      *string
	minAge        *time.Duration
	maxAge        *time.Duration
	workers       *int
	config        Config
}

// initializeLogger sets up structured logging with debug level
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DatabaseURL:   os.Getenv("CARTRESCUE_DB_DSN"),
		StateDir:      os.Getenv("CARTRESCUE_STATE_DIR"),
		APIAddr:       os.Getenv("API_ADDR"),
		BaseURL:       os.Getenv("CARTRESCUE_BASE_URL"),
		TriggerSecret: os.Getenv("CARTRESCUE_TRIGGER_SECRET"),
		Schedule:      os.Getenv("CARTRESCUE_SCHEDULE"),
		MinAge:        util.ParseDurationEnv("CARTRESCUE_MIN_AGE", pipeline.DefaultMinAge),
		MaxAge:        util.ParseDurationEnv("CARTRESCUE_MAX_AGE", pipeline.DefaultMaxAge),
		SendTimeout:   util.ParseDurationEnv("CARTRESCUE_SEND_TIMEOUT", pipeline.DefaultSendTimeout),
		RunBudget:     util.ParseDurationEnv("CARTRESCUE_RUN_BUDGET", pipeline.DefaultRunBudget),
		Workers:       util.ParseIntEnv("CARTRESCUE_WORKERS", pipeline.DefaultWorkers),
		BatchLimit:    util.ParseIntEnv("CARTRESCUE_BATCH_LIMIT", pipeline.DefaultBatchLimit),
	}

	// Fall back to the shared DATABASE_URL if no specific DSN is set
	if config.DatabaseURL == "" {
		config.DatabaseURL = os.Getenv("DATABASE_URL")
	}

	// Set default state directory if not specified
	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No CARTRESCUE_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}

	// If no database URL is provided, default to SQLite in the state directory
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"CARTRESCUE_DB_DSN_SET", config.DatabaseURL != "",
		"CARTRESCUE_STATE_DIR", config.StateDir,
		"API_ADDR", config.APIAddr,
		"CARTRESCUE_BASE_URL", config.BaseURL,
		"CARTRESCUE_TRIGGER_SECRET_SET", config.TriggerSecret != "",
		"CARTRESCUE_SCHEDULE", config.Schedule,
		"CARTRESCUE_MIN_AGE", config.MinAge,
		"CARTRESCUE_MAX_AGE", config.MaxAge)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		dbDSN:         flag.String("db-dsn", config.DatabaseURL, "database DSN for the cart store (overrides $CARTRESCUE_DB_DSN or $DATABASE_URL)"),
		apiAddr:       flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		baseURL:       flag.String("base-url", config.BaseURL, "base URL for recovery links (overrides $CARTRESCUE_BASE_URL)"),
		triggerSecret: flag.String("trigger-secret", config.TriggerSecret, "shared secret for the trigger endpoint (overrides $CARTRESCUE_TRIGGER_SECRET)"),
		schedule:      flag.String("schedule", config.Schedule, "cron expression for in-process sweeps (overrides $CARTRESCUE_SCHEDULE)"),
		minAge:        flag.Duration("min-age", config.MinAge, "minimum cart staleness (overrides $CARTRESCUE_MIN_AGE)"),
		maxAge:        flag.Duration("max-age", config.MaxAge, "maximum cart staleness (overrides $CARTRESCUE_MAX_AGE)"),
		workers:       flag.Int("workers", config.Workers, "bounded concurrency for cart dispatch (overrides $CARTRESCUE_WORKERS)"),
		config:        config,
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"dbDSN_set", *flags.dbDSN != "",
		"apiAddr", *flags.apiAddr,
		"baseURL", *flags.baseURL,
		"triggerSecretSet", *flags.triggerSecret != "",
		"schedule", *flags.schedule,
		"minAge", *flags.minAge,
		"maxAge", *flags.maxAge,
		"workers", *flags.workers)

	return flags
}

// buildStore constructs the cart store from the DSN, detecting the backend type.
func buildStore(dsn string) (store.CartStore, error) {
	if store.DetectDSNType(dsn) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_type", "postgresql")
		return store.NewPostgresStore(store.WithPostgresDSN(dsn))
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "dsn_type", "sqlite", "db_path", dsn)
	return store.NewSQLiteStore(store.WithSQLiteDSN(dsn))
}

// run wires all modules together and blocks until shutdown.
func run(flags Flags) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := buildStore(*flags.dbDSN)
	if err != nil {
		return err
	}
	defer st.Close()

	sender, err := email.NewSESSender(ctx)
	if err != nil {
		return err
	}

	pipe := pipeline.New(st, sender, pipeline.Config{
		MinAge:      *flags.minAge,
		MaxAge:      *flags.maxAge,
		BaseURL:     *flags.baseURL,
		Workers:     *flags.workers,
		SendTimeout: flags.config.SendTimeout,
		RunBudget:   flags.config.RunBudget,
		BatchLimit:  flags.config.BatchLimit,
	})

	// Optional in-process cron trigger; the HTTP endpoint stays available
	// either way and overlapping invocations are safe by design.
	if *flags.schedule != "" {
		sched := scheduler.NewScheduler()
		defer sched.Stop()
		err := sched.AddJob(*flags.schedule, func() {
			report, runErr := pipe.Run(context.Background())
			if runErr != nil {
				slog.Error("scheduled sweep failed", "runID", report.RunID, "error", runErr)
				return
			}
			slog.Info("scheduled sweep completed", "runID", report.RunID, "processed", report.Processed, "sent", report.Sent)
		})
		if err != nil {
			return err
		}
		slog.Info("In-process sweep schedule registered", "schedule", *flags.schedule)
	}

	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	if *flags.triggerSecret != "" {
		apiOpts = append(apiOpts, api.WithTriggerSecret(*flags.triggerSecret))
	}

	server := api.NewServer(st, pipe, apiOpts...)
	return server.Run(ctx)
}
