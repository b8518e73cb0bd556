package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/amoria-labs/followup/internal/api"
	"github.com/amoria-labs/followup/internal/followup"
	"github.com/amoria-labs/followup/internal/genai"
	"github.com/amoria-labs/followup/internal/scheduler"
	"github.com/amoria-labs/followup/internal/store"
	"github.com/amoria-labs/followup/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for follow-up state data
	DefaultStateDir = "/var/lib/followup"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "followup.db"
	// ProcessorCronExpr runs the due-action processor every minute
	ProcessorCronExpr = "* * * * *"
	// ShutdownTimeout bounds graceful HTTP shutdown
	ShutdownTimeout = 10 * time.Second
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	if err := run(flags); err != nil {
		slog.Error("followupd failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("followupd exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL string
	FollowUpDSN string
	StateDir    string
	OpenAIKey   string
	OpenAIModel string
	APIAddr     string
}

// Flags holds command line flag values
type Flags struct {
	stateDir      *string
	dbDSN         *string
	openaiKey     *string
	openaiModel   *string
	apiAddr       *string
	enableTrigger *bool
	graceMinutes  *int
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
		DatabaseURL: os.Getenv("DATABASE_URL"),
		FollowUpDSN: os.Getenv("FOLLOWUP_DB_DSN"),
		StateDir:    os.Getenv("FOLLOWUP_STATE_DIR"),
		OpenAIKey:   os.Getenv("OPENAI_API_KEY"),
		OpenAIModel: os.Getenv("OPENAI_MODEL"),
		APIAddr:     os.Getenv("API_ADDR"),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No FOLLOWUP_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}

	// Prefer the specific DSN, fall back to DATABASE_URL, then to SQLite in
	// the state directory.
	if config.FollowUpDSN == "" {
		config.FollowUpDSN = config.DatabaseURL
	}
	if config.FollowUpDSN == "" {
		config.FollowUpDSN = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.FollowUpDSN)
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"FOLLOWUP_DB_DSN_SET", config.FollowUpDSN != "",
		"FOLLOWUP_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"API_ADDR", config.APIAddr)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:      flag.String("state-dir", config.StateDir, "state directory for follow-up data (overrides $FOLLOWUP_STATE_DIR)"),
		dbDSN:         flag.String("db-dsn", config.FollowUpDSN, "database DSN for the follow-up store (overrides $FOLLOWUP_DB_DSN or $DATABASE_URL)"),
		openaiKey:     flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		openaiModel:   flag.String("openai-model", config.OpenAIModel, "OpenAI chat model (overrides $OPENAI_MODEL)"),
		apiAddr:       flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		enableTrigger: flag.Bool("enable-trigger", util.ParseBoolEnv("FOLLOWUP_ENABLE_TRIGGER", false), "enable the manual trigger endpoint (overrides $FOLLOWUP_ENABLE_TRIGGER)"),
		graceMinutes:  flag.Int("grace-minutes", 60, "minutes past a timer's fire time before the startup reconciler cancels it"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"openaiKeySet", *flags.openaiKey != "",
		"apiAddr", *flags.apiAddr,
		"enableTrigger", *flags.enableTrigger,
		"graceMinutes", *flags.graceMinutes)

	// Update database DSN if not explicitly set but state directory is provided
	if *flags.dbDSN == config.FollowUpDSN && config.FollowUpDSN == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "new_state_dir", *flags.stateDir)
	}

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	if store.DetectDSNType(*flags.dbDSN) == "sqlite" {
		stateDir := filepath.Dir(*flags.dbDSN)
		slog.Debug("Creating state directory for file-based database", "state_dir", stateDir)
		if err := os.MkdirAll(stateDir, 0755); err != nil {
			slog.Error("Failed to create state directory", "error", err, "state_dir", stateDir)
			return err
		}
	}
	return nil
}

// run wires the modules together and blocks until shutdown.
func run(flags Flags) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.NewStore(store.WithDSN(*flags.dbDSN))
	if err != nil {
		return err
	}
	defer st.Close()

	// Without an API key the service falls back to template content.
	var gen genai.TextGenerator
	if *flags.openaiKey != "" {
		var genaiOpts []genai.Option
		genaiOpts = append(genaiOpts, genai.WithAPIKey(*flags.openaiKey))
		if *flags.openaiModel != "" {
			genaiOpts = append(genaiOpts, genai.WithModel(*flags.openaiModel))
		}
		client, err := genai.NewClient(genaiOpts...)
		if err != nil {
			return err
		}
		gen = client
	} else {
		slog.Warn("No OpenAI API key configured, follow-up content will use fallback templates")
	}

	svc := followup.NewService(st, gen,
		followup.WithGraceThreshold(time.Duration(*flags.graceMinutes)*time.Minute))

	// Startup reconciliation before the first sweep.
	if err := svc.ReconcileOverdueTimers(ctx); err != nil {
		return err
	}

	sched := scheduler.NewScheduler()
	defer sched.Stop()
	if err := sched.AddJob(ProcessorCronExpr, func() {
		svc.ProcessDueSchedules(context.Background())
	}); err != nil {
		return err
	}

	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	if *flags.enableTrigger {
		apiOpts = append(apiOpts, api.WithManualTrigger())
	}
	srv := api.NewServer(svc, apiOpts...)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		slog.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
