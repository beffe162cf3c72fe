// Command dragent runs the conversational medical intake bot.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/dragent-dev/dragent/internal/genai"
	"github.com/dragent-dev/dragent/internal/intake"
	"github.com/dragent-dev/dragent/internal/lockfile"
	"github.com/dragent-dev/dragent/internal/messaging"
	"github.com/dragent-dev/dragent/internal/questions"
	"github.com/dragent-dev/dragent/internal/store"
	"github.com/dragent-dev/dragent/internal/util"
	"github.com/dragent-dev/dragent/internal/visit"
	"github.com/dragent-dev/dragent/internal/whatsapp"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for bot state data
	DefaultStateDir = "/var/lib/dragent"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "dragent.db"
	// DefaultWhatsAppDBFileName is the default whatsmeow SQLite filename
	DefaultWhatsAppDBFileName = "whatsmeow.db"
)

func main() {
	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)
	initializeLogger(*flags.logLevel)

	if err := run(flags); err != nil {
		slog.Error("dragent failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("dragent exited successfully")
}

// Config holds environment configuration
type Config struct {
	StateDir      string
	DatabaseURL   string
	Transport     string
	TelegramToken string
	BotUsername   string
	APIKey        string
	APIBase       string
	Model         string
	QuestionsPath string
	ReportPath    string
	LogLevel      string
}

// Flags holds command line flag values
type Flags struct {
	stateDir      *string
	dbDSN         *string
	transport     *string
	telegramToken *string
	botUsername   *string
	apiKey        *string
	apiBase       *string
	model         *string
	questionsPath *string
	reportPath    *string
	logLevel      *string
	qrOutput      *string
	numeric       *bool
}

// initializeLogger sets up structured logging at the configured level
func initializeLogger(level string) {
	lvl := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	config := Config{
		StateDir:      util.GetEnv("DRAGENT_STATE_DIR", DefaultStateDir),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		Transport:     util.GetEnv("TRANSPORT", "telegram"),
		TelegramToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		BotUsername:   os.Getenv("BOT_USERNAME"),
		APIKey:        os.Getenv("MISTRAL_API_KEY"),
		APIBase:       os.Getenv("MISTRAL_API_BASE"),
		Model:         os.Getenv("GENAI_MODEL"),
		QuestionsPath: os.Getenv("QUESTIONS_PATH"),
		ReportPath:    os.Getenv("MARKDOWN_REPORT_PATH"),
		LogLevel:      util.GetEnv("LOG_LEVEL", "info"),
	}

	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:      flag.String("state-dir", config.StateDir, "state directory for bot data (overrides $DRAGENT_STATE_DIR)"),
		dbDSN:         flag.String("db-dsn", config.DatabaseURL, "database DSN for the patient/visit store (overrides $DATABASE_URL)"),
		transport:     flag.String("transport", config.Transport, "chat transport: telegram or whatsapp (overrides $TRANSPORT)"),
		telegramToken: flag.String("telegram-token", config.TelegramToken, "Telegram bot token (overrides $TELEGRAM_BOT_TOKEN)"),
		botUsername:   flag.String("bot-username", config.BotUsername, "bot username for visit deep links (overrides $BOT_USERNAME)"),
		apiKey:        flag.String("api-key", config.APIKey, "completion API key (overrides $MISTRAL_API_KEY)"),
		apiBase:       flag.String("api-base", config.APIBase, "completion API base URL (overrides $MISTRAL_API_BASE)"),
		model:         flag.String("model", config.Model, "completion model name (overrides $GENAI_MODEL)"),
		questionsPath: flag.String("questions", config.QuestionsPath, "path to a question bank JSON file (overrides $QUESTIONS_PATH; embedded default when empty)"),
		reportPath:    flag.String("report-path", config.ReportPath, "path of the markdown visit log (overrides $MARKDOWN_REPORT_PATH; disabled when empty)"),
		logLevel:      flag.String("log-level", config.LogLevel, "log level: debug, info, warn, error (overrides $LOG_LEVEL)"),
		qrOutput:      flag.String("qr-output", "", "path to write WhatsApp login QR code"),
		numeric:       flag.Bool("numeric-code", false, "use numeric WhatsApp login code instead of QR code"),
	}

	flag.Parse()
	return flags
}

// ensureDirectoriesExist creates the state directory when missing
func ensureDirectoriesExist(stateDir string) error {
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return fmt.Errorf("failed to create state directory %s: %w", stateDir, err)
	}
	return nil
}

func run(flags Flags) error {
	if err := ensureDirectoriesExist(*flags.stateDir); err != nil {
		return err
	}

	// Single instance per state directory.
	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		return err
	}
	defer lock.Release()

	st, err := openStore(*flags.dbDSN)
	if err != nil {
		return err
	}
	defer st.Close()

	sections, err := questions.LoadSections(*flags.questionsPath)
	if err != nil {
		return err
	}

	genaiOpts := []genai.Option{
		genai.WithOuterRetry(
			util.ParseIntEnv("GENAI_OUTER_ATTEMPTS", genai.DefaultOuterAttempts),
			util.ParseDurationEnv("GENAI_OUTER_INTERVAL", genai.DefaultOuterInterval),
		),
	}
	if rps := util.ParseIntEnv("GENAI_REQUESTS_PER_SEC", 0); rps > 0 {
		genaiOpts = append(genaiOpts, genai.WithRateLimit(float64(rps)))
	}
	if *flags.apiKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(*flags.apiKey))
	}
	if *flags.apiBase != "" {
		genaiOpts = append(genaiOpts, genai.WithBaseURL(*flags.apiBase))
	}
	if *flags.model != "" {
		genaiOpts = append(genaiOpts, genai.WithModel(*flags.model))
	}
	completer, err := genai.NewClient(genaiOpts...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, botUsername, err := buildTransport(ctx, flags)
	if err != nil {
		return err
	}

	var exporter intake.Exporter
	if *flags.reportPath != "" {
		exporter = visit.NewMarkdownExporter(*flags.reportPath)
	}

	machine := intake.NewMachine(intake.Config{
		Store:       st,
		Sections:    sections,
		Transport:   svc,
		Completer:   completer,
		Exporter:    exporter,
		BotUsername: botUsername,
	})

	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start transport: %w", err)
	}
	defer svc.Stop()

	slog.Info("dragent running", "transport", *flags.transport, "sections", len(sections), "bot_username_set", botUsername != "")

	router := messaging.NewRouter(svc, machine)
	router.Run(ctx)
	return nil
}

// openStore selects the storage backend from the DSN shape.
func openStore(dsn string) (store.Store, error) {
	if dsn == "" {
		slog.Warn("No database DSN provided, using in-memory store")
		return store.NewInMemoryStore(), nil
	}
	if store.DetectDSNType(dsn) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store")
		return store.NewPostgresStore(store.WithDSN(dsn))
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", dsn)
	return store.NewSQLiteStore(store.WithDSN(dsn))
}

// buildTransport creates the configured chat transport and resolves the bot
// username used in visit deep links.
func buildTransport(ctx context.Context, flags Flags) (messaging.Service, string, error) {
	switch *flags.transport {
	case "telegram":
		svc, err := messaging.NewTelegramService(messaging.WithTelegramToken(*flags.telegramToken))
		if err != nil {
			return nil, "", err
		}
		botUsername := *flags.botUsername
		if botUsername == "" {
			botUsername, err = svc.BotUsername(ctx)
			if err != nil {
				slog.Warn("Failed to resolve bot username, visit links disabled", "error", err)
				botUsername = ""
			}
		}
		return svc, botUsername, nil

	case "whatsapp":
		waOpts := []whatsapp.Option{
			whatsapp.WithDBDSN(filepath.Join(*flags.stateDir, DefaultWhatsAppDBFileName)),
		}
		if *flags.qrOutput != "" {
			waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
		}
		if *flags.numeric || util.ParseBoolEnv("WHATSAPP_NUMERIC_CODE", false) {
			waOpts = append(waOpts, whatsapp.WithNumericCode())
		}
		client, err := whatsapp.NewClient(waOpts...)
		if err != nil {
			return nil, "", err
		}
		// WhatsApp has no /start deep links; visit links stay disabled.
		return messaging.NewWhatsAppService(client), *flags.botUsername, nil

	default:
		return nil, "", fmt.Errorf("unknown transport %q", *flags.transport)
	}
}
