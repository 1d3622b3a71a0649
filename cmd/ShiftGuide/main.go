package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/BTreeMap/ShiftGuide/internal/api"
	"github.com/BTreeMap/ShiftGuide/internal/assist"
	"github.com/BTreeMap/ShiftGuide/internal/flow"
	"github.com/BTreeMap/ShiftGuide/internal/genai"
	"github.com/BTreeMap/ShiftGuide/internal/lockfile"
	"github.com/BTreeMap/ShiftGuide/internal/messaging"
	"github.com/BTreeMap/ShiftGuide/internal/metrics"
	"github.com/BTreeMap/ShiftGuide/internal/protocol"
	"github.com/BTreeMap/ShiftGuide/internal/recovery"
	"github.com/BTreeMap/ShiftGuide/internal/scheduler"
	"github.com/BTreeMap/ShiftGuide/internal/store"
	"github.com/BTreeMap/ShiftGuide/internal/twiliowhatsapp"
	"github.com/BTreeMap/ShiftGuide/internal/util"
	"github.com/BTreeMap/ShiftGuide/internal/whatsapp"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for ShiftGuide state data
	DefaultStateDir = "/var/lib/shiftguide"
	// DefaultWhatsAppDBFileName is the whatsmeow device store inside the state directory
	DefaultWhatsAppDBFileName = "whatsmeow.db"
	// DefaultSessionRetention keeps finished session records for a month
	DefaultSessionRetention = 30 * 24 * time.Hour
)

// Provider and channel names accepted by GENAI_PROVIDER and CHANNEL.
const (
	ProviderNone      = "none"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"

	ChannelNone = "none"
)

// Config holds the resolved configuration: .env, then environment, then flags.
type Config struct {
	StateDir    string
	DatabaseURL string
	APIAddr     string

	GenAIProvider    string
	OpenAIKey        string
	AnthropicKey     string
	GenAIModel       string
	GenAITimeout     time.Duration
	GenAIDebug       bool
	AssistMaxCalls   int
	AssistMaxCost    float64
	AssistEnabled    bool
	SnapshotMeta     bool
	IdleTimeout      time.Duration
	Retention        time.Duration
	SweepSchedule    string
	Channel          string
	WhatsAppDBDSN    string
	QROutput         string
	NumericCode      bool
	TwilioSID        string
	TwilioToken      string
	TwilioFrom       string
	TwilioWebhookURL string
}

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	if err := parseCommandLineFlags(flag.CommandLine, os.Args[1:], &config); err != nil {
		slog.Error("Failed to parse flags", "error", err)
		os.Exit(2)
	}

	lock, err := lockfile.AcquireLock(config.StateDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, config)
	stop()
	lock.Release()
	if err != nil {
		slog.Error("ShiftGuide failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("ShiftGuide exited successfully")
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
		StateDir:         os.Getenv("SHIFTGUIDE_STATE_DIR"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		APIAddr:          os.Getenv("API_ADDR"),
		GenAIProvider:    strings.ToLower(strings.TrimSpace(os.Getenv("GENAI_PROVIDER"))),
		OpenAIKey:        os.Getenv("OPENAI_API_KEY"),
		AnthropicKey:     os.Getenv("ANTHROPIC_API_KEY"),
		GenAIModel:       os.Getenv("GENAI_MODEL"),
		GenAITimeout:     util.ParseDurationEnv("GENAI_TIMEOUT", assist.DefaultTimeout),
		GenAIDebug:       util.ParseBoolEnv("GENAI_DEBUG", false),
		AssistMaxCalls:   util.ParseIntEnv("ASSIST_MAX_CALLS", assist.DefaultMaxCalls),
		AssistMaxCost:    util.ParseFloatEnv("ASSIST_MAX_COST", assist.DefaultMaxCost),
		AssistEnabled:    util.ParseBoolEnv("ASSIST_ENABLED", true),
		SnapshotMeta:     util.ParseBoolEnv("SNAPSHOT_METADATA", false),
		IdleTimeout:      util.ParseDurationEnv("SESSION_IDLE_TIMEOUT", 0),
		Retention:        util.ParseDurationEnv("SESSION_RETENTION", DefaultSessionRetention),
		SweepSchedule:    os.Getenv("SWEEP_SCHEDULE"),
		Channel:          strings.ToLower(strings.TrimSpace(os.Getenv("CHANNEL"))),
		WhatsAppDBDSN:    os.Getenv("WHATSAPP_DB_DSN"),
		TwilioSID:        os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioToken:      os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFrom:       os.Getenv("TWILIO_FROM_NUMBER"),
		TwilioWebhookURL: os.Getenv("TWILIO_WEBHOOK_URL"),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No SHIFTGUIDE_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}
	if config.APIAddr == "" {
		config.APIAddr = api.DefaultAddr
	}
	if config.SweepSchedule == "" {
		config.SweepSchedule = scheduler.DefaultSweepSchedule
	}
	if config.Channel == "" {
		config.Channel = ChannelNone
	}
	if config.GenAIProvider == "" {
		config.GenAIProvider = defaultProvider(config)
	}

	slog.Debug("environment variables loaded",
		"SHIFTGUIDE_STATE_DIR", config.StateDir,
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"API_ADDR", config.APIAddr,
		"GENAI_PROVIDER", config.GenAIProvider,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"ANTHROPIC_API_KEY_SET", config.AnthropicKey != "",
		"GENAI_MODEL", config.GenAIModel,
		"CHANNEL", config.Channel,
		"SESSION_IDLE_TIMEOUT", config.IdleTimeout,
		"SWEEP_SCHEDULE", config.SweepSchedule)

	return config
}

// defaultProvider picks a provider from whichever API key is present.
func defaultProvider(config Config) string {
	switch {
	case config.OpenAIKey != "":
		return ProviderOpenAI
	case config.AnthropicKey != "":
		return ProviderAnthropic
	default:
		return ProviderNone
	}
}

// parseCommandLineFlags overrides config with any flags given in args.
func parseCommandLineFlags(fs *flag.FlagSet, args []string, config *Config) error {
	fs.StringVar(&config.StateDir, "state-dir", config.StateDir, "state directory for ShiftGuide data (overrides $SHIFTGUIDE_STATE_DIR)")
	fs.StringVar(&config.DatabaseURL, "db-dsn", config.DatabaseURL, "session store DSN, SQLite path or PostgreSQL URL (overrides $DATABASE_URL)")
	fs.StringVar(&config.APIAddr, "api-addr", config.APIAddr, "API server address (overrides $API_ADDR)")
	fs.StringVar(&config.GenAIProvider, "genai-provider", config.GenAIProvider, "completion provider: none, openai or anthropic (overrides $GENAI_PROVIDER)")
	fs.StringVar(&config.GenAIModel, "genai-model", config.GenAIModel, "completion model (overrides $GENAI_MODEL)")
	fs.StringVar(&config.Channel, "channel", config.Channel, "text channel: none, whatsapp or twilio (overrides $CHANNEL)")
	fs.StringVar(&config.WhatsAppDBDSN, "whatsapp-db-dsn", config.WhatsAppDBDSN, "whatsmeow device store DSN (overrides $WHATSAPP_DB_DSN)")
	fs.StringVar(&config.QROutput, "qr-output", config.QROutput, "path to write login QR code")
	fs.BoolVar(&config.NumericCode, "numeric-code", config.NumericCode, "use numeric login code instead of QR code")
	fs.StringVar(&config.SweepSchedule, "sweep-schedule", config.SweepSchedule, "cron schedule of the session sweeper (overrides $SWEEP_SCHEDULE)")
	fs.DurationVar(&config.IdleTimeout, "idle-timeout", config.IdleTimeout, "abandon sessions idle this long, 0 disables (overrides $SESSION_IDLE_TIMEOUT)")
	fs.BoolVar(&config.SnapshotMeta, "snapshot-metadata", config.SnapshotMeta, "include metadata in turn output (overrides $SNAPSHOT_METADATA)")

	if err := fs.Parse(args); err != nil {
		return err
	}
	config.GenAIProvider = strings.ToLower(config.GenAIProvider)
	config.Channel = strings.ToLower(config.Channel)

	if config.WhatsAppDBDSN == "" {
		config.WhatsAppDBDSN = "file:" + filepath.Join(config.StateDir, DefaultWhatsAppDBFileName) + "?_foreign_keys=on"
	}

	slog.Debug("flags parsed",
		"stateDir", config.StateDir,
		"dbDSN_set", config.DatabaseURL != "",
		"apiAddr", config.APIAddr,
		"genaiProvider", config.GenAIProvider,
		"channel", config.Channel,
		"sweepSchedule", config.SweepSchedule)
	return nil
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(config Config) []store.Option {
	if config.DatabaseURL == "" {
		slog.Debug("No database DSN provided, will use in-memory store")
		return nil
	}
	if store.DetectDSNType(config.DatabaseURL) == store.DSNTypePostgres {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_set", true)
		return []store.Option{store.WithPostgresDSN(config.DatabaseURL)}
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", config.DatabaseURL)
	return []store.Option{store.WithSQLiteDSN(config.DatabaseURL)}
}

// buildCompleter creates the completion client for the configured provider. It returns
// nil when no provider is configured.
func buildCompleter(config Config) (genai.Completer, error) {
	opts := []genai.Option{genai.WithDebugMode(config.GenAIDebug), genai.WithStateDir(config.StateDir)}
	if config.GenAIModel != "" {
		opts = append(opts, genai.WithModel(config.GenAIModel))
	}
	switch config.GenAIProvider {
	case ProviderNone:
		return nil, nil
	case ProviderOpenAI:
		return genai.NewClient(append(opts, genai.WithAPIKey(config.OpenAIKey))...)
	case ProviderAnthropic:
		return genai.NewAnthropicClient(append(opts, genai.WithAPIKey(config.AnthropicKey))...)
	default:
		return nil, fmt.Errorf("unknown GENAI_PROVIDER %q", config.GenAIProvider)
	}
}

// buildChannel creates the configured text channel. The returned handler is the Twilio
// webhook, nil for other channels.
func buildChannel(ctx context.Context, config Config) (messaging.Service, http.HandlerFunc, error) {
	switch config.Channel {
	case ChannelNone:
		return nil, nil, nil
	case messaging.ChannelWhatsApp:
		var waOpts []whatsapp.Option
		waOpts = append(waOpts, whatsapp.WithDBDSN(config.WhatsAppDBDSN))
		if config.QROutput != "" {
			waOpts = append(waOpts, whatsapp.WithQRCodeOutput(config.QROutput))
		}
		if config.NumericCode {
			waOpts = append(waOpts, whatsapp.WithNumericCode())
		}
		client, err := whatsapp.NewClient(ctx, waOpts...)
		if err != nil {
			return nil, nil, err
		}
		return messaging.NewWhatsAppService(client), nil, nil
	case messaging.ChannelTwilio:
		client, err := twiliowhatsapp.NewClient(
			twiliowhatsapp.WithAccountSID(config.TwilioSID),
			twiliowhatsapp.WithAuthToken(config.TwilioToken),
			twiliowhatsapp.WithFrom(config.TwilioFrom),
		)
		if err != nil {
			return nil, nil, err
		}
		var svcOpts []messaging.TwilioOption
		if config.TwilioWebhookURL != "" {
			svcOpts = append(svcOpts, messaging.WithSignatureValidation(config.TwilioToken, config.TwilioWebhookURL))
		} else {
			slog.Warn("TWILIO_WEBHOOK_URL not set; webhook signatures are not validated")
		}
		svc := messaging.NewTwilioService(client, svcOpts...)
		return svc, svc.TwilioWebhookHandler, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", messaging.ErrUnknownChannel, config.Channel)
	}
}

// run wires every component and blocks until ctx is cancelled or one of them fails.
func run(ctx context.Context, config Config) error {
	slog.Info("Bootstrapping ShiftGuide", "state_dir", config.StateDir, "provider", config.GenAIProvider, "channel", config.Channel)

	st, err := store.New(buildStoreOptions(config)...)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	recorder := metrics.NewPrometheusRecorder(prometheus.DefaultRegisterer)

	engineOpts := []flow.Option{
		flow.WithMetrics(recorder),
		flow.WithSnapshotMetadata(config.SnapshotMeta),
	}
	apiOpts := []api.Option{
		api.WithAddr(config.APIAddr),
		api.WithMetricsHandler(promhttp.Handler()),
	}

	if config.AssistEnabled {
		completer, err := buildCompleter(config)
		if err != nil {
			return fmt.Errorf("failed to create completion client: %w", err)
		}
		assistOpts := []assist.Option{
			assist.WithMaxCalls(config.AssistMaxCalls),
			assist.WithMaxCost(config.AssistMaxCost),
			assist.WithTimeout(config.GenAITimeout),
			assist.WithRecorder(recorder),
		}
		if config.GenAIModel != "" {
			assistOpts = append(assistOpts, assist.WithModel(config.GenAIModel))
		}
		manager, err := assist.NewManager(completer, st, assistOpts...)
		if err != nil {
			return fmt.Errorf("failed to create assistance manager: %w", err)
		}
		engineOpts = append(engineOpts, flow.WithAssistant(manager))
		apiOpts = append(apiOpts, api.WithUsage(manager))
	}

	lib, err := protocol.Default()
	if err != nil {
		return fmt.Errorf("failed to build phase library: %w", err)
	}
	engine, err := flow.NewEngine(lib, st, engineOpts...)
	if err != nil {
		return err
	}
	defer engine.Flush()

	recoveries := recovery.NewRecoveryManager()
	recoveries.RegisterRecoverable(recovery.SessionRecovery(engine))

	svc, webhook, err := buildChannel(ctx, config)
	if err != nil {
		return fmt.Errorf("failed to start %s channel: %w", config.Channel, err)
	}
	var outbox *store.OutboxSender
	var relay *messaging.Relay
	if svc != nil {
		relay = messaging.NewRelay(engine, st, svc)
		outbox = store.NewOutboxSender(st, relay.Deliver, 0)
		recoveries.RegisterRecoverable(recovery.OutboxRecovery(outbox))
		if webhook != nil {
			apiOpts = append(apiOpts, api.WithTwilioWebhook(webhook))
		}
	}

	if err := recoveries.RecoverAll(ctx); err != nil {
		return fmt.Errorf("recovery failed: %w", err)
	}

	sweeper := scheduler.NewSweeper(engine,
		scheduler.WithIdleTimeout(config.IdleTimeout),
		scheduler.WithRetention(st, config.Retention),
	)
	server := api.NewServer(engine, apiOpts...)

	if svc != nil {
		if err := svc.Start(ctx); err != nil {
			return fmt.Errorf("failed to start %s channel: %w", svc.Name(), err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return engine.Run(gctx) })
	g.Go(func() error { return sweeper.Run(gctx, config.SweepSchedule) })
	g.Go(func() error { return server.Run(gctx) })
	if svc != nil {
		g.Go(func() error { return relay.Run(gctx) })
		g.Go(func() error { return outbox.Run(gctx) })
		g.Go(func() error {
			<-gctx.Done()
			return svc.Stop()
		})
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	slog.Info("ShiftGuide shutting down", "active_sessions", engine.ActiveSessions())
	return err
}
