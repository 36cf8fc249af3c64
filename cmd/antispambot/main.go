// Package main provides the antispambot CLI application entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"antispambot/internal/chat/telegram"
	"antispambot/internal/core"
	httpserver "antispambot/internal/http"
	"antispambot/internal/i18n"
	"antispambot/internal/llm"
	"antispambot/internal/scheduler"
	"antispambot/internal/spam"
	"antispambot/internal/store"
)

const envPrefix = "ANTISPAMBOT"

var (
	cfgFile string
	config  *core.Config
	logger  *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "antispambot",
	Short: "antispambot - Telegram group join verification",
	Long: `antispambot restricts new members of a Telegram group until they answer a challenge
question. Members who answer wrong or not at all are removed, and bursts of joins share one
challenge message.`,
	RunE: runAntiSpamBot,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is .env)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "json", "log format (json, console)")
	flags.Bool("telegram-enabled", true, "Enable Telegram integration")
	flags.String("telegram-bot-token", "", "Telegram bot token")
	flags.String("source-url", core.DefaultSourceURL, "URL shown by /source, empty disables the command")
	flags.String("server-host", core.DefaultServerHost, "HTTP server host")
	flags.Int("server-port", core.DefaultServerPort, "HTTP server port")
	flags.String("salt", "", "Secret mixed into challenge button tokens")
	supportedLangs := strings.Join(i18n.GetSupportedLanguages(), ", ")
	flags.String("language", i18n.DefaultLanguage, fmt.Sprintf("Bot language (%s)", supportedLangs))
	flags.Int("store-chat-messages", core.DefaultStoreChatMessages, "Recent messages remembered per chat")
	flags.Int("gc-interval-secs", core.DefaultGCIntervalSecs, "Garbage collection interval in seconds")
	flags.Int("flush-interval-secs", core.DefaultFlushIntervalSecs, "State snapshot interval in seconds")
	flags.Int("at-admins-ratelimit-secs", core.DefaultAtAdminsRateLimitSecs, "Minimum seconds between /admins mentions per chat")
	flags.Int("max-update-age-secs", core.DefaultMaxUpdateAgeSecs, "Messages older than this are ignored")
	flags.String("state-path", core.DefaultStatePath, "SQLite database for chat state")
	flags.Bool("ban-respects-unban-timeout", false, "Lift /ban bans after UNBAN_TIMEOUT like failed challenges")
	flags.String("spam-scorer", core.DefaultSpamScorer, "Display name scorer (heuristic, openai, anthropic, ollama)")
	flags.String("llm-model", "", "LLM model name")
	flags.String("llm-api-key", "", "LLM API key")
	flags.String("llm-base-url", "", "LLM API base URL")
	flags.Int("llm-timeout-secs", core.DefaultLLMTimeoutSecs, "Timeout of a single scorer call in seconds")
	flags.Int("score-cache-size", core.DefaultScoreCacheSize, "Display name scores kept in memory")
	flags.Bool("generate-env-example", false, "Generate .env.example file from current configuration and exit")

	if err := viper.BindPFlags(flags); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bind flags: %v\n", err)
		os.Exit(1)
	}
}

func initConfig() {
	envFile := ".env"
	if cfgFile != "" {
		envFile = cfgFile
	}

	if err := gotenv.Load(envFile); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Error loading .env file: %v\n", err)
		}
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	config = buildConfig()
	logger = buildLogger(config.Log.Level, config.Log.Format)
}

func buildConfig() *core.Config {
	cfg := core.DefaultConfig()

	configureTelegram(cfg)
	configureSpam(cfg)
	configureServer(cfg)
	configureApp(cfg)

	return cfg
}

func configureTelegram(cfg *core.Config) {
	cfg.Telegram.Enabled = viper.GetBool("telegram-enabled")
	cfg.Telegram.BotToken = viper.GetString("telegram-bot-token")
	cfg.Telegram.SourceURL = viper.GetString("source-url")
}

func configureSpam(cfg *core.Config) {
	cfg.Spam.Scorer = viper.GetString("spam-scorer")
	if cfg.Spam.Scorer == "" {
		cfg.Spam.Scorer = core.DefaultSpamScorer
	}
	cfg.Spam.Model = viper.GetString("llm-model")
	cfg.Spam.APIKey = viper.GetString("llm-api-key")
	cfg.Spam.BaseURL = viper.GetString("llm-base-url")
	cfg.Spam.TimeoutSecs = viper.GetInt("llm-timeout-secs")
	cfg.Spam.CacheSize = viper.GetInt("score-cache-size")
	if cfg.Spam.CacheSize <= 0 {
		cfg.Spam.CacheSize = core.DefaultScoreCacheSize
	}
}

func configureServer(cfg *core.Config) {
	cfg.Server.Host = viper.GetString("server-host")
	if cfg.Server.Host == "" {
		cfg.Server.Host = core.DefaultServerHost
	}
	cfg.Server.Port = viper.GetInt("server-port")
	cfg.Log.Level = viper.GetString("log-level")
	cfg.Log.Format = viper.GetString("log-format")
}

func configureApp(cfg *core.Config) {
	cfg.App.Salt = viper.GetString("salt")
	cfg.App.StatePath = viper.GetString("state-path")
	cfg.App.BanRespectsUnbanTimeout = viper.GetBool("ban-respects-unban-timeout")

	cfg.App.StoreChatMessages = positiveOr("store-chat-messages", core.DefaultStoreChatMessages)
	cfg.App.GCIntervalSecs = positiveOr("gc-interval-secs", core.DefaultGCIntervalSecs)
	cfg.App.FlushIntervalSecs = positiveOr("flush-interval-secs", core.DefaultFlushIntervalSecs)
	cfg.App.AtAdminsRateLimitSecs = positiveOr("at-admins-ratelimit-secs", core.DefaultAtAdminsRateLimitSecs)
	cfg.App.MaxUpdateAgeSecs = positiveOr("max-update-age-secs", core.DefaultMaxUpdateAgeSecs)

	cfg.App.Language = viper.GetString("language")
	if cfg.App.Language == "" {
		cfg.App.Language = i18n.DefaultLanguage
	}

	supportedLanguages := i18n.GetSupportedLanguages()
	if !slices.Contains(supportedLanguages, cfg.App.Language) {
		fmt.Fprintf(os.Stderr, "Warning: Unsupported language '%s', falling back to '%s'. Supported languages: %s\n",
			cfg.App.Language, i18n.DefaultLanguage, strings.Join(supportedLanguages, ", "))
		cfg.App.Language = i18n.DefaultLanguage
	}
}

func positiveOr(key string, fallback int) int {
	v := viper.GetInt(key)
	if v <= 0 {
		fmt.Printf("Warning: Invalid %s (%d), using default (%d)\n", key, v, fallback)
		return fallback
	}
	return v
}

func buildLogger(level, format string) *zap.Logger {
	var zapLevel zapcore.Level
	switch strings.ToLower(level) {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	if format == "console" {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)

	builtLogger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("Failed to build logger: %v", err))
	}

	return builtLogger
}

func runAntiSpamBot(cmd *cobra.Command, _ []string) error {
	if viper.GetBool("generate-env-example") {
		return generateEnvExample(cmd)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("Starting antispambot",
		zap.String("spam_scorer", config.Spam.Scorer),
		zap.String("language", config.App.Language),
		zap.String("state_path", config.App.StatePath))

	if err := validateConfig(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	svcs, err := initializeServices(ctx)
	if err != nil {
		return err
	}
	defer svcs.close()

	return runServices(ctx, svcs)
}

type services struct {
	frontend   *telegram.Frontend
	httpServer *httpserver.Server
	engine     *core.Engine
	scheduler  *scheduler.Scheduler
	states     *store.SQLiteStore
}

func (s *services) close() {
	s.scheduler.Stop()
	if err := s.states.Close(); err != nil {
		logger.Debug("Failed to close state store", zap.Error(err))
	}
}

func initializeServices(ctx context.Context) (*services, error) {
	states, err := store.OpenSQLite(config.App.StatePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}

	httpServer := httpserver.NewServer(&config.Server, logger.Named("http"))

	scorer, err := createScorer(httpServer)
	if err != nil {
		_ = states.Close()
		return nil, err
	}

	frontend := telegram.NewFrontend(&telegram.Config{
		BotToken:     config.Telegram.BotToken,
		Enabled:      config.Telegram.Enabled,
		MaxUpdateAge: time.Duration(config.App.MaxUpdateAgeSecs) * time.Second,
		SourceURL:    config.Telegram.SourceURL,
		Language:     config.App.Language,
	}, logger.Named("telegram"))
	if err := frontend.Start(ctx); err != nil {
		_ = states.Close()
		return nil, fmt.Errorf("failed to start telegram frontend: %w", err)
	}

	sched := scheduler.New(logger.Named("scheduler"))
	httpServer.RegisterPendingJobs(sched.Pending)

	engine := core.NewEngine(config, frontend, sched, scorer, states, httpServer, logger.Named("engine"))

	return &services{
		frontend:   frontend,
		httpServer: httpServer,
		engine:     engine,
		scheduler:  sched,
		states:     states,
	}, nil
}

func createScorer(httpServer *httpserver.Server) (spam.Scorer, error) {
	provider, err := llm.NewProvider(&config.Spam, logger.Named("llm"), httpServer.RecordScorerCall)
	if err != nil {
		return nil, fmt.Errorf("failed to create spam scorer: %w", err)
	}

	cached, err := spam.NewCachedScorer(provider, config.Spam.CacheSize)
	if err != nil {
		return nil, err
	}
	return cached, nil
}

func runServices(ctx context.Context, svcs *services) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return svcs.httpServer.Start(gCtx)
	})

	// Restore runs before Listen so no update sees an empty chat state.
	if err := svcs.engine.Restore(gCtx); err != nil {
		logger.Error("Failed to restore chat state", zap.Error(err))
	}

	g.Go(func() error {
		return svcs.engine.Start(gCtx)
	})

	g.Go(func() error {
		return svcs.frontend.Listen(gCtx, svcs.engine)
	})

	svcs.httpServer.SetReady(true)
	logger.Info("antispambot started successfully",
		zap.String("http_addr", fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)))

	if err := g.Wait(); err != nil {
		logger.Error("antispambot stopped with error", zap.Error(err))
		return err
	}

	logger.Info("antispambot stopped gracefully")
	return nil
}

func validateConfig() error {
	if !config.Telegram.Enabled {
		return fmt.Errorf("telegram must be enabled, it is the only chat frontend")
	}
	if config.Telegram.BotToken == "" {
		return fmt.Errorf("telegram bot token is required when Telegram is enabled")
	}
	if config.App.Salt == "" {
		return fmt.Errorf("salt is required to sign challenge buttons")
	}
	if config.App.StatePath == "" {
		return fmt.Errorf("state path is required")
	}

	return validateSpamConfig()
}

func validateSpamConfig() error {
	switch config.Spam.Scorer {
	case llm.ScorerHeuristic, llm.ScorerOllama:
		return nil
	case llm.ScorerOpenAI, llm.ScorerAnthropic:
		if config.Spam.APIKey == "" {
			return fmt.Errorf("LLM API key is required for scorer: %s", config.Spam.Scorer)
		}
		return nil
	default:
		return fmt.Errorf("unsupported spam scorer: %s", config.Spam.Scorer)
	}
}
