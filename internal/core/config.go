package core

import (
	"time"

	"antispambot/internal/i18n"
)

// Configuration defaults.
const (
	DefaultServerHost            = "0.0.0.0"
	DefaultServerPort            = 8080
	DefaultStoreChatMessages     = 200
	DefaultGCIntervalSecs        = 300
	DefaultFlushIntervalSecs     = 60
	DefaultAtAdminsRateLimitSecs = 300
	DefaultMaxUpdateAgeSecs      = 300
	DefaultStatePath             = "./antispambot.db"
	DefaultSpamScorer            = "heuristic"
	DefaultScoreCacheSize        = 4096
	DefaultLLMTimeoutSecs        = 10
	DefaultSourceURL             = "https://github.com/l1v0n1/AntiSpamBot-russian"

	// GCHorizon is the age at which pending participants and stored messages are expired.
	GCHorizon = 2 * time.Hour
	// SettingsSessionTimeout bounds how long a settings edit waits for input.
	SettingsSessionTimeout = 120 * time.Second
	// BanNoticeDelay is how long the /ban command message stays visible.
	BanNoticeDelay = 2 * time.Second
	// RateLimitNoticeDelay is how long the /admins rate limit notice stays visible.
	RateLimitNoticeDelay = 5 * time.Second
	// SendAttempts is how often a challenge message is sent before giving up.
	SendAttempts = 3
)

type Config struct {
	Telegram TelegramConfig
	Spam     SpamConfig
	Server   ServerConfig
	Log      LogConfig
	App      AppConfig
}

type TelegramConfig struct {
	BotToken  string
	Enabled   bool
	SourceURL string
}

// SpamConfig selects the display name scorer. Scorer is one of heuristic,
// openai, anthropic, ollama.
type SpamConfig struct {
	Scorer      string
	Model       string
	APIKey      string
	BaseURL     string
	TimeoutSecs int
	CacheSize   int
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

type AppConfig struct {
	Salt                    string
	Language                string
	StoreChatMessages       int
	GCIntervalSecs          int
	FlushIntervalSecs       int
	AtAdminsRateLimitSecs   int
	MaxUpdateAgeSecs        int
	StatePath               string
	BanRespectsUnbanTimeout bool
}

func DefaultConfig() *Config {
	return &Config{
		Telegram: TelegramConfig{
			Enabled:   true,
			SourceURL: DefaultSourceURL,
		},
		Spam: SpamConfig{
			Scorer:      DefaultSpamScorer,
			TimeoutSecs: DefaultLLMTimeoutSecs,
			CacheSize:   DefaultScoreCacheSize,
		},
		Server: ServerConfig{
			Host:         DefaultServerHost,
			Port:         DefaultServerPort,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		App: AppConfig{
			Language:              i18n.DefaultLanguage,
			StoreChatMessages:     DefaultStoreChatMessages,
			GCIntervalSecs:        DefaultGCIntervalSecs,
			FlushIntervalSecs:     DefaultFlushIntervalSecs,
			AtAdminsRateLimitSecs: DefaultAtAdminsRateLimitSecs,
			MaxUpdateAgeSecs:      DefaultMaxUpdateAgeSecs,
			StatePath:             DefaultStatePath,
		},
	}
}
