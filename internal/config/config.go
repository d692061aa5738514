// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type BotConfig struct {
	Token    string `yaml:"token"`
	Mode     string `yaml:"mode"` // polling|noop
	Username string `yaml:"username"`
	Workers  int    `yaml:"workers"` // polling workers, updates are sharded per user
	AdminID  int64  `yaml:"admin_id"`
	Language string `yaml:"language"` // default locale for new users
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type AdminConfig struct {
	PasswordHash string        `yaml:"password_hash"` // bcrypt
	SessionTTL   time.Duration `yaml:"session_ttl"`
	JWTSecret    string        `yaml:"jwt_secret"`
	TokenTTL     time.Duration `yaml:"token_ttl"`
}

type HTTPConfig struct {
	Port      int    `yaml:"port"`
	PublicURL string `yaml:"public_url"` // pinged by the keep-alive loop when set
}

// StorageConfig selects the document backend behind the in-memory store.
type StorageConfig struct {
	Driver      string `yaml:"driver"` // json|sqlite|postgres|redis
	Dir         string `yaml:"dir"`
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresURL string `yaml:"postgres_url"`
	RedisPrefix string `yaml:"redis_prefix"`
	// EncryptionKey seals documents at rest with AES-GCM. 16, 24 or 32 bytes.
	EncryptionKey string `yaml:"encryption_key"`
}

type RedisConfig struct {
	URL       string        `yaml:"url"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	RateLimit int           `yaml:"rate_limit"` // events per window per user
	Window    time.Duration `yaml:"window"`
}

type AIConfig struct {
	TextProvider    string        `yaml:"text_provider"` // pollinations|openai|gemini
	TextURL         string        `yaml:"text_url"`
	ImageURL        string        `yaml:"image_url"`
	PrefetchImages  bool          `yaml:"prefetch_images"`
	OpenAIKey       string        `yaml:"openai_key"`
	OpenAIBaseURL   string        `yaml:"openai_base_url"`
	OpenAIModel     string        `yaml:"openai_model"`
	GeminiKey       string        `yaml:"gemini_key"`
	GeminiURL       string        `yaml:"gemini_url"`
	GeminiModel     string        `yaml:"gemini_model"`
	ConcurrentLimit int           `yaml:"concurrent_limit"` // max concurrent AI calls
	Timeout         time.Duration `yaml:"timeout"`
	MaxRetries      int           `yaml:"max_retries"`
	RetryDelay      time.Duration `yaml:"retry_delay"`
}

// EconomyConfig holds every tunable constant of the stars economy.
// It is passed by value so components cannot mutate a shared copy.
type EconomyConfig struct {
	StartBalance     int64  `yaml:"start_balance"`
	ReferralBonus    int64  `yaml:"referral_bonus"`
	DailyBonus       int64  `yaml:"daily_bonus"`
	WithdrawMin      int64  `yaml:"withdraw_min"`
	AdminStars       int64  `yaml:"admin_stars"`
	ImageCost        int64  `yaml:"image_cost"`
	AvatarCost       int64  `yaml:"avatar_cost"`
	LogoCost         int64  `yaml:"logo_cost"`
	ImproveCost      int64  `yaml:"improve_cost"`
	TextCostPerUnit  int64  `yaml:"text_cost_per_unit"`
	TextWordsPerUnit int    `yaml:"text_words_per_unit"`
	MaxPromptLength  int    `yaml:"max_prompt_length"`
	MaxContextLength int    `yaml:"max_context_length"`
	MaxTurnLength    int    `yaml:"max_turn_length"`
	MaxImageCount    int    `yaml:"max_image_count"`
	MaxMessageLength int    `yaml:"max_message_length"`
	XPPerGeneration  int64  `yaml:"xp_per_generation"`
	Timezone         string `yaml:"timezone"`
}

// Location resolves Timezone, falling back to UTC.
func (e EconomyConfig) Location() *time.Location {
	if e.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(e.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// RefereeBonus is what a referred user receives once the referral is credited.
func (e EconomyConfig) RefereeBonus() int64 { return e.StartBalance / 2 }

type AccessConfig struct {
	Channel string `yaml:"channel"` // @username or numeric id of the required channel
	Latch   bool   `yaml:"latch"`   // once verified, never re-check membership
}

type SchedulerConfig struct {
	AutosaveInterval  time.Duration `yaml:"autosave_interval"`
	SweepInterval     time.Duration `yaml:"sweep_interval"`
	IdleAfter         time.Duration `yaml:"idle_after"`
	KeepAliveInterval time.Duration `yaml:"keepalive_interval"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

type Config struct {
	Bot       BotConfig       `yaml:"bot"`
	Log       LogConfig       `yaml:"log"`
	Admin     AdminConfig     `yaml:"admin"`
	HTTP      HTTPConfig      `yaml:"http"`
	Storage   StorageConfig   `yaml:"storage"`
	Redis     RedisConfig     `yaml:"redis"`
	AI        AIConfig        `yaml:"ai"`
	Economy   EconomyConfig   `yaml:"economy"`
	Access    AccessConfig    `yaml:"access"`
	Scheduler SchedulerConfig `yaml:"scheduler"`

	Runtime RuntimeConfig `yaml:"-"`
}

// DefaultEconomy returns the stock economy constants.
func DefaultEconomy() EconomyConfig {
	return EconomyConfig{
		StartBalance:     50,
		ReferralBonus:    20,
		DailyBonus:       3,
		WithdrawMin:      500,
		AdminStars:       10000,
		ImageCost:        5,
		AvatarCost:       6,
		LogoCost:         3,
		ImproveCost:      10,
		TextCostPerUnit:  1,
		TextWordsPerUnit: 100,
		MaxPromptLength:  2000,
		MaxContextLength: 4000,
		MaxTurnLength:    1000,
		MaxImageCount:    8,
		MaxMessageLength: 4000,
		XPPerGeneration:  10,
		Timezone:         "UTC",
	}
}

// LoadConfig reads a YAML file, applies .env/environment overrides for secrets and fills defaults.
func LoadConfig(path string, dev bool) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	cfg := Config{Economy: DefaultEconomy(), Access: AccessConfig{Latch: true}}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	setStr := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	setStr(&cfg.Bot.Token, "BOT_TOKEN")
	setStr(&cfg.Admin.PasswordHash, "ADMIN_PASSWORD_HASH")
	setStr(&cfg.Admin.JWTSecret, "JWT_SECRET")
	setStr(&cfg.AI.OpenAIKey, "OPENAI_API_KEY")
	setStr(&cfg.AI.GeminiKey, "GEMINI_API_KEY")
	setStr(&cfg.Storage.PostgresURL, "DATABASE_URL")
	setStr(&cfg.Redis.URL, "REDIS_URL")
	setStr(&cfg.Storage.EncryptionKey, "STORAGE_ENCRYPTION_KEY")
	setStr(&cfg.HTTP.PublicURL, "PUBLIC_URL")
	if v := os.Getenv("ADMIN_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Bot.AdminID = id
		}
	}
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.HTTP.Port = p
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Bot.Workers <= 0 {
		cfg.Bot.Workers = 8
	}
	if cfg.Bot.Mode == "" {
		cfg.Bot.Mode = "polling"
	}
	if cfg.Bot.Language == "" {
		cfg.Bot.Language = "en"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Admin.SessionTTL <= 0 {
		cfg.Admin.SessionTTL = 30 * time.Minute
	}
	if cfg.Admin.TokenTTL <= 0 {
		cfg.Admin.TokenTTL = 30 * time.Minute
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8080
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "json"
	}
	if cfg.Storage.Dir == "" {
		cfg.Storage.Dir = "data"
	}
	if cfg.Storage.SQLitePath == "" {
		cfg.Storage.SQLitePath = "data/bot.db"
	}
	if cfg.Storage.RedisPrefix == "" {
		cfg.Storage.RedisPrefix = "bot:doc:"
	}
	if cfg.Redis.RateLimit <= 0 {
		cfg.Redis.RateLimit = 30
	}
	if cfg.Redis.Window <= 0 {
		cfg.Redis.Window = time.Minute
	}
	if cfg.AI.TextProvider == "" {
		cfg.AI.TextProvider = "pollinations"
	}
	if cfg.AI.TextURL == "" {
		cfg.AI.TextURL = "https://text.pollinations.ai/prompt/"
	}
	if cfg.AI.ImageURL == "" {
		cfg.AI.ImageURL = "https://image.pollinations.ai/prompt/"
	}
	if cfg.AI.OpenAIModel == "" {
		cfg.AI.OpenAIModel = "gpt-4o-mini"
	}
	if cfg.AI.GeminiModel == "" {
		cfg.AI.GeminiModel = "gemini-2.0-flash"
	}
	if cfg.AI.ConcurrentLimit <= 0 {
		cfg.AI.ConcurrentLimit = 16
	}
	if cfg.AI.Timeout <= 0 {
		cfg.AI.Timeout = 60 * time.Second
	}
	if cfg.AI.MaxRetries <= 0 {
		cfg.AI.MaxRetries = 5
	}
	if cfg.AI.RetryDelay <= 0 {
		cfg.AI.RetryDelay = 1500 * time.Millisecond
	}
	if cfg.Scheduler.AutosaveInterval <= 0 {
		cfg.Scheduler.AutosaveInterval = 5 * time.Minute
	}
	if cfg.Scheduler.SweepInterval <= 0 {
		cfg.Scheduler.SweepInterval = time.Hour
	}
	if cfg.Scheduler.IdleAfter <= 0 {
		cfg.Scheduler.IdleAfter = 30 * 24 * time.Hour
	}
	if cfg.Scheduler.KeepAliveInterval <= 0 {
		cfg.Scheduler.KeepAliveInterval = 10 * time.Minute
	}
	if cfg.Scheduler.ShutdownTimeout <= 0 {
		cfg.Scheduler.ShutdownTimeout = 15 * time.Second
	}
}

// Validate performs the minimal checks needed to start.
func (c *Config) Validate() error {
	if c.Bot.Token == "" && !strings.EqualFold(c.Bot.Mode, "noop") {
		return errors.New("bot.token is required")
	}
	if c.Bot.AdminID == 0 {
		return errors.New("bot.admin_id is required")
	}
	switch c.Storage.Driver {
	case "json", "sqlite", "redis":
	case "postgres":
		if c.Storage.PostgresURL == "" {
			return errors.New("storage.postgres_url is required for the postgres driver")
		}
	default:
		return fmt.Errorf("storage.driver %q is not supported", c.Storage.Driver)
	}
	if c.Storage.Driver == "redis" && c.Redis.URL == "" {
		return errors.New("redis.url is required for the redis driver")
	}
	if k := len(c.Storage.EncryptionKey); k != 0 && k != 16 && k != 24 && k != 32 {
		return fmt.Errorf("storage.encryption_key must be 16, 24 or 32 bytes; got %d", k)
	}
	if c.Economy.TextWordsPerUnit <= 0 {
		return errors.New("economy.text_words_per_unit must be positive")
	}
	return nil
}
