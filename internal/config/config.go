package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultProviderType = "openai"
	DefaultModel        = "gpt-4o-mini"
	DefaultMaxTokens    = 300
	DefaultByteBudget   = 3500
	DefaultBufSize      = 100

	// DefaultAnthropicModel replaces DefaultModel when the provider is anthropic.
	DefaultAnthropicModel = "claude-3-5-haiku-latest"

	DefaultStoreBackend = StoreBackendJSON

	DefaultTriggerPolicy = TriggerPolicyCount
	DefaultTriggerCount  = 50
	DefaultInterval      = "30m"
	DefaultDailyAt       = "17:20"
)

const (
	StoreBackendJSON   = "json"
	StoreBackendSQLite = "sqlite"

	TriggerPolicyCount    = "count"
	TriggerPolicyInterval = "interval"
	TriggerPolicyDaily    = "daily"
)

type Config struct {
	Provider ProviderConfig `json:"provider"`
	Channels ChannelsConfig `json:"channels"`
	Store    StoreConfig    `json:"store"`
	Summary  SummaryConfig  `json:"summary"`
	Trigger  TriggerConfig  `json:"trigger"`
	Timezone string         `json:"timezone,omitempty"` // IANA name; empty means the host's local zone
}

type ProviderConfig struct {
	Type    string `json:"type,omitempty"` // "openai" (default) or "anthropic"
	APIKey  string `json:"apiKey"`
	BaseURL string `json:"baseUrl,omitempty"`
}

type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram"`
}

type TelegramConfig struct {
	Enabled   bool     `json:"enabled"`
	Token     string   `json:"token"`
	AllowFrom []string `json:"allowFrom"`
	Proxy     string   `json:"proxy,omitempty"`
	ChatID    string   `json:"chatId,omitempty"` // pre-seeded summary destination
}

type StoreConfig struct {
	Backend string `json:"backend"`
	Path    string `json:"path,omitempty"`
}

type SummaryConfig struct {
	Model              string `json:"model"`
	MaxTokens          int    `json:"maxTokens"`
	ByteBudget         int    `json:"byteBudget"` // 0 disables truncation
	SystemPrompt       string `json:"systemPrompt,omitempty"`
	OnDemand           bool   `json:"onDemand"`
	RequireDestination bool   `json:"requireDestination"`
}

type TriggerConfig struct {
	Policy   string `json:"policy"`
	Count    int    `json:"count,omitempty"`
	Interval string `json:"interval,omitempty"`
	DailyAt  string `json:"dailyAt,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		Provider: ProviderConfig{Type: DefaultProviderType},
		Channels: ChannelsConfig{
			Telegram: TelegramConfig{Enabled: true},
		},
		Store: StoreConfig{
			Backend: DefaultStoreBackend,
		},
		Summary: SummaryConfig{
			Model:              DefaultModel,
			MaxTokens:          DefaultMaxTokens,
			ByteBudget:         DefaultByteBudget,
			OnDemand:           true,
			RequireDestination: true,
		},
		Trigger: TriggerConfig{
			Policy:   DefaultTriggerPolicy,
			Count:    DefaultTriggerCount,
			Interval: DefaultInterval,
			DailyAt:  DefaultDailyAt,
		},
	}
}

func ConfigDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, ".digestbot")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

// DefaultStorePath returns the log location for a backend when none is configured.
func DefaultStorePath(backend string) string {
	if backend == StoreBackendSQLite {
		return filepath.Join(ConfigDir(), "data", "messages.db")
	}
	return filepath.Join(ConfigDir(), "data", "messages.json")
}

func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(cfg)
	applyDefaults(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if token := os.Getenv("DIGESTBOT_TELEGRAM_TOKEN"); token != "" {
		cfg.Channels.Telegram.Token = token
	}
	if token := os.Getenv("TELEGRAM_TOKEN"); token != "" && cfg.Channels.Telegram.Token == "" {
		cfg.Channels.Telegram.Token = token
	}
	if chatID := os.Getenv("CHAT_ID"); chatID != "" {
		cfg.Channels.Telegram.ChatID = chatID
	}

	if key := os.Getenv("DIGESTBOT_API_KEY"); key != "" {
		cfg.Provider.APIKey = key
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = key
		cfg.Provider.Type = "openai"
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" && cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = key
		cfg.Provider.Type = "anthropic"
	}
	if url := os.Getenv("DIGESTBOT_BASE_URL"); url != "" {
		cfg.Provider.BaseURL = url
	}
	if model := os.Getenv("DIGESTBOT_MODEL"); model != "" {
		cfg.Summary.Model = model
	}

	if policy := os.Getenv("DIGESTBOT_TRIGGER"); policy != "" {
		cfg.Trigger.Policy = policy
	}
	if count := os.Getenv("DIGESTBOT_TRIGGER_COUNT"); count != "" {
		if parsed, err := strconv.Atoi(count); err == nil {
			cfg.Trigger.Count = parsed
		}
	}
	if interval := os.Getenv("DIGESTBOT_TRIGGER_INTERVAL"); interval != "" {
		cfg.Trigger.Interval = interval
	}
	if at := os.Getenv("DIGESTBOT_TRIGGER_DAILY_AT"); at != "" {
		cfg.Trigger.DailyAt = at
	}

	if backend := os.Getenv("DIGESTBOT_STORE_BACKEND"); backend != "" {
		cfg.Store.Backend = backend
	}
	if path := os.Getenv("DIGESTBOT_STORE_PATH"); path != "" {
		cfg.Store.Path = path
	}
	if tz := os.Getenv("DIGESTBOT_TIMEZONE"); tz != "" {
		cfg.Timezone = tz
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Provider.Type == "" {
		cfg.Provider.Type = DefaultProviderType
	}
	if cfg.Summary.Model == "" {
		cfg.Summary.Model = DefaultModel
	}
	if cfg.Provider.Type == "anthropic" && cfg.Summary.Model == DefaultModel {
		cfg.Summary.Model = DefaultAnthropicModel
	}
	if cfg.Summary.MaxTokens <= 0 {
		cfg.Summary.MaxTokens = DefaultMaxTokens
	}
	if cfg.Summary.ByteBudget < 0 {
		cfg.Summary.ByteBudget = DefaultByteBudget
	}
	cfg.Store.Backend = strings.ToLower(strings.TrimSpace(cfg.Store.Backend))
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = DefaultStoreBackend
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = DefaultStorePath(cfg.Store.Backend)
	}
	cfg.Trigger.Policy = strings.ToLower(strings.TrimSpace(cfg.Trigger.Policy))
	if cfg.Trigger.Policy == "" {
		cfg.Trigger.Policy = DefaultTriggerPolicy
	}
	if cfg.Trigger.Count <= 0 {
		cfg.Trigger.Count = DefaultTriggerCount
	}
	if cfg.Trigger.Interval == "" {
		cfg.Trigger.Interval = DefaultInterval
	}
	if cfg.Trigger.DailyAt == "" {
		cfg.Trigger.DailyAt = DefaultDailyAt
	}
}

// Diagnostics reports missing secrets. None of them is fatal: the chat and
// completion SDKs fail on their own when actually invoked.
func Diagnostics(cfg *Config) []string {
	var out []string
	if cfg.Channels.Telegram.Enabled && cfg.Channels.Telegram.Token == "" {
		out = append(out, "telegram token not found (set TELEGRAM_TOKEN)")
	}
	if cfg.Provider.APIKey == "" {
		out = append(out, "completion API key not found (set OPENAI_API_KEY or DIGESTBOT_API_KEY)")
	}
	return out
}

// Location resolves the configured time zone, falling back to time.Local.
func (c *Config) Location() (*time.Location, error) {
	if strings.TrimSpace(c.Timezone) == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func SaveConfig(cfg *Config) error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(ConfigPath(), data, 0644)
}
