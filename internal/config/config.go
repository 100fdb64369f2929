package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"trendbot/internal/account"
)

const EnvPrefix = "TRENDBOT_"

// Per-account ceilings used when an account does not set its own.
const (
	DefaultReadQuota = 100
	DefaultPostQuota = 500
)

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Bot       BotConfig       `koanf:"bot"`
	Accounts  []AccountConfig `koanf:"accounts"`
	Scraper   ScraperConfig   `koanf:"scraper"`
	Generator GeneratorConfig `koanf:"generator"`
	Publisher PublisherConfig `koanf:"publisher"`
	Logs      LogsConfig      `koanf:"logs"`
	Storage   StorageConfig   `koanf:"storage"`
	Queue     QueueConfig     `koanf:"queue"`
	Notifier  NotifierConfig  `koanf:"notifier"`
}

type ServerConfig struct {
	Addr              string `koanf:"addr"`
	TLSCert           string `koanf:"tls_cert"`
	TLSKey            string `koanf:"tls_key"`
	AdminUsername     string `koanf:"admin_username"`
	AdminPasswordHash string `koanf:"admin_password_hash"`
	ForceHTTPS        bool   `koanf:"force_https"`
}

func (s ServerConfig) TLS() bool {
	return s.TLSCert != "" && s.TLSKey != ""
}

type BotConfig struct {
	Name        string        `koanf:"name"`
	Personality string        `koanf:"personality"`
	Language    string        `koanf:"language"`
	Interval    time.Duration `koanf:"interval"`
	Tick        time.Duration `koanf:"tick"`
	Wrap        bool          `koanf:"wrap"`
	AutoStart   bool          `koanf:"auto_start"`
}

type AccountConfig struct {
	Name              string `koanf:"name"`
	BearerToken       string `koanf:"bearer_token"`
	APIKey            string `koanf:"api_key"`
	APISecret         string `koanf:"api_secret"`
	AccessToken       string `koanf:"access_token"`
	AccessTokenSecret string `koanf:"access_token_secret"`
	ReadQuota         int    `koanf:"read_quota"`
	PostQuota         int    `koanf:"post_quota"`
}

type ScraperConfig struct {
	Kind           string   `koanf:"kind"`
	BaseURL        string   `koanf:"base_url"`
	WOEID          int      `koanf:"woeid"`
	TrendLimit     int      `koanf:"trend_limit"`
	TweetsPerTrend int      `koanf:"tweets_per_trend"`
	Instance       string   `koanf:"instance"`
	Topics         []string `koanf:"topics"`
}

type GeneratorConfig struct {
	BaseURL  string `koanf:"base_url"`
	APIKey   string `koanf:"api_key"`
	Model    string `koanf:"model"`
	MaxChars int    `koanf:"max_chars"`
}

type PublisherConfig struct {
	Kind    string `koanf:"kind"`
	BaseURL string `koanf:"base_url"`
}

type LogsConfig struct {
	File      string `koanf:"file"`
	TailLines int    `koanf:"tail_lines"`
	RedisAddr string `koanf:"redis_addr"`
	RedisKey  string `koanf:"redis_key"`
}

type StorageConfig struct {
	DSN string `koanf:"dsn"`
}

type QueueConfig struct {
	Brokers []string `koanf:"brokers"`
	Topic   string   `koanf:"topic"`
}

type NotifierConfig struct {
	TelegramToken   string   `koanf:"telegram_token"`
	TelegramChatIDs []string `koanf:"telegram_chat_ids"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:          ":5000",
			AdminUsername: "admin",
		},
		Bot: BotConfig{
			Name:     "TrendBot",
			Language: "English",
			Interval: 3 * time.Hour,
			Tick:     time.Minute,
			Wrap:     true,
		},
		Scraper: ScraperConfig{
			Kind:           "twitter",
			BaseURL:        "https://api.twitter.com",
			WOEID:          23424977,
			TrendLimit:     5,
			TweetsPerTrend: 10,
		},
		Generator: GeneratorConfig{
			BaseURL:  "https://api.openai.com/v1",
			Model:    "gpt-4",
			MaxChars: 280,
		},
		Publisher: PublisherConfig{
			Kind:    "twitter",
			BaseURL: "https://api.twitter.com",
		},
		Logs: LogsConfig{
			File:      "logs/twitter_bot.log",
			TailLines: 20,
			RedisKey:  "trendbot:logs",
		},
		Queue: QueueConfig{
			Topic: "trendbot.posts",
		},
	}
}

// Load reads the YAML file at path (skipped when empty) and applies TRENDBOT_* environment
// overrides on top of the defaults.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, err
	}

	if err := applyAccountOverrides(k, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// envKey maps TRENDBOT_GENERATOR__API_KEY to generator.api_key.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// applyAccountOverrides merges account1.*, account2.*, ... into the account list so
// credentials can be supplied through the environment.
func applyAccountOverrides(k *koanf.Koanf, cfg *Config) error {
	for i := 1; k.Exists(fmt.Sprintf("account%d", i)); i++ {
		key := fmt.Sprintf("account%d", i)

		for len(cfg.Accounts) < i {
			cfg.Accounts = append(cfg.Accounts, AccountConfig{})
		}

		if err := k.Unmarshal(key, &cfg.Accounts[i-1]); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}

	// quotas default only when the key is absent; an explicit 0 is a valid ceiling
	fromFile := k.Slices("accounts")
	set := func(i int, field string) bool {
		if i < len(fromFile) && fromFile[i].Exists(field) {
			return true
		}
		return k.Exists(fmt.Sprintf("account%d.%s", i+1, field))
	}

	for i := range cfg.Accounts {
		a := &cfg.Accounts[i]
		if a.Name == "" {
			if i == 0 {
				a.Name = "main"
			} else {
				a.Name = fmt.Sprintf("account%d", i+1)
			}
		}
		if !set(i, "read_quota") {
			a.ReadQuota = DefaultReadQuota
		}
		if !set(i, "post_quota") {
			a.PostQuota = DefaultPostQuota
		}
	}

	return nil
}

func (c *Config) Validate() error {
	var errs []error

	if len(c.Accounts) == 0 {
		errs = append(errs, errors.New("at least one account is required"))
	}
	for i, a := range c.Accounts {
		if a.ReadQuota < 0 || a.PostQuota < 0 {
			errs = append(errs, fmt.Errorf("accounts[%d]: quotas must not be negative", i))
		}
	}
	if c.Bot.Tick <= 0 {
		errs = append(errs, errors.New("bot.tick must be positive"))
	}
	if c.Bot.Interval < c.Bot.Tick {
		errs = append(errs, errors.New("bot.interval must not be shorter than bot.tick"))
	}
	if c.Server.Addr != "" && c.Server.AdminPasswordHash == "" {
		errs = append(errs, errors.New("server.admin_password_hash is required when the server is enabled"))
	}
	switch c.Scraper.Kind {
	case "twitter", "nitter":
	default:
		errs = append(errs, fmt.Errorf("scraper.kind %q is not supported", c.Scraper.Kind))
	}
	if c.Scraper.Kind == "nitter" && (c.Scraper.Instance == "" || len(c.Scraper.Topics) == 0) {
		errs = append(errs, errors.New("scraper.instance and scraper.topics are required for nitter"))
	}
	switch c.Publisher.Kind {
	case "twitter", "dryrun":
	default:
		errs = append(errs, fmt.Errorf("publisher.kind %q is not supported", c.Publisher.Kind))
	}
	if c.Generator.APIKey == "" {
		errs = append(errs, errors.New("generator.api_key is required"))
	}

	return errors.Join(errs...)
}

// AccountSpecs converts the configured accounts into registry entries.
func (c *Config) AccountSpecs() []account.Spec {
	specs := make([]account.Spec, len(c.Accounts))
	for i, a := range c.Accounts {
		specs[i] = account.Spec{
			Name: a.Name,
			Credentials: account.Credentials{
				BearerToken:       a.BearerToken,
				ConsumerKey:       a.APIKey,
				ConsumerSecret:    a.APISecret,
				AccessToken:       a.AccessToken,
				AccessTokenSecret: a.AccessTokenSecret,
			},
			Limits: account.Limits{Read: a.ReadQuota, Post: a.PostQuota},
		}
	}
	return specs
}
