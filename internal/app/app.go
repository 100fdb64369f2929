package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"trendbot/internal/account"
	"trendbot/internal/bot"
	"trendbot/internal/config"
	"trendbot/internal/generator"
	"trendbot/internal/logtail"
	"trendbot/internal/notifier"
	"trendbot/internal/publisher"
	"trendbot/internal/queue"
	"trendbot/internal/redis"
	"trendbot/internal/scraper"
	"trendbot/internal/storage"
	"trendbot/internal/worker"
)

const retainedLogLines = 500

// App holds the wired components shared by the binaries.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Logs     *logtail.Writer
	Registry *account.Registry
	Cycle    *bot.Cycle
	Bot      *worker.Bot

	// Posts is nil unless storage.dsn is set.
	Posts storage.PostRepository

	closers []func() error
}

// New builds every component from cfg. Log lines go to out, the log file and the tail store.
func New(ctx context.Context, cfg *config.Config, out io.Writer) (*App, error) {
	a := &App{Config: cfg}

	if err := a.setupLogging(cfg.Logs, out); err != nil {
		a.Close()
		return nil, err
	}

	reg, err := account.NewRegistry(cfg.AccountSpecs(), account.WithWrap(cfg.Bot.Wrap))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("accounts: %w", err)
	}
	a.Registry = reg

	persona := generator.Persona{
		Name:        cfg.Bot.Name,
		Personality: cfg.Bot.Personality,
		Language:    cfg.Bot.Language,
	}
	gen := generator.NewOpenAI(cfg.Generator.BaseURL, cfg.Generator.APIKey, cfg.Generator.Model, cfg.Generator.MaxChars)

	a.Cycle = bot.NewCycle(reg, a.newScraper(), gen, a.newPublisher(), persona, a.Logger)

	if err := a.setupHistory(ctx, cfg); err != nil {
		a.Close()
		return nil, err
	}

	if cfg.Notifier.TelegramToken != "" && len(cfg.Notifier.TelegramChatIDs) > 0 {
		a.Cycle.WithNotifier(notifier.NewTelegram(cfg.Notifier.TelegramToken, cfg.Notifier.TelegramChatIDs))
	}

	a.Bot = worker.NewBot(a.Cycle, cfg.Bot.Interval, cfg.Bot.Tick, a.Logger)

	return a, nil
}

func (a *App) setupLogging(cfg config.LogsConfig, out io.Writer) error {
	var store logtail.Store = logtail.NewMemory(retainedLogLines)

	if cfg.RedisAddr != "" {
		rdb, err := redis.New(cfg.RedisAddr)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		a.closers = append(a.closers, rdb.Close)
		store = rdb.LogStore(cfg.RedisKey, retainedLogLines)
	}

	a.Logs = logtail.NewWriter(store)
	a.Logs.OnError(func(err error) {
		fmt.Fprintf(out, "log tail store failing, lines are kept in the log file only: %v\n", err)
	})
	a.closers = append(a.closers, a.Logs.Close)
	writers := []io.Writer{out, a.Logs}

	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		a.closers = append(a.closers, f.Close)
		writers = append(writers, f)
	}

	a.Logger = slog.New(slog.NewTextHandler(io.MultiWriter(writers...), &slog.HandlerOptions{Level: slog.LevelInfo}))
	return nil
}

func (a *App) newScraper() scraper.Scraper {
	c := a.Config.Scraper
	if c.Kind == "nitter" {
		return scraper.NewNitter(c.Instance, c.Topics, c.TweetsPerTrend)
	}
	return scraper.NewTwitter(c.BaseURL, c.WOEID, c.TrendLimit, c.TweetsPerTrend)
}

func (a *App) newPublisher() publisher.Publisher {
	if a.Config.Publisher.Kind == "dryrun" {
		return publisher.NewDryRun(a.Logger)
	}
	return publisher.NewTwitter(a.Config.Publisher.BaseURL)
}

// setupHistory wires the optional post store and event stream as after-post hooks.
func (a *App) setupHistory(ctx context.Context, cfg *config.Config) error {
	if cfg.Storage.DSN != "" {
		repo, err := storage.NewPostgres(cfg.Storage.DSN)
		if err != nil {
			return fmt.Errorf("connect storage: %w", err)
		}
		a.closers = append(a.closers, repo.Close)

		if err := repo.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate storage: %w", err)
		}

		a.Posts = repo
		a.Cycle.AfterPost("storage", repo.Save)
	}

	if len(cfg.Queue.Brokers) > 0 {
		k, err := queue.NewKafka(cfg.Queue.Brokers, cfg.Queue.Topic)
		if err != nil {
			return fmt.Errorf("connect kafka: %w", err)
		}
		a.closers = append(a.closers, k.Close)
		a.Cycle.AfterPost("queue", k.Publish)
	}

	return nil
}

// Close releases connections and files in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
