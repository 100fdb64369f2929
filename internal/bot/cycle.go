package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"trendbot/internal/account"
	"trendbot/internal/domain"
	"trendbot/internal/generator"
	"trendbot/internal/notifier"
	"trendbot/internal/publisher"
	"trendbot/internal/scraper"
)

// Accounts is the part of the account registry a cycle needs.
type Accounts interface {
	SelectReadAccount() (account.Account, error)
	RecordReadSuccess(name string) error
	SelectPostingAccount() account.Account
	CanPost(name string) error
	RecordPostSuccess(name string) error
}

// PostHook receives every published post, e.g. to store or forward it.
type PostHook func(ctx context.Context, post domain.Post) error

type Outcome string

const (
	OutcomePosted             Outcome = "posted"
	OutcomeReadQuotaExhausted Outcome = "read_quota_exhausted"
	OutcomeFetchFailed        Outcome = "fetch_failed"
	OutcomeNoSnippets         Outcome = "no_snippets"
	OutcomeGenerationFailed   Outcome = "generation_failed"
	OutcomePostQuotaExhausted Outcome = "post_quota_exhausted"
	OutcomePublishFailed      Outcome = "publish_failed"
	OutcomeInvalidAccount     Outcome = "invalid_account"
	OutcomePanic              Outcome = "panic"
)

// Report describes how one cycle ended.
type Report struct {
	Outcome     Outcome       `json:"outcome"`
	ReadAccount string        `json:"read_account,omitempty"`
	PostAccount string        `json:"post_account,omitempty"`
	Snippets    int           `json:"snippets"`
	Text        string        `json:"text,omitempty"`
	PostID      string        `json:"post_id,omitempty"`
	Err         error         `json:"-"`
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration"`
}

type Cycle struct {
	mu        sync.Mutex
	accounts  Accounts
	scraper   scraper.Scraper
	generator generator.Generator
	publisher publisher.Publisher
	persona   generator.Persona
	logger    *slog.Logger
	notifier  notifier.Notifier
	hooks     []namedHook
	now       func() time.Time
	seq       int
}

type namedHook struct {
	name string
	fn   PostHook
}

func NewCycle(a Accounts, s scraper.Scraper, g generator.Generator, p publisher.Publisher, persona generator.Persona, logger *slog.Logger) *Cycle {
	return &Cycle{
		accounts:  a,
		scraper:   s,
		generator: g,
		publisher: p,
		persona:   persona,
		logger:    logger,
		now:       time.Now,
	}
}

// WithNotifier sends operator alerts for posts and exhausted quotas.
func (c *Cycle) WithNotifier(n notifier.Notifier) *Cycle {
	c.notifier = n
	return c
}

// WithNow allows injecting deterministic time for tests.
func (c *Cycle) WithNow(now func() time.Time) *Cycle {
	c.now = now
	return c
}

// AfterPost registers a hook run for every published post. Hook failures are logged only.
func (c *Cycle) AfterPost(name string, fn PostHook) *Cycle {
	c.hooks = append(c.hooks, namedHook{name: name, fn: fn})
	return c
}

// Run performs one fetch, generate and publish pass. It never fails: every problem ends the
// cycle early with a logged outcome. Concurrent calls are serialized.
func (c *Cycle) Run(ctx context.Context) (rep Report) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	log := c.logger.With("cycle", c.seq)
	rep.StartedAt = c.now()

	defer func() {
		if r := recover(); r != nil {
			rep.Outcome = OutcomePanic
			rep.Err = fmt.Errorf("panic: %v", r)
			log.Error("[CYCLE] recovered from panic", "error", rep.Err)
		}
		rep.Duration = c.now().Sub(rep.StartedAt)
		log.Info("[CYCLE] finished", "outcome", rep.Outcome, "duration", rep.Duration)
	}()

	log.Info("[CYCLE] started")

	reader, err := c.accounts.SelectReadAccount()
	if err != nil {
		rep.Err = err
		if errors.Is(err, account.ErrQuotaExhausted) {
			rep.Outcome = OutcomeReadQuotaExhausted
			log.Warn("[SKIP] no account has read quota left", "error", err)
			c.notify(ctx, log, notifier.Notification{Kind: notifier.KindQuotaExhausted, Text: "read quota exhausted on every account"})
			return rep
		}
		rep.Outcome = OutcomeInvalidAccount
		log.Error("[ERROR] select read account", "error", err)
		return rep
	}
	rep.ReadAccount = reader.Name

	log.Info("[FETCH] reading trends", "account", reader.Name, "read_remaining", reader.ReadQuota)
	snippets, err := c.scraper.Scrape(ctx, reader)
	if err != nil {
		rep.Outcome, rep.Err = OutcomeFetchFailed, err
		log.Error("[ERROR] fetch", "account", reader.Name, "error", err)
		return rep
	}

	if err := c.accounts.RecordReadSuccess(reader.Name); err != nil {
		rep.Outcome, rep.Err = OutcomeInvalidAccount, err
		log.Error("[ERROR] record read", "account", reader.Name, "error", err)
		return rep
	}

	rep.Snippets = len(snippets)
	if len(snippets) == 0 {
		rep.Outcome = OutcomeNoSnippets
		log.Info("[SKIP] no snippets fetched", "account", reader.Name)
		return rep
	}
	log.Info("[FETCH] collected snippets", "account", reader.Name, "count", len(snippets))

	text, err := c.generator.Generate(ctx, domain.Texts(snippets), c.persona)
	if err != nil {
		rep.Outcome, rep.Err = OutcomeGenerationFailed, err
		log.Error("[ERROR] generate", "error", err)
		return rep
	}
	rep.Text = text
	log.Info("[GENERATED] commentary ready", "text", text)

	poster := c.accounts.SelectPostingAccount()
	rep.PostAccount = poster.Name

	if err := c.accounts.CanPost(poster.Name); err != nil {
		rep.Err = err
		if errors.Is(err, account.ErrQuotaExhausted) {
			rep.Outcome = OutcomePostQuotaExhausted
			log.Warn("[SKIP] post quota reached, commentary discarded", "account", poster.Name)
			c.notify(ctx, log, notifier.Notification{Kind: notifier.KindQuotaExhausted, Account: poster.Name, Text: "post quota exhausted, commentary discarded"})
			return rep
		}
		rep.Outcome = OutcomeInvalidAccount
		log.Error("[ERROR] posting account", "account", poster.Name, "error", err)
		return rep
	}

	id, err := c.publisher.Publish(ctx, poster, text)
	if err != nil {
		rep.Outcome, rep.Err = OutcomePublishFailed, err
		log.Error("[ERROR] publish", "account", poster.Name, "error", err)
		return rep
	}
	rep.PostID = id
	rep.Outcome = OutcomePosted

	if err := c.accounts.RecordPostSuccess(poster.Name); err != nil {
		log.Error("[ERROR] record post", "account", poster.Name, "error", err)
	}

	log.Info("[POSTED] commentary published", "account", poster.Name, "id", id)

	post := domain.Post{
		ID:          fmt.Sprintf("%s-%d", poster.Name, rep.StartedAt.UnixNano()),
		ExternalID:  id,
		Account:     poster.Name,
		ReadAccount: reader.Name,
		Content:     text,
		Trends:      trendsOf(snippets),
		CreatedAt:   c.now(),
	}
	for _, h := range c.hooks {
		if err := guard(func() error { return h.fn(ctx, post) }); err != nil {
			log.Error("[ERROR] after-post hook", "hook", h.name, "error", err)
		}
	}
	c.notify(ctx, log, notifier.Notification{Kind: notifier.KindPosted, Account: poster.Name, Text: text, PostID: id})

	return rep
}

func (c *Cycle) notify(ctx context.Context, log *slog.Logger, n notifier.Notification) {
	if c.notifier == nil {
		return
	}
	if err := guard(func() error { return c.notifier.Notify(ctx, n) }); err != nil {
		log.Error("[ERROR] notify", "error", err)
	}
}

// guard runs fn and turns a panic into an error.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

func trendsOf(snippets []domain.Snippet) []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range snippets {
		if s.Trend == "" || seen[s.Trend] {
			continue
		}
		seen[s.Trend] = true
		out = append(out, s.Trend)
	}
	return out
}
