package worker

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"trendbot/internal/bot"
)

// Runner executes one cycle.
type Runner interface {
	Run(ctx context.Context) bot.Report
}

// Bot owns the run flag and the scheduling loop. While running it executes a cycle right
// away and then once per interval, checking on every tick whether the interval has passed.
// Stopping takes effect between cycles; a cycle that is already running is left to finish.
type Bot struct {
	runner   Runner
	interval time.Duration
	tick     time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	running atomic.Bool
	stop    chan struct{}
	done    chan struct{}
	last    atomic.Pointer[bot.Report]
}

func NewBot(r Runner, interval, tick time.Duration, logger *slog.Logger) *Bot {
	done := make(chan struct{})
	close(done)

	return &Bot{
		runner:   r,
		interval: interval,
		tick:     tick,
		logger:   logger,
		now:      time.Now,
		done:     done,
	}
}

// WithNow allows injecting deterministic time for tests.
func (b *Bot) WithNow(now func() time.Time) *Bot {
	b.now = now
	return b
}

func (b *Bot) Running() bool {
	return b.running.Load()
}

// Start launches the loop. It returns false if the bot was already running.
func (b *Bot) Start(ctx context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.startLocked(ctx)
}

// Stop asks the loop to exit. It returns false if the bot was not running.
func (b *Bot) Stop() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.stopLocked()
}

// Toggle starts a stopped bot or stops a running one and returns the new state.
func (b *Bot) Toggle(ctx context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running.Load() {
		b.stopLocked()
		return false
	}
	b.startLocked(ctx)
	return true
}

// Done is closed when the most recently started loop has exited.
func (b *Bot) Done() <-chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.done
}

// RunOnce runs a single cycle outside the schedule.
func (b *Bot) RunOnce(ctx context.Context) bot.Report {
	return b.runCycle(context.WithoutCancel(ctx))
}

// LastReport returns the report of the most recent cycle, or nil if none ran yet.
func (b *Bot) LastReport() *bot.Report {
	return b.last.Load()
}

func (b *Bot) startLocked(ctx context.Context) bool {
	if b.running.Load() {
		return false
	}

	b.running.Store(true)
	b.stop = make(chan struct{})
	b.done = make(chan struct{})

	go b.loop(ctx, b.stop, b.done)

	b.logger.Info("[BOT] started", "interval", b.interval)
	return true
}

func (b *Bot) stopLocked() bool {
	if !b.running.Load() {
		return false
	}

	b.running.Store(false)
	close(b.stop)

	b.logger.Info("[BOT] stopping")
	return true
}

func (b *Bot) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	runCtx := context.WithoutCancel(ctx)

	b.runCycle(runCtx)
	last := b.now()

	ticker := time.NewTicker(b.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.mu.Lock()
			if b.stop == stop {
				b.stopLocked()
			}
			b.mu.Unlock()
			return
		case <-stop:
			b.logger.Info("[BOT] stopped")
			return
		case <-ticker.C:
			select {
			case <-stop:
				b.logger.Info("[BOT] stopped")
				return
			default:
			}

			if b.now().Sub(last) >= b.interval {
				b.runCycle(runCtx)
				last = b.now()
			}
		}
	}
}

func (b *Bot) runCycle(ctx context.Context) bot.Report {
	rep := b.runner.Run(ctx)
	b.last.Store(&rep)
	return rep
}
