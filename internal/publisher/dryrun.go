package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"trendbot/internal/account"
)

// DryRun logs what would have been posted.
type DryRun struct {
	logger *slog.Logger
	seq    atomic.Int64
}

func NewDryRun(logger *slog.Logger) *DryRun {
	return &DryRun{logger: logger}
}

func (d *DryRun) Publish(_ context.Context, acc account.Account, text string) (string, error) {
	id := fmt.Sprintf("dryrun-%d", d.seq.Add(1))
	d.logger.Info("[DRYRUN] would post", "account", acc.Name, "id", id, "text", text)
	return id, nil
}
