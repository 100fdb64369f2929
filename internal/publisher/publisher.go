package publisher

import (
	"context"

	"trendbot/internal/account"
)

// Publisher posts text as the given account and returns the platform id of the post.
// Errors are wrapped with domain.ErrPublish.
type Publisher interface {
	Publish(ctx context.Context, acc account.Account, text string) (string, error)
}
