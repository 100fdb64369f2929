package queue

import (
	"context"

	"trendbot/internal/domain"
)

type Publisher interface {
	Publish(ctx context.Context, post domain.Post) error
	Close() error
}
