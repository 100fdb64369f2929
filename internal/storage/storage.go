package storage

import (
	"context"

	"trendbot/internal/domain"
)

type PostRepository interface {
	Save(ctx context.Context, post domain.Post) error
	Recent(ctx context.Context, limit int) ([]domain.Post, error)
}
