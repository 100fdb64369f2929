package scraper

import (
	"context"

	"trendbot/internal/account"
	"trendbot/internal/domain"
)

// Scraper fetches trending text using the given account's read credentials.
// Errors are wrapped with domain.ErrFetch.
type Scraper interface {
	Scrape(ctx context.Context, acc account.Account) ([]domain.Snippet, error)
}
