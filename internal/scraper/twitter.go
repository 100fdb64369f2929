package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"trendbot/internal/account"
	"trendbot/internal/domain"
)

// Twitter reads trends for a location and searches recent tweets for each of them with the
// account's bearer token.
type Twitter struct {
	baseURL        string
	woeid          int
	trendLimit     int
	tweetsPerTrend int
	client         *http.Client
}

func NewTwitter(baseURL string, woeid, trendLimit, tweetsPerTrend int) *Twitter {
	// recent search rejects max_results outside 10..100
	if tweetsPerTrend < 10 {
		tweetsPerTrend = 10
	}
	if tweetsPerTrend > 100 {
		tweetsPerTrend = 100
	}

	return &Twitter{
		baseURL:        baseURL,
		woeid:          woeid,
		trendLimit:     trendLimit,
		tweetsPerTrend: tweetsPerTrend,
		client:         &http.Client{Timeout: 15 * time.Second},
	}
}

type trend struct {
	Name  string `json:"name"`
	Query string `json:"query"`
}

type tweet struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	AuthorID  string    `json:"author_id"`
	CreatedAt time.Time `json:"created_at"`
}

func (t *Twitter) Scrape(ctx context.Context, acc account.Account) ([]domain.Snippet, error) {
	trends, err := t.trends(ctx, acc)
	if err != nil {
		return nil, fmt.Errorf("%w: trends: %v", domain.ErrFetch, err)
	}

	if t.trendLimit > 0 && len(trends) > t.trendLimit {
		trends = trends[:t.trendLimit]
	}

	var snippets []domain.Snippet
	for _, tr := range trends {
		tweets, err := t.search(ctx, acc, tr.Name)
		if err != nil {
			return nil, fmt.Errorf("%w: search %q: %v", domain.ErrFetch, tr.Name, err)
		}

		for _, tw := range tweets {
			snippets = append(snippets, domain.Snippet{
				ID:        tw.ID,
				Trend:     tr.Name,
				Username:  tw.AuthorID,
				Content:   tw.Text,
				Source:    domain.SourceTwitter,
				CreatedAt: tw.CreatedAt,
			})
		}
	}

	return snippets, nil
}

func (t *Twitter) trends(ctx context.Context, acc account.Account) ([]trend, error) {
	u := fmt.Sprintf("%s/1.1/trends/place.json?id=%d", t.baseURL, t.woeid)

	var places []struct {
		Trends []trend `json:"trends"`
	}
	if err := t.get(ctx, acc, u, &places); err != nil {
		return nil, err
	}

	var out []trend
	for _, p := range places {
		out = append(out, p.Trends...)
	}
	return out, nil
}

func (t *Twitter) search(ctx context.Context, acc account.Account, query string) ([]tweet, error) {
	q := url.Values{}
	q.Set("query", query)
	q.Set("max_results", strconv.Itoa(t.tweetsPerTrend))
	q.Set("tweet.fields", "author_id,created_at,text")

	var body struct {
		Data []tweet `json:"data"`
	}
	if err := t.get(ctx, acc, t.baseURL+"/2/tweets/search/recent?"+q.Encode(), &body); err != nil {
		return nil, err
	}
	return body.Data, nil
}

func (t *Twitter) get(ctx context.Context, acc account.Account, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+acc.Credentials.BearerToken)

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
