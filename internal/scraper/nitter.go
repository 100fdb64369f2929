package scraper

import (
	"context"
	"crypto/md5"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/mmcdole/gofeed"

	"trendbot/internal/account"
	"trendbot/internal/domain"
)

// Nitter searches a Nitter instance's RSS feeds for a fixed list of topics. It needs no
// credentials, but every scrape still counts against the selected account's read quota.
type Nitter struct {
	baseURL  string
	topics   []string
	perTopic int
	client   *http.Client
	parser   *gofeed.Parser
}

func NewNitter(instance string, topics []string, perTopic int) *Nitter {
	return &Nitter{
		baseURL:  "https://" + instance,
		topics:   topics,
		perTopic: perTopic,
		client:   &http.Client{Timeout: 15 * time.Second},
		parser:   gofeed.NewParser(),
	}
}

// WithBaseURL points the scraper at a full base URL instead of https://<instance>.
func (n *Nitter) WithBaseURL(u string) *Nitter {
	n.baseURL = u
	return n
}

func (n *Nitter) Scrape(ctx context.Context, _ account.Account) ([]domain.Snippet, error) {
	var snippets []domain.Snippet

	for _, topic := range n.topics {
		items, err := n.search(ctx, topic)
		if err != nil {
			return nil, fmt.Errorf("%w: nitter %q: %v", domain.ErrFetch, topic, err)
		}
		snippets = append(snippets, items...)
	}

	return snippets, nil
}

func (n *Nitter) search(ctx context.Context, topic string) ([]domain.Snippet, error) {
	u := fmt.Sprintf("%s/search/rss?f=tweets&q=%s", n.baseURL, url.QueryEscape(topic))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("User-Agent", "curl/8.0")
	req.Header.Set("Accept", "application/rss+xml, application/xml, text/xml, */*")

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	feed, err := n.parser.Parse(resp.Body)
	if err != nil {
		return nil, err
	}

	items := feed.Items
	if n.perTopic > 0 && len(items) > n.perTopic {
		items = items[:n.perTopic]
	}

	snippets := make([]domain.Snippet, 0, len(items))
	for _, item := range items {
		createdAt := time.Now()
		if item.PublishedParsed != nil {
			createdAt = *item.PublishedParsed
		}

		username := ""
		if item.Author != nil {
			username = item.Author.Name
		} else if len(item.Authors) > 0 {
			username = item.Authors[0].Name
		}

		snippets = append(snippets, domain.Snippet{
			ID:        generateID(item.GUID),
			Trend:     topic,
			Username:  username,
			Content:   item.Title,
			Source:    domain.SourceNitter,
			CreatedAt: createdAt,
		})
	}

	return snippets, nil
}

func generateID(guid string) string {
	hash := md5.Sum([]byte(guid))
	return fmt.Sprintf("%x", hash)[:12]
}
