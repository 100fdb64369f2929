package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dghubble/oauth1"

	"trendbot/internal/account"
	"trendbot/internal/domain"
)

// Twitter creates tweets through the v2 API with OAuth 1.0a user context.
type Twitter struct {
	baseURL string
	base    *http.Client
}

func NewTwitter(baseURL string) *Twitter {
	return &Twitter{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		base:    &http.Client{Timeout: 15 * time.Second},
	}
}

func (t *Twitter) Publish(ctx context.Context, acc account.Account, text string) (string, error) {
	creds := acc.Credentials
	if creds.ConsumerKey == "" || creds.AccessToken == "" {
		return "", fmt.Errorf("%w: account %s has no user-context credentials", domain.ErrPublish, acc.Name)
	}

	cfg := oauth1.NewConfig(creds.ConsumerKey, creds.ConsumerSecret)
	token := oauth1.NewToken(creds.AccessToken, creds.AccessTokenSecret)
	client := cfg.Client(context.WithValue(ctx, oauth1.HTTPClient, t.base), token)

	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrPublish, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/2/tweets", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrPublish, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrPublish, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("%w: HTTP %d: %s", domain.ErrPublish, resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	var out struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	// the post exists once the platform answered 2xx; an unreadable body only loses the id
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", nil
	}

	return out.Data.ID, nil
}
