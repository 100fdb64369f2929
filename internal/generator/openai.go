package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"trendbot/internal/domain"
)

// OpenAI talks to any OpenAI-compatible chat completions endpoint (OpenAI, OpenRouter).
type OpenAI struct {
	baseURL  string
	apiKey   string
	model    string
	maxChars int
	client   *http.Client
}

func NewOpenAI(baseURL, apiKey, model string, maxChars int) *OpenAI {
	return &OpenAI{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		apiKey:   apiKey,
		model:    model,
		maxChars: maxChars,
		client:   &http.Client{Timeout: 60 * time.Second},
	}
}

func (o *OpenAI) Generate(ctx context.Context, snippets []string, persona Persona) (string, error) {
	if len(snippets) == 0 {
		return "", fmt.Errorf("%w: no snippets", domain.ErrGeneration)
	}

	reqBody := map[string]any{
		"model": o.model,
		"messages": []map[string]string{
			{"role": "user", "content": BuildPrompt(snippets, persona, o.maxChars)},
		},
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrGeneration, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrGeneration, err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrGeneration, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: API error: %d", domain.ErrGeneration, resp.StatusCode)
	}

	var apiResp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrGeneration, err)
	}

	if len(apiResp.Choices) == 0 {
		return "", fmt.Errorf("%w: no response from LLM", domain.ErrGeneration)
	}

	text := Clean(apiResp.Choices[0].Message.Content, o.maxChars)
	if text == "" {
		return "", fmt.Errorf("%w: empty response from LLM", domain.ErrGeneration)
	}

	return text, nil
}

func BuildPrompt(snippets []string, persona Persona, maxChars int) string {
	return fmt.Sprintf(`You are a Twitter bot named %s.
Personality: %s

Create a witty comment about the following trends.
Language: %s
Maximum %d characters.

Trends:
%s`, persona.Name, persona.Personality, persona.Language, maxChars, strings.Join(snippets, "\n"))
}

// Clean strips whitespace and wrapping quotes and cuts the text to maxChars runes,
// preferring a word boundary.
func Clean(content string, maxChars int) string {
	content = strings.TrimSpace(content)
	for _, q := range []string{`"`, "'", "“"} {
		closing := q
		if q == "“" {
			closing = "”"
		}
		if len(content) >= len(q)+len(closing) && strings.HasPrefix(content, q) && strings.HasSuffix(content, closing) {
			content = strings.TrimSpace(content[len(q) : len(content)-len(closing)])
		}
	}

	if maxChars <= 0 || utf8.RuneCountInString(content) <= maxChars {
		return content
	}

	runes := []rune(content)[:maxChars]
	cut := string(runes)
	if i := strings.LastIndexAny(cut, " \n"); i > len(cut)/2 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut)
}
