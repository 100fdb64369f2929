package domain

import "time"

// Snippet is one piece of trending text fed to the generator.
type Snippet struct {
	ID        string
	Trend     string
	Username  string
	Content   string
	Source    Source
	CreatedAt time.Time
}

type Source string

const (
	SourceTwitter Source = "twitter"
	SourceNitter  Source = "nitter"
)

// Texts returns the snippet contents in order.
func Texts(snippets []Snippet) []string {
	out := make([]string, len(snippets))
	for i, s := range snippets {
		out[i] = s.Content
	}
	return out
}

// Post is a commentary that was published.
type Post struct {
	ID          string    `json:"id"`
	ExternalID  string    `json:"external_id"`
	Account     string    `json:"account"`
	ReadAccount string    `json:"read_account"`
	Content     string    `json:"content"`
	Trends      []string  `json:"trends"`
	CreatedAt   time.Time `json:"created_at"`
}
