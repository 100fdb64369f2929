package notifier

import "context"

type Kind string

const (
	KindPosted         Kind = "posted"
	KindQuotaExhausted Kind = "quota_exhausted"
)

// Notification is an operator alert raised by a cycle.
type Notification struct {
	Kind    Kind
	Account string
	Text    string
	PostID  string
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}
