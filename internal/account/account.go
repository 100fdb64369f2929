package account

import "errors"

var (
	// ErrQuotaExhausted is returned when no quota is left for the requested operation.
	ErrQuotaExhausted = errors.New("quota exhausted")
	// ErrInvalidAccount is returned for an account name the registry does not hold.
	ErrInvalidAccount = errors.New("invalid account")
)

// Credentials is the opaque set of platform secrets for one account.
type Credentials struct {
	BearerToken       string
	ConsumerKey       string
	ConsumerSecret    string
	AccessToken       string
	AccessTokenSecret string
}

// Account is a copy of one registry entry at selection time.
type Account struct {
	Name        string
	Credentials Credentials
	ReadQuota   int
	PostQuota   int
}

// Limits are the configured ceilings an account starts at and is refilled to.
type Limits struct {
	Read int
	Post int
}

// Spec describes one configured account.
type Spec struct {
	Name        string
	Credentials Credentials
	Limits      Limits
}

// Status is the credential-free view of an account used by the control surface.
type Status struct {
	Name          string `json:"name"`
	ReadRemaining int    `json:"read_remaining"`
	ReadLimit     int    `json:"read_limit"`
	PostRemaining int    `json:"post_remaining"`
	PostLimit     int    `json:"post_limit"`
	Reading       bool   `json:"reading"`
	Posting       bool   `json:"posting"`
}
