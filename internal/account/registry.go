package account

import (
	"errors"
	"fmt"
	"sync"
)

type entry struct {
	spec Spec
	read int
	post int
}

// Registry holds the configured accounts and decides which one reads and which one posts.
//
// Reading rotates: the cursor stays on its account until that account runs out of read
// quota, then moves forward to the next account that still has some. It never moves back on
// its own, so refilling the first account does not pull reads back to it. Posting never
// rotates and always uses the first account.
type Registry struct {
	mu      sync.Mutex
	entries []*entry
	current int
	wrap    bool
}

type Option func(*Registry)

// WithWrap controls whether the read cursor wraps past the last account back to the first.
// Without wrapping, accounts before the cursor are never read again, even after a refill:
// once the accounts from the cursor onward are exhausted, selection fails.
func WithWrap(wrap bool) Option {
	return func(r *Registry) { r.wrap = wrap }
}

func NewRegistry(specs []Spec, opts ...Option) (*Registry, error) {
	if len(specs) == 0 {
		return nil, errors.New("registry needs at least one account")
	}

	r := &Registry{wrap: true}
	seen := make(map[string]bool, len(specs))

	for _, s := range specs {
		if s.Name == "" {
			return nil, errors.New("account name is required")
		}
		if seen[s.Name] {
			return nil, fmt.Errorf("duplicate account %q", s.Name)
		}
		if s.Limits.Read < 0 || s.Limits.Post < 0 {
			return nil, fmt.Errorf("account %q: negative limit", s.Name)
		}
		seen[s.Name] = true

		r.entries = append(r.entries, &entry{
			spec: s,
			read: s.Limits.Read,
			post: s.Limits.Post,
		})
	}

	for _, opt := range opts {
		opt(r)
	}

	return r, nil
}

// SelectReadAccount returns the account to read with. Counters are left untouched; the
// cursor only moves when its account has no read quota left.
func (r *Registry) SelectReadAccount() (Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.entries[r.current].read > 0 {
		return r.entries[r.current].account(), nil
	}

	n := len(r.entries)
	for step := 1; step < n; step++ {
		i := r.current + step
		if i >= n {
			if !r.wrap {
				break
			}
			i -= n
		}
		if r.entries[i].read > 0 {
			r.current = i
			return r.entries[i].account(), nil
		}
	}

	return Account{}, fmt.Errorf("read: %w", ErrQuotaExhausted)
}

// RecordReadSuccess consumes one read from the named account. It never goes below zero.
func (r *Registry) RecordReadSuccess(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, err := r.lookup(name)
	if err != nil {
		return err
	}
	if e.read > 0 {
		e.read--
	}
	return nil
}

// SelectPostingAccount always returns the main account.
func (r *Registry) SelectPostingAccount() Account {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.entries[0].account()
}

// CanPost reports whether the named account still has post quota.
func (r *Registry) CanPost(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, err := r.lookup(name)
	if err != nil {
		return err
	}
	if e.post <= 0 {
		return fmt.Errorf("post %s: %w", name, ErrQuotaExhausted)
	}
	return nil
}

// RecordPostSuccess consumes one post from the named account, failing at zero.
func (r *Registry) RecordPostSuccess(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, err := r.lookup(name)
	if err != nil {
		return err
	}
	if e.post <= 0 {
		return fmt.Errorf("post %s: %w", name, ErrQuotaExhausted)
	}
	e.post--
	return nil
}

// Refill restores the named account's counters to their configured limits.
// The read cursor is not moved.
func (r *Registry) Refill(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, err := r.lookup(name)
	if err != nil {
		return err
	}
	e.refill()
	return nil
}

func (r *Registry) RefillAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.entries {
		e.refill()
	}
}

func (r *Registry) Snapshot() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Status, len(r.entries))
	for i, e := range r.entries {
		out[i] = Status{
			Name:          e.spec.Name,
			ReadRemaining: e.read,
			ReadLimit:     e.spec.Limits.Read,
			PostRemaining: e.post,
			PostLimit:     e.spec.Limits.Post,
			Reading:       i == r.current,
			Posting:       i == 0,
		}
	}
	return out
}

func (r *Registry) lookup(name string) (*entry, error) {
	for _, e := range r.entries {
		if e.spec.Name == name {
			return e, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrInvalidAccount, name)
}

func (e *entry) account() Account {
	return Account{
		Name:        e.spec.Name,
		Credentials: e.spec.Credentials,
		ReadQuota:   e.read,
		PostQuota:   e.post,
	}
}

func (e *entry) refill() {
	e.read = e.spec.Limits.Read
	e.post = e.spec.Limits.Post
}
