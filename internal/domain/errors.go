package domain

import "errors"

// Failure kinds of the external collaborators. Adapters wrap their errors with one of these
// so the cycle can tell them apart with errors.Is.
var (
	ErrFetch      = errors.New("fetch failed")
	ErrGeneration = errors.New("generation failed")
	ErrPublish    = errors.New("publish failed")
)
