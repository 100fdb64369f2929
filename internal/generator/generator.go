package generator

import "context"

// Persona shapes the voice of the generated commentary.
type Persona struct {
	Name        string
	Personality string
	Language    string
}

// Generator turns trending snippets into a short commentary. Errors are wrapped with
// domain.ErrGeneration.
type Generator interface {
	Generate(ctx context.Context, snippets []string, persona Persona) (string, error)
}
