package variation

import (
	"context"
)

// Generator produces N rephrased variants of a message template. Pure from the
// engine's point of view: failures fall back to the literal template and never
// abort a dispatch run.
type Generator interface {
	Generate(ctx context.Context, template string, count int) ([]string, error)
}

// Static is the fallback generator used when no AI provider is configured.
// It returns the template itself for every requested variant.
type Static struct{}

func (Static) Generate(ctx context.Context, template string, count int) ([]string, error) {
	if count < 1 {
		count = 1
	}
	variants := make([]string, count)
	for i := range variants {
		variants[i] = template
	}
	return variants, nil
}
