package extract

import (
	"context"
	"fmt"

	"autoblogger/internal/domain"
)

// Strategy captures a single extraction path (fetched URL, supplied
// raw text, etc.).
type Strategy interface {
	Name() string
	Extract(ctx context.Context, source domain.SourceRef) (domain.Draft, error)
}

// Registry keeps a mapping from strategy names to their implementations.
type Registry struct {
	strategies map[string]Strategy
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{strategies: map[string]Strategy{}}
}

// Register adds or replaces a strategy implementation.
func (r *Registry) Register(strategy Strategy) {
	if r.strategies == nil {
		r.strategies = map[string]Strategy{}
	}
	r.strategies[strategy.Name()] = strategy
}

// Resolve returns a strategy by name or an error if it is absent.
func (r *Registry) Resolve(name string) (Strategy, error) {
	if strategy, ok := r.strategies[name]; ok {
		return strategy, nil
	}
	return nil, fmt.Errorf("extraction strategy %s is not registered", name)
}

// ForSource picks the strategy matching the source reference: raw
// text when supplied, URL fetch otherwise.
func (r *Registry) ForSource(source domain.SourceRef) (Strategy, error) {
	if source.RawText != "" {
		return r.Resolve("rawtext")
	}
	return r.Resolve("url")
}

// Extract dispatches to the strategy matching the source.
func (r *Registry) Extract(ctx context.Context, source domain.SourceRef) (domain.Draft, error) {
	strategy, err := r.ForSource(source)
	if err != nil {
		return domain.Draft{}, domain.NewError(domain.KindConfig, false, "resolve extraction strategy", err)
	}
	return strategy.Extract(ctx, source)
}
