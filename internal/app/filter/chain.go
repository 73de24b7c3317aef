package filter

import (
	"context"

	"github.com/osa030/croquis/internal/domain/item"
)

// Chain executes filters in sequence.
type Chain struct {
	filters []Filter
}

// NewChain creates a new filter chain.
func NewChain() *Chain {
	return &Chain{
		filters: make([]Filter, 0),
	}
}

// Add adds a filter to the chain.
func (c *Chain) Add(f Filter) {
	c.filters = append(c.filters, f)
}

// Execute runs all filters in sequence.
// Returns immediately if any filter rejects the item.
// Filters are only applied if they declare they apply to the item's source.
func (c *Chain) Execute(ctx context.Context, it item.Item, accepted []item.Item) Result {
	for _, f := range c.filters {
		if !f.AppliesTo(it.Source) {
			continue
		}

		result := f.Check(ctx, it, accepted)
		if !result.Accepted {
			return result
		}
	}
	return Accept()
}

// Apply runs the chain over items in order and returns the accepted ones
// together with a count of rejections per code.
func (c *Chain) Apply(ctx context.Context, items []item.Item) ([]item.Item, map[string]int) {
	accepted := make([]item.Item, 0, len(items))
	rejected := make(map[string]int)
	for _, it := range items {
		result := c.Execute(ctx, it, accepted)
		if !result.Accepted {
			rejected[result.Code]++
			continue
		}
		accepted = append(accepted, it)
	}
	return accepted, rejected
}

// Filters returns all filters in the chain.
func (c *Chain) Filters() []Filter {
	return c.filters
}
