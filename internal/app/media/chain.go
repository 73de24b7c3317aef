package media

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/croquis/internal/domain/item"
)

// SourceWithMetadata wraps a source with its metadata.
type SourceWithMetadata struct {
	Source      Source
	DisplayName string
}

// Chain loads every source of a lane and merges the results.
type Chain struct {
	sources []SourceWithMetadata
}

// NewChain creates a new source chain.
func NewChain(sources []SourceWithMetadata) *Chain {
	return &Chain{sources: sources}
}

// Load loads items from all sources in order, skipping failed sources and
// items already returned by an earlier source. It fails only when every
// source failed.
func (c *Chain) Load(ctx context.Context) ([]item.Item, error) {
	var (
		all    []item.Item
		failed int
		seen   = make(map[string]struct{})
	)

	for i, sm := range c.sources {
		zlog.Debug().Msgf("loading source: index=%d total=%d name=%s type=%s",
			i+1, len(c.sources), sm.DisplayName, sm.Source.Name())

		items, err := sm.Source.Load(ctx)
		if err != nil {
			failed++
			zlog.Warn().Msgf("source failed, trying next: source=%s error=%v", sm.DisplayName, err)
			continue
		}

		added := 0
		for _, it := range items {
			if _, dup := seen[it.ID]; dup {
				continue
			}
			seen[it.ID] = struct{}{}
			all = append(all, it)
			added++
		}

		zlog.Info().Msgf("source loaded: source=%s count=%d total_so_far=%s",
			sm.DisplayName, added, humanize.Comma(int64(len(all))))
	}

	if len(c.sources) > 0 && failed == len(c.sources) {
		return nil, errors.New("all sources failed to load")
	}
	if all == nil {
		all = []item.Item{}
	}
	return all, nil
}

// Watch starts watching every source that supports it.
func (c *Chain) Watch(ctx context.Context, onChange func(Change)) error {
	for _, sm := range c.sources {
		w, ok := sm.Source.(Watcher)
		if !ok {
			continue
		}
		if err := w.Watch(ctx, onChange); err != nil {
			return errors.Wrapf(err, "failed to watch source %s", sm.DisplayName)
		}
	}
	return nil
}

// Len returns the number of sources.
func (c *Chain) Len() int {
	return len(c.sources)
}

// DisplayNames returns the display names of the sources in order.
func (c *Chain) DisplayNames() []string {
	names := make([]string, len(c.sources))
	for i, sm := range c.sources {
		names[i] = sm.DisplayName
	}
	return names
}
