package filter

import (
	"context"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/croquis/internal/domain/item"
)

// MaxItemsConfig represents the configuration for MaxItemsFilter.
type MaxItemsConfig struct {
	Max int `yaml:"max" mapstructure:"max" default:"500" validate:"gte=1"`
}

// MaxItemsFilter caps the number of items in a lane.
type MaxItemsFilter struct {
	config *MaxItemsConfig
}

// NewMaxItemsFilter creates a new max items filter.
func NewMaxItemsFilter() *MaxItemsFilter {
	return &MaxItemsFilter{}
}

func (f *MaxItemsFilter) Name() string {
	return "max_items_filter"
}

func (f *MaxItemsFilter) Description() string {
	return "Stops accepting items once the playlist is full"
}

func (f *MaxItemsFilter) ReturnCodes() []string {
	return []string{"max_items_exceeded"}
}

func (f *MaxItemsFilter) ValidateConfig(settings map[string]any) error {
	var config MaxItemsConfig
	if err := decodeConfig(settings, &config); err != nil {
		return err
	}
	f.config = &config
	zlog.Info().Msgf("max items filter config: %+v", config)
	return nil
}

func (f *MaxItemsFilter) AppliesTo(source item.SourceType) bool {
	return true
}

func (f *MaxItemsFilter) Check(ctx context.Context, it item.Item, accepted []item.Item) Result {
	// If config is not set, accept all items
	if f.config == nil {
		return Accept()
	}
	if len(accepted) >= f.config.Max {
		return Reject("max_items_exceeded")
	}
	return Accept()
}

func init() {
	Register("max_items_filter", func() Filter {
		return NewMaxItemsFilter()
	})
}
