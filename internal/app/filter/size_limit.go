package filter

import (
	"context"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/croquis/internal/domain/item"
)

// SizeLimitConfig represents the configuration for SizeLimitFilter.
// Sizes are human readable, e.g. "10KB" or "25 MiB".
type SizeLimitConfig struct {
	MinSize string `yaml:"min_size" mapstructure:"min_size" default:"1KB"`
	MaxSize string `yaml:"max_size" mapstructure:"max_size"` // Empty = no limit
}

// SizeLimitFilter checks that local files are within size limits.
// Tiny files are usually thumbnails or broken downloads.
type SizeLimitFilter struct {
	min uint64
	max uint64 // 0 = no limit
}

// NewSizeLimitFilter creates a new size limit filter.
func NewSizeLimitFilter() *SizeLimitFilter {
	return &SizeLimitFilter{}
}

func (f *SizeLimitFilter) Name() string {
	return "size_limit_filter"
}

func (f *SizeLimitFilter) Description() string {
	return "Checks that local files are within size limits"
}

func (f *SizeLimitFilter) ReturnCodes() []string {
	return []string{"size_limit_exceeded", "unreadable"}
}

func (f *SizeLimitFilter) ValidateConfig(settings map[string]any) error {
	var config SizeLimitConfig
	if err := decodeConfig(settings, &config); err != nil {
		return err
	}

	minSize, err := humanize.ParseBytes(config.MinSize)
	if err != nil {
		return errors.Wrapf(err, "invalid min_size %q", config.MinSize)
	}
	var maxSize uint64
	if config.MaxSize != "" {
		if maxSize, err = humanize.ParseBytes(config.MaxSize); err != nil {
			return errors.Wrapf(err, "invalid max_size %q", config.MaxSize)
		}
	}
	if maxSize > 0 && minSize > maxSize {
		return errors.New("min_size cannot be greater than max_size")
	}

	f.min, f.max = minSize, maxSize
	zlog.Info().Msgf("size limit filter config: min=%s max=%s", humanize.Bytes(f.min), humanize.Bytes(f.max))
	return nil
}

func (f *SizeLimitFilter) AppliesTo(source item.SourceType) bool {
	return source == item.SourceTypeDirectory
}

func (f *SizeLimitFilter) Check(ctx context.Context, it item.Item, accepted []item.Item) Result {
	fi, err := os.Stat(it.DisplayRef)
	if err != nil {
		return Reject("unreadable")
	}

	size := uint64(fi.Size())
	if size < f.min {
		return Reject("size_limit_exceeded")
	}
	if f.max > 0 && size > f.max {
		return Reject("size_limit_exceeded")
	}
	return Accept()
}

func init() {
	Register("size_limit_filter", func() Filter {
		return NewSizeLimitFilter()
	})
}
