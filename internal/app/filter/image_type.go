package filter

import (
	"context"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/croquis/internal/domain/item"
)

// ImageTypeConfig represents the configuration for ImageTypeFilter.
type ImageTypeConfig struct {
	// Allowed MIME types, empty = any image/* type
	Allowed []string `yaml:"allowed" mapstructure:"allowed" validate:"dive,required"`
}

// ImageTypeFilter rejects local files whose content is not an image,
// whatever their extension says.
type ImageTypeFilter struct {
	config *ImageTypeConfig
}

// NewImageTypeFilter creates a new image type filter.
func NewImageTypeFilter() *ImageTypeFilter {
	return &ImageTypeFilter{}
}

func (f *ImageTypeFilter) Name() string {
	return "image_type_filter"
}

func (f *ImageTypeFilter) Description() string {
	return "Checks that local files contain image data"
}

func (f *ImageTypeFilter) ReturnCodes() []string {
	return []string{"not_an_image", "unreadable", "type_not_allowed"}
}

func (f *ImageTypeFilter) ValidateConfig(settings map[string]any) error {
	var config ImageTypeConfig
	if err := decodeConfig(settings, &config); err != nil {
		return err
	}
	f.config = &config
	zlog.Info().Msgf("image type filter config: %+v", config)
	return nil
}

func (f *ImageTypeFilter) AppliesTo(source item.SourceType) bool {
	// Remote covers are not downloaded here
	return source == item.SourceTypeDirectory
}

func (f *ImageTypeFilter) Check(ctx context.Context, it item.Item, accepted []item.Item) Result {
	mtype, err := mimetype.DetectFile(it.DisplayRef)
	if err != nil {
		zlog.Debug().Msgf("image type filter: cannot read %s: %v", it.DisplayRef, err)
		return Reject("unreadable")
	}

	if !strings.HasPrefix(mtype.String(), "image/") {
		return Reject("not_an_image")
	}

	if f.config != nil && len(f.config.Allowed) > 0 && !mimetype.EqualsAny(mtype.String(), f.config.Allowed...) {
		return Reject("type_not_allowed")
	}
	return Accept()
}

func init() {
	Register("image_type_filter", func() Filter {
		return NewImageTypeFilter()
	})
}
