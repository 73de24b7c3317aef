package filter

import (
	"context"
	"regexp"
	"strings"

	"github.com/osa030/croquis/internal/domain/item"
)

// DuplicateItemFilter rejects items already in the lane.
// Detects:
// - Exact item ID matches (same file or URL)
// - Copies (normalized name + same caption), e.g. "pose (1)" or "pose copy"
// Excludes:
// - Same name from a different folder or artist
type DuplicateItemFilter struct{}

// NewDuplicateItemFilter creates a new duplicate item filter.
func NewDuplicateItemFilter() *DuplicateItemFilter {
	return &DuplicateItemFilter{}
}

func (f *DuplicateItemFilter) Name() string {
	return "duplicate_item_filter"
}

func (f *DuplicateItemFilter) Description() string {
	return "Rejects items already in the playlist, including file copies"
}

func (f *DuplicateItemFilter) ReturnCodes() []string {
	return []string{"duplicate_item"}
}

func (f *DuplicateItemFilter) ValidateConfig(settings map[string]any) error {
	// No configuration needed
	return nil
}

func (f *DuplicateItemFilter) AppliesTo(source item.SourceType) bool {
	return true
}

func (f *DuplicateItemFilter) Check(ctx context.Context, it item.Item, accepted []item.Item) Result {
	name := normalizeItemName(it.Name)
	for _, a := range accepted {
		if a.ID == it.ID {
			return Reject("duplicate_item")
		}
		if strings.EqualFold(a.Caption, it.Caption) && normalizeItemName(a.Name) == name {
			return Reject("duplicate_item")
		}
	}
	return Accept()
}

var copyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\s*\(\d+\)$`),            // "pose (1)"
	regexp.MustCompile(`\s*-?\s*copy(\s+\d+)?$`), // "pose copy", "pose - copy 2"
	regexp.MustCompile(`\s*[@_-]\d+x$`),          // "pose@2x", "pose_3x"
	regexp.MustCompile(`\s*\(deluxe.*?\)$`),      // "Album (Deluxe Edition)"
	regexp.MustCompile(`\s*\(.*?remaster.*?\)$`), // "Album (Remastered 2011)"
}

var spaces = regexp.MustCompile(`\s+`)

// normalizeItemName strips copy markers and edition suffixes.
func normalizeItemName(name string) string {
	normalized := strings.ToLower(strings.TrimSpace(name))
	for {
		before := normalized
		for _, p := range copyPatterns {
			normalized = p.ReplaceAllString(normalized, "")
		}
		if normalized == before {
			break
		}
	}
	normalized = spaces.ReplaceAllString(normalized, " ")
	return strings.TrimRight(normalized, " -_")
}

func init() {
	Register("duplicate_item_filter", func() Filter {
		return NewDuplicateItemFilter()
	})
}
