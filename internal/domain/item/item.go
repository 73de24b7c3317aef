// Package item provides the Item domain entity.
package item

import (
	"strings"

	"github.com/google/uuid"
)

// SourceType identifies where an item came from.
type SourceType string

const (
	SourceTypeDirectory SourceType = "directory"
	SourceTypeSpotify   SourceType = "spotify"
	SourceTypeLastFm    SourceType = "lastfm"
)

// Item is one visual reference in a playlist.
// DisplayRef is owned by the media source that produced the item.
type Item struct {
	ID         string     // Stable unique identifier
	Name       string     // Display name (file name, album title)
	DisplayRef string     // File path or URL of the visual content
	Source     SourceType // Source that produced the item
	Caption    string     // Optional secondary text (artist, folder)
}

// NewID derives a stable item ID from a display reference.
// The same reference always yields the same ID, so a watcher can map a
// removed file back to the item that was built from it.
func NewID(ref string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(ref)).String()
}

// New creates an item whose ID is derived from ref.
func New(name, ref string, source SourceType) Item {
	return Item{
		ID:         NewID(ref),
		Name:       name,
		DisplayRef: ref,
		Source:     source,
	}
}

// IsRemote reports whether the display reference is an http(s) URL.
func (i Item) IsRemote() bool {
	ref := strings.ToLower(i.DisplayRef)
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}

// IsZero reports whether the item is the empty sentinel.
func (i Item) IsZero() bool {
	return i.ID == ""
}

// IDs returns the IDs of the given items in order.
func IDs(items []Item) []string {
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	return ids
}
