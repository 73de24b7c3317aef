// Package playlist provides the Playlist domain entity: an ordered, mutable
// sequence of items with a circular cursor.
package playlist

import (
	"math/rand/v2"

	"github.com/osa030/croquis/internal/domain/item"
)

// Rand is the randomness used by Shuffle.
type Rand interface {
	IntN(n int) int
}

type globalRand struct{}

func (globalRand) IntN(n int) int { return rand.IntN(n) }

// Option configures a Playlist.
type Option func(*Playlist)

// WithRand sets the random source used by Shuffle.
func WithRand(r Rand) Option {
	return func(p *Playlist) {
		if r != nil {
			p.rng = r
		}
	}
}

// Playlist is an ordered list of items with a cursor.
// The cursor is -1 while the playlist is empty and always in range otherwise.
type Playlist struct {
	items  []item.Item
	cursor int
	rng    Rand
}

// New creates an empty playlist.
func New(opts ...Option) *Playlist {
	p := &Playlist{
		items:  make([]item.Item, 0),
		cursor: -1,
		rng:    globalRand{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Load replaces the contents and resets the cursor to the first item.
// It never shuffles.
func (p *Playlist) Load(items []item.Item) {
	p.items = make([]item.Item, len(items))
	copy(p.items, items)
	if len(p.items) == 0 {
		p.cursor = -1
		return
	}
	p.cursor = 0
}

// Clear removes every item.
func (p *Playlist) Clear() {
	p.items = make([]item.Item, 0)
	p.cursor = -1
}

// Shuffle randomly permutes the items with a uniform Fisher-Yates shuffle.
// With preserveCurrent the current item is pinned at index 0, becomes the
// cursor, and only the remaining items are permuted.
func (p *Playlist) Shuffle(preserveCurrent bool) {
	n := len(p.items)
	if n <= 1 {
		return
	}

	if !preserveCurrent {
		p.fisherYates(p.items)
		p.cursor = 0
		return
	}

	current := p.items[p.cursor]
	rest := make([]item.Item, 0, n-1)
	rest = append(rest, p.items[:p.cursor]...)
	rest = append(rest, p.items[p.cursor+1:]...)
	p.fisherYates(rest)

	p.items = append([]item.Item{current}, rest...)
	p.cursor = 0
}

func (p *Playlist) fisherYates(s []item.Item) {
	for i := len(s) - 1; i > 0; i-- {
		j := p.rng.IntN(i + 1)
		s[i], s[j] = s[j], s[i]
	}
}

// Advance moves the cursor forward, wrapping to the first item.
func (p *Playlist) Advance() {
	if len(p.items) == 0 {
		return
	}
	p.cursor = (p.cursor + 1) % len(p.items)
}

// Retreat moves the cursor backward, wrapping to the last item.
func (p *Playlist) Retreat() {
	n := len(p.items)
	if n == 0 {
		return
	}
	p.cursor = (p.cursor - 1 + n) % n
}

// RemoveAt removes the item at index. It reports false when index is out of
// range. An earlier removal keeps the cursor on the same item; removing the
// current item leaves the cursor on its successor, clamped into range.
func (p *Playlist) RemoveAt(index int) bool {
	if index < 0 || index >= len(p.items) {
		return false
	}

	p.items = append(p.items[:index], p.items[index+1:]...)

	if len(p.items) == 0 {
		p.cursor = -1
		return true
	}

	if index < p.cursor {
		p.cursor--
	}
	if p.cursor >= len(p.items) {
		p.cursor = len(p.items) - 1
	}
	return true
}

// Current returns the item at the cursor. ok is false when the playlist is empty.
func (p *Playlist) Current() (item.Item, bool) {
	if p.cursor < 0 || p.cursor >= len(p.items) {
		return item.Item{}, false
	}
	return p.items[p.cursor], true
}

// Cursor returns the cursor index, or -1 when empty.
func (p *Playlist) Cursor() int {
	return p.cursor
}

// Len returns the number of items.
func (p *Playlist) Len() int {
	return len(p.items)
}

// IsEmpty returns true if the playlist has no items.
func (p *Playlist) IsEmpty() bool {
	return len(p.items) == 0
}

// IsLast reports whether the cursor sits on the last item.
func (p *Playlist) IsLast() bool {
	return len(p.items) > 0 && p.cursor == len(p.items)-1
}

// IndexOf returns the index of the item with the given ID, or -1.
func (p *Playlist) IndexOf(id string) int {
	for i, it := range p.items {
		if it.ID == id {
			return i
		}
	}
	return -1
}

// Items returns a copy of the items in order.
func (p *Playlist) Items() []item.Item {
	result := make([]item.Item, len(p.items))
	copy(result, p.items)
	return result
}

// ItemIDs returns all item IDs in order.
func (p *Playlist) ItemIDs() []string {
	return item.IDs(p.items)
}
