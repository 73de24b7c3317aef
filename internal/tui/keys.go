package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the key bindings for the presenter
type KeyMap struct {
	// Session
	Toggle key.Binding
	Next   key.Binding
	Prev   key.Binding
	Reset  key.Binding

	// Settings
	Slower     key.Binding
	Faster     key.Binding
	TargetUp   key.Binding
	TargetDown key.Binding
	Shuffle    key.Binding
	Reshuffle  key.Binding
	CueMode    key.Binding
	Cue        key.Binding
	VolumeUp   key.Binding
	VolumeDown key.Binding

	Help key.Binding
	Quit key.Binding
}

// DefaultKeyMap returns the default key bindings
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Toggle: key.NewBinding(
			key.WithKeys(" ", "space", "enter"),
			key.WithHelp("space", "start/stop"),
		),
		Next: key.NewBinding(
			key.WithKeys("right", "l", "n"),
			key.WithHelp("→/l", "next"),
		),
		Prev: key.NewBinding(
			key.WithKeys("left", "h", "p"),
			key.WithHelp("←/h", "prev"),
		),
		Reset: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "reset"),
		),
		Slower: key.NewBinding(
			key.WithKeys("+", "=", "up", "k"),
			key.WithHelp("+", "longer"),
		),
		Faster: key.NewBinding(
			key.WithKeys("-", "_", "down", "j"),
			key.WithHelp("-", "shorter"),
		),
		TargetUp: key.NewBinding(
			key.WithKeys("]"),
			key.WithHelp("]", "more items"),
		),
		TargetDown: key.NewBinding(
			key.WithKeys("["),
			key.WithHelp("[", "fewer items"),
		),
		Shuffle: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "shuffle on/off"),
		),
		Reshuffle: key.NewBinding(
			key.WithKeys("S"),
			key.WithHelp("S", "reshuffle"),
		),
		CueMode: key.NewBinding(
			key.WithKeys("m"),
			key.WithHelp("m", "cue every/last"),
		),
		Cue: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "cue on/off"),
		),
		VolumeUp: key.NewBinding(
			key.WithKeys("."),
			key.WithHelp(".", "volume up"),
		),
		VolumeDown: key.NewBinding(
			key.WithKeys(","),
			key.WithHelp(",", "volume down"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// ShortHelp returns the bindings shown in the mini help view.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Toggle, k.Next, k.Prev, k.Slower, k.Faster, k.Help, k.Quit}
}

// FullHelp returns the bindings shown in the expanded help view.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Toggle, k.Next, k.Prev, k.Reset},
		{k.Slower, k.Faster, k.TargetUp, k.TargetDown},
		{k.Shuffle, k.Reshuffle, k.CueMode, k.Cue},
		{k.VolumeUp, k.VolumeDown, k.Help, k.Quit},
	}
}
