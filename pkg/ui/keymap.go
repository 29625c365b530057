package ui

import "github.com/charmbracelet/bubbles/key"

// KeyMap holds the chat view bindings.
type KeyMap struct {
	Submit         key.Binding
	Quit           key.Binding
	Yank           key.Binding
	YankCode       key.Binding
	ToggleMarkdown key.Binding
}

func DefaultKeyMap() KeyMap {
	return KeyMap{
		Submit: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "send"),
		),
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c", "esc"),
			key.WithHelp("ctrl+c", "quit"),
		),
		Yank: key.NewBinding(
			key.WithKeys("ctrl+y"),
			key.WithHelp("ctrl+y", "copy last reply"),
		),
		YankCode: key.NewBinding(
			key.WithKeys("ctrl+g"),
			key.WithHelp("ctrl+g", "copy code blocks"),
		),
		ToggleMarkdown: key.NewBinding(
			key.WithKeys("ctrl+r"),
			key.WithHelp("ctrl+r", "toggle markdown"),
		),
	}
}
