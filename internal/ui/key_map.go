package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the [key.Binding] mapping for the TUI.
type keyMap struct {
	up      key.Binding
	down    key.Binding
	tab     key.Binding
	sync    key.Binding
	force   key.Binding
	retry   key.Binding
	refresh key.Binding
	quit    key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		up:      key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		down:    key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		tab:     key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "movies/queue")),
		sync:    key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "sync")),
		force:   key.NewBinding(key.WithKeys("f"), key.WithHelp("f", "force sync")),
		retry:   key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "retry entry")),
		refresh: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
		quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.up, k.down, k.tab},
		{k.sync, k.force, k.retry},
		{k.refresh, k.quit},
	}
}
