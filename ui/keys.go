package ui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Send      key.Binding
	Speak     key.Binding
	Record    key.Binding
	Call      key.Binding
	StopAudio key.Binding
	Up        key.Binding
	Down      key.Binding
	Copy      key.Binding
	Panel     key.Binding
	Quit      key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		Send:      key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "send/stop")),
		Speak:     key.NewBinding(key.WithKeys("ctrl+p"), key.WithHelp("ctrl+p", "speak")),
		Record:    key.NewBinding(key.WithKeys("ctrl+r"), key.WithHelp("ctrl+r", "record")),
		Call:      key.NewBinding(key.WithKeys("ctrl+t"), key.WithHelp("ctrl+t", "call")),
		StopAudio: key.NewBinding(key.WithKeys("ctrl+x"), key.WithHelp("ctrl+x", "stop audio")),
		Up:        key.NewBinding(key.WithKeys("up"), key.WithHelp("↑/↓", "select")),
		Down:      key.NewBinding(key.WithKeys("down")),
		Copy:      key.NewBinding(key.WithKeys("ctrl+y"), key.WithHelp("ctrl+y", "copy")),
		Panel:     key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "conversations")),
		Quit:      key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "quit")),
	}
}

// ShortHelp implements help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Send, k.Speak, k.Record, k.Call, k.StopAudio, k.Up, k.Copy, k.Panel, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Send, k.Up, k.Copy},
		{k.Speak, k.StopAudio},
		{k.Record, k.Call},
		{k.Panel, k.Quit},
	}
}
