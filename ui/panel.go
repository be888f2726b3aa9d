package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"

	"github.com/idoll/idoll/internal/chat"
	"github.com/idoll/idoll/internal/protocol"
)

// panelModel lists conversations with a fuzzy title filter.
type panelModel struct {
	summaries *chat.Summaries
	filter    textinput.Model
	items     []protocol.Summary
	cursor    int
	width     int
	height    int
}

func newPanelModel(s *chat.Summaries) panelModel {
	ti := textinput.New()
	ti.Prompt = "Find: "
	ti.Placeholder = "conversation title"
	ti.CharLimit = 64
	p := panelModel{summaries: s, filter: ti}
	p.refresh()
	return p
}

func (p *panelModel) setSize(w, h int) {
	p.width = w
	p.height = h
	p.filter.Width = max(0, w-len(p.filter.Prompt)-4)
}

func (p *panelModel) refresh() {
	p.items = p.summaries.Filter(p.filter.Value())
	if p.cursor >= len(p.items) {
		p.cursor = max(0, len(p.items)-1)
	}
}

func (p *panelModel) focus() tea.Cmd {
	p.refresh()
	return p.filter.Focus()
}

func (p *panelModel) blur() {
	p.filter.Blur()
}

func (p panelModel) selected() (protocol.Summary, bool) {
	if p.cursor < 0 || p.cursor >= len(p.items) {
		return protocol.Summary{}, false
	}
	return p.items[p.cursor], true
}

func (p panelModel) update(msg tea.KeyMsg) (panelModel, tea.Cmd) {
	switch msg.String() {
	case "up", "ctrl+k":
		if p.cursor > 0 {
			p.cursor--
		}
		return p, nil
	case "down", "ctrl+j":
		if p.cursor < len(p.items)-1 {
			p.cursor++
		}
		return p, nil
	}

	var cmd tea.Cmd
	before := p.filter.Value()
	p.filter, cmd = p.filter.Update(msg)
	if p.filter.Value() != before {
		p.cursor = 0
		p.refresh()
	}
	return p, cmd
}

func (p panelModel) view() string {
	inner := max(10, p.width-4)
	var b strings.Builder
	b.WriteString(panelTitleStyle.Render("Conversations"))
	b.WriteString("\n")
	b.WriteString(p.filter.View())
	b.WriteString("\n\n")

	if len(p.items) == 0 {
		if p.filter.Value() != "" {
			b.WriteString(panelItemStyle.Render("No matches."))
		} else {
			b.WriteString(panelItemStyle.Render("No conversations yet."))
		}
		return panelStyle.Width(inner).Render(b.String())
	}

	rows := max(1, (p.height-5)/2)
	start := 0
	if p.cursor >= rows {
		start = p.cursor - rows + 1
	}
	for i := start; i < len(p.items) && i < start+rows; i++ {
		s := p.items[i]
		title := truncateCells(s.Title, inner-2)
		detail := s.LastMessage
		if !s.Timestamp.IsZero() && !s.Timestamp.Time.IsZero() {
			detail = humanize.Time(s.Timestamp.Time) + "  " + detail
		}
		detail = truncateCells(detail, inner-2)
		if i == p.cursor {
			b.WriteString(panelSelectedStyle.Render("› " + title))
		} else {
			b.WriteString(panelItemStyle.Render("  " + title))
		}
		b.WriteString("\n  " + timestampStyle.Render(detail) + "\n")
	}
	return panelStyle.Width(inner).Render(strings.TrimRight(b.String(), "\n"))
}
