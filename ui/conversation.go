package ui

import (
	"strings"

	runewidth "github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/ansi"
	"github.com/muesli/reflow/indent"
	"github.com/muesli/reflow/wordwrap"

	"github.com/idoll/idoll/internal/chat"
)

const (
	playMarker = "▶"
	stopMarker = "■"
	gutter     = 2
)

// conversationView renders messages for the viewport. selected is an index
// into msgs or -1, speaking is the id owning the play control.
type conversationView struct {
	msgs     []chat.Message
	selected int
	speaking string
	spinner  string
	width    int
}

func (v conversationView) render() string {
	if len(v.msgs) == 0 {
		return pendingStyle.Render("Say hello. Press ctrl+r to talk or ctrl+t to start a call.")
	}
	width := max(10, v.width)
	var b strings.Builder
	for i, m := range v.msgs {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(v.renderMessage(i, m, width))
		b.WriteString("\n")
	}
	return b.String()
}

func (v conversationView) renderMessage(i int, m chat.Message, width int) string {
	bodyWidth := max(1, width-gutter)

	var name string
	if m.Role == chat.RoleUser {
		name = userNameStyle.Render(m.Role.DisplayName())
	} else {
		name = assistantNameStyle.Render(m.Role.DisplayName())
	}
	header := name
	if !m.Timestamp.IsZero() {
		header += " " + timestampStyle.Render(m.Timestamp.Local().Format("15:04"))
	}
	if m.Role == chat.RoleAssistant && !m.Streaming {
		marker := playMarkerStyle.Render(playMarker)
		if m.ID != "" && m.ID == v.speaking {
			marker = stopMarkerStyle.Render(stopMarker)
		}
		header = padBetween(header, marker, bodyWidth)
	}

	content := strings.TrimRight(m.Content, "\n")
	body := wordwrap.String(content, bodyWidth)
	switch {
	case m.Streaming && content == "":
		body = v.spinner
	case m.Streaming:
		body += " " + v.spinner
	case m.Pending:
		body += "\n" + pendingStyle.Render("sending"+ellipsis)
	}
	if len(m.Tags) > 0 {
		body += "\n" + tagStyle.Render("#"+strings.Join(m.Tags, " #"))
	}

	block := header + "\n" + body
	if i == v.selected {
		return prefixLines(block, selectedBarStyle.Render("│")+" ")
	}
	return indent.String(block, gutter)
}

// padBetween places right at the end of a line of width cells.
func padBetween(left, right string, width int) string {
	gap := width - ansi.PrintableRuneWidth(left) - ansi.PrintableRuneWidth(right)
	if gap < 1 {
		gap = 1
	}
	return left + strings.Repeat(" ", gap) + right
}

func prefixLines(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}

// truncateCells cuts s to width terminal cells, appending an ellipsis.
func truncateCells(s string, width int) string {
	if width <= 0 {
		return ""
	}
	return runewidth.Truncate(s, width, ellipsis)
}
