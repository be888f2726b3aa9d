package chat

import (
	"sync"
	"time"

	"github.com/sahilm/fuzzy"

	"github.com/idoll/idoll/internal/protocol"
)

// DefaultTitle names conversations the server has not titled yet.
const DefaultTitle = "New Chat"

// Summaries is the list of conversations, most recent first.
type Summaries struct {
	mu    sync.Mutex
	items []protocol.Summary
	now   func() time.Time
}

// NewSummaries returns an empty list.
func NewSummaries() *Summaries {
	return &Summaries{now: time.Now}
}

// Upsert merges s into the entry with the same id, or puts it at the top
// of the list. Summaries without an id are ignored.
func (l *Summaries) Upsert(s protocol.Summary) bool {
	if s.ID == "" {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range l.items {
		if l.items[i].ID != s.ID {
			continue
		}
		cur := &l.items[i]
		if s.Title != "" {
			cur.Title = s.Title
		}
		if s.LastMessage != "" {
			cur.LastMessage = s.LastMessage
		}
		if !s.Timestamp.IsZero() {
			cur.Timestamp = s.Timestamp
		}
		return true
	}

	if s.Title == "" {
		s.Title = DefaultTitle
	}
	if s.Timestamp.IsZero() {
		s.Timestamp = protocol.Timestamp{Time: l.now()}
	}
	l.items = append([]protocol.Summary{s}, l.items...)
	return true
}

// Remove deletes the conversation with id.
func (l *Summaries) Remove(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.items {
		if l.items[i].ID == id {
			l.items = append(l.items[:i], l.items[i+1:]...)
			return true
		}
	}
	return false
}

// List returns every summary.
func (l *Summaries) List() []protocol.Summary {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]protocol.Summary(nil), l.items...)
}

// Len returns the number of summaries.
func (l *Summaries) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}

type titles []protocol.Summary

func (t titles) String(i int) string { return t[i].Title }
func (t titles) Len() int            { return len(t) }

// Filter returns summaries whose title fuzzy matches query, best match
// first. An empty query returns the whole list.
func (l *Summaries) Filter(query string) []protocol.Summary {
	items := l.List()
	if query == "" {
		return items
	}
	matches := fuzzy.FindFrom(query, titles(items))
	out := make([]protocol.Summary, len(matches))
	for i, m := range matches {
		out[i] = items[m.Index]
	}
	return out
}
