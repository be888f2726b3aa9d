// Package chat holds the state of one conversation: the messages shown to
// the user, the reply currently streaming in, and the sidebar of
// conversation summaries pushed by the server.
package chat
