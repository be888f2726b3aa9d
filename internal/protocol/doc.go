// Package protocol defines the JSON messages exchanged with the chat server
// over the WebSocket. Every frame is a JSON object discriminated by "type".
package protocol
