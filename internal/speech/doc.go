// Package speech prepares replies for speaking and synthesizes them locally
// when the server cannot.
package speech
