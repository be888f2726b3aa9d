// Package capture records the microphone for transcription and streams it
// in call mode.
package capture
