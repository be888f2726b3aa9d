// Package queue serializes streamed audio payloads onto a single output.
//
// Payloads play strictly in arrival order with at most one in flight. The
// queue is either idle or active; observers see every transition exactly
// once and in order, which is what keeps play/stop indicators honest when
// playback is interrupted mid-stream.
package queue
