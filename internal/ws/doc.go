// Package ws maintains the WebSocket connection to the idoll server.
//
// A Client dials the server, identifies the user, pings every few seconds to
// measure latency and throughput, and turns inbound frames into Events. When
// the connection drops it reconnects with a growing delay until a retry
// budget is spent.
package ws
