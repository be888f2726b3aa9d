// Package cache keeps spoken replies so pressing play on the same message
// again does not need a round trip to the speech server. It layers an
// in-memory LRU over a zstd compressed disk store.
package cache
