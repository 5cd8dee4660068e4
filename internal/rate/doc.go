// Package rate implements the per-client request limiter backed by Redis
// fixed-window counters.
//
// Each client key gets one counter per wall-clock minute
// (floor(now/60s)). The first hit in a window creates the counter with a
// TTL of two windows so stale buckets evict themselves. Counting via INCR
// keeps admission atomic under concurrent hits: exactly the configured
// number of requests pass per window regardless of interleaving.
package rate
