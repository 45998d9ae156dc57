// Component for persisting small string values (timestamps, JSON blobs) under a namespaced key, with optional expiry.
//
// Includes an interface and implementations using redis and in-process memory.
//
// The scheduler keeps per-stream last-action timestamps here, the template selector keeps its rotation history here, and cycles drop debugging artifacts here. Reads and writes are independent round trips; there are no transactional guarantees, and each key is expected to be owned by a single loop.
package cachestore
