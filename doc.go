// Package quotacache implements a bounded local cache on top of a backing store
// with a hard capacity limit, for results that are expensive to recompute
// (dictionary renderings, generated explanations).
//
// Components:
//   - Store: capacity-limited byte store (memory, BigCache, Ristretto, Redis, SQLite).
//     Set may be rejected with store.ErrCapacityExceeded at any time.
//   - Codec[V]: (de)serializes V <-> []byte.
//   - Recency index: the tracked keys, most recent first, persisted under one
//     reserved key inside the same store.
//   - Write queue: one worker applies every mutation in submission order.
//
// Keys:
//
//	<TrackedPrefix><key>  - tracked: indexed, evicted least recently used first
//	<IndexKey>            - the recency index (reserved)
//	anything else         - untracked: plain key/value, never evicted
//
// Write path:
//
//	Set(entry + index) -> capacity rejected -> evict LRU -> (tidy at mid budget)
//	                   -> refresh index -> retry ... -> *WriteFailedError
//
// The index and the store can drift apart after partial failures. Tidy repairs
// that: unindexed tracked entries are removed, index keys without an entry dropped.
package quotacache
