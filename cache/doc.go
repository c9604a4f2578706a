// Package cache implements the content-addressable result cache keyed by
// node fingerprints.
//
// Each fingerprint owns an ordered stream of values in the broker plus a
// seal marker written once the producer finished. A builder lock guarantees
// at most one producer per fingerprint; concurrent requestors wait for the
// seal notification and then read the completed stream. Sealed entries are
// evicted least-recently-read first once the configured byte budget is
// exceeded; unsealed entries are never evicted.
//
// Large payloads are stored by reference: the cached value holds a URI into
// a blob store (local directory or in-memory) and the producer writes the
// blob before the cache record.
package cache
