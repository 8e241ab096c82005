// Package tiercache implements a catalog-based key-value cache over blob
// storage backends, and a multi-tier composition of such caches.
//
// Components:
//   - store.Store: byte store addressed by relative names (local disk, memory,
//     S3, MinIO, Redis, bigcache), optionally wrapped by retry, breaker,
//     tracing and hot-object decorators.
//   - codec.Codec[V]: (de)serializes V <-> []byte and names the file extension.
//   - catalog: the in-memory key -> entry index each cache builds by listing
//     its store at initialization.
//
// Layout of one entry in a store, for key K and codec extension .ext:
//
//	K.ext       - encoded value
//	K.ext.meta  - binary metadata sidecar (size, checksum, write id, time)
//
// The catalog is the cache's view of the store, and the store is the truth:
// Put writes the value, then the sidecar, then indexes; Remove deletes both
// objects, then de-indexes. A crash between steps leaves a state the next
// catalog build detects (missing or orphaned sidecar).
//
// Reads verify the payload against its metadata. A truncated or corrupt
// object is deleted and reported as a miss (self-heal).
//
// Multi composes caches in priority order: reads take the first hit, writes
// go to the first writable member (or all of them with sync-all), and
// SyncNow copies every entry to every member that lacks it after checking
// that no two members hold divergent copies.
//
// Caches are not safe for concurrent use. Stores are.
package tiercache
