// Package partstore holds the uploaded parts of each dataset in memory.
//
// A dataset is a name with two slots, A and B. Each slot holds the bytes of
// one container together with its BLAKE3 digest and upload time; a merge
// needs both. Writes replace a slot unconditionally.
//
// # Sharding
//
// Names are hashed with FNV-1a onto a fixed set of shards, each with its
// own RWMutex, so datasets on different shards never contend:
//
//	shard = fnv32a(name) % shards
//
// Get copies both slots while holding the shard's read lock, which is what
// keeps a reader from pairing an old A with a new B.
//
// # Eviction
//
// The store has no size bound. A Janitor run alongside the server evicts
// datasets that have not been written within a TTL.
//
// Example:
//
//	store := partstore.New(0)
//	store.Put("run-42", partstore.SlotA, a)
//	store.Put("run-42", partstore.SlotB, b)
//	pair, err := store.Get("run-42")
package partstore
