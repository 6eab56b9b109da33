package partstore

import (
	"encoding/hex"
	"errors"
	"fmt"
	"hash/fnv"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zeebo/blake3"
)

// ErrNotFound is returned when a dataset is unknown or one of its two
// parts has never been uploaded.
var ErrNotFound = errors.New("dataset not found")

// ErrInvalidName is returned for an empty dataset name.
var ErrInvalidName = errors.New("invalid dataset name")

// DefaultShards is the shard count used when New is given zero.
const DefaultShards = 16

// Slot identifies one of the two parts of a dataset.
type Slot int

const (
	// SlotA is the first part; its format wins in a merge.
	SlotA Slot = iota
	// SlotB is the second part; its attributes and payloads win in a merge.
	SlotB
)

// String returns "a" or "b".
func (s Slot) String() string {
	switch s {
	case SlotA:
		return "a"
	case SlotB:
		return "b"
	default:
		return fmt.Sprintf("slot(%d)", int(s))
	}
}

// ParseSlot parses "a" or "b".
func ParseSlot(s string) (Slot, error) {
	switch s {
	case "a", "A":
		return SlotA, nil
	case "b", "B":
		return SlotB, nil
	default:
		return 0, fmt.Errorf("unknown slot %q", s)
	}
}

// Digest is the BLAKE3-256 hash of a part.
type Digest [32]byte

// String returns the digest in hex.
func (d Digest) String() string { return hex.EncodeToString(d[:]) }

// Part is one uploaded container with its digest and upload time.
type Part struct {
	Data     []byte
	Digest   Digest
	Uploaded time.Time
}

// Pair is a complete dataset: both parts.
type Pair struct {
	Name string
	A, B Part
}

// ETag returns a strong entity tag identifying the merge of this pair. It
// changes whenever either part changes.
func (p Pair) ETag() string {
	h := blake3.New()
	_, _ = h.Write(p.A.Digest[:])
	_, _ = h.Write(p.B.Digest[:])
	sum := h.Sum(nil)
	return `"` + hex.EncodeToString(sum[:16]) + `"`
}

// DatasetInfo summarizes one dataset for listings.
type DatasetInfo struct {
	Name    string    `json:"name"`
	ABytes  int       `json:"a_bytes"`
	BBytes  int       `json:"b_bytes"`
	HasA    bool      `json:"has_a"`
	HasB    bool      `json:"has_b"`
	Updated time.Time `json:"updated"`
}

// Stats contains statistics about the store.
type Stats struct {
	Datasets int            `json:"datasets"` // Number of datasets with at least one part
	Bytes    int            `json:"bytes"`    // Total size of all parts
	Shards   int            `json:"shards"`
	Ops      OperationStats `json:"ops"`
}

// OperationStats tracks operation counts.
type OperationStats struct {
	Gets      uint64 `json:"gets"`
	Puts      uint64 `json:"puts"`
	Deletes   uint64 `json:"deletes"`
	Evictions uint64 `json:"evictions"`
}

// entry holds the parts of one dataset.
type entry struct {
	parts   [2]*Part
	updated time.Time
}

// shard is one lock domain of the store.
type shard struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// Store is an in-memory, sharded store of dataset parts.
// Thread safety: all methods are safe for concurrent use. Writes to one
// dataset are serialized by its shard lock and Get copies both parts under
// the same read lock, so it never observes half of a concurrent update.
type Store struct {
	shards []*shard
	now    func() time.Time

	gets, puts, deletes, evictions atomic.Uint64
}

// New creates an empty store with the given number of shards.
//
// Parameters:
//   - shards: Number of lock domains (DefaultShards when <= 0)
//
// Returns:
//   - *Store: Empty store ready for use
func New(shards int) *Store {
	if shards <= 0 {
		shards = DefaultShards
	}
	s := &Store{shards: make([]*shard, shards), now: time.Now}
	for i := range s.shards {
		s.shards[i] = &shard{entries: make(map[string]*entry)}
	}
	return s
}

// shardFor routes a dataset name to its shard with FNV-1a.
func (s *Store) shardFor(name string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	return s.shards[h.Sum32()%uint32(len(s.shards))]
}

// Receipt acknowledges a stored part.
type Receipt struct {
	Bytes    int
	Digest   Digest
	Uploaded time.Time
}

// Put replaces one part of a dataset and returns the stored byte length.
//
// Parameters:
//   - name: Dataset name (non-empty)
//   - slot: SlotA or SlotB
//   - data: Container bytes, copied by the store
//
// Returns:
//   - int: Number of bytes stored
//   - error: ErrInvalidName for an empty name, or an unknown slot
func (s *Store) Put(name string, slot Slot, data []byte) (int, error) {
	r, err := s.Upload(name, slot, data)
	return r.Bytes, err
}

// Upload is Put returning the digest and upload time as well.
func (s *Store) Upload(name string, slot Slot, data []byte) (Receipt, error) {
	if name == "" {
		return Receipt{}, ErrInvalidName
	}
	if slot != SlotA && slot != SlotB {
		return Receipt{}, fmt.Errorf("put %q: unknown slot %d", name, int(slot))
	}
	s.puts.Add(1)

	p := &Part{
		Data:     append([]byte(nil), data...),
		Digest:   blake3.Sum256(data),
		Uploaded: s.now(),
	}

	sh := s.shardFor(name)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	e, ok := sh.entries[name]
	if !ok {
		e = &entry{}
		sh.entries[name] = e
	}
	e.parts[slot] = p
	e.updated = p.Uploaded
	return Receipt{Bytes: len(p.Data), Digest: p.Digest, Uploaded: p.Uploaded}, nil
}

// Get returns copies of both parts of a dataset.
//
// Returns:
//   - Pair: Both parts
//   - error: ErrNotFound if the dataset is unknown or either part is missing
func (s *Store) Get(name string) (Pair, error) {
	s.gets.Add(1)
	sh := s.shardFor(name)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	e, ok := sh.entries[name]
	if !ok {
		return Pair{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	for slot, p := range e.parts {
		if p == nil {
			return Pair{}, fmt.Errorf("%w: %q has no part %v", ErrNotFound, name, Slot(slot))
		}
	}
	return Pair{Name: name, A: e.parts[SlotA].copy(), B: e.parts[SlotB].copy()}, nil
}

// GetPart returns a copy of one part of a dataset.
func (s *Store) GetPart(name string, slot Slot) (Part, error) {
	if slot != SlotA && slot != SlotB {
		return Part{}, fmt.Errorf("get %q: unknown slot %d", name, int(slot))
	}
	s.gets.Add(1)
	sh := s.shardFor(name)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	e, ok := sh.entries[name]
	if !ok || e.parts[slot] == nil {
		return Part{}, fmt.Errorf("%w: %q has no part %v", ErrNotFound, name, slot)
	}
	return e.parts[slot].copy(), nil
}

func (p *Part) copy() Part {
	return Part{Data: append([]byte(nil), p.Data...), Digest: p.Digest, Uploaded: p.Uploaded}
}

// Delete removes a dataset. It reports whether the dataset existed.
func (s *Store) Delete(name string) bool {
	s.deletes.Add(1)
	sh := s.shardFor(name)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	_, ok := sh.entries[name]
	delete(sh.entries, name)
	return ok
}

// List returns every dataset sorted by name.
func (s *Store) List() []DatasetInfo {
	var out []DatasetInfo
	for _, sh := range s.shards {
		sh.mu.RLock()
		for name, e := range sh.entries {
			info := DatasetInfo{Name: name, Updated: e.updated}
			if p := e.parts[SlotA]; p != nil {
				info.HasA, info.ABytes = true, len(p.Data)
			}
			if p := e.parts[SlotB]; p != nil {
				info.HasB, info.BBytes = true, len(p.Data)
			}
			out = append(out, info)
		}
		sh.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Stats returns storage statistics. Counts are gathered shard by shard and
// are not a consistent snapshot under concurrent writes.
func (s *Store) Stats() Stats {
	st := Stats{
		Shards: len(s.shards),
		Ops: OperationStats{
			Gets:      s.gets.Load(),
			Puts:      s.puts.Load(),
			Deletes:   s.deletes.Load(),
			Evictions: s.evictions.Load(),
		},
	}
	for _, sh := range s.shards {
		sh.mu.RLock()
		st.Datasets += len(sh.entries)
		for _, e := range sh.entries {
			for _, p := range e.parts {
				if p != nil {
					st.Bytes += len(p.Data)
				}
			}
		}
		sh.mu.RUnlock()
	}
	return st
}

// EvictIdle removes every dataset not written since cutoff and returns the
// evicted names.
func (s *Store) EvictIdle(cutoff time.Time) []string {
	var evicted []string
	for _, sh := range s.shards {
		sh.mu.Lock()
		for name, e := range sh.entries {
			if e.updated.Before(cutoff) {
				delete(sh.entries, name)
				evicted = append(evicted, name)
			}
		}
		sh.mu.Unlock()
	}
	s.evictions.Add(uint64(len(evicted)))
	sort.Strings(evicted)
	return evicted
}
