// Package ring implements the consistent-hash ring used for key
// placement: a thread-safe ordered map from a 32-bit unsigned hash to a
// node descriptor, with exactly one position per node (no virtual
// nodes).
package ring

import (
	"errors"
	"sort"
	"sync"

	"github.com/spaolacci/murmur3"
)

// ErrNilNode is returned by Add when passed a zero-value node with no NodeID.
var ErrNilNode = errors.New("ring: node must not be empty")

// Hash returns the ring position for an arbitrary byte string: the
// unsigned 32-bit MurmurHash3 (seed 0) of its UTF-8 bytes. The same
// function is used for keys and node identifiers so both live in one
// coordinate space.
func Hash(data []byte) uint32 {
	return murmur3.Sum32WithSeed(data, 0)
}

// HashString is a convenience wrapper over Hash for string inputs.
func HashString(s string) uint32 {
	return Hash([]byte(s))
}

// Ring is a consistent-hash ring. Reads are safe under concurrent use;
// structural mutations (Add/Remove) must be externally serialised by
// the caller (the Coordinator's rebalancing flag).
type Ring struct {
	mu       sync.RWMutex
	hashes   []uint32         // sorted ascending, unique
	byHash   map[uint32]Node  // hash -> descriptor
	byNodeID map[string]uint32 // nodeID -> hash, for fast removal/lookup
}

// New returns an empty ring.
func New() *Ring {
	return &Ring{
		byHash:   make(map[uint32]Node),
		byNodeID: make(map[string]uint32),
	}
}

// Add inserts a node at hash(nodeId). If a descriptor already occupies
// that position, the call is a no-op (first insertion wins on hash
// collision). Returns ErrNilNode if node.NodeID is empty.
func (r *Ring) Add(node Node) error {
	if node.NodeID == "" {
		return ErrNilNode
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byNodeID[node.NodeID]; exists {
		return nil
	}

	h := HashString(node.NodeID)
	if _, occupied := r.byHash[h]; occupied {
		return nil
	}

	node.HashValue = h
	r.byHash[h] = node
	r.byNodeID[node.NodeID] = h
	r.hashes = insertSorted(r.hashes, h)
	return nil
}

// Remove deletes the descriptor for nodeID, if present. No-op if absent.
func (r *Ring) Remove(nodeID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.byNodeID[nodeID]
	if !ok {
		return
	}

	delete(r.byNodeID, nodeID)
	delete(r.byHash, h)
	r.hashes = removeSorted(r.hashes, h)
}

// OwnerOf returns the descriptor at the smallest hash >= hash(key),
// wrapping to the smallest hash in the ring if none exists (clockwise-
// successor semantics). ok is false iff the ring is empty.
func (r *Ring) OwnerOf(key []byte) (Node, bool) {
	return r.nodeAtOrAfter(Hash(key))
}

// Successor returns the descriptor at the smallest hash strictly
// greater than nodeID's own hash, wrapping to the ring's smallest hash
// if none exists. If the ring has a single entry, Successor returns
// that same entry; callers walking the ring must detect self-equality
// to terminate.
func (r *Ring) Successor(nodeID string) (Node, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.byNodeID[nodeID]
	if !ok || len(r.hashes) == 0 {
		return Node{}, false
	}

	idx := upperBound(r.hashes, h)
	if idx == len(r.hashes) {
		idx = 0
	}
	return r.byHash[r.hashes[idx]], true
}

// Predecessor is symmetric to Successor: the entry at the largest hash
// strictly less than nodeID's own, wrapping to the largest otherwise.
func (r *Ring) Predecessor(nodeID string) (Node, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.byNodeID[nodeID]
	if !ok || len(r.hashes) == 0 {
		return Node{}, false
	}

	idx := lowerBound(r.hashes, h) - 1
	if idx < 0 {
		idx = len(r.hashes) - 1
	}
	return r.byHash[r.hashes[idx]], true
}

// Replicas collects up to rf distinct nodes starting from the clockwise
// owner of key, walking forward with wrap-around and deduplicating by
// NodeID. If the ring has fewer than rf distinct members, all of them
// are returned.
func (r *Ring) Replicas(key []byte, rf int) []Node {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.hashes) == 0 || rf <= 0 {
		return nil
	}

	h := Hash(key)
	idx := lowerBound(r.hashes, h)
	if idx == len(r.hashes) {
		idx = 0
	}

	out := make([]Node, 0, rf)
	seen := make(map[string]struct{}, rf)
	for i := 0; i < len(r.hashes) && len(out) < rf; i++ {
		n := r.byHash[r.hashes[(idx+i)%len(r.hashes)]]
		if _, dup := seen[n.NodeID]; dup {
			continue
		}
		seen[n.NodeID] = struct{}{}
		out = append(out, n)
	}
	return out
}

// AllNodes returns every distinct node in ascending hash order.
func (r *Ring) AllNodes() []Node {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Node, 0, len(r.hashes))
	for _, h := range r.hashes {
		out = append(out, r.byHash[h])
	}
	return out
}

// Size returns the number of distinct nodes in the ring.
func (r *Ring) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.hashes)
}

// Get returns the descriptor for nodeID, if present.
func (r *Ring) Get(nodeID string) (Node, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.byNodeID[nodeID]
	if !ok {
		return Node{}, false
	}
	return r.byHash[h], true
}

func (r *Ring) nodeAtOrAfter(h uint32) (Node, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.hashes) == 0 {
		return Node{}, false
	}

	idx := lowerBound(r.hashes, h)
	if idx == len(r.hashes) {
		idx = 0
	}
	return r.byHash[r.hashes[idx]], true
}

// lowerBound returns the index of the first element >= h.
func lowerBound(hashes []uint32, h uint32) int {
	return sort.Search(len(hashes), func(i int) bool { return hashes[i] >= h })
}

// upperBound returns the index of the first element > h.
func upperBound(hashes []uint32, h uint32) int {
	return sort.Search(len(hashes), func(i int) bool { return hashes[i] > h })
}

func insertSorted(hashes []uint32, h uint32) []uint32 {
	idx := lowerBound(hashes, h)
	hashes = append(hashes, 0)
	copy(hashes[idx+1:], hashes[idx:])
	hashes[idx] = h
	return hashes
}

func removeSorted(hashes []uint32, h uint32) []uint32 {
	idx := lowerBound(hashes, h)
	if idx >= len(hashes) || hashes[idx] != h {
		return hashes
	}
	return append(hashes[:idx], hashes[idx+1:]...)
}
