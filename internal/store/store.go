// Package store implements the per-node in-memory data tier: one
// primary map plus R-1 replica maps, keyed by replica level.
package store

import (
	"sync"

	"github.com/distnode/ringkv/internal/ring"
	"go.uber.org/zap"
)

// Store is the local primary + replica-tier data tier for one node. It
// has no knowledge of the ring or membership; it exposes the bulk
// primitives the Coordinator needs for rebalancing.
type Store struct {
	logger *zap.Logger

	primaryMu sync.RWMutex
	primary   map[string]string

	// replicas[level] is allocated for level in 1..replicationFactor-1;
	// puts to an unallocated level are dropped with a warning.
	replicaMu sync.RWMutex
	replicas  map[int]map[string]string
}

// New allocates a Store with replica tiers 1..replicationFactor-1
// pre-allocated (possibly empty) per SPEC_FULL §3's invariant.
func New(replicationFactor int, logger *zap.Logger) *Store {
	s := &Store{
		logger:   logger,
		primary:  make(map[string]string),
		replicas: make(map[int]map[string]string),
	}
	for level := 1; level < replicationFactor; level++ {
		s.replicas[level] = make(map[string]string)
	}
	return s
}

// PutPrimary inserts or overwrites a primary-tier entry.
func (s *Store) PutPrimary(key, value string) {
	s.primaryMu.Lock()
	defer s.primaryMu.Unlock()
	s.primary[key] = value
}

// GetPrimary returns the primary-tier value for key, if present.
func (s *Store) GetPrimary(key string) (string, bool) {
	s.primaryMu.RLock()
	defer s.primaryMu.RUnlock()
	v, ok := s.primary[key]
	return v, ok
}

// DeletePrimary removes key from the primary tier, returning whether it existed.
func (s *Store) DeletePrimary(key string) bool {
	s.primaryMu.Lock()
	defer s.primaryMu.Unlock()
	_, existed := s.primary[key]
	delete(s.primary, key)
	return existed
}

// PutAllPrimary merges data into the primary tier in one call.
func (s *Store) PutAllPrimary(data map[string]string) {
	s.primaryMu.Lock()
	defer s.primaryMu.Unlock()
	for k, v := range data {
		s.primary[k] = v
	}
}

// GetPrimaryData returns a defensive copy of the entire primary tier.
func (s *Store) GetPrimaryData() map[string]string {
	s.primaryMu.RLock()
	defer s.primaryMu.RUnlock()
	out := make(map[string]string, len(s.primary))
	for k, v := range s.primary {
		out[k] = v
	}
	return out
}

// PutReplica writes a single entry at the given replica level. If the
// level is not allocated, the write is dropped and logged at warn per
// SPEC_FULL §7's InvalidReplicaLevel handling.
func (s *Store) PutReplica(level int, key, value string) {
	s.replicaMu.Lock()
	defer s.replicaMu.Unlock()

	tier, ok := s.replicas[level]
	if !ok {
		if s.logger != nil {
			s.logger.Warn("put to unallocated replica level dropped",
				zap.Int("level", level), zap.String("key", key))
		}
		return
	}
	tier[key] = value
}

// GetReplica returns the value for key at the given replica level.
func (s *Store) GetReplica(level int, key string) (string, bool) {
	s.replicaMu.RLock()
	defer s.replicaMu.RUnlock()
	tier, ok := s.replicas[level]
	if !ok {
		return "", false
	}
	v, ok := tier[key]
	return v, ok
}

// DeleteReplica removes key from the given replica level, returning
// whether it existed. Returns false for an unallocated level.
func (s *Store) DeleteReplica(level int, key string) bool {
	s.replicaMu.Lock()
	defer s.replicaMu.Unlock()
	tier, ok := s.replicas[level]
	if !ok {
		return false
	}
	_, existed := tier[key]
	delete(tier, key)
	return existed
}

// PutBulkReplica merges data into the replica tier at level in one call.
func (s *Store) PutBulkReplica(level int, data map[string]string) {
	s.replicaMu.Lock()
	defer s.replicaMu.Unlock()
	tier, ok := s.replicas[level]
	if !ok {
		if s.logger != nil {
			s.logger.Warn("bulk put to unallocated replica level dropped", zap.Int("level", level))
		}
		return
	}
	for k, v := range data {
		tier[k] = v
	}
}

// GetReplicaData returns a defensive copy of every allocated replica tier.
func (s *Store) GetReplicaData() map[int]map[string]string {
	s.replicaMu.RLock()
	defer s.replicaMu.RUnlock()
	out := make(map[int]map[string]string, len(s.replicas))
	for level, tier := range s.replicas {
		copyTier := make(map[string]string, len(tier))
		for k, v := range tier {
			copyTier[k] = v
		}
		out[level] = copyTier
	}
	return out
}

// ExtractRange scans the primary tier and removes every key whose hash
// falls within the inclusive interval [lo, hi] (wrap-around: lo > hi
// means [lo, MAX] ∪ [0, hi]), returning the removed entries in a fresh
// map. Atomic per key, not globally atomic with concurrent puts.
func (s *Store) ExtractRange(lo, hi uint32) map[string]string {
	s.primaryMu.Lock()
	defer s.primaryMu.Unlock()

	out := make(map[string]string)
	for k, v := range s.primary {
		if inRange(ring.HashString(k), lo, hi) {
			out[k] = v
			delete(s.primary, k)
		}
	}
	return out
}

// ExtractReplica drains the entire replica tier at level and returns
// its contents.
func (s *Store) ExtractReplica(level int) map[string]string {
	s.replicaMu.Lock()
	defer s.replicaMu.Unlock()

	tier, ok := s.replicas[level]
	if !ok {
		return map[string]string{}
	}
	out := tier
	s.replicas[level] = make(map[string]string)
	return out
}

// PromoteReplicaToPrimary snapshots the replica tier at level, merges
// it into primary (primary values win on conflict only if already
// present; otherwise the replica value is written), clears the replica
// tier, and returns the snapshot that was merged.
func (s *Store) PromoteReplicaToPrimary(level int) map[string]string {
	snapshot := s.ExtractReplica(level)

	s.primaryMu.Lock()
	defer s.primaryMu.Unlock()
	for k, v := range snapshot {
		if _, present := s.primary[k]; !present {
			s.primary[k] = v
		}
	}
	return snapshot
}

// inRange reports whether h lies in the inclusive interval [lo, hi],
// with wrap-around when lo > hi.
func inRange(h, lo, hi uint32) bool {
	if lo <= hi {
		return h >= lo && h <= hi
	}
	return h >= lo || h <= hi
}
