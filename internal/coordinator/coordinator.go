// Package coordinator implements the orchestrator: the only component
// that knows the full protocol. Three client request paths (put, get,
// delete), membership event handling, and the rebalance protocol.
package coordinator

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"github.com/distnode/ringkv/internal/dto"
	"github.com/distnode/ringkv/internal/metrics"
	"github.com/distnode/ringkv/internal/peerclient"
	"github.com/distnode/ringkv/internal/ring"
	"github.com/distnode/ringkv/internal/store"
	"go.uber.org/zap"
)

// Coordinator is the orchestrator described in SPEC_FULL §4.4.
type Coordinator struct {
	self              ring.Node
	replicationFactor int

	ring    *ring.Ring
	store   *store.Store
	client  *peerclient.Client
	metrics *metrics.Metrics
	logger  *zap.Logger

	rebalancing atomic.Bool
}

// New builds a Coordinator. The Ring passed in must already contain
// self: OnSelfJoined runs the pull-from-successor sequence but does not
// add self to the ring.
func New(self ring.Node, replicationFactor int, r *ring.Ring, s *store.Store, client *peerclient.Client, m *metrics.Metrics, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		self:              self,
		replicationFactor: replicationFactor,
		ring:              r,
		store:             s,
		client:            client,
		metrics:           m,
		logger:            logger,
	}
}

// Rebalancing reports whether a rebalance is currently in flight. Part
// of the registry.EventSink contract.
func (c *Coordinator) Rebalancing() bool {
	return c.rebalancing.Load()
}

// ---- Write path (SPEC_FULL §4.4.1) ----

// Put stores (key, value), forwarding to the owner if this node is not
// it, and otherwise replicating to downstream successors.
func (c *Coordinator) Put(ctx context.Context, key, value string) dto.DataResponse {
	start := time.Now()
	defer func() { c.metrics.WriteRequestsDuration.Observe(time.Since(start).Seconds()) }()
	c.metrics.WriteRequestsTotal.Inc()

	if c.rebalancing.Load() {
		return dto.DataResponse{Found: false, Message: "System is rebalancing, please try again later"}
	}

	owner, ok := c.ring.OwnerOf([]byte(key))
	if !ok {
		return dto.DataResponse{Found: false, Message: "No nodes available"}
	}

	if owner.NodeID != c.self.NodeID {
		c.metrics.ForwardedRequestsTotal.Inc()
		return c.client.Put(ctx, owner.NodeID, key, value)
	}

	c.store.PutPrimary(key, value)
	c.fanOutFromSelf(func(cursor ring.Node, level int) {
		c.metrics.ReplicationSentTotal.Inc()
		if !c.client.Replicate(ctx, cursor.NodeID, level, key, value) {
			c.metrics.ReplicationErrorsTotal.Inc()
		}
	})

	return dto.DataResponse{Value: value, Found: true}
}

// ---- Read path (SPEC_FULL §4.4.2) ----

// Get returns the value for key, forwarding to the owner (and probing
// its R-1 successors on a remote miss) if this node is not the owner.
func (c *Coordinator) Get(ctx context.Context, key string) dto.DataResponse {
	start := time.Now()
	defer func() { c.metrics.ReadRequestsDuration.Observe(time.Since(start).Seconds()) }()
	c.metrics.ReadRequestsTotal.Inc()

	owner, ok := c.ring.OwnerOf([]byte(key))
	if !ok {
		return dto.DataResponse{Found: false, Message: "No nodes available"}
	}

	if owner.NodeID == c.self.NodeID {
		return c.getLocal(key)
	}

	c.metrics.ForwardedRequestsTotal.Inc()
	resp := c.client.Get(ctx, owner.NodeID, key)
	if resp.Found {
		return resp
	}

	// Probe R-1 successors of the ORIGINAL owner, not a reused loop
	// variable — the corrected form of the bug named in spec.md §9
	// Open Question 2.
	cursor := owner
	for i := 0; i < c.replicationFactor-1; i++ {
		next, ok := c.ring.Successor(cursor.NodeID)
		if !ok || next.NodeID == owner.NodeID {
			break
		}
		if r := c.client.Get(ctx, next.NodeID, key); r.Found {
			return r
		}
		cursor = next
	}

	return dto.DataResponse{Found: false, Message: "Key not found"}
}

func (c *Coordinator) getLocal(key string) dto.DataResponse {
	if v, found := c.store.GetPrimary(key); found {
		return dto.DataResponse{Value: v, Found: true}
	}
	for level := 1; level < c.replicationFactor; level++ {
		if v, found := c.store.GetReplica(level, key); found {
			return dto.DataResponse{Value: v, Found: true}
		}
	}
	return dto.DataResponse{Found: false, Message: "Key not found"}
}

// ---- Delete path (SPEC_FULL §4.4.3) ----

// Delete removes key, forwarding to the owner if this node is not it,
// and otherwise fanning out deleteReplica calls the same way Put fans
// out replicate calls.
func (c *Coordinator) Delete(ctx context.Context, key string) dto.DataResponse {
	start := time.Now()
	defer func() { c.metrics.DeleteRequestsDuration.Observe(time.Since(start).Seconds()) }()
	c.metrics.DeleteRequestsTotal.Inc()

	if c.rebalancing.Load() {
		return dto.DataResponse{Found: false, Message: "System is rebalancing, please try again later"}
	}

	owner, ok := c.ring.OwnerOf([]byte(key))
	if !ok {
		return dto.DataResponse{Found: false, Message: "No nodes available"}
	}

	if owner.NodeID != c.self.NodeID {
		c.metrics.ForwardedRequestsTotal.Inc()
		return c.client.Delete(ctx, owner.NodeID, key)
	}

	if !c.store.DeletePrimary(key) {
		return dto.DataResponse{Found: false, Message: "Key not found"}
	}

	c.fanOutFromSelf(func(cursor ring.Node, level int) {
		c.metrics.ReplicationSentTotal.Inc()
		if !c.client.DeleteReplica(ctx, cursor.NodeID, level, key) {
			c.metrics.ReplicationErrorsTotal.Inc()
		}
	})

	return dto.DataResponse{Found: true, Message: "Key deleted successfully"}
}

// ---- Replica-facing endpoints (inbound side of replication fan-out) ----

// PutReplica stores (key, value) at replica level.
func (c *Coordinator) PutReplica(level int, key, value string) {
	c.store.PutReplica(level, key, value)
}

// PutBulkReplica merges data into replica level in one call.
func (c *Coordinator) PutBulkReplica(level int, data map[string]string) {
	c.store.PutBulkReplica(level, data)
}

// DeleteReplicaAt removes key from replica level, returning whether it existed.
func (c *Coordinator) DeleteReplicaAt(level int, key string) bool {
	return c.store.DeleteReplica(level, key)
}

// GetAllData returns this node's primary tier and every replica tier.
func (c *Coordinator) GetAllData() (map[string]string, map[int]map[string]string) {
	return c.store.GetPrimaryData(), c.store.GetReplicaData()
}

// GetPrimaryData returns this node's primary tier.
func (c *Coordinator) GetPrimaryData() map[string]string {
	return c.store.GetPrimaryData()
}

// NodesInfo returns every node in the ring paired with its hash,
// ascending by hash.
func (c *Coordinator) NodesInfo() dto.NodesInfo {
	all := c.ring.AllNodes()
	out := make(dto.NodesInfo, len(all))
	for i, n := range all {
		out[i] = dto.NodeHash{NodeID: n.NodeID, Hash: n.HashValue}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hash < out[j].Hash })
	return out
}

// fanOutFromSelf walks successors starting at self's own successor,
// advancing from the LAST VISITED node on every iteration (not from
// self or the owner, repeatedly) — the corrected form of the write-path
// bug named in spec.md §9 Open Question 1. The delete path's original
// correct semantics are used for both write and delete fan-out.
func (c *Coordinator) fanOutFromSelf(fn func(cursor ring.Node, level int)) {
	cursor, ok := c.ring.Successor(c.self.NodeID)
	level := 1
	for ok && cursor.NodeID != c.self.NodeID && level < c.replicationFactor {
		fn(cursor, level)
		cursor, ok = c.ring.Successor(cursor.NodeID)
		level++
	}
}
