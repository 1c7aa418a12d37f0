package coordinator

import (
	"context"
	"time"

	"github.com/distnode/ringkv/internal/dto"
	"github.com/distnode/ringkv/internal/ring"
	"go.uber.org/zap"
)

// peerCallTimeout bounds the background rebalance/fetch calls the
// Coordinator issues itself, outside of any inbound request's context.
const peerCallTimeout = 5 * time.Second

// OnPeerJoin handles a newly observed peer (not self): it acquires the
// rebalance flag, adds the node to the ring, and releases. No data
// movement is initiated here — a join's data movement is pulled by the
// new node itself via OnSelfJoined (SPEC_FULL §4.4.4).
func (c *Coordinator) OnPeerJoin(node ring.Node) {
	if !c.rebalancing.CompareAndSwap(false, true) {
		c.logger.Info("rebalance flag already held, deferring peer-join to next tick",
			zap.String("node", node.NodeID))
		return
	}
	defer c.rebalancing.Store(false)

	if err := c.ring.Add(node); err != nil {
		c.logger.Warn("failed to add joining peer to ring", zap.String("node", node.NodeID), zap.Error(err))
		return
	}
	c.metrics.MembershipJoins.Inc()
	c.metrics.RingSize.Set(float64(c.ring.Size()))
}

// OnPeerLeave handles a peer's disappearance. If the leaver was this
// node's immediate predecessor — checked BEFORE removal — this node
// runs the inherit-from-predecessor sequence after removing it.
func (c *Coordinator) OnPeerLeave(nodeID string) {
	if !c.rebalancing.CompareAndSwap(false, true) {
		c.logger.Info("rebalance flag already held, deferring peer-leave to next tick", zap.String("node", nodeID))
		return
	}
	defer c.rebalancing.Store(false)

	pred, hasPred := c.ring.Predecessor(c.self.NodeID)
	wasPredecessor := hasPred && pred.NodeID == nodeID

	c.ring.Remove(nodeID)
	c.metrics.MembershipLeaves.Inc()
	c.metrics.RingSize.Set(float64(c.ring.Size()))

	if wasPredecessor {
		c.inheritFromPredecessor(context.Background())
	}
}

// OnSelfJoined runs the pull-from-successor sequence when this node
// first observes itself in a membership sweep.
func (c *Coordinator) OnSelfJoined(self ring.Node) {
	if !c.rebalancing.CompareAndSwap(false, true) {
		c.logger.Info("rebalance flag already held, deferring self-joined pull")
		return
	}
	defer c.rebalancing.Store(false)

	c.pullFromSuccessor(context.Background())
}

// inheritFromPredecessor runs when this node's immediate predecessor
// has just left the ring (SPEC_FULL §4.4.4 "Inherit from predecessor").
func (c *Coordinator) inheritFromPredecessor(ctx context.Context) {
	start := time.Now()
	c.metrics.RebalanceTotal.Inc()
	defer func() { c.metrics.RebalanceDuration.Observe(time.Since(start).Seconds()) }()

	promoted := c.store.PromoteReplicaToPrimary(1)

	c.fanOutFromSelf(func(cursor ring.Node, level int) {
		c.client.ReplicateBulk(ctx, cursor.NodeID, level, promoted)
	})

	// Restore the invariant that replica[1] mirrors the (new)
	// predecessor's primary tier, regardless of whether promotion had
	// any data to move.
	newPred, hasPred := c.ring.Predecessor(c.self.NodeID)
	if !hasPred || newPred.NodeID == c.self.NodeID {
		return
	}

	fetchCtx, cancel := context.WithTimeout(ctx, peerCallTimeout)
	defer cancel()
	primary := c.client.GetAllPrimary(fetchCtx, newPred.NodeID)
	c.store.PutBulkReplica(1, primary)
}

// pullFromSuccessor runs when this node has just joined the ring
// (SPEC_FULL §4.4.4 "Pull-from-successor").
func (c *Coordinator) pullFromSuccessor(ctx context.Context) {
	succ, ok := c.ring.Successor(c.self.NodeID)
	if !ok || succ.NodeID == c.self.NodeID {
		return
	}

	start := time.Now()
	c.metrics.RebalanceTotal.Inc()
	defer func() { c.metrics.RebalanceDuration.Observe(time.Since(start).Seconds()) }()

	var startRange uint32
	if pred, hasPred := c.ring.Predecessor(c.self.NodeID); hasPred && pred.NodeID != c.self.NodeID {
		startRange = pred.HashValue + 1
	}
	endRange := c.self.HashValue

	// The furthest replica tier the successor currently owns is the one
	// it should shed to the newcomer, per SPEC_FULL §4.4.4.
	replicaIndex := c.replicationFactor - 1

	req := dto.RebalanceRequest{
		Operation:    "ADD",
		NodeID:       c.self.NodeID,
		StartRange:   startRange,
		EndRange:     endRange,
		ReplicaIndex: replicaIndex,
	}

	callCtx, cancel := context.WithTimeout(ctx, peerCallTimeout)
	defer cancel()
	resp := c.client.Rebalance(callCtx, succ.NodeID, req)
	if !resp.Success {
		c.metrics.RebalanceFailuresTotal.Inc()
		c.logger.Warn("pull-from-successor rebalance failed",
			zap.String("successor", succ.NodeID), zap.String("message", resp.Message))
		return
	}

	c.store.PutAllPrimary(resp.NewNodePrimaryData)
	c.store.PutBulkReplica(1, resp.NewNodeSecondaryData)
}

// HandleRebalance dispatches an inbound rebalance request. The only
// supported operation is "ADD"; anything else fails with "Unknown
// operation" per SPEC_FULL §4.4.5.
func (c *Coordinator) HandleRebalance(req dto.RebalanceRequest) dto.RebalanceResponse {
	switch req.Operation {
	case "ADD":
		return c.handleAddRebalance(req)
	default:
		return dto.RebalanceResponse{Success: false, Message: "Unknown operation: " + req.Operation}
	}
}

// handleAddRebalance serves a newcomer's pull request: it extracts the
// newcomer's primary range from this node's own primary tier, drains
// the replica tier the newcomer is displacing, re-stores the extracted
// primary as this node's own replica at that level, and hands both
// extracted maps back to the newcomer.
func (c *Coordinator) handleAddRebalance(req dto.RebalanceRequest) dto.RebalanceResponse {
	primaryToReturn := c.store.ExtractRange(req.StartRange, req.EndRange)
	secondaryToReturn := c.store.ExtractReplica(req.ReplicaIndex)
	c.store.PutBulkReplica(req.ReplicaIndex, primaryToReturn)

	return dto.RebalanceResponse{
		NewNodePrimaryData:   primaryToReturn,
		NewNodeSecondaryData: secondaryToReturn,
		Success:              true,
	}
}
