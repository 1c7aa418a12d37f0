// Package registry implements the Membership Watcher: a periodic task
// that compares the peer registry's current membership with a cached
// view and emits join/leave/self-joined events, plus a concrete
// memberlist-backed peer registry implementation.
package registry

import (
	"sync"
	"time"

	"github.com/distnode/ringkv/internal/ring"
	"go.uber.org/zap"
)

// Peer is a live peer endpoint as yielded by a PeerRegistry sweep.
type Peer struct {
	Host string
	Port int
}

// NodeID returns the canonical "host:port" identifier for p.
func (p Peer) NodeID() string {
	return ring.NewNode(p.Host, p.Port).NodeID
}

// PeerRegistry is the abstract external collaborator SPEC_FULL §6 names:
// any implementation that can periodically yield the current set of
// live peer endpoints satisfies the contract. The concrete
// implementation in this package is memberlist-backed (gossip.go).
type PeerRegistry interface {
	ListPeers() ([]Peer, error)
}

// EventSink receives the events the watcher dispatches on each tick.
// The Coordinator implements this interface.
type EventSink interface {
	OnPeerJoin(node ring.Node)
	OnPeerLeave(nodeID string)
	OnSelfJoined(self ring.Node)
	// Rebalancing reports whether a rebalance is currently in flight;
	// the watcher skips its tick entirely while this holds.
	Rebalancing() bool
}

// Watcher runs the periodic membership diff described in SPEC_FULL §4.5.
type Watcher struct {
	registry PeerRegistry
	sink     EventSink
	self     ring.Node
	interval time.Duration
	logger   *zap.Logger

	mu         sync.Mutex
	knownNodes map[string]struct{}

	stop chan struct{}
	done chan struct{}
}

// New builds a Watcher that ticks every interval, comparing registry
// sweeps against self's own identity to detect self-joined events.
func New(registry PeerRegistry, sink EventSink, self ring.Node, interval time.Duration, logger *zap.Logger) *Watcher {
	return &Watcher{
		registry:   registry,
		sink:       sink,
		self:       self,
		interval:   interval,
		logger:     logger,
		knownNodes: make(map[string]struct{}),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start runs the watcher loop in its own goroutine. It is safe to call
// Stop at most once after Start.
func (w *Watcher) Start() {
	go w.run()
}

// Stop signals the loop to exit and blocks until it has, guaranteeing
// the loop never overlaps itself even across shutdown.
func (w *Watcher) Stop() {
	close(w.stop)
	<-w.done
}

func (w *Watcher) run() {
	defer close(w.done)

	timer := time.NewTimer(w.interval)
	defer timer.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-timer.C:
			w.tick()
			timer.Reset(w.interval)
		}
	}
}

// tick implements the per-tick algorithm in SPEC_FULL §4.5: skip while
// rebalancing; diff live peers against knownNodes; dispatch join for
// new peers (self-joined tracked separately), leave for one vanished
// peer, then self-joined last if this sweep is the first to contain self.
func (w *Watcher) tick() {
	if w.sink.Rebalancing() {
		return
	}

	live, err := w.registry.ListPeers()
	if err != nil {
		if w.logger != nil {
			w.logger.Warn("membership watcher: failed to list peers", zap.Error(err))
		}
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	liveByID := make(map[string]Peer, len(live))
	for _, p := range live {
		liveByID[p.NodeID()] = p
	}

	selfJoined := false

	for id, p := range liveByID {
		if _, known := w.knownNodes[id]; known {
			continue
		}
		w.knownNodes[id] = struct{}{}
		if id == w.self.NodeID {
			selfJoined = true
			continue
		}
		w.sink.OnPeerJoin(ring.NewNode(p.Host, p.Port))
	}

	// Leave-detection iterates once per tick; multiple simultaneous
	// leaves surface across subsequent ticks (SPEC_FULL §4.5).
	for id := range w.knownNodes {
		if _, stillLive := liveByID[id]; !stillLive {
			delete(w.knownNodes, id)
			w.sink.OnPeerLeave(id)
			break
		}
	}

	if selfJoined {
		w.sink.OnSelfJoined(w.self)
	}
}
