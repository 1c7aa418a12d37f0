// Package health implements the liveness/readiness probe handlers.
// Trimmed from the teacher's HealthChecker (which additionally polled
// disk space, file descriptor usage, and memory pressure against a
// local data directory — none of which apply here, since this node
// keeps no durable on-disk state; see DESIGN.md).
package health

import (
	"encoding/json"
	"net/http"

	"github.com/distnode/ringkv/internal/ring"
)

// RingView is the subset of *ring.Ring this package needs to judge
// readiness: whether the ring is non-empty and this node can see itself
// in it.
type RingView interface {
	Size() int
	Get(nodeID string) (ring.Node, bool)
}

// Checker answers liveness/readiness probes.
type Checker struct {
	self ring.Node
	ring RingView
}

// NewChecker builds a Checker for self, judging readiness against ring.
func NewChecker(self ring.Node, r RingView) *Checker {
	return &Checker{self: self, ring: r}
}

// Live reports whether the process is responsive. This is always true
// if this method executes at all — there is no deeper liveness signal
// a single-process in-memory node can fail in isolation.
func (c *Checker) Live() bool {
	return true
}

// Ready reports whether this node can serve client traffic: it must
// see itself as a member of the ring it is about to route against.
func (c *Checker) Ready() bool {
	if c.ring.Size() == 0 {
		return false
	}
	_, ok := c.ring.Get(c.self.NodeID)
	return ok
}

// LivenessHandler serves GET /healthz/live.
func (c *Checker) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	live := c.Live()
	w.Header().Set("Content-Type", "application/json")
	if !live {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	_ = json.NewEncoder(w).Encode(map[string]bool{"live": live})
}

// ReadinessHandler serves GET /healthz/ready.
func (c *Checker) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	ready := c.Ready()
	w.Header().Set("Content-Type", "application/json")
	if !ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	_ = json.NewEncoder(w).Encode(map[string]bool{"ready": ready})
}
