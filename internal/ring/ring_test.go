package ring_test

import (
	"fmt"
	"testing"

	"github.com/distnode/ringkv/internal/ring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nodes(n int) []ring.Node {
	out := make([]ring.Node, n)
	for i := 0; i < n; i++ {
		out[i] = ring.NewNode("127.0.0.1", 9000+i)
	}
	return out
}

func TestRing_EmptyReturnsNotFound(t *testing.T) {
	r := ring.New()

	_, ok := r.OwnerOf([]byte("x"))
	assert.False(t, ok)

	_, ok = r.Successor("127.0.0.1:9000")
	assert.False(t, ok)

	assert.Empty(t, r.AllNodes())
	assert.Empty(t, r.Replicas([]byte("x"), 3))
}

func TestRing_AddDuplicateHashIsNoOp(t *testing.T) {
	r := ring.New()
	n := ring.NewNode("127.0.0.1", 9000)

	require.NoError(t, r.Add(n))
	require.NoError(t, r.Add(n))

	assert.Equal(t, 1, r.Size())
}

func TestRing_AddEmptyNodeIDFails(t *testing.T) {
	r := ring.New()
	err := r.Add(ring.Node{})
	assert.ErrorIs(t, err, ring.ErrNilNode)
}

func TestRing_RemoveAbsentIsNoOp(t *testing.T) {
	r := ring.New()
	assert.NotPanics(t, func() { r.Remove("nope:1") })
}

func TestRing_Determinism(t *testing.T) {
	ns := nodes(6)

	r1 := ring.New()
	for _, n := range ns {
		require.NoError(t, r1.Add(n))
	}

	r2 := ring.New()
	for i := len(ns) - 1; i >= 0; i-- {
		require.NoError(t, r2.Add(ns[i]))
	}

	ids1 := idsOf(r1.AllNodes())
	ids2 := idsOf(r2.AllNodes())
	assert.Equal(t, ids1, ids2, "allNodes order must not depend on insertion order")
}

func TestRing_OwnerOfAlwaysInRing(t *testing.T) {
	r := ring.New()
	for _, n := range nodes(5) {
		require.NoError(t, r.Add(n))
	}

	members := make(map[string]struct{})
	for _, n := range r.AllNodes() {
		members[n.NodeID] = struct{}{}
	}

	for i := 0; i < 200; i++ {
		owner, ok := r.OwnerOf([]byte(fmt.Sprintf("key-%d", i)))
		require.True(t, ok)
		_, isMember := members[owner.NodeID]
		assert.True(t, isMember)
	}
}

func TestRing_SuccessorPredecessorSymmetry(t *testing.T) {
	r := ring.New()
	for _, n := range nodes(5) {
		require.NoError(t, r.Add(n))
	}

	for _, n := range r.AllNodes() {
		succ, ok := r.Successor(n.NodeID)
		require.True(t, ok)
		back, ok := r.Predecessor(succ.NodeID)
		require.True(t, ok)
		assert.Equal(t, n.NodeID, back.NodeID)

		pred, ok := r.Predecessor(n.NodeID)
		require.True(t, ok)
		fwd, ok := r.Successor(pred.NodeID)
		require.True(t, ok)
		assert.Equal(t, n.NodeID, fwd.NodeID)
	}
}

func TestRing_SuccessorSingleEntryReturnsSelf(t *testing.T) {
	r := ring.New()
	n := ring.NewNode("127.0.0.1", 9000)
	require.NoError(t, r.Add(n))

	succ, ok := r.Successor(n.NodeID)
	require.True(t, ok)
	assert.Equal(t, n.NodeID, succ.NodeID)
}

func TestRing_ReplicasSizeAndDistinctness(t *testing.T) {
	r := ring.New()
	for _, n := range nodes(4) {
		require.NoError(t, r.Add(n))
	}

	for _, rf := range []int{1, 2, 3, 4, 10} {
		reps := r.Replicas([]byte("some-key"), rf)
		want := rf
		if want > 4 {
			want = 4
		}
		assert.Len(t, reps, want)

		seen := make(map[string]struct{})
		for _, n := range reps {
			_, dup := seen[n.NodeID]
			assert.False(t, dup)
			seen[n.NodeID] = struct{}{}
		}
	}
}

func idsOf(ns []ring.Node) []string {
	out := make([]string, len(ns))
	for i, n := range ns {
		out[i] = n.NodeID
	}
	return out
}
