package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_ProducesIndependentRegistriesPerNode(t *testing.T) {
	m1 := New("node-a:8080")
	m2 := New("node-b:8081")

	require.NotSame(t, m1.Registry, m2.Registry)

	m1.WriteRequestsTotal.Inc()
	assert.Equal(t, float64(1), testutil.ToFloat64(m1.WriteRequestsTotal))
	assert.Equal(t, float64(0), testutil.ToFloat64(m2.WriteRequestsTotal))
}

func TestNew_AppliesNodeIDConstLabel(t *testing.T) {
	m := New("node-c:8082")
	families, err := m.Registry.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)

	var found bool
	for _, fam := range families {
		for _, metric := range fam.Metric {
			for _, label := range metric.Label {
				if label.GetName() == "node_id" && label.GetValue() == "node-c:8082" {
					found = true
				}
			}
		}
	}
	assert.True(t, found)
}
