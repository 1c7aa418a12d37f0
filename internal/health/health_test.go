package health

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/distnode/ringkv/internal/ring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReady_FalseWhenRingEmpty(t *testing.T) {
	r := ring.New()
	self := ring.NewNode("node-a", 8080)
	c := NewChecker(self, r)

	assert.False(t, c.Ready())
}

func TestReady_FalseWhenSelfNotInRing(t *testing.T) {
	r := ring.New()
	other := ring.NewNode("node-b", 8081)
	require.NoError(t, r.Add(other))

	self := ring.NewNode("node-a", 8080)
	c := NewChecker(self, r)

	assert.False(t, c.Ready())
}

func TestReady_TrueWhenSelfPresent(t *testing.T) {
	r := ring.New()
	self := ring.NewNode("node-a", 8080)
	require.NoError(t, r.Add(self))

	c := NewChecker(self, r)
	assert.True(t, c.Ready())
}

func TestLivenessHandler_AlwaysOK(t *testing.T) {
	r := ring.New()
	self := ring.NewNode("node-a", 8080)
	c := NewChecker(self, r)

	req := httptest.NewRequest(http.MethodGet, "/healthz/live", nil)
	rec := httptest.NewRecorder()
	c.LivenessHandler(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadinessHandler_ServiceUnavailableWhenNotReady(t *testing.T) {
	r := ring.New()
	self := ring.NewNode("node-a", 8080)
	c := NewChecker(self, r)

	req := httptest.NewRequest(http.MethodGet, "/healthz/ready", nil)
	rec := httptest.NewRecorder()
	c.ReadinessHandler(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
