// Package peerclient is the stateless outbound message transport: it
// sends one logical message to one named peer and synchronously
// returns the peer's reply over HTTP/JSON, matching SPEC_FULL §6's
// interface table bit-compatibly.
package peerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/distnode/ringkv/internal/dto"
	"go.uber.org/zap"
)

// Client is the Peer Client. One instance is shared by a Coordinator
// for every outbound peer call.
type Client struct {
	http   *http.Client
	logger *zap.Logger
}

// New builds a Client with the given per-call timeout and idle
// connection pool size, grounded on the teacher's
// storage_client.go dial/timeout conventions.
func New(timeout time.Duration, maxIdleConns int, logger *zap.Logger) *Client {
	return &Client{
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        maxIdleConns,
				MaxIdleConnsPerHost: maxIdleConns,
			},
		},
		logger: logger,
	}
}

func baseURL(peerNodeID string) string {
	return "http://" + peerNodeID
}

// Put sends {key,value} to peer's POST /api/data. Transport errors
// surface as found=false with a message, per SPEC_FULL §4.3's
// client-facing failure model.
func (c *Client) Put(ctx context.Context, peerNodeID, key, value string) dto.DataResponse {
	var out dto.DataResponse
	err := c.doJSON(ctx, http.MethodPost, baseURL(peerNodeID)+"/api/data",
		dto.DataRequest{Key: key, Value: value}, &out)
	if err != nil {
		return dto.DataResponse{Found: false, Message: "Error communicating with node: " + err.Error()}
	}
	return out
}

// Get sends GET /api/data/{key} to peer.
func (c *Client) Get(ctx context.Context, peerNodeID, key string) dto.DataResponse {
	var out dto.DataResponse
	err := c.doJSON(ctx, http.MethodGet, baseURL(peerNodeID)+"/api/data/"+key, nil, &out)
	if err != nil {
		return dto.DataResponse{Found: false, Message: "Error communicating with node: " + err.Error()}
	}
	return out
}

// Delete sends DELETE /api/data/{key} to peer.
func (c *Client) Delete(ctx context.Context, peerNodeID, key string) dto.DataResponse {
	var out dto.DataResponse
	err := c.doJSON(ctx, http.MethodDelete, baseURL(peerNodeID)+"/api/data/"+key, nil, &out)
	if err != nil {
		if err == errNotFound {
			return dto.DataResponse{Found: false, Message: "Key not found"}
		}
		return dto.DataResponse{Found: false, Message: "Error communicating with node: " + err.Error()}
	}
	return out
}

// Replicate sends {key,value} to peer's POST /api/replica/{level}.
// Best-effort: errors are logged and swallowed, never propagated, per
// SPEC_FULL §4.3. Returns false on transport failure so the caller can
// count it.
func (c *Client) Replicate(ctx context.Context, peerNodeID string, level int, key, value string) bool {
	var out dto.DataResponse
	url := fmt.Sprintf("%s/api/replica/%d", baseURL(peerNodeID), level)
	if err := c.doJSON(ctx, http.MethodPost, url, dto.DataRequest{Key: key, Value: value}, &out); err != nil {
		c.logger.Warn("replication to peer failed", zap.String("peer", peerNodeID), zap.Int("level", level), zap.Error(err))
		return false
	}
	return true
}

// ReplicateBulk sends data to peer's POST /api/replica/bulk/{level}.
// Best-effort.
func (c *Client) ReplicateBulk(ctx context.Context, peerNodeID string, level int, data map[string]string) {
	var out dto.BulkDataResponse
	url := fmt.Sprintf("%s/api/replica/bulk/%d", baseURL(peerNodeID), level)
	if err := c.doJSON(ctx, http.MethodPost, url, dto.BulkDataRequest{Data: data}, &out); err != nil {
		c.logger.Warn("bulk replication to peer failed",
			zap.String("peer", peerNodeID), zap.Int("level", level), zap.Int("entries", len(data)), zap.Error(err))
		return
	}
	c.logger.Debug("bulk replication succeeded",
		zap.String("peer", peerNodeID), zap.Int("level", level), zap.Int("entries", len(data)))
}

// DeleteReplica sends DELETE /api/replica/{key}?replicaIndex=L. Best-effort.
// Returns false on transport failure so the caller can count it.
func (c *Client) DeleteReplica(ctx context.Context, peerNodeID string, level int, key string) bool {
	url := fmt.Sprintf("%s/api/replica/%s?replicaIndex=%d", baseURL(peerNodeID), key, level)
	if err := c.doJSON(ctx, http.MethodDelete, url, nil, nil); err != nil && err != errNotFound {
		c.logger.Warn("replica delete on peer failed",
			zap.String("peer", peerNodeID), zap.Int("level", level), zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

// Rebalance sends req to peer's POST /api/rebalance. On transport
// error, returns a synthetic failure response rather than propagating
// the error, per SPEC_FULL §4.3.
func (c *Client) Rebalance(ctx context.Context, peerNodeID string, req dto.RebalanceRequest) dto.RebalanceResponse {
	var out dto.RebalanceResponse
	err := c.doJSON(ctx, http.MethodPost, baseURL(peerNodeID)+"/api/rebalance", req, &out)
	if err != nil {
		return dto.RebalanceResponse{Success: false, Message: "Communication error: " + err.Error()}
	}
	return out
}

// GetAllPrimary fetches peer's GET /api/data/primary.
func (c *Client) GetAllPrimary(ctx context.Context, peerNodeID string) map[string]string {
	var out map[string]string
	if err := c.doJSON(ctx, http.MethodGet, baseURL(peerNodeID)+"/api/data/primary", nil, &out); err != nil {
		c.logger.Warn("failed to fetch primary data from peer", zap.String("peer", peerNodeID), zap.Error(err))
		return map[string]string{}
	}
	if out == nil {
		return map[string]string{}
	}
	return out
}

var errNotFound = fmt.Errorf("not found")

func (c *Client) doJSON(ctx context.Context, method, url string, body, out interface{}) error {
	var reqBody *bytes.Buffer
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewBuffer(b)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return errNotFound
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("peer returned status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
