// Package handler implements the HTTP/JSON surface of SPEC_FULL §6,
// translating each documented path into a call against the Coordinator.
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/distnode/ringkv/internal/dto"
	ringerrors "github.com/distnode/ringkv/internal/errors"
	"github.com/distnode/ringkv/internal/validation"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Coordinator is the subset of coordinator.Coordinator this package
// depends on, kept as an interface so handlers can be tested against a
// fake without spinning up a real ring/store/peer client.
type Coordinator interface {
	Put(ctx context.Context, key, value string) dto.DataResponse
	Get(ctx context.Context, key string) dto.DataResponse
	Delete(ctx context.Context, key string) dto.DataResponse
	PutReplica(level int, key, value string)
	PutBulkReplica(level int, data map[string]string)
	DeleteReplicaAt(level int, key string) bool
	GetAllData() (map[string]string, map[int]map[string]string)
	GetPrimaryData() map[string]string
	NodesInfo() dto.NodesInfo
	HandleRebalance(req dto.RebalanceRequest) dto.RebalanceResponse
}

// Handlers owns the Coordinator and serves every path in SPEC_FULL §6.
type Handlers struct {
	coordinator Coordinator
	validator   *validation.Validator
	logger      *zap.Logger
}

// NewHandlers builds a Handlers bound to coordinator.
func NewHandlers(coordinator Coordinator, validator *validation.Validator, logger *zap.Logger) *Handlers {
	return &Handlers{coordinator: coordinator, validator: validator, logger: logger}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

// writeRingError resolves err's HTTP status through the error taxonomy and
// writes body with that status, logging the taxonomy code it resolved.
func (h *Handlers) writeRingError(w http.ResponseWriter, err error, body interface{}) {
	status := http.StatusInternalServerError
	if ringErr, ok := err.(*ringerrors.RingError); ok {
		status = ringErr.ToHTTPStatus()
	}
	if ringerrors.IsRingError(err) {
		h.logger.Debug("request rejected", zap.Int("error_code", int(ringerrors.GetCode(err))))
	}
	writeJSON(w, status, body)
}

// PutData handles POST /api/data.
func (h *Handlers) PutData(w http.ResponseWriter, r *http.Request) {
	var req dto.DataRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ringErr := ringerrors.InvalidArgument("invalid request body")
		h.writeRingError(w, ringErr, dto.DataResponse{Found: false, Message: ringErr.Message})
		return
	}
	if err := h.validator.ValidateKey(req.Key); err != nil {
		ringErr := ringerrors.InvalidArgument(err.Error())
		h.writeRingError(w, ringErr, dto.DataResponse{Found: false, Message: ringErr.Message})
		return
	}
	if err := h.validator.ValidateValue(req.Value); err != nil {
		ringErr := ringerrors.InvalidArgument(err.Error())
		h.writeRingError(w, ringErr, dto.DataResponse{Found: false, Message: ringErr.Message})
		return
	}
	resp := h.coordinator.Put(r.Context(), req.Key, req.Value)
	writeJSON(w, http.StatusOK, resp)
}

// GetData handles GET /api/data/{key}.
func (h *Handlers) GetData(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	resp := h.coordinator.Get(r.Context(), key)
	writeJSON(w, http.StatusOK, resp)
}

// DeleteData handles DELETE /api/data/{key}.
func (h *Handlers) DeleteData(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	resp := h.coordinator.Delete(r.Context(), key)
	writeJSON(w, http.StatusOK, resp)
}

// PutReplica handles POST /api/replica/{level}.
func (h *Handlers) PutReplica(w http.ResponseWriter, r *http.Request) {
	level, err := strconv.Atoi(mux.Vars(r)["level"])
	if err != nil {
		ringErr := ringerrors.InvalidReplicaLevel(-1)
		h.writeRingError(w, ringErr, dto.DataResponse{Found: false, Message: ringErr.Message})
		return
	}
	var req dto.DataRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ringErr := ringerrors.InvalidArgument("invalid request body")
		h.writeRingError(w, ringErr, dto.DataResponse{Found: false, Message: ringErr.Message})
		return
	}
	h.coordinator.PutReplica(level, req.Key, req.Value)
	writeJSON(w, http.StatusOK, dto.DataResponse{Value: req.Value, Found: true})
}

// PutBulkReplica handles POST /api/replica/bulk/{level}.
func (h *Handlers) PutBulkReplica(w http.ResponseWriter, r *http.Request) {
	level, err := strconv.Atoi(mux.Vars(r)["level"])
	if err != nil {
		ringErr := ringerrors.InvalidReplicaLevel(-1)
		h.writeRingError(w, ringErr, dto.BulkDataResponse{Found: false, Message: ringErr.Message})
		return
	}
	var req dto.BulkDataRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ringErr := ringerrors.InvalidArgument("invalid request body")
		h.writeRingError(w, ringErr, dto.BulkDataResponse{Found: false, Message: ringErr.Message})
		return
	}

	h.logger.Info("received bulk replica data",
		zap.Int("entries", len(req.Data)), zap.Int("level", level))
	h.coordinator.PutBulkReplica(level, req.Data)
	writeJSON(w, http.StatusOK, dto.BulkDataResponse{Message: "Bulk replica data stored successfully", Found: true})
}

// DeleteReplica handles DELETE /api/replica/{key}?replicaIndex=L.
func (h *Handlers) DeleteReplica(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	level, err := strconv.Atoi(r.URL.Query().Get("replicaIndex"))
	if err != nil {
		ringErr := ringerrors.InvalidArgument("invalid replicaIndex")
		w.WriteHeader(ringErr.ToHTTPStatus())
		return
	}

	if h.coordinator.DeleteReplicaAt(level, key) {
		w.WriteHeader(http.StatusOK)
	} else {
		ringErr := ringerrors.NotFound(key)
		w.WriteHeader(ringErr.ToHTTPStatus())
	}
}

// GetAllData handles GET /api/data/all.
func (h *Handlers) GetAllData(w http.ResponseWriter, r *http.Request) {
	primary, replicas := h.coordinator.GetAllData()
	writeJSON(w, http.StatusOK, dto.AllDataResponse{Primary: primary, Replicas: replicas})
}

// GetPrimaryData handles GET /api/data/primary.
func (h *Handlers) GetPrimaryData(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.coordinator.GetPrimaryData())
}

// GetNodes handles GET /api/nodes.
func (h *Handlers) GetNodes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.coordinator.NodesInfo())
}

// Rebalance handles POST /api/rebalance.
func (h *Handlers) Rebalance(w http.ResponseWriter, r *http.Request) {
	var req dto.RebalanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ringErr := ringerrors.InvalidArgument("invalid request body")
		h.writeRingError(w, ringErr, dto.RebalanceResponse{Success: false, Message: ringErr.Message})
		return
	}

	h.logger.Info("received rebalance request", zap.String("operation", req.Operation))
	resp := h.coordinator.HandleRebalance(req)
	h.logger.Info("completed rebalance request", zap.Bool("success", resp.Success))
	writeJSON(w, http.StatusOK, resp)
}

// Health handles GET /api/health.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`"OK"`))
}
