package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dmcgarry/tanklog-core/internal/tank"
)

// tankRequest is the request body for creating or updating a tank.
type tankRequest struct {
	DeviceID string `json:"deviceId"`
	Name     string `json:"name"`
	tank.Geometry
}

// handleListTanks returns all registered tanks.
//
// GET /api/v1/tanks
func (s *Server) handleListTanks(w http.ResponseWriter, r *http.Request) {
	tanks, err := s.tanks.List(r.Context())
	if err != nil {
		s.logger.Error("listing tanks failed", "error", err)
		writeInternalError(w, "failed to list tanks")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"tanks": tanks,
		"count": len(tanks),
	})
}

// handleGetTank returns one tank by device ID.
//
// GET /api/v1/tanks/{deviceID}
func (s *Server) handleGetTank(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")
	if deviceID == "" || len(deviceID) > maxPathParamLen {
		writeBadRequest(w, "invalid device ID")
		return
	}

	record, err := s.tanks.GetByDeviceID(r.Context(), deviceID)
	if err != nil {
		if errors.Is(err, tank.ErrNotFound) {
			writeNotFound(w, "tank not found")
			return
		}
		s.logger.Error("loading tank failed", "device_id", deviceID, "error", err)
		writeInternalError(w, "failed to load tank")
		return
	}

	writeJSON(w, http.StatusOK, record)
}

// handleSaveTank creates or updates a tank registration.
//
// POST /api/v1/tanks
// PUT  /api/v1/tanks/{deviceID}
//
// Save is an upsert keyed on device ID; the PUT form takes the device ID
// from the URL and ignores any conflicting body value.
func (s *Server) handleSaveTank(w http.ResponseWriter, r *http.Request) {
	var req tankRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid tank payload")
		return
	}

	if pathID := chi.URLParam(r, "deviceID"); pathID != "" {
		req.DeviceID = pathID
	}
	if req.DeviceID == "" || len(req.DeviceID) > maxPathParamLen {
		writeBadRequest(w, "device ID is required")
		return
	}

	record := &tank.Tank{
		DeviceID: req.DeviceID,
		Name:     req.Name,
		Geometry: req.Geometry,
	}
	record.Geometry.Shape = tank.ParseShape(string(req.Shape))

	if err := s.tanks.Save(r.Context(), record); err != nil {
		s.logger.Error("saving tank failed", "device_id", req.DeviceID, "error", err)
		writeInternalError(w, "failed to save tank")
		return
	}

	// Re-read so updates report the stored record ID, not a freshly
	// generated one discarded by the upsert.
	saved, err := s.tanks.GetByDeviceID(r.Context(), req.DeviceID)
	if err != nil {
		s.logger.Error("reloading saved tank failed", "device_id", req.DeviceID, "error", err)
		writeInternalError(w, "failed to load saved tank")
		return
	}

	writeJSON(w, http.StatusOK, saved)
}

// handleDeleteTank removes a tank registration. History entries are kept;
// they simply lose geometry enrichment for future syncs.
//
// DELETE /api/v1/tanks/{deviceID}
func (s *Server) handleDeleteTank(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")
	if deviceID == "" || len(deviceID) > maxPathParamLen {
		writeBadRequest(w, "invalid device ID")
		return
	}

	if err := s.tanks.Delete(r.Context(), deviceID); err != nil {
		if errors.Is(err, tank.ErrNotFound) {
			writeNotFound(w, "tank not found")
			return
		}
		s.logger.Error("deleting tank failed", "device_id", deviceID, "error", err)
		writeInternalError(w, "failed to delete tank")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"deleted": deviceID})
}
