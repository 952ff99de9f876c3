package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmcgarry/tanklog-core/internal/history"
	"github.com/dmcgarry/tanklog-core/internal/tank"
)

// maxPathParamLen bounds device identifiers taken from the URL.
const maxPathParamLen = 128

// dateLayout is the wire format for start/end query parameters.
const dateLayout = "2006-01-02"

// handleGetHistory returns a device's history, newest first, optionally
// filtered to an inclusive date range.
//
// GET /api/v1/devices/{type}/{id}/history?start=2026-07-01&end=2026-07-31
func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	deviceType, deviceID, ok := devicePathParams(w, r)
	if !ok {
		return
	}

	start, end, err := parseDateRange(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	entries, err := s.query.Query(r.Context(), deviceID, deviceType, start, end)
	if err != nil {
		s.logger.Error("history query failed",
			"device_type", deviceType,
			"device_id", deviceID,
			"error", err,
		)
		writeInternalError(w, "failed to load device history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"device_id":   deviceID,
		"device_type": deviceType,
		"history":     entries,
		"count":       len(entries),
	})
}

// handleSyncHistory ingests a batch of raw readings for a device.
//
// POST /api/v1/devices/{type}/{id}/history/sync
//
// The body is a JSON array of readings. The response always carries a
// result object; batch-level failure is reported in its error field with
// HTTP 200, matching the MQTT ingestion path.
func (s *Server) handleSyncHistory(w http.ResponseWriter, r *http.Request) {
	deviceType, deviceID, ok := devicePathParams(w, r)
	if !ok {
		return
	}

	var readings []history.RawReading
	if err := json.NewDecoder(r.Body).Decode(&readings); err != nil {
		writeBadRequest(w, fmt.Sprintf("decoding readings: %v", err))
		return
	}

	result := s.sync.Sync(r.Context(), deviceID, deviceType, readings, s.geometryFor(r, deviceType, deviceID))
	writeJSON(w, http.StatusOK, result)
}

// geometryFor looks up tank geometry for tank devices. Missing geometry
// is not an error: entries sync without derived metrics.
func (s *Server) geometryFor(r *http.Request, deviceType, deviceID string) *tank.Geometry {
	if deviceType != "tanks" {
		return nil
	}

	record, err := s.tanks.GetByDeviceID(r.Context(), deviceID)
	if err != nil {
		if !errors.Is(err, tank.ErrNotFound) {
			s.logger.Warn("tank geometry lookup failed", "device_id", deviceID, "error", err)
		}
		return nil
	}
	return &record.Geometry
}

// devicePathParams extracts and validates the {type}/{id} URL segments.
func devicePathParams(w http.ResponseWriter, r *http.Request) (deviceType, deviceID string, ok bool) {
	deviceType = chi.URLParam(r, "type")
	deviceID = chi.URLParam(r, "id")

	if deviceType == "" || len(deviceType) > maxPathParamLen {
		writeBadRequest(w, "invalid device type")
		return "", "", false
	}
	if deviceID == "" || len(deviceID) > maxPathParamLen {
		writeBadRequest(w, "invalid device ID")
		return "", "", false
	}
	return deviceType, deviceID, true
}

// parseDateRange reads optional start/end date parameters. Dates are
// interpreted in the server's local zone; the query engine extends the
// end date to cover its whole day.
func parseDateRange(r *http.Request) (start, end *time.Time, err error) {
	if raw := r.URL.Query().Get("start"); raw != "" {
		parsed, parseErr := time.ParseInLocation(dateLayout, raw, time.Local)
		if parseErr != nil {
			return nil, nil, fmt.Errorf("invalid start date %q, want YYYY-MM-DD", raw)
		}
		start = &parsed
	}
	if raw := r.URL.Query().Get("end"); raw != "" {
		parsed, parseErr := time.ParseInLocation(dateLayout, raw, time.Local)
		if parseErr != nil {
			return nil, nil, fmt.Errorf("invalid end date %q, want YYYY-MM-DD", raw)
		}
		end = &parsed
	}
	if start != nil && end != nil && end.Before(*start) {
		return nil, nil, fmt.Errorf("end date precedes start date")
	}
	return start, end, nil
}
