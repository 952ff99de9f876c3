package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/dmcgarry/tanklog-core/internal/export"
)

// handleExportHistory streams a device's history as a CSV download.
//
// GET /api/v1/devices/{type}/{id}/history/export?start=&end=&name=
//
// The optional name parameter overrides the device ID in the download
// filename. An empty history returns 204 so clients can show a notice
// instead of saving an empty file.
func (s *Server) handleExportHistory(w http.ResponseWriter, r *http.Request) {
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
		s.logger.Error("history query for export failed",
			"device_type", deviceType,
			"device_id", deviceID,
			"error", err,
		)
		writeInternalError(w, "failed to load device history")
		return
	}

	name := r.URL.Query().Get("name")
	if name == "" {
		name = deviceID
	}
	filename := export.Filename(name, s.now())

	w.Header().Set("Content-Type", export.MIMEType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	if err := export.Write(w, entries, deviceType); err != nil {
		if errors.Is(err, export.ErrNoEntries) {
			w.Header().Del("Content-Disposition")
			w.Header().Set("Content-Type", "application/json")
			writeJSON(w, http.StatusNoContent, nil)
			return
		}
		// Headers are already sent; the truncated body is all we can signal.
		s.logger.Error("csv export write failed",
			"device_type", deviceType,
			"device_id", deviceID,
			"error", err,
		)
	}
}
