package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/climate-core/internal/device"
)

// deviceView is a device with its current placement.
type deviceView struct {
	device.Device
	Placement *device.Placement `json:"placement,omitempty"`
}

// handleListDevices returns all devices ordered by UID.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.devices.List(r.Context())
	if err != nil {
		s.logger.Error("listing devices", "error", err)
		writeInternalError(w, "failed to list devices")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleGetDevice returns one device by UID with its placement history.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "uid")
	ctx := r.Context()

	dev, err := s.devices.FindByExternalID(ctx, uid)
	if err != nil {
		if !writeDomainError(w, err, "failed to get device") {
			s.logger.Error("getting device", "device_uid", uid, "error", err)
		}
		return
	}
	placements, err := s.devices.ListPlacements(ctx, uid)
	if err != nil {
		s.logger.Error("listing placements", "device_uid", uid, "error", err)
		writeInternalError(w, "failed to get device")
		return
	}

	view := deviceView{Device: *dev}
	for i := range placements {
		if placements[i].Open() {
			view.Placement = &placements[i]
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"device": view, "placements": placements})
}

// handleDeviceLatest returns the newest reading of one device.
func (s *Server) handleDeviceLatest(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "uid")
	latest, err := s.readings.LatestByDevice(r.Context(), uid)
	if err != nil {
		if !writeDomainError(w, err, "failed to get latest reading") {
			s.logger.Error("getting latest reading", "device_uid", uid, "error", err)
		}
		return
	}
	writeJSON(w, http.StatusOK, latest)
}

// moveRequest is the body of PUT /devices/{uid}/placement.
type moveRequest struct {
	RoomID string `json:"room_id"`
}

// handleMoveDevice closes the device's current placement and opens one in
// the requested room.
func (s *Server) handleMoveDevice(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "uid")

	var req moveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.RoomID == "" {
		writeBadRequest(w, "room_id is required")
		return
	}

	placement, err := s.provisioner.Move(r.Context(), uid, req.RoomID)
	if err != nil {
		if !writeDomainError(w, err, "failed to move device") {
			s.logger.Error("moving device", "device_uid", uid, "room_id", req.RoomID, "error", err)
		}
		return
	}
	s.logger.Info("device moved", "device_uid", uid, "room_id", req.RoomID)
	writeJSON(w, http.StatusOK, placement)
}
