package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/climate-core/internal/device"
)

// handleProvisionDevice registers a device ahead of its first reading.
// Returns 201 with the created device, room and placement, or 409 when the
// UID is already provisioned.
func (s *Server) handleProvisionDevice(w http.ResponseWriter, r *http.Request) {
	var req device.ProvisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	result, err := s.provisioner.Provision(r.Context(), req)
	if err != nil {
		if !writeDomainError(w, err, "failed to provision device") {
			s.logger.Error("provisioning device", "device_uid", req.UID, "error", err)
		}
		return
	}

	attrs := []any{"device_uid", result.Device.UID, "device_id", result.Device.ID}
	if result.Room != nil {
		attrs = append(attrs, "room_id", result.Room.ID, "room_created", result.RoomCreated)
	}
	if claims, ok := r.Context().Value(ctxKeyClaims).(*Claims); ok {
		attrs = append(attrs, "by", claims.Subject)
	}
	s.logger.Info("device provisioned", attrs...)

	writeJSON(w, http.StatusCreated, result)
}

// handleProvisioningStatus returns a device with its current room.
func (s *Server) handleProvisioningStatus(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "uid")
	st, err := s.provisioner.Status(r.Context(), uid)
	if err != nil {
		if !writeDomainError(w, err, "failed to get provisioning status") {
			s.logger.Error("getting provisioning status", "device_uid", uid, "error", err)
		}
		return
	}
	writeJSON(w, http.StatusOK, st)
}
