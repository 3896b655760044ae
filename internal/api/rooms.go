package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/climate-core/internal/infrastructure/database"
)

// defaultRoomWindow is the range used by /rooms/{id}/readings without from.
const defaultRoomWindow = 24 * time.Hour

// handleListRooms returns all rooms.
func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.rooms.List(r.Context())
	if err != nil {
		s.logger.Error("listing rooms", "error", err)
		writeInternalError(w, "failed to list rooms")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rooms": rooms, "count": len(rooms)})
}

// handleGetRoom returns a single room by ID.
func (s *Server) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	room, err := s.rooms.GetByID(r.Context(), id)
	if err != nil {
		if !writeDomainError(w, err, "failed to get room") {
			s.logger.Error("getting room", "room_id", id, "error", err)
		}
		return
	}
	writeJSON(w, http.StatusOK, room)
}

// handleRoomSummaries returns the latest reading of every room.
func (s *Server) handleRoomSummaries(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.readings.RoomSummaries(r.Context())
	if err != nil {
		s.logger.Error("summarising rooms", "error", err)
		writeInternalError(w, "failed to summarise rooms")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rooms": summaries, "count": len(summaries)})
}

// handleRoomReadings returns a room's readings in [from, to).
//
// Query parameters (RFC 3339):
//   - from: defaults to 24 hours before to
//   - to: defaults to now
func (s *Server) handleRoomReadings(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := r.Context()

	to := time.Now().UTC()
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := database.ParseTime(v)
		if err != nil {
			writeBadRequest(w, "to must be an RFC 3339 timestamp")
			return
		}
		to = t
	}
	from := to.Add(-defaultRoomWindow)
	if v := r.URL.Query().Get("from"); v != "" {
		t, err := database.ParseTime(v)
		if err != nil {
			writeBadRequest(w, "from must be an RFC 3339 timestamp")
			return
		}
		from = t
	}

	if _, err := s.rooms.GetByID(ctx, id); err != nil {
		if !writeDomainError(w, err, "failed to get room readings") {
			s.logger.Error("getting room", "room_id", id, "error", err)
		}
		return
	}

	readings, err := s.readings.ByRoomAndRange(ctx, id, from, to)
	if err != nil {
		if !writeDomainError(w, err, "failed to get room readings") {
			s.logger.Error("querying room readings", "room_id", id, "error", err)
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"room_id":  id,
		"from":     database.FormatTime(from),
		"to":       database.FormatTime(to),
		"readings": readings,
		"count":    len(readings),
	})
}
