package api

import "net/http"

// handleLatestReadings returns the newest reading of every device.
func (s *Server) handleLatestReadings(w http.ResponseWriter, r *http.Request) {
	latest, err := s.readings.LatestPerDevice(r.Context())
	if err != nil {
		s.logger.Error("listing latest readings", "error", err)
		writeInternalError(w, "failed to list latest readings")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"readings": latest, "count": len(latest)})
}

// handleIngestStats reports consumer counters and the device policy.
func (s *Server) handleIngestStats(w http.ResponseWriter, _ *http.Request) {
	if s.ingest == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "ingestion is not running")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"policy": s.policy,
		"stats":  s.ingest.Stats(),
	})
}
