package api

import (
	"net/http"
	"strconv"

	"github.com/nerrad567/device-server/internal/audit"
)

// handleListAuditLogs returns paginated audit entries with optional filters.
//
// Query parameters:
//   - topic: exact topic match
//   - device_id: entries for one device
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleListAuditLogs(w http.ResponseWriter, r *http.Request) {
	if s.auditRepo == nil {
		writeInternalError(w, "audit logging not configured")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Topic: q.Get("topic"),
	}

	if v := q.Get("device_id"); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil {
			writeBadRequest(w, "device_id must be an integer")
			return
		}
		filter.DeviceID = &id
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}

	result, err := s.auditRepo.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list audit logs", "error", err)
		writeInternalError(w, "failed to list audit logs")
		return
	}

	writeJSON(w, http.StatusOK, result)
}
