package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/device-server/internal/device"
	"github.com/nerrad567/device-server/internal/infrastructure/cache"
)

// readingsResponse is the body of GET /api/readings/{deviceId}.
type readingsResponse struct {
	DeviceID int              `json:"deviceId"`
	Readings []device.Reading `json:"readings"`
	Count    int              `json:"count"`
}

// handleListReadings returns stored readings for one device.
//
// Query parameters:
//   - limit: newest N readings (default 10, max 100)
//   - start, end: RFC 3339 bounds; when both are set the readings in
//     [start, end) are returned oldest first and limit is ignored
func (s *Server) handleListReadings(w http.ResponseWriter, r *http.Request) {
	id, err := deviceIDParam(r)
	if err != nil {
		writeBadRequest(w, "invalid device id")
		return
	}

	q := r.URL.Query()
	var readings []device.Reading

	switch start, end := q.Get("start"), q.Get("end"); {
	case start != "" || end != "":
		from, to, err := parseRange(start, end)
		if err != nil {
			writeBadRequest(w, err.Error())
			return
		}
		readings, err = s.readings.Range(r.Context(), id, from, to)
		if err != nil {
			s.logger.Error("failed to query reading range", "device_id", id, "error", err)
			writeInternalError(w, "failed to query readings")
			return
		}
	default:
		limit := 0
		if v := q.Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				writeBadRequest(w, "limit must be a positive integer")
				return
			}
			limit = n
		}
		readings, err = s.readings.Latest(r.Context(), id, limit)
		if err != nil {
			s.logger.Error("failed to query readings", "device_id", id, "error", err)
			writeInternalError(w, "failed to query readings")
			return
		}
	}

	writeJSON(w, http.StatusOK, readingsResponse{
		DeviceID: id,
		Readings: readings,
		Count:    len(readings),
	})
}

// parseRange parses both RFC 3339 bounds and checks start < end.
func parseRange(start, end string) (time.Time, time.Time, error) {
	if start == "" || end == "" {
		return time.Time{}, time.Time{}, errors.New("start and end must be given together")
	}
	from, err := time.Parse(time.RFC3339Nano, start)
	if err != nil {
		return time.Time{}, time.Time{}, errors.New("start must be an RFC 3339 timestamp")
	}
	to, err := time.Parse(time.RFC3339Nano, end)
	if err != nil {
		return time.Time{}, time.Time{}, errors.New("end must be an RFC 3339 timestamp")
	}
	if !from.Before(to) {
		return time.Time{}, time.Time{}, errors.New("start must be before end")
	}
	return from, to, nil
}

// handleLatestReading returns the newest reading of one device, from the
// cache when one is configured and holds it, from the database otherwise.
func (s *Server) handleLatestReading(w http.ResponseWriter, r *http.Request) {
	id, err := deviceIDParam(r)
	if err != nil {
		writeBadRequest(w, "invalid device id")
		return
	}

	if s.cache != nil {
		data, err := s.cache.GetLatest(r.Context(), id)
		switch {
		case err == nil:
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-Cache", "hit")
			w.WriteHeader(http.StatusOK)
			//nolint:errcheck // Best-effort write to response; connection may be closed
			w.Write(data)
			return
		case !errors.Is(err, cache.ErrMiss):
			s.logger.Warn("reading cache unavailable", "device_id", id, "error", err)
		}
	}

	reading, err := s.readings.Last(r.Context(), id)
	if err != nil {
		if errors.Is(err, device.ErrReadingNotFound) {
			writeNotFound(w, "no readings for device "+strconv.Itoa(id))
			return
		}
		s.logger.Error("failed to query latest reading", "device_id", id, "error", err)
		writeInternalError(w, "failed to query readings")
		return
	}

	if s.cache != nil {
		w.Header().Set("X-Cache", "miss")
	}
	writeJSON(w, http.StatusOK, reading)
}
