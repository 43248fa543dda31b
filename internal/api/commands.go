package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/nerrad567/device-server/internal/device"
	"github.com/nerrad567/device-server/internal/infrastructure/mqtt"
)

// Plain-text bodies the mobile app matches on.
const (
	msgCommandSent     = "Command sent successfully."
	msgInvalidCommand  = "Invalid command data."
	msgInvalidSettings = "Invalid settings data."
	msgSettingsUpdated = "Settings updated successfully for device %d"
)

var topics = mqtt.Topics{}

// errEmptyBody is returned by decodeBody for an absent or null body.
var errEmptyBody = errors.New("api: empty request body")

// decodeBody decodes a JSON object from r into a new T.
// An empty body or a literal null is errEmptyBody.
func decodeBody[T any](r *http.Request) (*T, error) {
	var v *T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errEmptyBody
		}
		return nil, err
	}
	if v == nil {
		return nil, errEmptyBody
	}
	return v, nil
}

// deviceIDParam parses the {deviceId} URL parameter.
func deviceIDParam(r *http.Request) (int, error) {
	id, err := strconv.Atoi(chi.URLParam(r, "deviceId"))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", device.ErrInvalidDeviceID, chi.URLParam(r, "deviceId"))
	}
	if err := device.ValidateDeviceID(id); err != nil {
		return 0, err
	}
	return id, nil
}

// subject returns the authenticated token subject, if any.
func subject(r *http.Request) string {
	sub, _ := r.Context().Value(ctxKeySubject).(string) //nolint:errcheck // absent when auth is disabled
	return sub
}

// handleSendCommand publishes a water/illuminate command to one device.
//
// Body: {"deviceId":7,"waterFor":"00:00:30.000Z","illuminateFor":"00:01:00.000Z"}
func (s *Server) handleSendCommand(w http.ResponseWriter, r *http.Request) {
	cmd, err := decodeBody[device.Command](r)
	if err == nil {
		err = device.ValidateCommand(cmd)
	}
	if err != nil {
		s.logger.Debug("rejected command", "error", err)
		writeText(w, http.StatusBadRequest, msgInvalidCommand)
		return
	}

	topic := topics.Command(cmd.DeviceID)
	if err := s.gateway.SendJSON(r.Context(), topic, cmd.Payload()); err != nil {
		s.logger.Error("failed to send command",
			"device_id", cmd.DeviceID,
			"topic", topic,
			"error", err,
		)
		writeBadGateway(w, "failed to publish command")
		return
	}

	s.logger.Info("command sent",
		"device_id", cmd.DeviceID,
		"water_for", cmd.WaterFor,
		"illuminate_for", cmd.IlluminateFor,
		"subject", subject(r),
	)
	writeText(w, http.StatusOK, msgCommandSent)
}

// handleUpdateSettings publishes a new settings envelope to one device.
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := decodeBody[device.Settings](r)
	if err == nil {
		err = device.ValidateSettings(settings)
	}
	if err != nil {
		s.logger.Debug("rejected settings", "error", err)
		writeText(w, http.StatusBadRequest, msgInvalidSettings)
		return
	}

	topic := topics.Settings(settings.DeviceID)
	if err := s.gateway.SendJSON(r.Context(), topic, settings.Payload()); err != nil {
		s.logger.Error("failed to send settings",
			"device_id", settings.DeviceID,
			"topic", topic,
			"error", err,
		)
		writeBadGateway(w, "failed to publish settings")
		return
	}

	s.logger.Info("settings sent", "device_id", settings.DeviceID, "subject", subject(r))
	writeText(w, http.StatusOK, fmt.Sprintf(msgSettingsUpdated, settings.DeviceID))
}

// handleRequestSettings asks a device to report its current settings.
// The reply arrives asynchronously on the changeSettings topic.
func (s *Server) handleRequestSettings(w http.ResponseWriter, r *http.Request) {
	id, err := deviceIDParam(r)
	if err != nil {
		writeBadRequest(w, "invalid device id")
		return
	}

	topic := topics.SettingsRequest(id)
	if err := s.gateway.SendMessage(r.Context(), topic, nil); err != nil {
		s.logger.Error("failed to request settings",
			"device_id", id,
			"topic", topic,
			"error", err,
		)
		writeBadGateway(w, "failed to publish settings request")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "requested",
		"deviceId": id,
		"topic":    topic,
	})
}

// handleGetSettings returns the last settings the device reported.
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	id, err := deviceIDParam(r)
	if err != nil {
		writeBadRequest(w, "invalid device id")
		return
	}

	snap, err := s.settings.Get(id)
	if err != nil {
		if errors.Is(err, device.ErrSettingsNotFound) {
			writeNotFound(w, fmt.Sprintf("no settings reported by device %d", id))
			return
		}
		s.logger.Error("failed to read settings", "device_id", id, "error", err)
		writeInternalError(w, "failed to read settings")
		return
	}

	writeJSON(w, http.StatusOK, snap)
}
