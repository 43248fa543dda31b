package device

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeReading(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    Reading
		wantErr bool
	}{
		{
			name:    "camelCase",
			payload: `{"deviceId":7,"humidity":41.5,"lightIntensity":300,"temperature":21.25}`,
			want:    Reading{DeviceID: 7, Humidity: 41.5, LightIntensity: 300, Temperature: 21.25},
		},
		{
			name:    "PascalCase from firmware",
			payload: `{"DeviceId":0,"Humidity":55,"LightIntensity":12.5,"Temperature":19}`,
			want:    Reading{DeviceID: 0, Humidity: 55, LightIntensity: 12.5, Temperature: 19},
		},
		{
			name:    "with timestamp",
			payload: `{"deviceId":3,"humidity":1,"lightIntensity":2,"temperature":3,"timestamp":"2026-03-01T09:30:00Z"}`,
			want: Reading{
				DeviceID: 3, Humidity: 1, LightIntensity: 2, Temperature: 3,
				Timestamp: time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
			},
		},
		{
			name:    "null timestamp",
			payload: `{"deviceId":3,"humidity":1,"lightIntensity":2,"temperature":3,"timestamp":null}`,
			want:    Reading{DeviceID: 3, Humidity: 1, LightIntensity: 2, Temperature: 3},
		},
		{name: "missing temperature", payload: `{"deviceId":7,"humidity":41.5,"lightIntensity":300}`, wantErr: true},
		{name: "string humidity", payload: `{"deviceId":7,"humidity":"wet","lightIntensity":300,"temperature":20}`, wantErr: true},
		{name: "fractional device id", payload: `{"deviceId":7.5,"humidity":1,"lightIntensity":2,"temperature":3}`, wantErr: true},
		{name: "negative device id", payload: `{"deviceId":-1,"humidity":1,"lightIntensity":2,"temperature":3}`, wantErr: true},
		{name: "array", payload: `[1,2,3]`, wantErr: true},
		{name: "not json", payload: `hello`, wantErr: true},
		{name: "empty", payload: ``, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeReading([]byte(tt.payload))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidReading)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want.DeviceID, got.DeviceID)
			assert.Equal(t, tt.want.Humidity, got.Humidity)
			assert.Equal(t, tt.want.LightIntensity, got.LightIntensity)
			assert.Equal(t, tt.want.Temperature, got.Temperature)
			assert.True(t, tt.want.Timestamp.Equal(got.Timestamp), "timestamp %v, want %v", got.Timestamp, tt.want.Timestamp)
		})
	}
}

func TestParseReading_TimestampPrecedence(t *testing.T) {
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	t.Run("server time when absent", func(t *testing.T) {
		r, err := ParseReading([]byte(`{"deviceId":7,"humidity":1,"lightIntensity":2,"temperature":3}`), now)
		require.NoError(t, err)
		assert.True(t, r.Timestamp.Equal(now))
		assert.Equal(t, time.UTC, r.Timestamp.Location())
	})

	t.Run("client time wins", func(t *testing.T) {
		r, err := ParseReading([]byte(`{"deviceId":7,"humidity":1,"lightIntensity":2,"temperature":3,"timestamp":"2026-03-01T10:30:00+01:00"}`), now)
		require.NoError(t, err)
		assert.True(t, r.Timestamp.Equal(time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)))
		assert.Equal(t, time.UTC, r.Timestamp.Location())
	})
}
