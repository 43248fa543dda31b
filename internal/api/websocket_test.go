package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"

	"github.com/nerrad567/device-server/internal/device"
	"github.com/nerrad567/device-server/internal/infrastructure/config"
)

func feedURL(ts *httptest.Server, query string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws" + query
}

// dialFeed connects to the live feed and waits for the ready frame, so
// the client is registered when it returns.
func dialFeed(t *testing.T, ts *httptest.Server, query string) (*websocket.Conn, Frame) {
	t.Helper()

	conn, resp, err := websocket.DefaultDialer.Dial(feedURL(ts, query), nil)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("dial %s: %v (status %d)", query, err, status)
	}
	t.Cleanup(func() { conn.Close() })

	ready := readFrame(t, conn)
	if ready.Type != FrameReady {
		t.Fatalf("first frame = %+v, want ready", ready)
	}
	return conn, ready
}

func readFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()

	//nolint:errcheck // test deadline
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("reading websocket frame: %v", err)
	}
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatalf("decoding %s: %v", data, err)
	}
	return f
}

func feedServer(t *testing.T, opts ...func(*Deps)) (*Server, *httptest.Server) {
	t.Helper()
	srv, _ := testServer(t, opts...)
	ts := httptest.NewServer(srv.buildRouter())
	t.Cleanup(ts.Close)
	return srv, ts
}

// =============================================================================
// Live Feed
// =============================================================================

func TestFeed_AllDevices(t *testing.T) {
	srv, ts := feedServer(t)
	conn, ready := dialFeed(t, ts, "")
	if len(ready.Devices) != 0 {
		t.Errorf("ready filter = %v, want all devices", ready.Devices)
	}

	reading := device.Reading{
		DeviceID:  7,
		Humidity:  40,
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	srv.Hub().PublishReading(reading)

	f := readFrame(t, conn)
	if f.Type != FrameReading || f.Reading == nil {
		t.Fatalf("frame = %+v, want reading", f)
	}
	if f.Reading.DeviceID != 7 || f.Reading.Humidity != 40 || !f.Reading.Timestamp.Equal(reading.Timestamp) {
		t.Errorf("reading = %+v", *f.Reading)
	}
}

func TestFeed_DeviceFilter(t *testing.T) {
	srv, ts := feedServer(t)
	conn, ready := dialFeed(t, ts, "?device=3&device=9")
	if len(ready.Devices) != 2 {
		t.Fatalf("ready filter = %v, want [3 9]", ready.Devices)
	}

	srv.Hub().PublishReading(device.Reading{DeviceID: 7})
	srv.Hub().PublishReading(device.Reading{DeviceID: 9, Temperature: 21})

	f := readFrame(t, conn)
	if f.Reading == nil || f.Reading.DeviceID != 9 {
		t.Fatalf("frame = %+v, want device 9 only", f)
	}

	// Narrow the filter over the socket.
	if err := conn.WriteJSON(Frame{Type: FrameFilter, Devices: []int{7}}); err != nil {
		t.Fatal(err)
	}
	if f := readFrame(t, conn); f.Type != FrameReady || len(f.Devices) != 1 || f.Devices[0] != 7 {
		t.Fatalf("filter reply = %+v", f)
	}

	srv.Hub().PublishReading(device.Reading{DeviceID: 9})
	srv.Hub().PublishReading(device.Reading{DeviceID: 7})
	if f := readFrame(t, conn); f.Reading == nil || f.Reading.DeviceID != 7 {
		t.Errorf("frame = %+v, want device 7 only", f)
	}
}

func TestFeed_InvalidFilter(t *testing.T) {
	_, ts := feedServer(t)

	_, resp, err := websocket.DefaultDialer.Dial(feedURL(ts, "?device=abc"), nil)
	if err == nil {
		t.Fatal("dial with invalid filter succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("dial with invalid filter: err %v, resp %+v", err, resp)
	}
}

func TestFeed_ControlFrames(t *testing.T) {
	tests := []struct {
		name     string
		frame    string
		wantType string
	}{
		{"ping", `{"type":"ping"}`, FramePong},
		{"unknown type", `{"type":"subscribe"}`, FrameError},
		{"negative device", `{"type":"filter","devices":[-1]}`, FrameError},
		{"malformed", `{"type":`, FrameError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ts := feedServer(t)
			conn, _ := dialFeed(t, ts, "")

			if err := conn.WriteMessage(websocket.TextMessage, []byte(tt.frame)); err != nil {
				t.Fatal(err)
			}
			if f := readFrame(t, conn); f.Type != tt.wantType {
				t.Errorf("reply = %+v, want type %q", f, tt.wantType)
			}
		})
	}
}

func TestFeed_AuthViaQueryToken(t *testing.T) {
	_, ts := feedServer(t, func(d *Deps) {
		d.Security = config.SecurityConfig{JWT: config.JWTConfig{Secret: testSecret}}
	})

	if _, resp, err := websocket.DefaultDialer.Dial(feedURL(ts, ""), nil); err == nil {
		t.Fatal("dial without token succeeded")
	} else if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("dial without token: err %v, resp %+v", err, resp)
	}

	token := signToken(t, testSecret, jwt.RegisteredClaims{
		Subject:   "dashboard",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	dialFeed(t, ts, "?access_token="+token)
}

func TestHub_ClientCount(t *testing.T) {
	srv, ts := feedServer(t)

	conn, _ := dialFeed(t, ts, "")
	if n := srv.Hub().ClientCount(); n != 1 {
		t.Errorf("ClientCount() = %d, want 1", n)
	}

	conn.Close()
	deadline := time.Now().Add(3 * time.Second)
	for srv.Hub().ClientCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if n := srv.Hub().ClientCount(); n != 0 {
		t.Errorf("ClientCount() after close = %d, want 0", n)
	}
}
