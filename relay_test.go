/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Seednode/duelbox/rooms"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

func newTestServer(t *testing.T, cfg *Config) (*httptest.Server, *rooms.Registry) {
	t.Helper()

	if cfg == nil {
		cfg = &Config{port: 8080}
	}

	reg := rooms.NewRegistry()
	errs := make(chan error, 64)

	mux, _ := newRouter(cfg, zerolog.Nop(), reg, errs)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return srv, reg
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Failed to dial %s: %v", url, err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	return conn
}

func sendJSON(t *testing.T, conn *websocket.Conn, msg any) {
	t.Helper()

	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("Failed to write: %v", err)
	}
}

func expectEvent(t *testing.T, conn *websocket.Conn, name string) rooms.Event {
	t.Helper()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var ev rooms.Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("Expected %s, read failed: %v", name, err)
	}
	if ev.Event != name {
		t.Fatalf("Expected %s, got %+v", name, ev)
	}

	return ev
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRelay_Scenario(t *testing.T) {
	srv, reg := newTestServer(t, nil)

	x := dial(t, srv)
	sendJSON(t, x, rooms.ClientMessage{Event: rooms.EventCreateRoom})
	code := expectEvent(t, x, rooms.EventRoomCreated).Code
	if len(code) != 5 {
		t.Fatalf("Expected a 5 character code, got %q", code)
	}
	if ev := expectEvent(t, x, rooms.EventUpdateRoom); ev.Count != 1 {
		t.Errorf("Expected count 1, got %d", ev.Count)
	}

	y := dial(t, srv)
	sendJSON(t, y, rooms.ClientMessage{Event: rooms.EventJoinRoom, Code: code})
	if ev := expectEvent(t, y, rooms.EventRoomJoined); ev.Code != code {
		t.Errorf("Expected roomJoined(%s), got %s", code, ev.Code)
	}
	for _, conn := range []*websocket.Conn{x, y} {
		if ev := expectEvent(t, conn, rooms.EventUpdateRoom); ev.Count != 2 {
			t.Errorf("Expected count 2, got %d", ev.Count)
		}
		expectEvent(t, conn, rooms.EventStartGame)
	}

	z := dial(t, srv)
	sendJSON(t, z, rooms.ClientMessage{Event: rooms.EventJoinRoom, Code: code})
	if ev := expectEvent(t, z, rooms.EventRoomError); ev.Message != rooms.UserMessage(rooms.ErrRoomFull) {
		t.Errorf("Unexpected error message %q", ev.Message)
	}
	if got := reg.Count(code); got != 2 {
		t.Errorf("Expected 2 occupants after rejected join, got %d", got)
	}

	m := rooms.Movement{X: 10, Y: 20, Angle: 0.5, Attack: true}
	sendJSON(t, x, rooms.ClientMessage{Event: rooms.EventPlayerMovement, Data: &m})
	if ev := expectEvent(t, y, rooms.EventPlayerMovement); ev.Data == nil || *ev.Data != m {
		t.Errorf("Expected %+v, got %+v", m, ev.Data)
	}

	_ = y.Close()
	if ev := expectEvent(t, x, rooms.EventUpdateRoom); ev.Count != 1 {
		t.Errorf("Expected count 1 after peer left, got %d", ev.Count)
	}

	_ = x.Close()
	waitFor(t, "room deletion", func() bool { return !reg.Exists(code) })

	w := dial(t, srv)
	sendJSON(t, w, rooms.ClientMessage{Event: rooms.EventJoinRoom, Code: code})
	if ev := expectEvent(t, w, rooms.EventRoomError); ev.Message != rooms.UserMessage(rooms.ErrRoomNotFound) {
		t.Errorf("Unexpected error message %q", ev.Message)
	}
}

func TestRelay_MalformedMessage(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	conn := dial(t, srv)
	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("Failed to write: %v", err)
	}

	sendJSON(t, conn, rooms.ClientMessage{Event: rooms.EventCreateRoom})
	expectEvent(t, conn, rooms.EventRoomCreated)
}

func TestRelay_MalformedMovement(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	x := dial(t, srv)
	sendJSON(t, x, rooms.ClientMessage{Event: rooms.EventCreateRoom})
	code := expectEvent(t, x, rooms.EventRoomCreated).Code
	expectEvent(t, x, rooms.EventUpdateRoom)

	y := dial(t, srv)
	sendJSON(t, y, rooms.ClientMessage{Event: rooms.EventJoinRoom, Code: code})
	expectEvent(t, y, rooms.EventRoomJoined)
	expectEvent(t, y, rooms.EventUpdateRoom)
	expectEvent(t, y, rooms.EventStartGame)

	for _, payload := range []string{
		`{"event":"playerMovement","data":{"foo":1}}`,
		`{"event":"playerMovement","data":{"x":5,"y":6}}`,
		`{"event":"playerMovement","data":{"x":5,"y":6,"angle":1,"attack":true,"hp":3}}`,
	} {
		if err := x.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
			t.Fatalf("Failed to write: %v", err)
		}
	}

	m := rooms.Movement{X: 7, Y: 8, Angle: 0.25, Attack: false}
	sendJSON(t, x, rooms.ClientMessage{Event: rooms.EventPlayerMovement, Data: &m})

	if ev := expectEvent(t, y, rooms.EventPlayerMovement); ev.Data == nil || *ev.Data != m {
		t.Errorf("Expected only the complete movement %+v, got %+v", m, ev.Data)
	}
}

func TestRelay_LeaveRoom(t *testing.T) {
	srv, reg := newTestServer(t, nil)

	conn := dial(t, srv)
	sendJSON(t, conn, rooms.ClientMessage{Event: rooms.EventCreateRoom})
	code := expectEvent(t, conn, rooms.EventRoomCreated).Code

	sendJSON(t, conn, rooms.ClientMessage{Event: rooms.EventLeaveRoom, Code: code})
	waitFor(t, "room deletion", func() bool { return !reg.Exists(code) })
}

func TestRelay_ConnectionRateLimit(t *testing.T) {
	srv, _ := newTestServer(t, &Config{port: 8080, connectionRate: 1})

	dial(t, srv)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("Expected second connection to be rate limited")
	}
	if resp == nil || resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("Expected 429, got %v", resp)
	}
}

func TestRelay_ConnectionRateLimitProxyHeaders(t *testing.T) {
	tests := []struct {
		name       string
		trustProxy bool
		wantStatus int
	}{
		{"untrusted", false, http.StatusTooManyRequests},
		{"trusted", true, http.StatusSwitchingProtocols},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestServer(t, &Config{port: 8080, connectionRate: 1, trustProxy: tt.trustProxy})

			url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

			for i, ip := range []string{"203.0.113.1", "203.0.113.2"} {
				header := http.Header{"X-Real-Ip": {ip}, "Cf-Connecting-Ip": {ip}}

				conn, resp, err := websocket.DefaultDialer.Dial(url, header)
				if conn != nil {
					t.Cleanup(func() { _ = conn.Close() })
				}

				want := http.StatusSwitchingProtocols
				if i == 1 {
					want = tt.wantStatus
				}
				if resp == nil || resp.StatusCode != want {
					t.Fatalf("Dial %d from %s: expected %d, got %v (%v)", i, ip, want, resp, err)
				}
			}
		})
	}
}

func TestServeQR(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/room/zzzzz/qr")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown room, got %d", resp.StatusCode)
	}

	conn := dial(t, srv)
	sendJSON(t, conn, rooms.ClientMessage{Event: rooms.EventCreateRoom})
	code := expectEvent(t, conn, rooms.EventRoomCreated).Code

	resp, err = http.Get(srv.URL + "/room/" + code + "/qr")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("Expected image/png, got %s", ct)
	}
	body, _ := io.ReadAll(resp.Body)
	if !bytes.HasPrefix(body, []byte("\x89PNG")) {
		t.Error("Body is not a PNG")
	}
}

func TestServeStats(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	conn := dial(t, srv)
	sendJSON(t, conn, rooms.ClientMessage{Event: rooms.EventCreateRoom})
	expectEvent(t, conn, rooms.EventRoomCreated)

	resp, err := http.Get(srv.URL + "/stats")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	var got statsResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if got.Rooms != 1 || got.Participants != 1 || got.Waiting != 1 || got.Connections != 1 {
		t.Errorf("Unexpected stats %+v", got)
	}
}
