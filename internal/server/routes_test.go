package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/BioHazard786/Warpcall/internal/protocol"
	"github.com/BioHazard786/Warpcall/internal/relay"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHealth(t *testing.T) {
	h := NewRouter(Options{Logger: quietLogger()})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d, want %d", rr.Code, http.StatusOK)
	}
	if !strings.Contains(rr.Body.String(), "healthy") {
		t.Fatalf("body=%q", rr.Body.String())
	}
}

func TestUnknownRoute(t *testing.T) {
	h := NewRouter(Options{Logger: quietLogger()})

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status=%d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestStatsOverWebsocket(t *testing.T) {
	logger := quietLogger()
	registry := relay.NewRegistry(logger)
	srv := httptest.NewServer(NewRouter(Options{Registry: registry, Logger: logger}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()

	if err := ws.WriteJSON(protocol.Message{Type: protocol.MessageTypeJoinRoom, RoomID: "abc123"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg protocol.Message
	if err := ws.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Type != protocol.MessageTypeJoined {
		t.Fatalf("type=%q, want %q", msg.Type, protocol.MessageTypeJoined)
	}

	resp, err := http.Get(srv.URL + "/stats")
	if err != nil {
		t.Fatalf("get stats: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content-type=%q", ct)
	}
	var stats relay.Stats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats != (relay.Stats{Rooms: 1, Participants: 1}) {
		t.Fatalf("stats=%+v", stats)
	}
}

func TestWsRequiresUpgrade(t *testing.T) {
	h := NewRouter(Options{Logger: quietLogger()})

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status=%d, want %d", rr.Code, http.StatusBadRequest)
	}
}
