package cmd

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/BioHazard786/Warpcall/internal/call"
	"github.com/BioHazard786/Warpcall/internal/config"
	"github.com/BioHazard786/Warpcall/internal/media"
	"github.com/BioHazard786/Warpcall/internal/negotiator"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()
	return addr
}

func TestServeStopsOnCancel(t *testing.T) {
	addr := freeAddr(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- serve(ctx, &config.Config{Listen: addr}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	}()

	var resp *http.Response
	var err error
	for i := 0; i < 50; i++ {
		resp, err = http.Get("http://" + addr + "/health")
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("serve did not stop")
	}
}

func TestServeBadListenAddress(t *testing.T) {
	err := serve(context.Background(), &config.Config{Listen: "256.0.0.1:http"}, slog.Default())
	if err == nil {
		t.Fatalf("expected listen error")
	}
}

func TestCapturerFor(t *testing.T) {
	if c := capturerFor(&config.Config{}); c != nil {
		t.Fatalf("capturer without files = %#v", c)
	}
	c := capturerFor(&config.Config{VideoPath: "cam.ivf", Loop: true})
	fc, ok := c.(media.FileCapturer)
	if !ok || fc.VideoPath != "cam.ivf" || !fc.Loop {
		t.Fatalf("capturer = %#v", c)
	}
}

func TestCommandsRegistered(t *testing.T) {
	for _, name := range []string{"serve", "create", "join", "version"} {
		if c, _, err := rootCmd.Find([]string{name}); err != nil || c.Name() != name {
			t.Fatalf("command %s not registered: %v", name, err)
		}
	}
	if f := joinCmd.Flags().Lookup("turn-user"); f == nil {
		t.Fatalf("join is missing --turn-user")
	}
}

// captureStdout returns what fn printed.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	orig := os.Stdout
	os.Stdout = w
	defer func() { os.Stdout = orig }()

	fn()
	_ = w.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read stdout: %v", err)
	}
	return string(out)
}

func TestPrintEvent(t *testing.T) {
	tests := []struct {
		ev   call.Event
		want string
	}{
		{call.Event{Kind: call.EventStateChanged, Status: negotiator.Status{
			State: negotiator.StateConnected, Role: negotiator.RoleResponder, Transport: webrtc.PeerConnectionStateConnected,
		}}, "Connected as responder"},
		{call.Event{Kind: call.EventStateChanged, Status: negotiator.Status{State: negotiator.StateIdle}}, "Waiting for peer"},
		{call.Event{Kind: call.EventPeerLeft, Err: call.ErrPeerLeft}, "Peer left room abc123"},
		{call.Event{Kind: call.EventError, Err: call.NewError("relay", context.Canceled)}, "relay: context canceled"},
	}
	for _, tt := range tests {
		out := captureStdout(t, func() { printEvent("abc123", tt.ev) })
		if !strings.Contains(out, tt.want) {
			t.Fatalf("printEvent(%v) = %q, want %q", tt.ev.Kind, out, tt.want)
		}
	}
}
