package webrtcpeer

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/pion/webrtc/v4"

	"github.com/frame-bucket/viewer/internal/viewer"
)

func TestLoggerFactory_ScopesAndLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	l := newLoggerFactory(logger).NewLogger("ice")
	l.Tracef("binding %s", "request")
	l.Warn("pair failed")

	out := buf.String()
	if !strings.Contains(out, "pion_scope=ice") {
		t.Fatalf("missing scope attribute: %s", out)
	}
	if !strings.Contains(out, "binding request") {
		t.Fatalf("trace output not formatted: %s", out)
	}
	if !strings.Contains(out, "level=WARN") {
		t.Fatalf("warn level not preserved: %s", out)
	}
}

func TestMapPeerState(t *testing.T) {
	for _, tc := range []struct {
		in     webrtc.PeerConnectionState
		want   viewer.PeerState
		mapped bool
	}{
		{webrtc.PeerConnectionStateConnected, viewer.PeerStateConnected, true},
		{webrtc.PeerConnectionStateDisconnected, viewer.PeerStateDisconnected, true},
		{webrtc.PeerConnectionStateFailed, viewer.PeerStateFailed, true},
		{webrtc.PeerConnectionStateClosed, viewer.PeerStateClosed, true},
		{webrtc.PeerConnectionStateNew, "", false},
		{webrtc.PeerConnectionStateConnecting, "", false},
	} {
		got, ok := mapPeerState(tc.in)
		if ok != tc.mapped || got != tc.want {
			t.Errorf("mapPeerState(%v) = (%q, %v), want (%q, %v)", tc.in, got, ok, tc.want, tc.mapped)
		}
	}
}
