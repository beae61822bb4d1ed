package signaling

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParse_SessionStarted(t *testing.T) {
	got, err := Parse([]byte(`{"type":"sessionStarted","sessionId":"S1"}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.Type != MessageTypeSessionStarted || got.SessionID != "S1" {
		t.Fatalf("unexpected decoded grant: %#v", got)
	}
}

func TestParse_SessionStartedRequiresSessionID(t *testing.T) {
	if _, err := Parse([]byte(`{"type":"sessionStarted"}`)); err == nil {
		t.Fatal("expected error")
	}
}

func TestParse_PeerSDP(t *testing.T) {
	raw := []byte(`{"type":"peer","sessionId":"S1","sdp":{"type":"offer","sdp":"v=0"}}`)
	got, err := Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.SDP == nil || got.SDP.Type != "offer" || got.SDP.SDP != "v=0" {
		t.Fatalf("unexpected decoded sdp payload: %#v", got)
	}
}

func TestParse_PeerICE(t *testing.T) {
	raw := []byte(`{
		"type":"peer",
		"sessionId":"S1",
		"ice":{
			"candidate":"candidate:1 1 udp 1 127.0.0.1 9 typ host",
			"sdpMLineIndex":0,
			"sdpMid":"0"
		}
	}`)
	got, err := Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.ICE == nil || got.ICE.Candidate == "" || got.ICE.SDPMid != "0" {
		t.Fatalf("unexpected decoded ice payload: %#v", got)
	}
}

func TestParse_PeerRejectsBadPayloads(t *testing.T) {
	cases := map[string]string{
		"no payload":    `{"type":"peer","sessionId":"S1"}`,
		"both payloads": `{"type":"peer","sessionId":"S1","sdp":{"type":"offer","sdp":"v=0"},"ice":{"candidate":"c","sdpMLineIndex":0,"sdpMid":"0"}}`,
		"no session":    `{"type":"peer","sdp":{"type":"offer","sdp":"v=0"}}`,
		"bad sdp type":  `{"type":"peer","sessionId":"S1","sdp":{"type":"pranswer","sdp":"v=0"}}`,
		"empty sdp":     `{"type":"peer","sessionId":"S1","sdp":{"type":"offer","sdp":""}}`,
	}
	for name, raw := range cases {
		if _, err := Parse([]byte(raw)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestParse_UnknownTypeIsSentinel(t *testing.T) {
	_, err := Parse([]byte(`{"type":"peerStatusChanged"}`))
	if !errors.Is(err, ErrUnknownMessageType) {
		t.Fatalf("err=%v, want ErrUnknownMessageType", err)
	}
}

func TestParse_ToleratesUnknownFields(t *testing.T) {
	raw := []byte(`{"type":"welcome","peerId":"p1","serverVersion":"1.2"}`)
	got, err := Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.PeerID != "p1" {
		t.Fatalf("peerId=%q, want %q", got.PeerID, "p1")
	}
}

func TestSetPeerStatus_WireShape(t *testing.T) {
	b, err := json.Marshal(SetPeerStatus("viewer-1"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["type"] != "setPeerStatus" {
		t.Fatalf("type=%v", decoded["type"])
	}
	roles, ok := decoded["roles"].([]any)
	if !ok || len(roles) != 1 || roles[0] != RoleListener {
		t.Fatalf("roles=%v", decoded["roles"])
	}
	meta, ok := decoded["meta"].(map[string]any)
	if !ok || meta["name"] != "viewer-1" {
		t.Fatalf("meta=%v", decoded["meta"])
	}
}

func TestStartSession_WireShape(t *testing.T) {
	b, err := json.Marshal(StartSession("producer-7"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["type"] != "startSession" || decoded["peerId"] != "producer-7" {
		t.Fatalf("unexpected wire shape: %v", decoded)
	}
	if _, present := decoded["sessionId"]; present {
		t.Fatalf("sessionId must be omitted: %v", decoded)
	}
}

func TestPeerICE_RoundTripsThroughPion(t *testing.T) {
	in := ICECandidate{
		Candidate:     "candidate:1 1 udp 1 127.0.0.1 9 typ host",
		SDPMLineIndex: 1,
		SDPMid:        "video0",
	}

	got := ICECandidateFromPion(in.ToPion())
	if got != in {
		t.Fatalf("round trip mismatch: %#v != %#v", got, in)
	}
}
