package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/pion/webrtc/v4"
)

// ICE servers come from FB_ICE_SERVERS_JSON (the RTCConfiguration
// iceServers shape, for full control) or, when that is unset, the
// convenience vars below. Both sources are reduced to the same spec list
// and go through one normalization and validation pass.
const (
	envICEServersJSON = "FB_ICE_SERVERS_JSON"

	envStunURLs       = "FB_STUN_URLS"
	envTurnURLs       = "FB_TURN_URLS"
	envTurnUsername   = "FB_TURN_USERNAME"
	envTurnCredential = "FB_TURN_CREDENTIAL"
)

// iceServerSpec is one ICE server before normalization, tagged with the
// config source it came from so errors point at the right knob.
type iceServerSpec struct {
	source     string
	urls       []string
	username   string
	credential string
}

func parseICEServersFromValues(iceServersJSON, stunURLs, turnURLs, turnUsername, turnCredential string) ([]webrtc.ICEServer, error) {
	var (
		specs []iceServerSpec
		err   error
	)
	if raw := strings.TrimSpace(iceServersJSON); raw != "" {
		specs, err = decodeICEServersJSON(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", envICEServersJSON, err)
		}
	} else {
		if urls := splitCommaSeparated(stunURLs); len(urls) > 0 {
			specs = append(specs, iceServerSpec{source: envStunURLs, urls: urls})
		}
		if urls := splitCommaSeparated(turnURLs); len(urls) > 0 {
			specs = append(specs, iceServerSpec{
				source:     envTurnURLs,
				urls:       urls,
				username:   turnUsername,
				credential: turnCredential,
			})
		}
	}

	out := make([]webrtc.ICEServer, 0, len(specs))
	for _, spec := range specs {
		server, err := spec.toServer()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", spec.source, err)
		}
		out = append(out, server)
	}
	return out, nil
}

func decodeICEServersJSON(raw string) ([]iceServerSpec, error) {
	var entries []struct {
		URLs       json.RawMessage `json:"urls"`
		Username   string          `json:"username"`
		Credential string          `json:"credential"`
	}
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, err
	}

	specs := make([]iceServerSpec, 0, len(entries))
	for i, entry := range entries {
		spec := iceServerSpec{
			source:     fmt.Sprintf("iceServers[%d]", i),
			username:   entry.Username,
			credential: entry.Credential,
		}
		// urls may be a single string or an array, per RTCConfiguration.
		var single string
		if err := json.Unmarshal(entry.URLs, &single); err == nil {
			spec.urls = []string{single}
		} else if err := json.Unmarshal(entry.URLs, &spec.urls); err != nil {
			return nil, fmt.Errorf("%s: urls must be a string or string array", spec.source)
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// toServer normalizes and validates one spec. The viewer only dials out
// through stun(s)/turn(s) servers; turn urls additionally need a static
// credential pair since there is no credential-minting service on the
// client side.
func (s iceServerSpec) toServer() (webrtc.ICEServer, error) {
	urls := make([]string, 0, len(s.urls))
	needsCreds := false
	for _, raw := range s.urls {
		u := strings.TrimSpace(raw)
		if u == "" {
			continue
		}
		scheme, _, ok := strings.Cut(u, ":")
		if !ok {
			return webrtc.ICEServer{}, fmt.Errorf("url %q has no scheme", u)
		}
		switch scheme {
		case "stun", "stuns":
		case "turn", "turns":
			needsCreds = true
		default:
			return webrtc.ICEServer{}, fmt.Errorf("unsupported url scheme: %q", u)
		}
		urls = append(urls, u)
	}
	if len(urls) == 0 {
		return webrtc.ICEServer{}, errors.New("missing urls")
	}

	username := strings.TrimSpace(s.username)
	credential := strings.TrimSpace(s.credential)
	if needsCreds && (username == "" || credential == "") {
		return webrtc.ICEServer{}, errors.New("turn urls require both username and credential")
	}

	server := webrtc.ICEServer{
		URLs:     urls,
		Username: username,
	}
	if credential != "" {
		server.Credential = credential
	}
	return server, nil
}

func splitCommaSeparated(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
