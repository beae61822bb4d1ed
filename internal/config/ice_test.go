package config

import (
	"strings"
	"testing"
)

func TestICEServers_FromJSON(t *testing.T) {
	raw := `[
		{"urls": "stun:stun.example.com:3478"},
		{"urls": ["turn:turn.example.com:3478", "turns:turn.example.com:5349"], "username": "u", "credential": "c"}
	]`

	servers, err := parseICEServersFromValues(raw, "", "", "", "")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(servers) != 2 {
		t.Fatalf("got %d servers, want 2", len(servers))
	}
	if servers[0].URLs[0] != "stun:stun.example.com:3478" {
		t.Errorf("servers[0].URLs = %v", servers[0].URLs)
	}
	if len(servers[1].URLs) != 2 || servers[1].Username != "u" {
		t.Errorf("servers[1] = %+v", servers[1])
	}
	if cred, ok := servers[1].Credential.(string); !ok || cred != "c" {
		t.Errorf("servers[1].Credential = %v", servers[1].Credential)
	}
}

func TestICEServers_FromJSONRejections(t *testing.T) {
	for _, tc := range []struct {
		name string
		raw  string
	}{
		{"not json", "stun:stun.example.com"},
		{"missing urls", `[{"username": "u"}]`},
		{"urls wrong type", `[{"urls": 42}]`},
		{"schemeless url", `[{"urls": "stun.example.com"}]`},
		{"bad scheme", `[{"urls": "http://example.com"}]`},
		{"turn without username", `[{"urls": "turn:turn.example.com", "credential": "c"}]`},
		{"turn without credential", `[{"urls": "turn:turn.example.com", "username": "u"}]`},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := parseICEServersFromValues(tc.raw, "", "", "", ""); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestICEServers_FromConvenienceValues(t *testing.T) {
	servers, err := parseICEServersFromValues("",
		"stun:a.example.com:3478, stun:b.example.com:3478",
		"turn:t.example.com:3478",
		"user", "secret",
	)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(servers) != 2 {
		t.Fatalf("got %d servers, want 2", len(servers))
	}
	if len(servers[0].URLs) != 2 {
		t.Errorf("stun URLs = %v", servers[0].URLs)
	}
	if servers[1].Username != "user" {
		t.Errorf("turn username = %q", servers[1].Username)
	}
}

func TestICEServers_TurnRequiresBothCredentials(t *testing.T) {
	for _, tc := range []struct {
		name               string
		username, password string
	}{
		{"missing credential", "user", ""},
		{"missing username", "", "secret"},
		{"blank credential", "user", "   "},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parseICEServersFromValues("", "", "turn:t.example.com", tc.username, tc.password)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), envTurnURLs) {
				t.Errorf("err = %v, want it to name %s", err, envTurnURLs)
			}
		})
	}
}

func TestLoad_ICEServersJSONWinsOverConvenienceEnv(t *testing.T) {
	env := minimalEnv()
	env[envICEServersJSON] = `[{"urls": "stun:json.example.com:3478"}]`
	env[envStunURLs] = "stun:env.example.com:3478"

	cfg, err := load(lookupFromMap(env), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.ICEServers) != 1 || cfg.ICEServers[0].URLs[0] != "stun:json.example.com:3478" {
		t.Errorf("ICEServers = %+v, want the JSON config to win", cfg.ICEServers)
	}
}

func TestLoad_ICEErrorNamesEnvVar(t *testing.T) {
	env := minimalEnv()
	env[envICEServersJSON] = "not-json"

	_, err := load(lookupFromMap(env), nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), envICEServersJSON) {
		t.Errorf("err = %v, want it to name %s", err, envICEServersJSON)
	}
}
