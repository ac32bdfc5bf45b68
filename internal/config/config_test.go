package config

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
)

func TestMarshalJSONUsesFlatPersistedKeys(t *testing.T) {
	cfg := &Config{
		UseStun:                  true,
		UseCompression:           false,
		UseUnorderedFileChannels: true,
		UseStriping:              true,
		Fast:                     true,
		LANHostOverrideEnabled:   true,
		LANHostOverride:          "192.168.1.10",
		TURNEnabled:              true,
		TURN: TURN{
			URL:        "turn:example.com:3478",
			User:       "alice",
			Credential: "secret",
			ForceRelay: true,
		},
	}

	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	for _, key := range []string{
		`"use_stun":true`, `"signal_compress":false`, `"file_unordered":true`,
		`"transfer_fast":true`, `"lan_ip_override":true`, `"lan_ip_value":"192.168.1.10"`,
		`"turn_enabled":true`, `"turn_url":"turn:example.com:3478"`,
		`"turn_username":"alice"`, `"turn_credential":"secret"`, `"turn_force_relay":true`,
	} {
		if !strings.Contains(string(data), key) {
			t.Errorf("marshaled JSON %s missing key %s", data, key)
		}
	}
	if strings.Contains(string(data), "UseStriping") || strings.Contains(string(data), "use_striping") {
		t.Errorf("UseStriping must not be persisted, got %s", data)
	}
}

func TestUnmarshalJSONRoundTrip(t *testing.T) {
	cfg := &Config{
		UseStun:                  true,
		UseCompression:           true,
		UseUnorderedFileChannels: false,
		Fast:                     false,
		LANHostOverrideEnabled:   true,
		LANHostOverride:          "10.0.0.5",
		TURNEnabled:              true,
		TURN: TURN{
			URL:        "turn:relay.example.com",
			User:       "bob",
			Credential: "pw",
			ForceRelay: false,
		},
	}

	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got Config
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	got.UseStriping = cfg.UseStriping // not persisted, excluded from comparison
	if got != *cfg {
		t.Fatalf("round trip mismatch:\n got  %+v\n want %+v", got, *cfg)
	}
}

func TestLoadMissingFileReturnsDefault(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.json"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	def := Default()
	if cfg.UseStun != def.UseStun || cfg.UseCompression != def.UseCompression || cfg.UseStriping != def.UseStriping {
		t.Fatalf("expected Default(), got %+v", cfg)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfg := Default()
	cfg.TURNEnabled = true
	cfg.TURN.URL = "turn:x"
	cfg.LANHostOverrideEnabled = true
	cfg.LANHostOverride = "172.16.0.2"

	if err := cfg.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.TURN.URL != "turn:x" || !loaded.TURNEnabled || loaded.LANHostOverride != "172.16.0.2" {
		t.Fatalf("save/load mismatch: %+v", loaded)
	}
}

func TestLANOverrideIP(t *testing.T) {
	cases := []struct {
		name    string
		cfg     *Config
		wantNil bool
	}{
		{"disabled", &Config{LANHostOverrideEnabled: false, LANHostOverride: "192.168.1.1"}, true},
		{"empty", &Config{LANHostOverrideEnabled: true, LANHostOverride: ""}, true},
		{"not-ip", &Config{LANHostOverrideEnabled: true, LANHostOverride: "not-an-ip"}, true},
		{"ipv6", &Config{LANHostOverrideEnabled: true, LANHostOverride: "::1"}, true},
		{"valid", &Config{LANHostOverrideEnabled: true, LANHostOverride: "10.1.2.3"}, false},
		{"nil-config", nil, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := c.cfg.LANOverrideIP()
			if (got == nil) != c.wantNil {
				t.Fatalf("LANOverrideIP() = %v, wantNil=%v", got, c.wantNil)
			}
		})
	}
}
