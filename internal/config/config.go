// Package config holds the Configuration & Capability Surface (spec
// §3 Configuration, §4.7... / §6 Persisted state, §9 "Global mutable
// configuration" redesign). A Config is immutable once constructed and
// is threaded explicitly into every constructor that needs it — no
// package-level globals, unlike the teacher's original `var upgrader`/
// `var coturnSecret` style.
package config

import (
	"encoding/json"
	"net"
	"os"
)

// TURN holds optional TURN relay configuration.
type TURN struct {
	URL        string
	User       string
	Credential string
	ForceRelay bool
}

// Config is the immutable-per-session record of runtime options (spec
// §3 Configuration). Its JSON shape is custom-marshaled (see
// MarshalJSON/UnmarshalJSON below) to the flat key set spec §6
// "Persisted state" names exactly: use_stun, signal_compress,
// file_unordered, transfer_fast, lan_ip_override, lan_ip_value,
// turn_enabled, turn_url, turn_username, turn_credential,
// turn_force_relay.
type Config struct {
	UseStun                  bool
	UseCompression           bool
	UseUnorderedFileChannels bool
	UseStriping              bool // derived capability advertisement, not itself persisted
	Fast                     bool
	LANHostOverride          string
	LANHostOverrideEnabled   bool

	TURNEnabled bool
	TURN        TURN
}

// wireConfig is the flat on-disk JSON shape (spec §6 "Persisted
// state"). UseStriping is intentionally absent: it is not one of the
// named persisted keys.
type wireConfig struct {
	UseStun        bool   `json:"use_stun"`
	UseCompression bool   `json:"signal_compress"`
	FileUnordered  bool   `json:"file_unordered"`
	Fast           bool   `json:"transfer_fast"`
	LANOverride    bool   `json:"lan_ip_override"`
	LANOverrideIP  string `json:"lan_ip_value,omitempty"`
	TURNEnabled    bool   `json:"turn_enabled"`
	TURNURL        string `json:"turn_url,omitempty"`
	TURNUsername   string `json:"turn_username,omitempty"`
	TURNCredential string `json:"turn_credential,omitempty"`
	TURNForceRelay bool   `json:"turn_force_relay"`
}

// MarshalJSON flattens Config to the spec's persisted key set.
func (c *Config) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireConfig{
		UseStun:        c.UseStun,
		UseCompression: c.UseCompression,
		FileUnordered:  c.UseUnorderedFileChannels,
		Fast:           c.Fast,
		LANOverride:    c.LANHostOverrideEnabled,
		LANOverrideIP:  c.LANHostOverride,
		TURNEnabled:    c.TURNEnabled,
		TURNURL:        c.TURN.URL,
		TURNUsername:   c.TURN.User,
		TURNCredential: c.TURN.Credential,
		TURNForceRelay: c.TURN.ForceRelay,
	})
}

// UnmarshalJSON reads the spec's flat persisted key set back into Config.
func (c *Config) UnmarshalJSON(data []byte) error {
	var w wireConfig
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	c.UseStun = w.UseStun
	c.UseCompression = w.UseCompression
	c.UseUnorderedFileChannels = w.FileUnordered
	c.Fast = w.Fast
	c.LANHostOverrideEnabled = w.LANOverride
	c.LANHostOverride = w.LANOverrideIP
	c.TURNEnabled = w.TURNEnabled
	c.TURN = TURN{
		URL:        w.TURNURL,
		User:       w.TURNUsername,
		Credential: w.TURNCredential,
		ForceRelay: w.TURNForceRelay,
	}
	return nil
}

// Default returns the engine's default Configuration: STUN on,
// compression on, ordered file channels, striping on, no LAN override,
// no TURN.
func Default() *Config {
	return &Config{
		UseStun:                  true,
		UseCompression:           true,
		UseUnorderedFileChannels: false,
		UseStriping:              true,
		Fast:                     false,
	}
}

// LANOverrideIP returns the configured LAN override as a valid IPv4
// address, or nil if absent/invalid (spec §4.1 rewriteHostCandidates
// "No-op if override is absent or not a valid IPv4").
func (c *Config) LANOverrideIP() net.IP {
	if c == nil || !c.LANHostOverrideEnabled || c.LANHostOverride == "" {
		return nil
	}
	ip := net.ParseIP(c.LANHostOverride)
	if ip == nil {
		return nil
	}
	ip4 := ip.To4()
	if ip4 == nil {
		return nil
	}
	return ip4
}

// Load reads a Config from a JSON file at path, falling back to
// Default() if the file does not exist.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save persists cfg as JSON to path (spec §6 "Persisted state").
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
