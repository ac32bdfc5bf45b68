// Package sigcodec implements the Signal Codec (spec §4.1): encoding
// and decoding of the opaque session-description blob exchanged during
// handshake, and host-candidate rewriting for LAN testing.
//
// Wire grammar (spec §6):
//
//	signal := prefix body
//	prefix := "SHR0:" | "SHR1:" | "SHR2:" | "SHR3:"
//	            raw/b64    gz/b64    gz/b32   raw/b32
//	body   := base-alphabet-encoded bytes of JSON {t,s,c}
//
// The encoder only ever emits SHR2 (compressed, base32) or SHR3 (raw,
// base32) — see DESIGN.md's Open Question decision on base64url
// emission — but decode() accepts all four prefixes.
package sigcodec

import (
	"bytes"
	"encoding/base32"
	"encoding/base64"
	"encoding/json"
	"io"
	"net"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/zealer1995/share-file.online/internal/config"
	"github.com/zealer1995/share-file.online/internal/xferrors"
)

// Prefix identifies the compression/alphabet combination used for the
// body of a signal string.
type Prefix string

const (
	PrefixRawB64 Prefix = "SHR0:"
	PrefixGzB64  Prefix = "SHR1:"
	PrefixGzB32  Prefix = "SHR2:"
	PrefixRawB32 Prefix = "SHR3:"
)

// base32Enc is RFC 4648 base32 (uppercase A-Z, 2-7) without padding.
var base32Enc = base32.StdEncoding.WithPadding(base32.NoPadding)

// SDPType is the WebRTC session description type this signal carries.
type SDPType string

const (
	TypeOffer  SDPType = "offer"
	TypeAnswer SDPType = "answer"
)

// Desc is the description payload the caller wants encoded: a session
// description type and the raw SDP text.
type Desc struct {
	Type        SDPType
	Description string
}

// wireCfg mirrors the JSON "c" object: a minimal negotiated-options
// triple carried alongside the description, independent of the full
// Config record (spec §3 Signal Envelope).
type wireCfg struct {
	Stun          int `json:"stun"`
	FileUnordered int `json:"fileUnordered"`
	Fast          int `json:"fast"`
}

type wireEnvelope struct {
	T SDPType `json:"t"`
	S string  `json:"s"`
	C wireCfg `json:"c"`
}

// Envelope is the decoded form returned by Decode.
type Envelope struct {
	Type          SDPType
	Description   string
	Stun          bool
	FileUnordered bool
	Fast          bool
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Encode builds a signal string for desc under cfg. It emits SHR2
// (gzip+base32) when compression is enabled, SHR3 (raw+base32)
// otherwise.
func Encode(desc Desc, cfg *config.Config) (string, error) {
	env := wireEnvelope{
		T: desc.Type,
		S: desc.Description,
		C: wireCfg{
			Stun:          boolToInt(cfg.UseStun),
			FileUnordered: boolToInt(cfg.UseUnorderedFileChannels),
			Fast:          boolToInt(cfg.Fast),
		},
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return "", xferrors.Wrap(xferrors.InvalidFormat, "marshal signal envelope", err)
	}

	if cfg.UseCompression {
		gz, err := gzipBytes(raw)
		if err == nil {
			return string(PrefixGzB32) + base32Enc.EncodeToString(gz), nil
		}
		// Compression unavailable for some reason: fall through to raw.
	}
	return string(PrefixRawB32) + base32Enc.EncodeToString(raw), nil
}

// Decode parses a signal string produced by Encode (or by any client
// implementing the same grammar) into an Envelope. All four prefixes
// are accepted regardless of what this package's Encode emits.
func Decode(signal string) (Envelope, error) {
	prefix, body, ok := splitPrefix(signal)
	if !ok {
		return Envelope{}, xferrors.New(xferrors.InvalidFormat, "unrecognized signal prefix")
	}

	var raw []byte
	var err error
	switch prefix {
	case PrefixRawB64:
		raw, err = decodeB64(body)
	case PrefixGzB64:
		raw, err = decodeB64(body)
		if err == nil {
			raw, err = gunzipBytes(raw)
		}
	case PrefixGzB32:
		raw, err = decodeB32(body)
		if err == nil {
			raw, err = gunzipBytes(raw)
		}
	case PrefixRawB32:
		raw, err = decodeB32(body)
	}
	if err != nil {
		return Envelope{}, err
	}

	var env wireEnvelope
	if jsonErr := json.Unmarshal(raw, &env); jsonErr != nil {
		return Envelope{}, xferrors.Wrap(xferrors.InvalidFormat, "unmarshal signal envelope", jsonErr)
	}
	if env.T != TypeOffer && env.T != TypeAnswer {
		return Envelope{}, xferrors.New(xferrors.InvalidFormat, "signal type must be offer or answer")
	}

	return Envelope{
		Type:          env.T,
		Description:   env.S,
		Stun:          env.C.Stun != 0,
		FileUnordered: env.C.FileUnordered != 0,
		Fast:          env.C.Fast != 0,
	}, nil
}

func splitPrefix(signal string) (Prefix, string, bool) {
	for _, p := range []Prefix{PrefixRawB64, PrefixGzB64, PrefixGzB32, PrefixRawB32} {
		if strings.HasPrefix(signal, string(p)) {
			return p, signal[len(p):], true
		}
	}
	return "", "", false
}

func decodeB64(body string) ([]byte, error) {
	b, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(body))
	if err != nil {
		// Some producers pad base64url; tolerate that too.
		b, err = base64.URLEncoding.DecodeString(strings.TrimSpace(body))
	}
	if err != nil {
		return nil, xferrors.Wrap(xferrors.InvalidFormat, "base64url decode", err)
	}
	return b, nil
}

func decodeB32(body string) ([]byte, error) {
	clean := stripWhitespace(strings.ToUpper(body))
	b, err := base32Enc.DecodeString(clean)
	if err != nil {
		return nil, xferrors.Wrap(xferrors.InvalidFormat, "base32 decode", err)
	}
	return b, nil
}

func stripWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case ' ', '\t', '\n', '\r':
			continue
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func gzipBytes(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(raw); err != nil {
		_ = w.Close()
		return nil, xferrors.Wrap(xferrors.DecompressionUnavailable, "gzip write", err)
	}
	if err := w.Close(); err != nil {
		return nil, xferrors.Wrap(xferrors.DecompressionUnavailable, "gzip close", err)
	}
	return buf.Bytes(), nil
}

func gunzipBytes(compressed []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, xferrors.Wrap(xferrors.InvalidFormat, "gzip reader init", err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, xferrors.Wrap(xferrors.InvalidFormat, "gzip read", err)
	}
	return out, nil
}

// RewriteHostCandidates scans SDP candidate lines (spec §4.1) and
// replaces the address of any ".local" mDNS host candidate with ipv4.
// A no-op if ipv4 is empty or not a valid dotted-quad IPv4 address.
func RewriteHostCandidates(description string, ipv4 string) string {
	if ipv4 == "" || !isValidIPv4(ipv4) {
		return description
	}

	lines := strings.Split(description, "\r\n")
	usesCRLF := true
	if len(lines) == 1 {
		lines = strings.Split(description, "\n")
		usesCRLF = false
	}

	for i, line := range lines {
		if !strings.HasPrefix(line, "a=candidate:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 8 {
			continue
		}
		// a=candidate:<foundation> <component> <proto> <priority> <addr> <port> typ <type> ...
		addr := fields[4]
		candType := fields[7]
		if candType != "host" || !strings.HasSuffix(addr, ".local") {
			continue
		}
		fields[4] = ipv4
		lines[i] = strings.Join(fields, " ")
	}

	sep := "\n"
	if usesCRLF {
		sep = "\r\n"
	}
	return strings.Join(lines, sep)
}

func isValidIPv4(s string) bool {
	ip := net.ParseIP(s)
	if ip == nil {
		return false
	}
	return ip.To4() != nil && strings.Count(s, ".") == 3
}
