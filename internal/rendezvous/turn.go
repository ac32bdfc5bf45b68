package rendezvous

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"time"
)

// TURNCredentials is the short-lived username/password pair minted for
// a coturn-style TURN server using its static-auth-secret scheme
// (spec §3 Configuration turn.{url,user,credential}; the username and
// credential here are what a client plugs into that record before
// calling Peer Session construction).
type TURNCredentials struct {
	Username string
	Password string
}

// MintTURNCredentials derives time-limited TURN credentials from a
// shared secret, following the coturn static-auth-secret REST API
// convention: username is "<expiryUnix>:<user>", password is the
// base64 HMAC-SHA1 of username keyed by secret. Grounded on
// n0remac-robot-webrtc's main.go generateTurnCredentials.
func MintTURNCredentials(secret, user string, ttl time.Duration) TURNCredentials {
	expires := time.Now().Add(ttl).Unix()
	username := fmt.Sprintf("%d:%s", expires, user)

	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write([]byte(username))
	password := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return TURNCredentials{Username: username, Password: password}
}
