// Command rendezvousd is the reference rendezvous bus (spec §1 "the
// rendezvous bus ... specified only at its send/receive interface"):
// a room-keyed websocket broadcast relay, plus the TURN credential
// minting endpoint supplemented from the teacher's coturn integration
// (spec §6 SUPPLEMENTED FEATURES). It does not speak WebRTC itself.
package main

import (
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/zealer1995/share-file.online/internal/rendezvous"
)

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	turnSecret := flag.String("turn-secret", os.Getenv("TURN_PASS"), "coturn static-auth-secret")
	turnTTL := flag.Duration("turn-ttl", time.Hour, "TURN credential lifetime")
	flag.Parse()

	hub := rendezvous.NewHub()
	go hub.Run()

	mux := http.NewServeMux()
	mux.Handle("/ws/rendezvous", hub)
	mux.HandleFunc("/turn-credentials", handleTURNCredentials(*turnSecret, *turnTTL))

	log.Printf("[rendezvousd] listening on %s", *addr)
	log.Fatal(http.ListenAndServe(*addr, mux))
}

func handleTURNCredentials(secret string, ttl time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := r.URL.Query().Get("user")
		if user == "" {
			user = "anonymous"
		}

		creds := rendezvous.MintTURNCredentials(secret, user, ttl)

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]string{
			"username": creds.Username,
			"password": creds.Password,
		}); err != nil {
			log.Printf("[rendezvousd] turn-credentials encode error: %v", err)
		}
	}
}
