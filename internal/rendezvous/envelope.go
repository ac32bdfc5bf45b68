// Package rendezvous implements the Rendezvous Client (spec §4.2): a
// thin adapter to a pub/sub broadcast bus, plus (in the sibling
// server.go) the reference broadcast-bus server the client talks to.
// Grounded on n0remac-robot-webrtc's websocket/websocket.go Hub
// (room-keyed broadcast, Register/Unregister channels, ReadPump/
// WritePump) and its gorilla/websocket dialer usage in webrtc/client.go.
package rendezvous

import "encoding/json"

// Envelope is the wire shape of every bus payload (spec §6 "Rendezvous
// envelope"). The bus itself never parses DataStr; it is opaque to
// everything except the handshake orchestrator.
type Envelope struct {
	SenderID string `json:"senderId"`
	DataStr  string `json:"dataStr"`
}

// BusMessage is the shape carried inside Envelope.DataStr (spec §6
// "Application-level bus messages").
type BusMessage struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
}

func marshalEnvelope(senderID, dataStr string) ([]byte, error) {
	return json.Marshal(Envelope{SenderID: senderID, DataStr: dataStr})
}
