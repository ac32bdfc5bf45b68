// Package session implements the Peer Session (spec §4.3, §4.7): the
// negotiated WebRTC transport, its control/file data channels, the
// heartbeat and liveness model, and the status machine surfaced to
// callers. Grounded on n0remac-robot-webrtc's webrtc/sfu.go and
// webrtc/client.go (PeerConnection construction, ICE server/candidate
// wiring) and on Warpdrop's singlechannel/multichannel sender+receiver
// (CreateDataChannel, buffered-amount backpressure, offer/answer
// exchange) — see DESIGN.md.
package session

import "time"

// Status mirrors the values surfaced to callers in spec §4.3.
type Status string

const (
	StatusNew          Status = "new"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusPeerTimeout  Status = "peer-timeout"
	StatusDisconnected Status = "disconnected"
	StatusFailed       Status = "failed"
	StatusClosed       Status = "closed"
)

// ControlMessage is the JSON control-channel schema (spec §6).
type ControlMessage struct {
	Type string `json:"type"`

	// hello
	V    string       `json:"v,omitempty"`
	Caps *Capabilities `json:"caps,omitempty"`

	// hb-ping / hb-pong
	T int64 `json:"t,omitempty"`

	// text
	Text string `json:"text,omitempty"`

	// file-meta / file-accept / file-accept-ack / file-done / file-cancel
	ID     string `json:"id,omitempty"`
	Sid    string `json:"sid,omitempty"`
	Sc     int    `json:"sc,omitempty"`
	Name   string `json:"name,omitempty"`
	Size   int64  `json:"size,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Control message type discriminators (spec §6).
const (
	MsgHello         = "hello"
	MsgHeartbeatPing = "hb-ping"
	MsgHeartbeatPong = "hb-pong"
	MsgText          = "text"
	MsgFileMeta      = "file-meta"
	MsgFileAccept    = "file-accept"
	MsgFileAcceptAck = "file-accept-ack"
	MsgFileDone      = "file-done"
	MsgFileCancel    = "file-cancel"
)

// Capabilities is the remote-advertised capability set exchanged via
// "hello" (spec §6).
type Capabilities struct {
	Striping bool `json:"striping"`
}

// heartbeatInterval is how often hb-ping is emitted once the control
// channel opens (spec §4.3).
const heartbeatInterval = 1200 * time.Millisecond

// heartbeatTimeout is the inactivity window after which the status
// transitions to peer-timeout (spec §4.3, §4.7).
const heartbeatTimeout = 30 * time.Second

// Events is the narrow capability-set interface a caller registers to
// observe a Session (spec §9: callback soup becomes a narrow event
// interface per component). Any field left nil is simply not invoked.
type Events struct {
	OnStatusChange func(Status)
	OnControl      func(ControlMessage)
	OnFileFrame    func(streamID string, seq uint32, payload []byte)
	OnError        func(error)
}
