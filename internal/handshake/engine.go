// Package handshake implements the Handshake Orchestrator (spec §4.6):
// it glues the Signal Codec, the Rendezvous Client, and the Peer
// Session together so that two browsers meeting on a short code
// converge on a connected Session and fall through to the file
// transfer surface. Grounded on n0remac-robot-webrtc's webrtc/client.go
// (the CLI's dial-signaling-server-then-drive-PeerConnection flow) and
// on Warpdrop's Start()/listenForSignals() offer/answer dance.
package handshake

import (
	"github.com/zealer1995/share-file.online/internal/session"
	"github.com/zealer1995/share-file.online/internal/transfer"
)

// Engine dispatches inbound control-channel messages to the sender and
// receiver state machines once a Session is connected, and forwards
// plain text to the caller (spec §9: "callback soup becomes a narrow
// event interface"; this is the "explicit per-channel in-order queue
// with a single consumer" for the control channel's message stream —
// the consumer being this single Dispatch method, called serially from
// the Session's own DataChannel.OnMessage callback).
type Engine struct {
	Sender   *transfer.Sender
	Receiver *transfer.Receiver
	OnText   func(text string)
}

// NewEngine builds an Engine wiring sender and receiver; either may be
// nil if this peer only plays one role (a pure-sender CLI invocation
// never needs a Receiver and vice versa).
func NewEngine(sender *transfer.Sender, receiver *transfer.Receiver, onText func(string)) *Engine {
	return &Engine{Sender: sender, Receiver: receiver, OnText: onText}
}

// Dispatch routes one parsed control message (spec §6 "Control-channel
// message schemas"). hello/hb-ping/hb-pong are already fully handled
// inside internal/session before OnControl fires, so they reach here
// only as already-processed events with nothing left for this layer to
// do.
func (e *Engine) Dispatch(cm session.ControlMessage) {
	switch cm.Type {
	case session.MsgText:
		if e.OnText != nil {
			e.OnText(cm.Text)
		}
	case session.MsgFileMeta:
		if e.Receiver != nil {
			e.Receiver.HandleFileMeta(cm)
		}
	case session.MsgFileAccept:
		if e.Sender != nil {
			e.Sender.HandleControl(cm)
		}
	case session.MsgFileAcceptAck:
		if e.Receiver != nil {
			e.Receiver.HandleAcceptAck(cm)
		}
	case session.MsgFileDone:
		if e.Sender != nil {
			e.Sender.HandleControl(cm)
		}
	case session.MsgFileCancel:
		// The id only ever matches whichever side actually owns that
		// fileID; the other HandleControl/HandleFileCancel call is a
		// harmless no-op for a fileID it doesn't recognize.
		if e.Sender != nil {
			e.Sender.HandleControl(cm)
		}
		if e.Receiver != nil {
			e.Receiver.HandleFileCancel(cm)
		}
	}
}
