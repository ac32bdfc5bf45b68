package session

import (
	"encoding/json"
	"time"

	"github.com/pion/webrtc/v4"
)

// handleControlMessage parses one inbound control-channel message and
// dispatches it (spec §6 "Control-channel message schemas"). Plain
// strings that fail JSON parsing are delivered as a synthetic text
// message (spec §6 "Plain strings ... fail JSON parsing ... delivered
// upstream as {type:"text", text: <raw>}").
func (s *Session) handleControlMessage(msg webrtc.DataChannelMessage) {
	raw := msg.Data

	var cm ControlMessage
	if err := json.Unmarshal(raw, &cm); err != nil {
		s.deliverControl(ControlMessage{Type: MsgText, Text: string(raw)})
		return
	}

	switch cm.Type {
	case MsgHello:
		s.mu.Lock()
		s.remoteCaps = cm.Caps
		s.mu.Unlock()
		s.capsOnce.Do(func() { close(s.capsReceived) })
	case MsgHeartbeatPing:
		s.reportError(s.SendControlMessage(ControlMessage{Type: MsgHeartbeatPong, T: cm.T}))
	case MsgHeartbeatPong:
		// lastActivity already refreshed by the caller; nothing else to do.
	}

	s.deliverControl(cm)
}

func (s *Session) deliverControl(cm ControlMessage) {
	s.mu.Lock()
	handler := s.events.OnControl
	s.mu.Unlock()
	if handler != nil {
		handler(cm)
	}
}

// SetControlHandler (re)binds OnControl after construction. Callers
// that need a handler which itself closes over the Session (an Engine
// dispatching to a Sender/Receiver built from this same Session) would
// otherwise face a construction-order cycle; this setter breaks it.
// Safe to call before the control channel opens; must not race with
// inbound control traffic once it does.
func (s *Session) SetControlHandler(fn func(ControlMessage)) {
	s.mu.Lock()
	s.events.OnControl = fn
	s.mu.Unlock()
}

// startHeartbeat launches the ping loop and the inactivity watchdog
// once the control channel opens (spec §4.3 Heartbeat, §4.7 Heartbeat
// & Timeout Machine). Safe to call multiple times; only the first call
// (per session lifetime) starts the goroutines.
func (s *Session) startHeartbeat() {
	s.hbOnce.Do(func() {
		go s.heartbeatLoop()
		go s.watchdogLoop()
	})
}

func (s *Session) heartbeatLoop() {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.reportError(s.SendControlMessage(ControlMessage{Type: MsgHeartbeatPing, T: time.Now().UnixMilli()}))
		case <-s.hbStop:
			return
		case <-s.cancel.Done():
			return
		}
	}
}

// watchdogLoop transitions status to peer-timeout after
// heartbeatTimeout without inbound activity (spec §4.7). markActivity
// flips the status back to connected as soon as the next inbound
// frame arrives.
func (s *Session) watchdogLoop() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			last := time.Unix(0, s.lastActivity.Load())
			if s.lastActivity.Load() != 0 && time.Since(last) > heartbeatTimeout {
				if s.Status() == StatusConnected {
					s.setStatus(StatusPeerTimeout)
				}
			}
		case <-s.hbStop:
			return
		case <-s.cancel.Done():
			return
		}
	}
}
