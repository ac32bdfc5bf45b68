package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"

	"github.com/zealer1995/share-file.online/internal/cancelctx"
	"github.com/zealer1995/share-file.online/internal/config"
	"github.com/zealer1995/share-file.online/internal/xferrors"
)

const (
	controlLabel    = "sharefile-ctrl"
	fileLabelPrefix = "sharefile-file:"

	stunURL = "stun:stun.l.google.com:19302"
)

// Session is the Peer Session (spec §4.3): one negotiated
// PeerConnection, its control channel, and a dynamic set of file
// channels. Grounded on n0remac-robot-webrtc's createPeerConnection
// (webrtc/client.go) for ICE server wiring and connection-state
// callbacks, generalized from media tracks to data channels.
type Session struct {
	cfg    *config.Config
	events Events
	cancel *cancelctx.Token

	mu           sync.Mutex
	pc           *webrtc.PeerConnection
	control      *webrtc.DataChannel
	controlOpen  bool
	fileChannels map[string]*webrtc.DataChannel
	openSignals  map[string]*openSignal

	outgoingStreamBase string
	isOfferer          bool

	remoteCaps   *Capabilities
	capsReceived chan struct{}
	capsOnce     sync.Once

	status       atomic.Value // Status
	lastActivity atomic.Int64 // unix nano

	closeOnce sync.Once
	hbOnce    sync.Once
	hbStop    chan struct{}
}

// New constructs a Session bound to cfg. No PeerConnection exists yet;
// one is built by CreateOffer or CreateAnswer.
func New(parent context.Context, cfg *config.Config, events Events) *Session {
	s := &Session{
		cfg:          cfg,
		events:       events,
		cancel:       cancelctx.New(parent),
		fileChannels: make(map[string]*webrtc.DataChannel),
		openSignals:  make(map[string]*openSignal),
		capsReceived: make(chan struct{}),
		hbStop:       make(chan struct{}),
	}
	s.outgoingStreamBase = uuid.NewString()
	s.status.Store(StatusNew)
	return s
}

// Cancel returns the cancellation token threaded through every
// blocking operation on this session (spec §4.8).
func (s *Session) Cancel() *cancelctx.Token { return s.cancel }

// Status returns the current status value (spec §4.3).
func (s *Session) Status() Status {
	v, _ := s.status.Load().(Status)
	if v == "" {
		return StatusNew
	}
	return v
}

func (s *Session) setStatus(st Status) {
	prev, _ := s.status.Load().(Status)
	if prev == st {
		return
	}
	s.status.Store(st)
	if s.events.OnStatusChange != nil {
		s.events.OnStatusChange(st)
	}
}

func (s *Session) markActivity() {
	s.lastActivity.Store(time.Now().UnixNano())
	if s.Status() == StatusPeerTimeout {
		s.setStatus(StatusConnected)
	}
}

func (s *Session) reportError(err error) {
	if err == nil {
		return
	}
	if s.events.OnError != nil {
		s.events.OnError(err)
	}
}

// iceServers builds the ICEServer list from cfg: STUN if enabled, TURN
// if configured (spec §4.3).
func (s *Session) iceServers() []webrtc.ICEServer {
	var servers []webrtc.ICEServer
	if s.cfg.UseStun {
		servers = append(servers, webrtc.ICEServer{URLs: []string{stunURL}})
	}
	if s.cfg.TURNEnabled && s.cfg.TURN.URL != "" {
		servers = append(servers, webrtc.ICEServer{
			URLs:       []string{s.cfg.TURN.URL},
			Username:   s.cfg.TURN.User,
			Credential: s.cfg.TURN.Credential,
		})
	}
	return servers
}

// newPeerConnection builds a fresh pc with the configured ICE servers
// and wires connection-state/data-channel callbacks (spec §4.3
// createOffer/createAnswer: "builds a fresh pc with configured ICE
// servers ... mirrors construction of pc").
func (s *Session) newPeerConnection() (*webrtc.PeerConnection, error) {
	webrtcCfg := webrtc.Configuration{ICEServers: s.iceServers()}
	if s.cfg.TURNEnabled && s.cfg.TURN.ForceRelay {
		webrtcCfg.ICETransportPolicy = webrtc.ICETransportPolicyRelay
	}

	pc, err := webrtc.NewPeerConnection(webrtcCfg)
	if err != nil {
		return nil, xferrors.Wrap(xferrors.NotConnected, "new peer connection", err)
	}

	pc.OnICEConnectionStateChange(func(st webrtc.ICEConnectionState) {
		switch st {
		case webrtc.ICEConnectionStateFailed:
			s.setStatus(StatusFailed)
		case webrtc.ICEConnectionStateDisconnected:
			s.setStatus(StatusDisconnected)
		case webrtc.ICEConnectionStateClosed:
			s.setStatus(StatusClosed)
		}
	})
	pc.OnConnectionStateChange(func(st webrtc.PeerConnectionState) {
		switch st {
		case webrtc.PeerConnectionStateConnecting:
			s.setStatus(StatusConnecting)
		case webrtc.PeerConnectionStateFailed:
			s.setStatus(StatusFailed)
		case webrtc.PeerConnectionStateClosed:
			s.setStatus(StatusClosed)
		}
	})
	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		s.routeInboundChannel(dc)
	})

	return pc, nil
}

// routeInboundChannel dispatches a remotely-opened channel by label
// (spec §4.3 "Channel routing").
func (s *Session) routeInboundChannel(dc *webrtc.DataChannel) {
	label := dc.Label()

	switch {
	case label == controlLabel:
		s.bindControlChannel(dc)
	case strings.HasPrefix(label, fileLabelPrefix):
		streamID := strings.TrimPrefix(label, fileLabelPrefix)
		s.bindFileChannel(streamID, dc)
	default:
		s.mu.Lock()
		hasControl := s.control != nil
		s.mu.Unlock()
		if !hasControl {
			s.bindControlChannel(dc)
		}
	}
}

// gatherTimeout is the ICE gathering deadline: 15 s with STUN
// configured, 7 s without (spec §4.3).
func (s *Session) gatherTimeout() time.Duration {
	if s.cfg.UseStun {
		return 15 * time.Second
	}
	return 7 * time.Second
}

// sendControlRaw writes raw text to the control channel if open.
func (s *Session) sendControlRaw(text string) error {
	s.mu.Lock()
	dc := s.control
	open := s.controlOpen
	s.mu.Unlock()

	if dc == nil || !open {
		return xferrors.New(xferrors.NotConnected, "control channel not open")
	}
	if err := dc.SendText(text); err != nil {
		return xferrors.Wrap(xferrors.ChannelClosed, "control send", err)
	}
	return nil
}

// SendControlMessage marshals and sends a ControlMessage on the
// control channel.
func (s *Session) SendControlMessage(msg ControlMessage) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return xferrors.Wrap(xferrors.ProtocolViolation, "marshal control message", err)
	}
	return s.sendControlRaw(string(raw))
}

// Send sends a plain text message on the control channel (spec §4.3
// send(text)).
func (s *Session) Send(text string) error {
	return s.SendControlMessage(ControlMessage{Type: MsgText, Text: text})
}

// IsOfferer reports whether this session created the offer (as
// opposed to answering one).
func (s *Session) IsOfferer() bool { return s.isOfferer }

// OutgoingStreamBase returns this session's per-session opaque stream
// base token, used as the file-channel label base for sends this
// session initiates (spec §6 "<base> is an opaque per-session token
// the sender picks").
func (s *Session) OutgoingStreamBase() string { return s.outgoingStreamBase }

// Close tears down the PeerConnection and every channel it owns (spec
// §3 "A session owns its channels; closing the session closes all.").
// Idempotent.
func (s *Session) Close() error {
	var closeErr error
	s.closeOnce.Do(func() {
		close(s.hbStop)
		s.cancel.Abort(xferrors.ErrChannelClosed)

		s.mu.Lock()
		pc := s.pc
		channels := make([]*webrtc.DataChannel, 0, len(s.fileChannels)+1)
		if s.control != nil {
			channels = append(channels, s.control)
		}
		for _, dc := range s.fileChannels {
			channels = append(channels, dc)
		}
		s.mu.Unlock()

		for _, dc := range channels {
			_ = dc.Close()
		}
		if pc != nil {
			closeErr = pc.Close()
		}
		s.setStatus(StatusClosed)
	})
	return closeErr
}

func fileChannelLabel(streamID string) string {
	return fmt.Sprintf("%s%s", fileLabelPrefix, streamID)
}
