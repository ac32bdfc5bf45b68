package session

import (
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/zealer1995/share-file.online/internal/sigcodec"
	"github.com/zealer1995/share-file.online/internal/xferrors"
)

// CreateOffer builds a fresh PeerConnection, creates the control
// channel, waits for ICE gathering, and returns an encoded offer
// signal (spec §4.3 createOffer).
func (s *Session) CreateOffer() (string, error) {
	pc, err := s.newPeerConnection()
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.pc = pc
	s.mu.Unlock()
	s.isOfferer = true

	ctrlSig := newOpenSignal()
	s.mu.Lock()
	s.openSignals[controlSignalKey] = ctrlSig
	s.mu.Unlock()

	ordered := true
	dc, err := pc.CreateDataChannel(controlLabel, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		return "", xferrors.Wrap(xferrors.NotConnected, "create control channel", err)
	}
	s.bindControlChannel(dc)

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return "", xferrors.Wrap(xferrors.NotConnected, "create offer", err)
	}

	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		return "", xferrors.Wrap(xferrors.NotConnected, "set local description", err)
	}
	s.awaitGathering(gatherComplete)

	s.setStatus(StatusConnecting)
	return s.encodeLocalDescription(sigcodec.TypeOffer)
}

// CreateAnswer decodes offerSignal, applies it as the remote
// description, mirrors construction of pc, creates and sets the local
// answer, waits for ICE, and returns the encoded answer (spec §4.3
// createAnswer).
func (s *Session) CreateAnswer(offerSignal string) (string, error) {
	env, err := sigcodec.Decode(offerSignal)
	if err != nil {
		return "", err
	}
	if env.Type != sigcodec.TypeOffer {
		return "", xferrors.New(xferrors.ProtocolViolation, "expected offer signal")
	}

	pc, err := s.newPeerConnection()
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.pc = pc
	s.mu.Unlock()
	s.isOfferer = false

	remote := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: env.Description}
	if err := pc.SetRemoteDescription(remote); err != nil {
		return "", xferrors.Wrap(xferrors.ProtocolViolation, "set remote description", err)
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return "", xferrors.Wrap(xferrors.NotConnected, "create answer", err)
	}

	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		return "", xferrors.Wrap(xferrors.NotConnected, "set local description", err)
	}
	s.awaitGathering(gatherComplete)

	s.setStatus(StatusConnecting)
	return s.encodeLocalDescription(sigcodec.TypeAnswer)
}

// ApplyAnswer applies a remote answer signal to the in-progress
// offerer session (spec §4.3 applyAnswer).
func (s *Session) ApplyAnswer(answerSignal string) error {
	env, err := sigcodec.Decode(answerSignal)
	if err != nil {
		return err
	}
	if env.Type != sigcodec.TypeAnswer {
		return xferrors.New(xferrors.ProtocolViolation, "expected answer signal")
	}

	s.mu.Lock()
	pc := s.pc
	s.mu.Unlock()
	if pc == nil {
		return xferrors.New(xferrors.NotConnected, "no peer connection to apply answer to")
	}

	remote := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: env.Description}
	if err := pc.SetRemoteDescription(remote); err != nil {
		return xferrors.Wrap(xferrors.ProtocolViolation, "set remote description", err)
	}
	return nil
}

func (s *Session) awaitGathering(gatherComplete <-chan struct{}) {
	select {
	case <-gatherComplete:
	case <-time.After(s.gatherTimeout()):
	case <-s.cancel.Done():
	}
}

func (s *Session) encodeLocalDescription(t sigcodec.SDPType) (string, error) {
	s.mu.Lock()
	pc := s.pc
	s.mu.Unlock()

	local := pc.LocalDescription()
	if local == nil {
		return "", xferrors.New(xferrors.NotConnected, "no local description after gathering")
	}

	description := local.SDP
	if ip := s.cfg.LANOverrideIP(); ip != nil {
		description = sigcodec.RewriteHostCandidates(description, ip.String())
	}

	return sigcodec.Encode(sigcodec.Desc{Type: t, Description: description}, s.cfg)
}
