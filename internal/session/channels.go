package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/zealer1995/share-file.online/internal/framing"
	"github.com/zealer1995/share-file.online/internal/xferrors"
)

// controlSignalKey is the reserved openSignals key for the control
// channel; it cannot collide with a file stream id because it is not
// a valid uuid-derived token.
const controlSignalKey = "\x00ctrl"

type openSignal struct {
	ch   chan struct{}
	once sync.Once
}

func newOpenSignal() *openSignal {
	return &openSignal{ch: make(chan struct{})}
}

func (o *openSignal) fire() {
	o.once.Do(func() { close(o.ch) })
}

// bindControlChannel wires a control data channel — whether locally
// created (CreateOffer) or remotely dispatched (OnDataChannel) — and
// sends the initial "hello" once it opens (spec §4.3, §5 "hello MUST
// precede any hb-*").
func (s *Session) bindControlChannel(dc *webrtc.DataChannel) {
	s.mu.Lock()
	s.control = dc
	s.mu.Unlock()

	dc.OnOpen(func() {
		s.mu.Lock()
		s.controlOpen = true
		sig := s.openSignals[controlSignalKey]
		s.mu.Unlock()
		if sig != nil {
			sig.fire()
		}

		s.markActivity()
		s.setStatus(StatusConnected)
		s.startHeartbeat()

		hello := ControlMessage{
			Type: MsgHello,
			V:    "1",
			Caps: &Capabilities{Striping: s.cfg.UseStriping},
		}
		s.reportError(s.SendControlMessage(hello))
	})

	dc.OnClose(func() {
		s.mu.Lock()
		s.controlOpen = false
		s.mu.Unlock()
	})

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		s.markActivity()
		s.handleControlMessage(msg)
	})
}

// bindFileChannel wires a file data channel identified by streamID
// (the id following "sharefile-file:" in its label).
func (s *Session) bindFileChannel(streamID string, dc *webrtc.DataChannel) {
	s.mu.Lock()
	s.fileChannels[streamID] = dc
	s.mu.Unlock()

	dc.OnOpen(func() {
		s.mu.Lock()
		sig := s.openSignals[streamID]
		s.mu.Unlock()
		if sig != nil {
			sig.fire()
		}
		s.markActivity()
	})

	dc.OnClose(func() {
		s.mu.Lock()
		delete(s.fileChannels, streamID)
		s.mu.Unlock()
	})

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		s.markActivity()
		frame, err := framing.Decode(msg.Data)
		if err != nil {
			s.reportError(err)
			return
		}
		if s.events.OnFileFrame != nil {
			s.events.OnFileFrame(streamID, frame.Seq, frame.Payload)
		}
	})
}

// streamIDFor computes the stream id for stripe index i of base (spec
// §6: stripe 0 is the bare base, stripe k>=1 is "base:k").
func streamIDFor(base string, i int) string {
	if i == 0 {
		return base
	}
	return fmt.Sprintf("%s:%d", base, i)
}

// EnsureFileChannels opens count file channels for base, reusing any
// already open/opening, and blocks until each has opened or timeout
// elapses (spec §4.3 ensureFileChannels).
func (s *Session) EnsureFileChannels(ctx context.Context, base string, count int, timeout time.Duration) ([]*webrtc.DataChannel, error) {
	s.mu.Lock()
	pc := s.pc
	s.mu.Unlock()
	if pc == nil {
		return nil, xferrors.New(xferrors.NotConnected, "no peer connection")
	}

	result := make([]*webrtc.DataChannel, 0, count)
	for i := 0; i < count; i++ {
		streamID := streamIDFor(base, i)

		s.mu.Lock()
		existing, ok := s.fileChannels[streamID]
		s.mu.Unlock()
		if ok && existing.ReadyState() == webrtc.DataChannelStateOpen {
			result = append(result, existing)
			continue
		}
		if ok && existing.ReadyState() == webrtc.DataChannelStateConnecting {
			if err := s.awaitChannelOpen(ctx, streamID, timeout); err != nil {
				return nil, err
			}
			result = append(result, existing)
			continue
		}

		ordered := !s.cfg.UseUnorderedFileChannels
		dc, err := pc.CreateDataChannel(fileChannelLabel(streamID), &webrtc.DataChannelInit{Ordered: &ordered})
		if err != nil {
			return nil, xferrors.Wrap(xferrors.NotConnected, "create file channel", err)
		}

		sig := newOpenSignal()
		s.mu.Lock()
		s.openSignals[streamID] = sig
		s.mu.Unlock()

		s.bindFileChannel(streamID, dc)

		if err := s.awaitChannelOpen(ctx, streamID, timeout); err != nil {
			return nil, err
		}
		result = append(result, dc)
	}
	return result, nil
}

func (s *Session) awaitChannelOpen(ctx context.Context, streamID string, timeout time.Duration) error {
	s.mu.Lock()
	sig := s.openSignals[streamID]
	s.mu.Unlock()
	if sig == nil {
		return nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-sig.ch:
		return nil
	case <-timer.C:
		return xferrors.New(xferrors.Timeout, "file channel open timeout: "+streamID)
	case <-s.cancel.Done():
		return xferrors.WrapCancelReason("ensure file channels", s.cancel.Reason())
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CloseFileChannelsByPrefix closes every file channel whose id is
// exactly base or begins with "base:" (spec §4.3).
func (s *Session) CloseFileChannelsByPrefix(base string) {
	s.mu.Lock()
	var toClose []*webrtc.DataChannel
	for id, dc := range s.fileChannels {
		if id == base || strings.HasPrefix(id, base+":") {
			toClose = append(toClose, dc)
			delete(s.fileChannels, id)
		}
	}
	s.mu.Unlock()

	for _, dc := range toClose {
		_ = dc.Close()
	}
}

// FileChannel returns the channel currently bound to streamID, if any.
func (s *Session) FileChannel(streamID string) (*webrtc.DataChannel, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dc, ok := s.fileChannels[streamID]
	return dc, ok
}
