// Package framing implements the binary frame layout and the
// backpressure/pacing model used on file channels (spec §4.4, §5).
package framing

import (
	"encoding/binary"

	"github.com/zealer1995/share-file.online/internal/xferrors"
)

// HeaderSize is the size in bytes of a Frame header: 4-byte seq + 4-byte len.
const HeaderSize = 8

// Frame is the on-wire unit on a file channel (spec §3 Frame).
type Frame struct {
	Seq     uint32
	Payload []byte
}

// Encode writes header ‖ payload into a single buffer ready to send.
func Encode(f Frame) []byte {
	buf := make([]byte, HeaderSize+len(f.Payload))
	binary.BigEndian.PutUint32(buf[0:4], f.Seq)
	binary.BigEndian.PutUint32(buf[4:8], uint32(len(f.Payload)))
	copy(buf[8:], f.Payload)
	return buf
}

// Decode parses a received message into a Frame. If the declared
// length exceeds the bytes actually present, the payload is clamped to
// the trailing length (spec §3 Frame invariant).
func Decode(data []byte) (Frame, error) {
	if len(data) < HeaderSize {
		return Frame{}, xferrors.New(xferrors.ProtocolViolation, "frame shorter than header")
	}
	seq := binary.BigEndian.Uint32(data[0:4])
	length := binary.BigEndian.Uint32(data[4:8])
	trailing := data[8:]
	if int(length) > len(trailing) {
		length = uint32(len(trailing))
	}
	return Frame{Seq: seq, Payload: trailing[:length]}, nil
}
