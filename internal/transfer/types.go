// Package transfer implements the File Transfer State Machine (spec
// §4.5): sender metadata/accept/chunked-send/final-ack, receiver
// meta/accept/reassembly/streaming-write/cancellation, and the
// outgoing queue that serializes multi-file sends. Grounded on
// BioHazard786/Warpdrop's cli/internal/webrtc/singlechannel sender and
// receiver (the metadata → ready-to-receive → chunk → done message
// flow, the buffered-amount backpressure wait, the chunked read/send
// loop), re-expressed against the spec's own wire vocabulary
// (file-meta/file-accept/file-done) and striped across multiple
// channels instead of Warpdrop's single channel.
package transfer

import (
	"io"
	"os"

	"github.com/zealer1995/share-file.online/internal/xferrors"
)

// Source is a random-access byte source with a known size, the
// sender-side counterpart described in spec §3 Outgoing Transfer.
type Source interface {
	Size() int64
	// Slice reads length bytes starting at offset. It may return fewer
	// bytes than length only at end of input.
	Slice(offset, length int64) ([]byte, error)
	Close() error
}

// FileSource is a Source backed by an *os.File (spec §1 Non-goals
// explicitly keep the "save to disk" sink external, but the CLI demo
// in cmd/sharefile needs a concrete sender-side Source too).
type FileSource struct {
	f    *os.File
	size int64
}

// NewFileSource opens path and stats its size.
func NewFileSource(path string) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, xferrors.Wrap(xferrors.SinkError, "open source file", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, xferrors.Wrap(xferrors.SinkError, "stat source file", err)
	}
	return &FileSource{f: f, size: info.Size()}, nil
}

func (s *FileSource) Size() int64 { return s.size }

func (s *FileSource) Slice(offset, length int64) ([]byte, error) {
	buf := make([]byte, length)
	n, err := s.f.ReadAt(buf, offset)
	if err != nil && err != io.EOF {
		return nil, xferrors.Wrap(xferrors.SinkError, "read source file", err)
	}
	return buf[:n], nil
}

func (s *FileSource) Close() error { return s.f.Close() }

// MemorySource is an in-memory Source, useful for tests and for small
// clipboard-style sends.
type MemorySource struct {
	Bytes []byte
}

func (s *MemorySource) Size() int64 { return int64(len(s.Bytes)) }

func (s *MemorySource) Slice(offset, length int64) ([]byte, error) {
	if offset >= int64(len(s.Bytes)) {
		return nil, nil
	}
	end := offset + length
	if end > int64(len(s.Bytes)) {
		end = int64(len(s.Bytes))
	}
	return s.Bytes[offset:end], nil
}

func (s *MemorySource) Close() error { return nil }

// Sink is the polymorphic streaming-write capability described in spec
// §9: "treat the sink as a polymorphic capability {write, close,
// abort}. When absent, fall back to an in-memory list of byte buffers
// assembled at completion."
type Sink interface {
	Write(p []byte) (int, error)
	Close() error
	Abort() error
}

// FileSink is a Sink backed by an *os.File, used by cmd/sharefile's
// receive side; the core never constructs one itself (spec §1
// Non-goals: "the final save-to-disk sink ... is external").
type FileSink struct {
	f    *os.File
	path string
}

// NewFileSink creates (or truncates) path for writing.
func NewFileSink(path string) (*FileSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, xferrors.Wrap(xferrors.SinkError, "create sink file", err)
	}
	return &FileSink{f: f, path: path}, nil
}

func (s *FileSink) Write(p []byte) (int, error) {
	n, err := s.f.Write(p)
	if err != nil {
		return n, xferrors.Wrap(xferrors.SinkError, "write sink file", err)
	}
	return n, nil
}

func (s *FileSink) Close() error {
	if err := s.f.Close(); err != nil {
		return xferrors.Wrap(xferrors.SinkError, "close sink file", err)
	}
	return nil
}

// Abort closes and removes the partially-written file.
func (s *FileSink) Abort() error {
	_ = s.f.Close()
	return os.Remove(s.path)
}

// FileMeta is the upper-layer-facing view of an incoming file-meta
// announcement (spec §4.5 receiver step 1).
type FileMeta struct {
	FileID      string
	StreamBase  string
	StreamCount int
	Name        string
	Size        int64
}
