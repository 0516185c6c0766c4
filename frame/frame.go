// Package frame implements the length-delimited framing that sits directly
// on top of the reliable-datagram stream socket.
//
// Wire format per message: an 8-byte little-endian size N, then exactly N
// bytes of payload (a serialized transport envelope). There is no magic
// number, version byte, or type tag in the header: the envelope itself
// already says what kind of message it is, and the stream protocol
// underneath guarantees byte-for-byte integrity, so nothing beyond the size
// is needed to reject garbage.
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// HeaderSize is the fixed 8-byte little-endian size prefix.
const HeaderSize = 8

// DefaultMaxFrameBytes is the suggested frame ceiling.
const DefaultMaxFrameBytes = 64 << 20 // 64 MiB

// heartbeatMarker is a reserved header value that never collides with a
// real frame size (which Decode requires to be in [1, MaxFrameBytes]): it
// is the all-ones 64-bit pattern, far outside any frame this codec will
// ever produce. A heartbeat frame carries no body.
const heartbeatMarker = ^uint64(0)

// ErrMalformedFrame is returned when a frame's declared size is invalid:
// non-positive, or larger than the configured maximum.
var ErrMalformedFrame = errors.New("frame: malformed frame")

// Codec reads and writes length-prefixed frames with a configurable size
// ceiling. The zero value uses DefaultMaxFrameBytes.
type Codec struct {
	MaxFrameBytes int64
}

func (c Codec) maxFrameBytes() int64 {
	if c.MaxFrameBytes <= 0 {
		return DefaultMaxFrameBytes
	}
	return c.MaxFrameBytes
}

// Encode writes one frame (8-byte size, then body) to w.
func (c Codec) Encode(w io.Writer, body []byte) error {
	var header [HeaderSize]byte
	binary.LittleEndian.PutUint64(header[:], uint64(len(body)))

	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("frame: write header: %w", err)
	}
	if len(body) == 0 {
		return nil
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("frame: write body: %w", err)
	}
	return nil
}

// Decode reads one complete frame from r, validating the declared size
// against [1, MaxFrameBytes]. It uses io.ReadFull so a short read never
// silently returns a truncated body.
func (c Codec) Decode(r io.Reader) ([]byte, error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	size := int64(binary.LittleEndian.Uint64(header[:]))
	if size <= 0 || size > c.maxFrameBytes() {
		return nil, fmt.Errorf("%w: size=%d", ErrMalformedFrame, size)
	}

	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("frame: read body: %w", err)
	}
	return body, nil
}

// EncodeHeartbeat writes a bodiless liveness-probe frame: a reserved
// header value distinguishable from any real frame size, with nothing
// following it on the wire.
func (c Codec) EncodeHeartbeat(w io.Writer) error {
	var header [HeaderSize]byte
	binary.LittleEndian.PutUint64(header[:], heartbeatMarker)
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("frame: write heartbeat: %w", err)
	}
	return nil
}

// DecodeFrame reads one frame from r, which may be either a real payload
// or a heartbeat probe. ok is false and body is nil for a heartbeat frame
// (the caller should treat it as a no-op and keep reading); ok is true and
// body holds the payload otherwise. A declared size outside [1,
// MaxFrameBytes] that isn't the heartbeat marker is ErrMalformedFrame.
func (c Codec) DecodeFrame(r io.Reader) (body []byte, ok bool, err error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, false, err
	}

	raw := binary.LittleEndian.Uint64(header[:])
	if raw == heartbeatMarker {
		return nil, false, nil
	}

	size := int64(raw)
	if size <= 0 || size > c.maxFrameBytes() {
		return nil, false, fmt.Errorf("%w: size=%d", ErrMalformedFrame, size)
	}

	body = make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, false, fmt.Errorf("frame: read body: %w", err)
	}
	return body, true, nil
}

// PutSize encodes N as an 8-byte little-endian size prefix.
func PutSize(n int) []byte {
	var buf [HeaderSize]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(n))
	return buf[:]
}
