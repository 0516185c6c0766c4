// Package codec provides the serialization layer for the transport
// envelope (message.TransportMessage), treated as opaque bytes by the
// transport and frame packages.
//
// It defines a pluggable Codec interface with two implementations:
//   - JSONCodec:   human-readable, easy to debug, slower
//   - BinaryCodec: compact binary tagged-union format, faster
package codec

// CodecType identifies the serialization format. It is not carried in
// the frame header — a channel manager and the peers it talks to simply
// agree on one codec ahead of time.
type CodecType byte

const (
	CodecTypeJSON   CodecType = 0
	CodecTypeBinary CodecType = 1
)

// Codec is the interface for serialization/deserialization of a
// *message.TransportMessage. Implementing this interface allows adding new
// formats without changing the frame or transport layers.
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
	Type() CodecType
}

// GetCodec is a factory function that returns the appropriate codec by type.
func GetCodec(codecType CodecType) Codec {
	if codecType == CodecTypeJSON {
		return &JSONCodec{}
	}
	return &BinaryCodec{}
}
