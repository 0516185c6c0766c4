package codec

import (
	"encoding/binary"
	"errors"

	"p2prpc/message"
)

// BinaryCodec implements a custom binary serialization for the
// TransportMessage tagged union.
//
// Binary format:
//
//	┌──────┬ ── one of ── ┐
//	│ tag  │  rpc frame   │  tag=1: RpcMsg follows
//	│ (1)  │  or hp frame │  tag=2: HpMsg follows
//	└──────┴──────────────┘
//
// RPC frame:
//
//	┌──────────┬──────┬─────────────┬─────────┬──────────────┬─────────┬────────────┬───────┐
//	│MessageID │ Type │ ServiceLen  │ Service │ MethodLen(2) │ Method  │ ArgsLen(4) │ Args  │ ... ErrLen(2) Error
//	│  (4)     │ (1)  │   (2)       │         │              │         │            │       │
//	└──────────┴──────┴─────────────┴─────────┴──────────────┴─────────┴────────────┴───────┘
//
// HP frame:
//
//	┌────────┬─────┬──────┐
//	│IPLen(2)│ IP  │ Port │ Type
//	│        │     │ (2)  │ (1)
//	└────────┴─────┴──────┘
//
// Note: the payload itself (Args) is still whatever the caller serialized
// it as (typically JSON). The gain here comes from encoding the outer
// envelope fields in binary instead of JSON.
type BinaryCodec struct{}

const (
	tagRPC byte = 1
	tagHP  byte = 2
)

func (c *BinaryCodec) Encode(v any) ([]byte, error) {
	msg, ok := v.(*message.TransportMessage)
	if !ok {
		return nil, errors.New("BinaryCodec: v must be *message.TransportMessage")
	}

	switch {
	case msg.RpcMsg != nil:
		return encodeRPC(msg.RpcMsg)
	case msg.HpMsg != nil:
		return encodeHP(msg.HpMsg)
	default:
		return nil, errors.New("BinaryCodec: empty TransportMessage")
	}
}

func encodeRPC(m *message.RPCMessage) ([]byte, error) {
	total := 1 + 4 + 1 + 2 + len(m.Service) + 2 + len(m.Method) + 4 + len(m.Args) + 2 + len(m.Error)
	buf := make([]byte, total)
	off := 0

	buf[off] = tagRPC
	off++
	binary.BigEndian.PutUint32(buf[off:off+4], m.MessageID)
	off += 4
	buf[off] = byte(m.Type)
	off++

	off = putString(buf, off, m.Service)
	off = putString(buf, off, m.Method)

	binary.BigEndian.PutUint32(buf[off:off+4], uint32(len(m.Args)))
	off += 4
	copy(buf[off:off+len(m.Args)], m.Args)
	off += len(m.Args)

	putString(buf, off, m.Error)
	return buf, nil
}

func encodeHP(m *message.HolePunchingMsg) ([]byte, error) {
	total := 1 + 2 + len(m.IP) + 2 + 1
	buf := make([]byte, total)
	off := 0

	buf[off] = tagHP
	off++
	off = putString(buf, off, m.IP)
	binary.BigEndian.PutUint16(buf[off:off+2], m.Port)
	off += 2
	buf[off] = byte(m.Type)
	return buf, nil
}

func putString(buf []byte, off int, s string) int {
	binary.BigEndian.PutUint16(buf[off:off+2], uint16(len(s)))
	off += 2
	copy(buf[off:off+len(s)], s)
	return off + len(s)
}

func getString(data []byte, off int) (string, int, error) {
	if off+2 > len(data) {
		return "", 0, errors.New("BinaryCodec: truncated string length")
	}
	n := int(binary.BigEndian.Uint16(data[off : off+2]))
	off += 2
	if off+n > len(data) {
		return "", 0, errors.New("BinaryCodec: truncated string body")
	}
	return string(data[off : off+n]), off + n, nil
}

func (c *BinaryCodec) Decode(data []byte, v any) error {
	msg, ok := v.(*message.TransportMessage)
	if !ok {
		return errors.New("BinaryCodec: v must be *message.TransportMessage")
	}
	if len(data) < 1 {
		return errors.New("BinaryCodec: empty frame")
	}

	switch data[0] {
	case tagRPC:
		rpc, err := decodeRPC(data[1:])
		if err != nil {
			return err
		}
		msg.RpcMsg = rpc
		msg.HpMsg = nil
		return nil
	case tagHP:
		hp, err := decodeHP(data[1:])
		if err != nil {
			return err
		}
		msg.HpMsg = hp
		msg.RpcMsg = nil
		return nil
	default:
		return errors.New("BinaryCodec: unknown tag")
	}
}

func decodeRPC(data []byte) (*message.RPCMessage, error) {
	if len(data) < 5 {
		return nil, errors.New("BinaryCodec: truncated rpc header")
	}
	off := 0
	id := binary.BigEndian.Uint32(data[off : off+4])
	off += 4
	typ := message.RpcType(data[off])
	off++

	service, off, err := getString(data, off)
	if err != nil {
		return nil, err
	}
	method, off, err := getString(data, off)
	if err != nil {
		return nil, err
	}
	if off+4 > len(data) {
		return nil, errors.New("BinaryCodec: truncated args length")
	}
	argsLen := int(binary.BigEndian.Uint32(data[off : off+4]))
	off += 4
	if off+argsLen > len(data) {
		return nil, errors.New("BinaryCodec: truncated args body")
	}
	args := make([]byte, argsLen)
	copy(args, data[off:off+argsLen])
	off += argsLen

	errStr, _, err := getString(data, off)
	if err != nil {
		return nil, err
	}

	return &message.RPCMessage{
		MessageID: id,
		Type:      typ,
		Service:   service,
		Method:    method,
		Args:      args,
		Error:     errStr,
	}, nil
}

func decodeHP(data []byte) (*message.HolePunchingMsg, error) {
	ip, off, err := getString(data, 0)
	if err != nil {
		return nil, err
	}
	if off+3 > len(data) {
		return nil, errors.New("BinaryCodec: truncated hp message")
	}
	port := binary.BigEndian.Uint16(data[off : off+2])
	off += 2
	typ := message.HpType(data[off])

	return &message.HolePunchingMsg{IP: ip, Port: port, Type: typ}, nil
}

func (c *BinaryCodec) Type() CodecType {
	return CodecTypeBinary
}
