package codec

import (
	"testing"

	"p2prpc/message"
)

func checkRPCRoundTrip(t *testing.T, c Codec, original *message.TransportMessage) {
	t.Helper()

	data, err := c.Encode(original)
	if err != nil {
		t.Fatalf("%v Encode failed: %v", c.Type(), err)
	}

	var decoded message.TransportMessage
	if err := c.Decode(data, &decoded); err != nil {
		t.Fatalf("%v Decode failed: %v", c.Type(), err)
	}

	if decoded.RpcMsg == nil {
		t.Fatalf("%v: expected RpcMsg, got nil", c.Type())
	}
	want, got := original.RpcMsg, decoded.RpcMsg
	if got.MessageID != want.MessageID || got.Type != want.Type ||
		got.Service != want.Service || got.Method != want.Method ||
		string(got.Args) != string(want.Args) || got.Error != want.Error {
		t.Errorf("%v round trip mismatch: got %+v, want %+v", c.Type(), got, want)
	}
}

func TestJSONCodecRPCRoundTrip(t *testing.T) {
	checkRPCRoundTrip(t, &JSONCodec{}, &message.TransportMessage{
		RpcMsg: &message.RPCMessage{
			MessageID: 42,
			Type:      message.RpcTypeRequest,
			Service:   "Arith",
			Method:    "Add",
			Args:      []byte(`{"a":1,"b":2}`),
		},
	})
}

func TestBinaryCodecRPCRoundTrip(t *testing.T) {
	checkRPCRoundTrip(t, &BinaryCodec{}, &message.TransportMessage{
		RpcMsg: &message.RPCMessage{
			MessageID: 42,
			Type:      message.RpcTypeResponse,
			Service:   "Arith",
			Method:    "Add",
			Args:      []byte(`{"a":1,"b":2}`),
			Error:     "boom",
		},
	})
}

func TestBinaryCodecHolePunchRoundTrip(t *testing.T) {
	original := &message.TransportMessage{
		HpMsg: &message.HolePunchingMsg{IP: "203.0.113.7", Port: 7700, Type: message.HpForwardMsg},
	}

	c := &BinaryCodec{}
	data, err := c.Encode(original)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	var decoded message.TransportMessage
	if err := c.Decode(data, &decoded); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if decoded.HpMsg == nil {
		t.Fatal("expected HpMsg, got nil")
	}
	if *decoded.HpMsg != *original.HpMsg {
		t.Errorf("hole punch round trip mismatch: got %+v, want %+v", decoded.HpMsg, original.HpMsg)
	}
}

func TestGetCodec(t *testing.T) {
	if GetCodec(CodecTypeJSON).Type() != CodecTypeJSON {
		t.Error("expected JSON codec")
	}
	if GetCodec(CodecTypeBinary).Type() != CodecTypeBinary {
		t.Error("expected binary codec")
	}
}
