package message

import (
	"encoding/json"
	"testing"
)

type addArgs struct {
	A int `json:"a"`
	B int `json:"b"`
}

func TestRPCMessageRoundTrip(t *testing.T) {
	payload, err := json.Marshal(addArgs{A: 1, B: 2})
	if err != nil {
		t.Fatalf("marshal args: %v", err)
	}

	req := &RPCMessage{
		MessageID: 7,
		Type:      RpcTypeRequest,
		Service:   "Arith",
		Method:    "Add",
		Args:      payload,
	}

	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	var got RPCMessage
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal request: %v", err)
	}

	if got.MessageID != req.MessageID || got.Service != req.Service || got.Method != req.Method {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, req)
	}
	var args addArgs
	if err := json.Unmarshal(got.Args, &args); err != nil {
		t.Fatalf("unmarshal args: %v", err)
	}
	if args.A != 1 || args.B != 2 {
		t.Fatalf("args mismatch: %+v", args)
	}
}

func TestTransportMessageIsTaggedUnion(t *testing.T) {
	rpc := &TransportMessage{RpcMsg: &RPCMessage{MessageID: 1, Type: RpcTypeResponse}}
	if !rpc.IsRPC() || rpc.IsHolePunch() {
		t.Fatal("expected IsRPC true, IsHolePunch false")
	}

	hp := &TransportMessage{HpMsg: &HolePunchingMsg{IP: "1.2.3.4", Port: 9000, Type: HpForwardReq}}
	if hp.IsRPC() || !hp.IsHolePunch() {
		t.Fatal("expected IsRPC false, IsHolePunch true")
	}
}
