// Package message defines the wire-level data model exchanged between
// peers: the RPC envelope and the hole-punching envelope, both wrapped by a
// tagged-union transport envelope. The transport only ever sees a
// size-prefixed blob of these bytes; it never inspects their structure.
package message

// RpcType distinguishes a request from a response inside an RPCMessage.
type RpcType byte

const (
	RpcTypeRequest  RpcType = 1
	RpcTypeResponse RpcType = 2
)

// RPCMessage is the RPC envelope: a monotonic id assigned by
// the sending channel manager, the REQUEST/RESPONSE discriminator, the
// service name (the penultimate dotted component of the fully qualified
// method name), the method name, and the opaque serialized args/reply bytes.
type RPCMessage struct {
	MessageID uint32
	Type      RpcType
	Service   string
	Method    string
	Args      []byte
	Error     string // non-empty only on a RESPONSE that failed server-side
}

// HpType distinguishes the two rendezvous hole-punching message kinds.
type HpType byte

const (
	HpForwardReq HpType = 1 // initiator -> rendezvous: "poke this target for me"
	HpForwardMsg HpType = 2 // rendezvous -> target: "here is the initiator's address"
)

// HolePunchingMsg carries the rendezvous exchange payload.
type HolePunchingMsg struct {
	IP   string
	Port uint16
	Type HpType
}

// TransportMessage is the tagged union that travels as the frame payload:
// exactly one of RpcMsg or HpMsg is set.
type TransportMessage struct {
	RpcMsg *RPCMessage
	HpMsg  *HolePunchingMsg
}

// IsRPC reports whether this envelope carries an RPC message.
func (m *TransportMessage) IsRPC() bool { return m.RpcMsg != nil }

// IsHolePunch reports whether this envelope carries a rendezvous message.
func (m *TransportMessage) IsHolePunch() bool { return m.HpMsg != nil }
