package transport

import (
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/xtaci/kcp-go/v5"

	"p2prpc/codec"
	"p2prpc/conntable"
	"p2prpc/frame"
	"p2prpc/message"
)

// TestRelayForwardMsgCarriesInitiatorAddress is a regression test for the
// rendezvous relay: FORWARD_MSG must carry the initiator's public address
// (the peer address observed on the connection FORWARD_REQ arrived on),
// not the target's own address, or the target ends up dialing itself and
// hole punching never happens.
func TestRelayForwardMsgCarriesInitiatorAddress(t *testing.T) {
	targetLn, err := kcp.ListenWithOptions("127.0.0.1:0", nil, 0, 0)
	if err != nil {
		t.Fatalf("target listen: %v", err)
	}
	defer targetLn.Close()

	_, targetPortStr, err := net.SplitHostPort(targetLn.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	targetPortN, err := strconv.Atoi(targetPortStr)
	if err != nil {
		t.Fatal(err)
	}
	targetPort := uint16(targetPortN)

	received := make(chan *message.TransportMessage, 1)
	go func() {
		conn, err := targetLn.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		fc := frame.Codec{}
		body, ok, err := fc.DecodeFrame(conn)
		if err != nil || !ok {
			return
		}
		tm := &message.TransportMessage{}
		bc := &codec.BinaryCodec{}
		if err := bc.Decode(body, tm); err != nil {
			return
		}
		received <- tm
	}()

	e := New(Config{}, nil)
	if _, err := e.Start(0, nil, nil, nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer e.Stop()

	initiatorAddr := &net.TCPAddr{IP: net.ParseIP("203.0.113.7"), Port: 51820}
	fromConnID := e.conns.AssignID()
	e.conns.Insert(fromConnID, &conntable.Record{PeerAddr: initiatorAddr})

	req := &message.HolePunchingMsg{
		IP:   "127.0.0.1",
		Port: targetPort,
		Type: message.HpForwardReq,
	}
	e.handleRendezvousMsg(req, fromConnID)

	select {
	case tm := <-received:
		if !tm.IsHolePunch() {
			t.Fatal("expected a hole-punching envelope")
		}
		if tm.HpMsg.Type != message.HpForwardMsg {
			t.Fatalf("expected FORWARD_MSG, got type %v", tm.HpMsg.Type)
		}
		if tm.HpMsg.IP != "203.0.113.7" || tm.HpMsg.Port != 51820 {
			t.Fatalf("FORWARD_MSG carried %s:%d, want the initiator's address 203.0.113.7:51820",
				tm.HpMsg.IP, tm.HpMsg.Port)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("target never received FORWARD_MSG")
	}

	// The connection that carried FORWARD_REQ is not kept.
	if _, ok := e.conns.Get(fromConnID); ok {
		t.Fatal("expected the FORWARD_REQ connection to be removed")
	}
}
