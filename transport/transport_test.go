package transport

import (
	"context"
	"sync"
	"testing"
	"time"

	"p2prpc/message"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !cond() {
		t.Fatal("condition not met within timeout")
	}
}

func rpcEnvelope(id uint32, typ message.RpcType, service, method string, args []byte) *message.TransportMessage {
	return &message.TransportMessage{
		RpcMsg: &message.RPCMessage{
			MessageID: id,
			Type:      typ,
			Service:   service,
			Method:    method,
			Args:      args,
		},
	}
}

// TestSendReceiveRoundTrip dials a server engine from a client engine and
// checks that a single RPC envelope arrives intact on the server's
// onMessage callback, then that the reply travels back on the same
// logical connection to the client's onMessage.
func TestSendReceiveRoundTrip(t *testing.T) {
	var mu sync.Mutex
	var serverGotConn uint32
	serverDone := make(chan *message.RPCMessage, 1)

	server := New(Config{}, nil)
	port, err := server.Start(0, func(msg *message.RPCMessage, connID uint32) {
		mu.Lock()
		serverGotConn = connID
		mu.Unlock()
		serverDone <- msg
	}, nil, nil)
	if err != nil {
		t.Fatalf("server start: %v", err)
	}
	defer server.Stop()

	clientDone := make(chan *message.RPCMessage, 1)
	client := New(Config{}, nil)
	if _, err := client.Start(0, func(msg *message.RPCMessage, connID uint32) {
		clientDone <- msg
	}, nil, nil); err != nil {
		t.Fatalf("client start: %v", err)
	}
	defer client.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	connID, err := client.ConnectToSend(ctx, "127.0.0.1", port, "", 0, true)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}

	req := rpcEnvelope(1, message.RpcTypeRequest, "Ping", "Ping", []byte("ping"))
	if err := client.Send(connID, req); err != nil {
		t.Fatalf("send: %v", err)
	}

	var got *message.RPCMessage
	select {
	case got = <-serverDone:
	case <-time.After(3 * time.Second):
		t.Fatal("server never received request")
	}
	if got.Service != "Ping" || string(got.Args) != "ping" {
		t.Fatalf("unexpected request: %+v", got)
	}

	mu.Lock()
	replyConn := serverGotConn
	mu.Unlock()

	resp := rpcEnvelope(got.MessageID, message.RpcTypeResponse, "Ping", "Ping", []byte("pong"))
	if err := server.Send(replyConn, resp); err != nil {
		t.Fatalf("reply send: %v", err)
	}

	select {
	case reply := <-clientDone:
		if string(reply.Args) != "pong" {
			t.Fatalf("unexpected reply: %+v", reply)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("client never received reply")
	}
}

// TestSendUnknownConnection checks that Send on an id never inserted into
// the connection table fails with ErrUnknownConnection rather than
// blocking or panicking.
func TestSendUnknownConnection(t *testing.T) {
	e := New(Config{}, nil)
	if _, err := e.Start(0, nil, nil, nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer e.Stop()

	err := e.Send(999, rpcEnvelope(1, message.RpcTypeRequest, "X", "Y", nil))
	if err != ErrUnknownConnection {
		t.Fatalf("expected ErrUnknownConnection, got %v", err)
	}
}

// TestConnectToSendNoListener checks that dialing an address with nothing
// listening fails with ErrConnectFailed rather than hanging past the
// configured dial attempts.
func TestConnectToSendNoListener(t *testing.T) {
	e := New(Config{
		DialTimeout:           200 * time.Millisecond,
		DirectConnectAttempts: 2,
		DirectConnectInterval: 10 * time.Millisecond,
	}, nil)
	if _, err := e.Start(0, nil, nil, nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer e.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := e.ConnectToSend(ctx, "127.0.0.1", 1, "", 0, true)
	if err == nil {
		t.Fatal("expected connect failure against an unbound port")
	}
}

// TestCloseConnectionIsIdempotent checks that closing the same connection
// id twice, and closing an id that was never opened, never panics.
func TestCloseConnectionIsIdempotent(t *testing.T) {
	e := New(Config{}, nil)
	if _, err := e.Start(0, nil, nil, nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer e.Stop()

	e.CloseConnection(42)
	e.CloseConnection(42)
}

// TestStopClosesConnectionsAndHaltsWorkers checks that after Stop, the
// engine's connections are torn down and a further Send fails rather than
// silently queuing forever.
func TestStopClosesConnectionsAndHaltsWorkers(t *testing.T) {
	server := New(Config{}, nil)
	port, err := server.Start(0, func(*message.RPCMessage, uint32) {}, nil, nil)
	if err != nil {
		t.Fatalf("server start: %v", err)
	}

	client := New(Config{}, nil)
	if _, err := client.Start(0, nil, nil, nil); err != nil {
		t.Fatalf("client start: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	connID, err := client.ConnectToSend(ctx, "127.0.0.1", port, "", 0, true)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}

	server.Stop()
	client.Stop()

	if err := client.Send(connID, rpcEnvelope(1, message.RpcTypeRequest, "X", "Y", nil)); err != ErrUnknownConnection {
		t.Fatalf("expected send after stop to fail with ErrUnknownConnection, got %v", err)
	}
}

// TestConnectToSendWithoutKeepAllowsSend checks that a non-kept
// connection is usable for exactly the one Send the caller issues and is
// still tracked long enough for that Send to find it.
func TestConnectToSendWithoutKeepAllowsSend(t *testing.T) {
	server := New(Config{}, nil)
	port, err := server.Start(0, func(*message.RPCMessage, uint32) {}, nil, nil)
	if err != nil {
		t.Fatalf("server start: %v", err)
	}
	defer server.Stop()

	client := New(Config{}, nil)
	if _, err := client.Start(0, nil, nil, nil); err != nil {
		t.Fatalf("client start: %v", err)
	}
	defer client.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	connID, err := client.ConnectToSend(ctx, "127.0.0.1", port, "", 0, false)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}

	if err := client.Send(connID, rpcEnvelope(1, message.RpcTypeRequest, "X", "Y", []byte("hi"))); err != nil {
		t.Fatalf("send on non-kept connection: %v", err)
	}
}
