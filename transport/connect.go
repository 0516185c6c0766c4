package transport

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/xtaci/kcp-go/v5"

	"p2prpc/conntable"
	"p2prpc/message"
)

// ConnectToSend opens a connection to a remote peer, directly if rvIP is
// empty, or via rendezvous hole punching otherwise. If
// keepConnection is true the socket is inserted into the connection table
// before return so further sends can reuse it; otherwise the caller is
// expected to Send once and CloseConnection.
func (e *Engine) ConnectToSend(ctx context.Context, remoteIP string, remotePort uint16, rvIP string, rvPort uint16, keepConnection bool) (uint32, error) {
	var conn net.Conn
	var err error

	if rvIP == "" {
		conn, err = e.connectDirect(ctx, remoteIP, remotePort)
		if err != nil {
			return 0, err
		}
	} else {
		conn, err = e.connectViaRendezvous(ctx, remoteIP, remotePort, rvIP, rvPort)
		if err != nil {
			return 0, err
		}
	}

	id := e.conns.AssignID()
	if keepConnection {
		e.conns.Insert(id, &conntable.Record{Conn: conn, PeerAddr: conn.RemoteAddr()})
		e.wg.Add(1)
		go e.receiveFrames(id)
	} else {
		// Still tracked so Send(id, ...) can find it; CloseConnection (or the
		// peer closing) removes it. No reader goroutine is started because a
		// non-kept connection is used for exactly one send, not a
		// multi-message logical connection.
		e.conns.Insert(id, &conntable.Record{Conn: conn, PeerAddr: conn.RemoteAddr()})
	}

	return id, nil
}

// Send enqueues an already-built TransportMessage for delivery on conn_id.
func (e *Engine) Send(connID uint32, tm *message.TransportMessage) error {
	if _, ok := e.conns.Get(connID); !ok {
		return ErrUnknownConnection
	}
	body, err := e.cfg.codec().Encode(tm)
	if err != nil {
		return fmt.Errorf("transport: encode envelope: %w", err)
	}

	e.sendMu.Lock()
	e.sendQueue = append(e.sendQueue, &sendItem{connID: connID, body: body})
	e.sendCond.Signal()
	e.sendMu.Unlock()
	return nil
}

// SendTo is the convenience form combining ConnectToSend and Send.
func (e *Engine) SendTo(ctx context.Context, remoteIP string, remotePort uint16, rvIP string, rvPort uint16, tm *message.TransportMessage, keepConnection bool) (uint32, error) {
	id, err := e.ConnectToSend(ctx, remoteIP, remotePort, rvIP, rvPort, keepConnection)
	if err != nil {
		return 0, err
	}
	if err := e.Send(id, tm); err != nil {
		return id, err
	}
	return id, nil
}

// dial opens one connection attempt. shortTimeout halves the configured
// dial timeout, for callers (like the rendezvous relay) that want a
// quick failure rather than the full timeout budget.
func (e *Engine) dial(ctx context.Context, ip string, port uint16, shortTimeout bool) (net.Conn, error) {
	timeout := e.cfg.dialTimeout()
	if shortTimeout {
		timeout /= 2
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	addr := net.JoinHostPort(ip, fmt.Sprintf("%d", port))
	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		conn, err := kcp.DialWithOptions(addr, nil, e.cfg.DataShards, e.cfg.ParityShards)
		ch <- result{conn, err}
	}()

	select {
	case r := <-ch:
		return r.conn, r.err
	case <-dialCtx.Done():
		return nil, dialCtx.Err()
	}
}

// connectDirect retries a direct dial up to the configured attempt count
// with a brief interval between tries. It is also used, independent of
// rendezvous, whenever ConnectToSend is given no rv_ip.
func (e *Engine) connectDirect(ctx context.Context, ip string, port uint16) (net.Conn, error) {
	var lastErr error
	attempts := e.cfg.directConnectAttempts()
	for i := 0; i < attempts; i++ {
		conn, err := e.dial(ctx, ip, port, false)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		if i < attempts-1 {
			select {
			case <-time.After(e.cfg.directConnectInterval()):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, fmt.Errorf("%w after %d attempts: %v", ErrConnectFailed, attempts, lastErr)
}
