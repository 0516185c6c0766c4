package transport

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"p2prpc/message"
)

// connectViaRendezvous implements the hole-punching initiator sequence:
// connect to the rendezvous peer, send FORWARD_REQ, then attempt up
// to 4 direct connects to the target while the rendezvous relays
// FORWARD_MSG to punch the target's NAT mapping.
func (e *Engine) connectViaRendezvous(ctx context.Context, targetIP string, targetPort uint16, rvIP string, rvPort uint16) (net.Conn, error) {
	rvConn, err := e.dial(ctx, rvIP, rvPort, false)
	if err != nil {
		return nil, fmt.Errorf("%w: dial rendezvous: %v", ErrConnectFailed, err)
	}
	defer rvConn.Close()

	req := &message.TransportMessage{HpMsg: &message.HolePunchingMsg{
		IP:   targetIP,
		Port: targetPort,
		Type: message.HpForwardReq,
	}}
	body, err := e.cfg.codec().Encode(req)
	if err != nil {
		return nil, fmt.Errorf("transport: encode FORWARD_REQ: %w", err)
	}
	if err := e.frameCodec.Encode(rvConn, body); err != nil {
		return nil, fmt.Errorf("%w: send FORWARD_REQ: %v", ErrHolePunchingFailed, err)
	}

	conn, err := e.connectDirect(ctx, targetIP, targetPort)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHolePunchingFailed, err)
	}
	return conn, nil
}

// handleRendezvousMsg processes an inbound hole-punching envelope. A
// FORWARD_REQ received by a rendezvous peer is relayed to the
// named target as FORWARD_MSG on a fresh connection. A FORWARD_MSG
// received by a target attempts an immediate connect to the carried
// address and discards the resulting socket — its only purpose is to
// punch the local NAT's mapping so the initiator's subsequent direct
// connect succeeds.
func (e *Engine) handleRendezvousMsg(hp *message.HolePunchingMsg, fromConnID uint32) {
	switch hp.Type {
	case message.HpForwardReq:
		// The initiator's public address is the peer address observed on
		// the connection FORWARD_REQ arrived on, not anything carried in
		// the message body itself.
		if record, ok := e.conns.Get(fromConnID); ok {
			e.relayForwardMsg(hp, record.PeerAddr)
		} else {
			e.log.Debugw("rendezvous relay: initiator connection vanished", "conn_id", fromConnID)
		}
	case message.HpForwardMsg:
		go e.punchTowards(hp.IP, hp.Port)
	}
	// The connection that carried this message is not kept; it was opened
	// solely to deliver the hole-punching envelope.
	e.conns.Remove(fromConnID)
}

// relayForwardMsg dials the target named by req and hands it a FORWARD_MSG
// carrying sourceAddr, the initiator's public address, so the target can
// connect back to punch its own NAT mapping — per spec §4.E, FORWARD_MSG
// must carry the initiator's address, not the target's own.
func (e *Engine) relayForwardMsg(req *message.HolePunchingMsg, sourceAddr net.Addr) {
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.dialTimeout())
	defer cancel()

	conn, err := e.dial(ctx, req.IP, req.Port, true)
	if err != nil {
		e.log.Debugw("rendezvous relay: could not reach target", "ip", req.IP, "port", req.Port, "error", err)
		return
	}
	defer conn.Close()

	sourceIP, sourcePort, err := splitHostPort(sourceAddr)
	if err != nil {
		e.log.Debugw("rendezvous relay: malformed initiator address", "addr", sourceAddr, "error", err)
		return
	}

	fwd := &message.TransportMessage{HpMsg: &message.HolePunchingMsg{
		IP:   sourceIP,
		Port: sourcePort,
		Type: message.HpForwardMsg,
	}}
	body, err := e.cfg.codec().Encode(fwd)
	if err != nil {
		return
	}
	_ = e.frameCodec.Encode(conn, body)
}

// splitHostPort extracts host/port from a net.Addr as reported by the
// underlying stream socket.
func splitHostPort(addr net.Addr) (string, uint16, error) {
	host, portStr, err := net.SplitHostPort(addr.String())
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return "", 0, err
	}
	return host, uint16(port), nil
}

func (e *Engine) punchTowards(ip string, port uint16) {
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.dialTimeout())
	defer cancel()

	conn, err := e.dial(ctx, ip, port, true)
	if err != nil {
		e.log.Debugw("hole punch attempt failed", "ip", ip, "port", port, "error", err)
		return
	}
	_ = conn.Close()
}

// StartPingRendezvous arms the rendezvous-ping worker's target. If
// directlyConnected is true the loop exits immediately (no NAT to keep
// punched).
func (e *Engine) StartPingRendezvous(directlyConnected bool, rvIP string, rvPort uint16) {
	e.rzMu.Lock()
	e.directlyConnected = directlyConnected
	e.rzIP = rvIP
	e.rzPort = rvPort
	e.rzMu.Unlock()

	select {
	case e.pingWake <- struct{}{}:
	default:
	}
}

// StopPingRendezvous marks the peer as directly connected, causing the
// ping loop to exit on its next wake.
func (e *Engine) StopPingRendezvous() {
	e.rzMu.Lock()
	e.directlyConnected = true
	e.rzMu.Unlock()
}

// rendezvousPingLoop is the fifth worker. It blocks until
// StartPingRendezvous signals, then pings the configured rendezvous peer:
// success resets an 8s sleep and reports liveness; failure retries twice at
// 2s intervals before reporting the rendezvous dead and halting.
func (e *Engine) rendezvousPingLoop() {
	defer e.wg.Done()
	for {
		select {
		case <-e.stopped:
			return
		case <-e.pingWake:
		}

		for {
			if e.isStopped() {
				return
			}

			e.rzMu.Lock()
			directly := e.directlyConnected
			ip, port := e.rzIP, e.rzPort
			e.rzMu.Unlock()

			if directly {
				break
			}
			// If a rendezvous pool/balancer is configured, rotate the
			// keepalive target across the whole known pool instead of
			// pinging a single statically configured peer.
			if poolIP, poolPort, ok := e.pickNextRendezvous(); ok {
				ip, port = poolIP, poolPort
			}
			if ip == "" {
				break
			}

			if e.pingOnce(ip, port) {
				if e.onDeadRendezvous != nil {
					e.onDeadRendezvous(false, "", 0)
				}
				select {
				case <-time.After(8 * time.Second):
				case <-e.stopped:
					return
				}
				continue
			}

			if !e.retryPing(ip, port) {
				if e.onDeadRendezvous != nil {
					e.onDeadRendezvous(true, ip, port)
				}
				break
			}
		}
	}
}

// pingOnce checks rendezvous-peer liveness by borrowing a connection from
// rzPool (creating the pool on first use, or recreating it if the
// configured address changed) rather than dialing fresh on every cycle.
// The borrowed connection is probed with a bodiless heartbeat frame; a
// failed probe marks it unusable so Put discards it and the next ping
// redials.
func (e *Engine) pingOnce(ip string, port uint16) bool {
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.dialTimeout())
	defer cancel()

	pool := e.rendezvousPool(ip, port)
	conn, err := pool.Get(ctx)
	if err != nil {
		return false
	}

	if err := e.frameCodec.EncodeHeartbeat(conn); err != nil {
		conn.MarkUnusable()
		pool.Put(conn)
		return false
	}

	pool.Put(conn)
	return true
}

// rendezvousPool returns the keepalive dial pool for the given rendezvous
// address, lazily creating it and transparently replacing it if the
// configured peer has changed since the last call.
func (e *Engine) rendezvousPool(ip string, port uint16) *ConnPool {
	addr := net.JoinHostPort(ip, fmt.Sprintf("%d", port))

	e.rzMu.Lock()
	defer e.rzMu.Unlock()

	if e.rzPool != nil && e.rzPoolAddr == addr {
		return e.rzPool
	}
	if e.rzPool != nil {
		_ = e.rzPool.Close()
	}

	e.rzPool = NewConnPool(addr, 1, func(ctx context.Context) (net.Conn, error) {
		return e.dial(ctx, ip, port, true)
	})
	e.rzPoolAddr = addr
	return e.rzPool
}

func (e *Engine) retryPing(ip string, port uint16) bool {
	for i := 0; i < 2; i++ {
		select {
		case <-time.After(2 * time.Second):
		case <-e.stopped:
			return false
		}
		if e.pingOnce(ip, port) {
			return true
		}
	}
	return false
}
