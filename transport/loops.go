package transport

import (
	"io"
	"net"
	"time"

	"p2prpc/conntable"
	"p2prpc/message"
)

// acceptLoop is the first of the five workers: it blocks on
// Accept and inserts every accepted socket into the connection table under
// a fresh id, then starts that connection's reader.
func (e *Engine) acceptLoop() {
	defer e.wg.Done()
	for {
		conn, err := e.listener.Accept()
		if err != nil {
			if e.isStopped() {
				return
			}
			e.log.Warnw("accept failed", "error", err)
			time.Sleep(10 * time.Millisecond)
			continue
		}
		id := e.conns.AssignID()
		e.conns.Insert(id, &conntable.Record{Conn: conn, PeerAddr: conn.RemoteAddr()})
		e.wg.Add(1)
		go e.receiveFrames(id)
	}
}

// receiveFrames is the per-connection incarnation of the receive loop.
// Reads on one connection are strictly sequential, so frames are
// delivered to on_message in wire order; across connections, no ordering
// is implied — one goroutine per connection is the natural fit for Go's
// blocking-read model, where a single thread multiplexing every socket via
// select() would otherwise be needed.
//
// A read deadline doubles as an idle-liveness probe: when no frame arrives
// within the heartbeat interval, a dedicated bodiless heartbeat frame is
// written to the peer. Either a read error or a failed probe write closes
// and removes the connection.
func (e *Engine) receiveFrames(id uint32) {
	defer e.wg.Done()

	record, ok := e.conns.Get(id)
	if !ok {
		return
	}
	conn := record.Conn
	heartbeat := e.cfg.heartbeatInterval()

	for {
		if e.isStopped() {
			e.conns.Remove(id)
			return
		}

		_ = conn.SetReadDeadline(time.Now().Add(heartbeat))
		body, ok, err := e.frameCodec.DecodeFrame(conn)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				if werr := e.frameCodec.EncodeHeartbeat(conn); werr != nil {
					e.log.Debugw("liveness probe failed, closing", "conn_id", id, "error", werr)
					e.conns.Remove(id)
					return
				}
				continue
			}
			if err != io.EOF {
				e.log.Debugw("receive failed, closing connection", "conn_id", id, "error", err)
			}
			e.conns.Remove(id)
			return
		}

		if !ok {
			continue // heartbeat frame from the peer, nothing to dispatch
		}

		tm := &message.TransportMessage{}
		if err := e.cfg.codec().Decode(body, tm); err != nil {
			e.log.Warnw("malformed frame, closing connection", "conn_id", id, "error", err)
			e.conns.Remove(id)
			return
		}

		e.dispatchEnvelope(tm, id)
	}
}

// dispatchEnvelope routes a decoded transport envelope either to the
// inbound RPC queue (drained by dispatchLoop) or to the rendezvous
// handler, by the tagged union's discriminant.
func (e *Engine) dispatchEnvelope(tm *message.TransportMessage, connID uint32) {
	switch {
	case tm.IsRPC():
		e.inboundMu.Lock()
		e.inboundQueue = append(e.inboundQueue, inboundItem{msg: tm.RpcMsg, connID: connID})
		e.inboundCond.Signal()
		e.inboundMu.Unlock()
	case tm.IsHolePunch():
		e.handleRendezvousMsg(tm.HpMsg, connID)
	}
}

// sendLoop is the third worker: it drains queued sends one at a time,
// writing the size-prefixed frame and firing on_send_complete. Because
// net.Conn.Write on a stream-shaped connection either writes the whole
// buffer or fails, there is no partial-write bookkeeping to do here beyond
// what frame.Codec.Encode already performs atomically per item — unlike
// the original's explicit data_sent/data_size loop, which existed to work
// around UDT's non-blocking send semantics.
func (e *Engine) sendLoop() {
	defer e.wg.Done()
	for {
		e.sendMu.Lock()
		for len(e.sendQueue) == 0 && !e.isStopped() {
			e.sendCond.Wait()
		}
		if e.isStopped() && len(e.sendQueue) == 0 {
			e.sendMu.Unlock()
			return
		}
		item := e.sendQueue[0]
		e.sendQueue = e.sendQueue[1:]
		e.sendMu.Unlock()

		e.writeItem(item)
	}
}

func (e *Engine) writeItem(item *sendItem) {
	record, ok := e.conns.Get(item.connID)
	if !ok {
		e.log.Debugw("send target vanished before write", "conn_id", item.connID)
		return
	}

	if err := e.frameCodec.Encode(record.Conn, item.body); err != nil {
		e.log.Debugw("send failed, dropping connection", "conn_id", item.connID, "error", err)
		e.conns.Remove(item.connID)
		return
	}

	if e.onSendComplete != nil {
		e.onSendComplete(item.connID)
	}
}

// dispatchLoop is the fourth worker: it drains the inbound RPC queue into
// the user-supplied on_message callback, one message at a time.
func (e *Engine) dispatchLoop() {
	defer e.wg.Done()
	for {
		e.inboundMu.Lock()
		for len(e.inboundQueue) == 0 && !e.isStopped() {
			e.inboundCond.Wait()
		}
		if e.isStopped() && len(e.inboundQueue) == 0 {
			e.inboundMu.Unlock()
			return
		}
		item := e.inboundQueue[0]
		e.inboundQueue = e.inboundQueue[1:]
		e.inboundMu.Unlock()

		if e.onMessage != nil {
			e.onMessage(item.msg, item.connID)
		}
	}
}
