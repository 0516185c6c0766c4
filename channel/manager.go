// Package channel implements the channel manager, channel, and pending
// request bookkeeping: the layer that correlates asynchronous RPC
// requests and responses over a transport.Engine via monotonic message
// ids, and routes inbound requests to registered services.
package channel

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"p2prpc/codec"
	"p2prpc/controller"
	"p2prpc/message"
	"p2prpc/middleware"
	"p2prpc/timer"
	"p2prpc/transport"
)

// pendingReq is the pending-request record: created when a
// request is sent, destroyed when a response arrives, its timeout fires,
// cancellation succeeds, or the manager shuts down.
type pendingReq struct {
	response   any
	done       func(error)
	connID     uint32
	controller *controller.Controller
	timeoutID  uint64
	sentAt     time.Time
}

// Manager is the channel manager. It owns the monotonic
// request-id counter, the pending-request table, the registered service
// channels, and the transport.Engine and timer.Timer it drives.
type Manager struct {
	log   *zap.SugaredLogger
	codec codec.Codec // serializes structured request/response payloads into RpcMessage.Args

	transport *transport.Engine
	timer     *timer.Timer

	idMu      sync.Mutex
	currentID uint32

	pendingMu sync.Mutex
	pending   map[uint32]*pendingReq

	channelsMu sync.Mutex
	channels   map[string]*Channel

	externalIP   string
	externalPort uint16

	inboundChain middleware.Middleware // optional, wraps every inbound request dispatch
}

// NewManager builds a Manager over an already-constructed transport.Engine
// and timer.Timer. payloadCodec serializes request/response structs (as
// opposed to the transport's own envelope codec); a nil value defaults to
// JSON.
func NewManager(t *transport.Engine, tmr *timer.Timer, payloadCodec codec.Codec, log *zap.SugaredLogger) *Manager {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if payloadCodec == nil {
		payloadCodec = &codec.JSONCodec{}
	}
	return &Manager{
		log:       log,
		codec:     payloadCodec,
		transport: t,
		timer:     tmr,
		// Seeded randomly so ids from two managers started close in time
		// don't collide if ever compared across processes.
		currentID: rand.Uint32(),
		pending:   make(map[uint32]*pendingReq),
		channels:  make(map[string]*Channel),
	}
}

// SetExternalIP records the address peers should use to reach this
// manager, populated out of band (e.g. from a STUN/rendezvous response —
// this process has no way to discover it unassisted).
func (m *Manager) SetExternalIP(ip string) { m.externalIP = ip }

// ExternalIP returns the externally-reachable address, if known.
func (m *Manager) ExternalIP() string { return m.externalIP }

// ExternalPort returns the transport's bound port, valid after
// StartTransport succeeds.
func (m *Manager) ExternalPort() uint16 { return m.externalPort }

// SetInboundMiddleware installs a chain wrapped around every inbound
// request dispatch (logging, rate limiting, retry, timeout — see package
// middleware). Pass nil to remove it.
func (m *Manager) SetInboundMiddleware(chain middleware.Middleware) {
	m.inboundChain = chain
}

// StartTransport starts the underlying transport engine with inbound
// messages routed to handleInbound and send-completion a no-op, and
// records the bound port as the external port.
func (m *Manager) StartTransport(port uint16, onDeadRendezvous transport.OnDeadRendezvous) error {
	bound, err := m.transport.Start(port, m.handleInbound, onDeadRendezvous, nil)
	if err != nil {
		return fmt.Errorf("channel: start transport: %w", err)
	}
	m.externalPort = bound
	return nil
}

// StopTransport stops the transport, cancels every pending timeout, and
// fires each pending request's completion with a TIMEOUT failure so no
// caller blocks forever on a manager that has shut down.
func (m *Manager) StopTransport() {
	m.transport.Stop()

	m.pendingMu.Lock()
	pending := m.pending
	m.pending = make(map[uint32]*pendingReq)
	m.pendingMu.Unlock()

	for _, p := range pending {
		m.timer.Cancel(p.timeoutID)
		p.controller.SetFailureText("TIMEOUT")
		if p.done != nil {
			p.done(fmt.Errorf("channel: %w", ErrTimeout))
		}
	}
}

// RegisterChannel binds a Channel under a service name so inbound
// requests naming that service are routed to it.
func (m *Manager) RegisterChannel(serviceName string, ch *Channel) {
	m.channelsMu.Lock()
	defer m.channelsMu.Unlock()
	m.channels[serviceName] = ch
}

// UnregisterChannel removes a previously registered channel.
func (m *Manager) UnregisterChannel(serviceName string) {
	m.channelsMu.Lock()
	defer m.channelsMu.Unlock()
	delete(m.channels, serviceName)
}

// ClearChannels removes every registered channel.
func (m *Manager) ClearChannels() {
	m.channelsMu.Lock()
	defer m.channelsMu.Unlock()
	m.channels = make(map[string]*Channel)
}

func (m *Manager) lookupChannel(serviceName string) (*Channel, bool) {
	m.channelsMu.Lock()
	defer m.channelsMu.Unlock()
	ch, ok := m.channels[serviceName]
	return ch, ok
}

// newID returns the current request id then advances it, wrapping around
// zero: a request id of 0 is never returned.
func (m *Manager) newID() uint32 {
	m.idMu.Lock()
	defer m.idMu.Unlock()
	id := m.currentID
	m.currentID++
	if m.currentID == 0 {
		m.currentID = 1
	}
	if id == 0 {
		id = m.currentID
		m.currentID++
		if m.currentID == 0 {
			m.currentID = 1
		}
	}
	return id
}

func (m *Manager) addPending(id uint32, p *pendingReq) {
	m.pendingMu.Lock()
	defer m.pendingMu.Unlock()
	m.pending[id] = p
}

// deletePending removes a still-pending request and, if it was present,
// fires its completion with a CANCELED failure. This races armTimeout and
// handleInboundResponse's response path: whichever gets there first wins,
// since both take pendingMu to pop the same map entry.
func (m *Manager) deletePending(id uint32) bool {
	m.pendingMu.Lock()
	p, ok := m.pending[id]
	if ok {
		delete(m.pending, id)
	}
	m.pendingMu.Unlock()
	if !ok {
		return false
	}
	m.timer.Cancel(p.timeoutID)
	p.controller.SetFailureText("CANCELED")
	if p.done != nil {
		p.done(fmt.Errorf("channel: %w", ErrCanceled))
	}
	return true
}

// armTimeout schedules a timer entry that fires handleTimeout(id) after
// the given duration.
func (m *Manager) armTimeout(id uint32, timeout time.Duration) uint64 {
	return m.timer.Schedule(timeout, func() {
		m.handleTimeout(id)
	})
}

func (m *Manager) handleTimeout(id uint32) {
	m.pendingMu.Lock()
	p, ok := m.pending[id]
	if ok {
		delete(m.pending, id)
	}
	m.pendingMu.Unlock()
	if !ok {
		return
	}
	p.controller.SetFailureText("TIMEOUT")
	if p.done != nil {
		p.done(fmt.Errorf("channel: %w", ErrTimeout))
	}
}

// handleInbound is the transport's inbound-message callback. A
// REQUEST is routed to the named service's channel; a RESPONSE is matched
// against the pending table by message id.
func (m *Manager) handleInbound(msg *message.RPCMessage, connID uint32) {
	switch msg.Type {
	case message.RpcTypeRequest:
		m.handleInboundRequest(msg, connID)
	case message.RpcTypeResponse:
		m.handleInboundResponse(msg, connID)
	}
}

func (m *Manager) handleInboundRequest(msg *message.RPCMessage, connID uint32) {
	ch, ok := m.lookupChannel(msg.Service)
	if !ok {
		m.log.Debugw("request for unknown service, closing connection", "service", msg.Service, "conn_id", connID)
		m.transport.CloseConnection(connID)
		return
	}

	var dispatchErr error
	base := middleware.HandlerFunc(func(ctx context.Context, req *message.RPCMessage, done func(*message.RPCMessage)) {
		if err := ch.dispatch(req, done); err != nil {
			dispatchErr = err
		}
	})

	handler := base
	if m.inboundChain != nil {
		handler = m.inboundChain(base)
	}

	handler(context.Background(), msg, func(resp *message.RPCMessage) {
		if resp == nil {
			return
		}
		if err := m.transport.Send(connID, &message.TransportMessage{RpcMsg: resp}); err != nil {
			m.log.Debugw("failed to send response", "conn_id", connID, "error", err)
		}
	})

	if dispatchErr != nil {
		m.log.Debugw("malformed request, closing connection", "service", msg.Service, "method", msg.Method, "error", dispatchErr)
		m.transport.CloseConnection(connID)
	}
}

func (m *Manager) handleInboundResponse(msg *message.RPCMessage, connID uint32) {
	m.pendingMu.Lock()
	p, ok := m.pending[msg.MessageID]
	if ok {
		delete(m.pending, msg.MessageID)
	}
	m.pendingMu.Unlock()
	if !ok {
		return
	}

	m.timer.Cancel(p.timeoutID)
	p.controller.SetRTT(time.Since(p.sentAt))

	if msg.Error != "" {
		p.controller.SetFailureText(msg.Error)
		if p.done != nil {
			p.done(fmt.Errorf("channel: %s", msg.Error))
		}
		return
	}

	if p.response != nil {
		if err := m.codec.Decode(msg.Args, p.response); err != nil {
			p.controller.SetFailureText("MALFORMED_RESPONSE")
			if p.done != nil {
				p.done(fmt.Errorf("channel: decode response: %w", err))
			}
			return
		}
	}
	if p.done != nil {
		p.done(nil)
	}
}
