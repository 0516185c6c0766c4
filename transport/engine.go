// Package transport implements the engine that owns the listening endpoint,
// multiplexes many concurrent send/receive flows over a small number of
// worker goroutines, and coordinates rendezvous-based hole punching. The
// underlying reliable-datagram stream socket is github.com/xtaci/kcp-go/v5
// (ARQ over UDP) — it exposes a net.Listener/net.Conn-shaped API, which is
// why this package reads like an ordinary TCP server despite running over
// UDP.
package transport

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/xtaci/kcp-go/v5"
	"go.uber.org/zap"

	"p2prpc/codec"
	"p2prpc/conntable"
	"p2prpc/frame"
	"p2prpc/loadbalance"
	"p2prpc/message"
	"p2prpc/routingtable"
)

// OnMessage is invoked for every inbound RPC message, on the engine's
// dispatch worker.
type OnMessage func(msg *message.RPCMessage, connID uint32)

// OnDeadRendezvous is invoked when the configured rendezvous peer becomes
// unreachable (closed=true) or, after each successful keepalive, to
// signal liveness (closed=false).
type OnDeadRendezvous func(closed bool, ip string, port uint16)

// OnSendComplete is invoked once a queued send finishes writing.
type OnSendComplete func(connID uint32)

// Config tunes the engine. The zero value is usable; all fields fall back
// to sane defaults.
type Config struct {
	Codec                 codec.Codec
	MaxFrameBytes         int64
	HeartbeatInterval     time.Duration // idle-read deadline that triggers a liveness probe
	DialTimeout           time.Duration
	DirectConnectAttempts int // number of direct-connect attempts before giving up
	DirectConnectInterval time.Duration
	DataShards            int // kcp-go forward-error-correction shards, 0 disables FEC
	ParityShards          int
}

func (c Config) codec() codec.Codec {
	if c.Codec != nil {
		return c.Codec
	}
	return &codec.BinaryCodec{}
}

func (c Config) maxFrameBytes() int64 {
	if c.MaxFrameBytes > 0 {
		return c.MaxFrameBytes
	}
	return frame.DefaultMaxFrameBytes
}

func (c Config) heartbeatInterval() time.Duration {
	if c.HeartbeatInterval > 0 {
		return c.HeartbeatInterval
	}
	return 20 * time.Second
}

func (c Config) dialTimeout() time.Duration {
	if c.DialTimeout > 0 {
		return c.DialTimeout
	}
	return 5 * time.Second
}

func (c Config) directConnectAttempts() int {
	if c.DirectConnectAttempts > 0 {
		return c.DirectConnectAttempts
	}
	return 4
}

func (c Config) directConnectInterval() time.Duration {
	if c.DirectConnectInterval > 0 {
		return c.DirectConnectInterval
	}
	return 200 * time.Millisecond
}

type sendItem struct {
	connID uint32
	body   []byte // encoded envelope; writeItem adds the size prefix
}

type inboundItem struct {
	msg    *message.RPCMessage
	connID uint32
}

// Engine is the transport engine. Once Start succeeds, four worker
// goroutines run (accept, send, dispatch, and rendezvous-ping), plus one
// reader goroutine per live connection (the receive loop's per-connection
// incarnation).
type Engine struct {
	cfg        Config
	log        *zap.SugaredLogger
	frameCodec frame.Codec
	conns      *conntable.Table

	listener   net.Listener
	listenPort uint16

	onMessage        OnMessage
	onDeadRendezvous OnDeadRendezvous
	onSendComplete   OnSendComplete

	sendMu    sync.Mutex
	sendCond  *sync.Cond
	sendQueue []*sendItem

	inboundMu    sync.Mutex
	inboundCond  *sync.Cond
	inboundQueue []inboundItem

	stopOnce sync.Once
	stopped  chan struct{}
	wg       sync.WaitGroup

	rzMu              sync.Mutex
	rzIP              string
	rzPort            uint16
	directlyConnected bool
	pingWake          chan struct{}
	rzPool            *ConnPool
	rzPoolAddr        string
	rvCandidates      []routingtable.Contact
	rvBalancer        loadbalance.Balancer
}

// New creates an Engine. It does not bind a socket until Start is called.
func New(cfg Config, log *zap.SugaredLogger) *Engine {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	e := &Engine{
		cfg:        cfg,
		log:        log,
		frameCodec: frame.Codec{MaxFrameBytes: cfg.maxFrameBytes()},
		conns:      conntable.New(),
		stopped:    make(chan struct{}),
		pingWake:   make(chan struct{}, 1),
	}
	e.sendCond = sync.NewCond(&e.sendMu)
	e.inboundCond = sync.NewCond(&e.inboundMu)
	return e
}

// Start binds the listening endpoint (port 0 means OS-assigned) and spawns
// the accept, send, dispatch, and rendezvous-ping workers; per-connection
// readers are started as connections are accepted or dialed. It returns
// the actual bound port.
func (e *Engine) Start(port uint16, onMessage OnMessage, onDeadRendezvous OnDeadRendezvous, onSendComplete OnSendComplete) (uint16, error) {
	e.onMessage = onMessage
	e.onDeadRendezvous = onDeadRendezvous
	e.onSendComplete = onSendComplete

	ln, err := kcp.ListenWithOptions(fmt.Sprintf(":%d", port), nil, e.cfg.DataShards, e.cfg.ParityShards)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBindFailed, err)
	}
	e.listener = ln

	_, portStr, err := net.SplitHostPort(ln.Addr().String())
	if err != nil {
		_ = ln.Close()
		return 0, fmt.Errorf("%w: %v", ErrBindFailed, err)
	}
	boundPort, err := strconv.Atoi(portStr)
	if err != nil {
		_ = ln.Close()
		return 0, fmt.Errorf("%w: %v", ErrBindFailed, err)
	}
	e.listenPort = uint16(boundPort)

	e.wg.Add(4)
	go e.acceptLoop()
	go e.sendLoop()
	go e.dispatchLoop()
	go e.rendezvousPingLoop()

	e.log.Infow("transport started", "port", e.listenPort)
	return e.listenPort, nil
}

// ListenPort returns the bound listening port.
func (e *Engine) ListenPort() uint16 { return e.listenPort }

// PeerAddr returns the remote address observed for a connection, if it is
// still open.
func (e *Engine) PeerAddr(connID uint32) (net.Addr, bool) {
	r, ok := e.conns.Get(connID)
	if !ok {
		return nil, false
	}
	return r.PeerAddr, true
}

// CloseConnection closes a socket and removes its record. Idempotent.
func (e *Engine) CloseConnection(connID uint32) {
	e.conns.Remove(connID)
}

// CanDial is a short-timeout dial-and-close reachability probe.
func (e *Engine) CanDial(ctx context.Context, ip string, port uint16) bool {
	conn, err := e.dial(ctx, ip, port, true)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// Stop halts every worker and closes all open sockets. No callback fires
// after Stop returns.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		close(e.stopped)
		if e.listener != nil {
			_ = e.listener.Close()
		}

		e.sendMu.Lock()
		e.sendCond.Broadcast()
		e.sendMu.Unlock()

		e.inboundMu.Lock()
		e.inboundCond.Broadcast()
		e.inboundMu.Unlock()

		select {
		case e.pingWake <- struct{}{}:
		default:
		}

		done := make(chan struct{})
		go func() {
			e.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			e.log.Warnw("transport workers did not stop within 5s, proceeding with teardown")
		}

		e.conns.CloseAll()

		e.rzMu.Lock()
		if e.rzPool != nil {
			_ = e.rzPool.Close()
			e.rzPool = nil
		}
		e.rzMu.Unlock()
	})
}

func (e *Engine) isStopped() bool {
	select {
	case <-e.stopped:
		return true
	default:
		return false
	}
}
