// ConnPool backs the rendezvous-ping loop's keepalive connection: rather
// than redialing the configured rendezvous peer on every liveness check,
// it borrows one pooled connection, reusing it while it stays healthy and
// transparently redialing when the peer marks it unusable.
//
// Pool design: a buffered channel as a FIFO queue — concurrency-safe, with
// blocking-on-empty built in for free.
package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
)

// ConnPool manages a small pool of reusable connections to a single
// address, borrow/return style (as opposed to the engine's own
// multiplexed per-connection-id table, which is shared rather than
// borrowed).
type ConnPool struct {
	mu       sync.Mutex
	conns    chan *PoolConn
	addr     string
	maxConns int
	curConns int
	factory  func(context.Context) (net.Conn, error)
}

// PoolConn wraps a net.Conn with pool metadata.
type PoolConn struct {
	net.Conn
	pool     *ConnPool
	unusable bool
}

// MarkUnusable flags this connection so the next Put discards it instead
// of returning it to the pool.
func (c *PoolConn) MarkUnusable() { c.unusable = true }

// NewConnPool creates a connection pool with the given max size.
// Connections are created lazily — the pool starts empty and grows on
// demand via factory.
func NewConnPool(addr string, maxConns int, factory func(context.Context) (net.Conn, error)) *ConnPool {
	return &ConnPool{
		conns:    make(chan *PoolConn, maxConns),
		addr:     addr,
		maxConns: maxConns,
		factory:  factory,
	}
}

// Get retrieves a connection from the pool, dialing a new one if the pool
// is empty and under capacity, or blocking until one is returned if at
// capacity.
func (p *ConnPool) Get(ctx context.Context) (*PoolConn, error) {
	select {
	case conn := <-p.conns:
		if conn.unusable {
			conn.Close()
			p.mu.Lock()
			p.curConns--
			p.mu.Unlock()
			return p.createNew(ctx)
		}
		return conn, nil
	default:
		p.mu.Lock()
		underCap := p.curConns < p.maxConns
		p.mu.Unlock()
		if underCap {
			return p.createNew(ctx)
		}
		select {
		case conn := <-p.conns:
			return conn, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Put returns a connection to the pool, or closes and discards it if it
// was marked unusable.
func (p *ConnPool) Put(conn *PoolConn) {
	if conn.unusable {
		conn.Close()
		p.mu.Lock()
		p.curConns--
		p.mu.Unlock()
		return
	}
	select {
	case p.conns <- conn:
	default:
		conn.Close()
		p.mu.Lock()
		p.curConns--
		p.mu.Unlock()
	}
}

// Close shuts down the pool and closes every idle connection.
func (p *ConnPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	close(p.conns)
	for conn := range p.conns {
		conn.Close()
		p.curConns--
	}
	return nil
}

func (p *ConnPool) createNew(ctx context.Context) (*PoolConn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.curConns >= p.maxConns {
		return nil, fmt.Errorf("transport: connection pool for %s exhausted", p.addr)
	}

	netConn, err := p.factory(ctx)
	if err != nil {
		return nil, err
	}

	p.curConns++
	return &PoolConn{Conn: netConn, pool: p}, nil
}
