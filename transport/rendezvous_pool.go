package transport

import (
	"fmt"

	"p2prpc/loadbalance"
	"p2prpc/routingtable"
)

// SetRendezvousPool configures the set of known rendezvous peers and the
// strategy used to pick among them. Once set, the rendezvous-ping loop
// rotates its keepalive target across the whole pool via balancer.Pick
// instead of pinging a single statically configured peer, and callers can
// resolve a target-affine rendezvous peer via PickRendezvousFor to pass as
// rv_ip/rv_port to ConnectToSend. ConnectToSend itself does not consult
// the pool.
//
// Passing a *loadbalance.ConsistentHashBalancer also rebuilds its hash ring
// from contacts immediately, so PickRendezvousFor is usable right away.
func (e *Engine) SetRendezvousPool(contacts []routingtable.Contact, balancer loadbalance.Balancer) {
	if ch, ok := balancer.(*loadbalance.ConsistentHashBalancer); ok {
		ch.Rebuild(contacts)
	}

	e.rzMu.Lock()
	e.rvCandidates = contacts
	e.rvBalancer = balancer
	e.rzMu.Unlock()
}

// pickNextRendezvous resolves the next keepalive target from the configured
// pool, if any. It returns ok=false when no pool/balancer has been set, in
// which case the caller should keep using the explicitly configured
// rz_ip/rz_port from StartPingRendezvous.
func (e *Engine) pickNextRendezvous() (ip string, port uint16, ok bool) {
	e.rzMu.Lock()
	candidates := e.rvCandidates
	balancer := e.rvBalancer
	e.rzMu.Unlock()

	if balancer == nil || len(candidates) == 0 {
		return "", 0, false
	}
	c, err := balancer.Pick(candidates)
	if err != nil || c == nil {
		return "", 0, false
	}
	return c.RendezvousIP, c.RendezvousPort, true
}

// PickRendezvousFor resolves a rendezvous peer affine to targetKademliaID,
// for use as rv_ip/rv_port in ConnectToSend when the caller wants sticky
// routing to the same rendezvous peer across repeated connect attempts to
// the same target. It only returns a result when the configured balancer
// supports target-affine selection; other strategies should use
// pickNextRendezvous's rotation instead.
func (e *Engine) PickRendezvousFor(targetKademliaID string) (ip string, port uint16, err error) {
	e.rzMu.Lock()
	balancer := e.rvBalancer
	e.rzMu.Unlock()

	ch, ok := balancer.(*loadbalance.ConsistentHashBalancer)
	if !ok {
		return "", 0, fmt.Errorf("transport: no target-affine rendezvous balancer configured")
	}
	c, err := ch.PickForTarget(targetKademliaID)
	if err != nil {
		return "", 0, err
	}
	return c.RendezvousIP, c.RendezvousPort, nil
}
