// Package loadbalance provides selection strategies over a pool of
// rendezvous-candidate peers (routingtable.Contact), generalized from
// service-instance load balancing to peer-pool selection:
//   - RoundRobin:      rotate through a known rendezvous-peer pool between
//                       keepalive-ping cycles, spreading load evenly.
//   - WeightedRandom:  pick a bootstrap peer with probability proportional
//                       to its advertised Weight (e.g. capacity, uptime).
//   - ConsistentHash:  pick the same rendezvous peer for a given target id
//                       every time, so repeated hole-punch attempts for
//                       the same peer land on one consistent relay.
package loadbalance

import "p2prpc/routingtable"

// Balancer selects one contact from a candidate pool. Pick is called on
// every selection and must be goroutine-safe.
type Balancer interface {
	Pick(pool []routingtable.Contact) (*routingtable.Contact, error)
	Name() string
}
