package loadbalance

import (
	"fmt"
	"sync/atomic"

	"p2prpc/routingtable"
)

// RoundRobinBalancer rotates through the rendezvous-peer pool in order,
// one step per Pick — used by the ping loop to spread keepalive load
// across a known set of rendezvous peers rather than hammering one.
type RoundRobinBalancer struct {
	counter int64
}

func (b *RoundRobinBalancer) Pick(pool []routingtable.Contact) (*routingtable.Contact, error) {
	if len(pool) == 0 {
		return nil, fmt.Errorf("loadbalance: empty rendezvous pool")
	}
	index := atomic.AddInt64(&b.counter, 1) % int64(len(pool))
	return &pool[index], nil
}

func (b *RoundRobinBalancer) Name() string { return "RoundRobin" }
