package loadbalance

import (
	"fmt"
	"hash/crc32"
	"sort"
	"sync"

	"p2prpc/routingtable"
)

// ConsistentHashBalancer maps a target's kademlia id to a hash ring of
// known rendezvous peers, giving the same target id the same relay on
// every hole-punch attempt — so retries and subsequent sessions for one
// target don't bounce between different rendezvous peers.
type ConsistentHashBalancer struct {
	mu       sync.Mutex
	replicas int
	ring     []uint32
	nodes    map[uint32]routingtable.Contact
}

// NewConsistentHashBalancer creates a hash ring with 100 virtual nodes
// per rendezvous peer.
func NewConsistentHashBalancer() *ConsistentHashBalancer {
	return &ConsistentHashBalancer{
		replicas: 100,
		nodes:    make(map[uint32]routingtable.Contact),
	}
}

// Rebuild replaces the ring's contents with the given pool of rendezvous
// peers.
func (b *ConsistentHashBalancer) Rebuild(pool []routingtable.Contact) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ring = b.ring[:0]
	b.nodes = make(map[uint32]routingtable.Contact, len(pool)*b.replicas)
	for _, c := range pool {
		for i := 0; i < b.replicas; i++ {
			key := fmt.Sprintf("%s#%d", c.KademliaID, i)
			hash := crc32.ChecksumIEEE([]byte(key))
			b.ring = append(b.ring, hash)
			b.nodes[hash] = c
		}
	}
	sort.Slice(b.ring, func(i, j int) bool { return b.ring[i] < b.ring[j] })
}

// PickForTarget returns the rendezvous peer affine to targetKademliaID.
func (b *ConsistentHashBalancer) PickForTarget(targetKademliaID string) (*routingtable.Contact, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.ring) == 0 {
		return nil, fmt.Errorf("loadbalance: empty rendezvous ring")
	}

	hash := crc32.ChecksumIEEE([]byte(targetKademliaID))
	idx := sort.Search(len(b.ring), func(i int) bool { return b.ring[i] >= hash })
	if idx == len(b.ring) {
		idx = 0
	}
	c := b.nodes[b.ring[idx]]
	return &c, nil
}

// Pick satisfies the Balancer interface by rebuilding the ring from pool
// and picking for an empty target id — callers that need target-affine
// selection should use Rebuild + PickForTarget directly instead.
func (b *ConsistentHashBalancer) Pick(pool []routingtable.Contact) (*routingtable.Contact, error) {
	b.Rebuild(pool)
	if len(pool) == 0 {
		return nil, fmt.Errorf("loadbalance: empty rendezvous pool")
	}
	return b.PickForTarget("")
}

func (b *ConsistentHashBalancer) Name() string { return "ConsistentHash" }
