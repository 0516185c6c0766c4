// Package routingtable implements the collaborator-facing routing-table
// lookup: an optional store mapping a kademlia id or a (host_ip,
// host_port) pair to a contact tuple carrying rendezvous coordinates and
// public-key material. The core never writes to this store; it only
// reads from it to decide where and how to reach a peer.
package routingtable

import "sync"

// Contact is the peer contact tuple.
type Contact struct {
	KademliaID     string
	HostIP         string
	HostPort       uint16
	RendezvousIP   string
	RendezvousPort uint16
	PublicKey      []byte
	RTTMillis      int64
	Rank           int
	Space          int64
	Weight         int // relative selection priority, consumed by loadbalance.WeightedRandom
}

func addrKey(ip string, port uint16) string {
	return ip + ":" + itoa(port)
}

func itoa(port uint16) string {
	if port == 0 {
		return "0"
	}
	digits := [5]byte{}
	i := len(digits)
	for port > 0 {
		i--
		digits[i] = byte('0' + port%10)
		port /= 10
	}
	return string(digits[i:])
}

// Table is the read interface the core depends on.
type Table interface {
	Lookup(kademliaID string) (Contact, bool)
	LookupByAddr(hostIP string, hostPort uint16) (Contact, bool)
}

// MemTable is an in-memory reference Table, useful for tests and for
// processes that populate their own contact list out of band.
type MemTable struct {
	mu       sync.RWMutex
	byID     map[string]Contact
	byAddr   map[string]Contact
}

// NewMemTable returns an empty MemTable.
func NewMemTable() *MemTable {
	return &MemTable{
		byID:   make(map[string]Contact),
		byAddr: make(map[string]Contact),
	}
}

// Put inserts or replaces a contact. This is the only write path — it is
// never called from the core RPC path, only from whatever discovery
// mechanism populates the table (bootstrap list, DHT crawl, etc).
func (t *MemTable) Put(c Contact) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byID[c.KademliaID] = c
	t.byAddr[addrKey(c.HostIP, c.HostPort)] = c
}

// Remove deletes a contact by kademlia id.
func (t *MemTable) Remove(kademliaID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok := t.byID[kademliaID]; ok {
		delete(t.byAddr, addrKey(c.HostIP, c.HostPort))
		delete(t.byID, kademliaID)
	}
}

// Lookup finds a contact by kademlia id.
func (t *MemTable) Lookup(kademliaID string) (Contact, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.byID[kademliaID]
	return c, ok
}

// LookupByAddr finds a contact by its announced host address.
func (t *MemTable) LookupByAddr(hostIP string, hostPort uint16) (Contact, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.byAddr[addrKey(hostIP, hostPort)]
	return c, ok
}
