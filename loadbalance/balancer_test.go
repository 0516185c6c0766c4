package loadbalance

import (
	"fmt"
	"testing"

	"p2prpc/routingtable"
)

var testPool = []routingtable.Contact{
	{KademliaID: "peer-a", HostIP: "10.0.0.1", HostPort: 8001, Weight: 10},
	{KademliaID: "peer-b", HostIP: "10.0.0.2", HostPort: 8002, Weight: 5},
	{KademliaID: "peer-c", HostIP: "10.0.0.3", HostPort: 8003, Weight: 10},
}

func TestRoundRobin(t *testing.T) {
	b := &RoundRobinBalancer{}

	results := make([]string, 3)
	for i := 0; i < 3; i++ {
		c, err := b.Pick(testPool)
		if err != nil {
			t.Fatal(err)
		}
		results[i] = c.KademliaID
	}

	c, _ := b.Pick(testPool)
	if c.KademliaID != results[0] {
		t.Fatalf("expected wrap around to %s, got %s", results[0], c.KademliaID)
	}
}

func TestRoundRobinEmpty(t *testing.T) {
	b := &RoundRobinBalancer{}
	if _, err := b.Pick(nil); err == nil {
		t.Fatal("expected error for empty pool")
	}
}

func TestWeightedRandom(t *testing.T) {
	b := &WeightedRandomBalancer{}

	counts := map[string]int{}
	n := 10000
	for i := 0; i < n; i++ {
		c, err := b.Pick(testPool)
		if err != nil {
			t.Fatal(err)
		}
		counts[c.KademliaID]++
	}

	ratio := float64(counts["peer-a"]) / float64(counts["peer-b"])
	if ratio < 1.5 || ratio > 2.5 {
		t.Fatalf("weight ratio peer-a/peer-b = %.2f, expected ~2.0", ratio)
	}
}

func TestConsistentHashStableForSameTarget(t *testing.T) {
	b := NewConsistentHashBalancer()
	b.Rebuild(testPool)

	c1, err := b.PickForTarget("target-123")
	if err != nil {
		t.Fatal(err)
	}
	c2, err := b.PickForTarget("target-123")
	if err != nil {
		t.Fatal(err)
	}
	if c1.KademliaID != c2.KademliaID {
		t.Fatalf("same target mapped to different peers: %s vs %s", c1.KademliaID, c2.KademliaID)
	}

	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		c, err := b.PickForTarget(fmt.Sprintf("target-%d", i))
		if err != nil {
			t.Fatal(err)
		}
		seen[c.KademliaID] = true
	}
	if len(seen) < 2 {
		t.Fatalf("expected at least 2 distinct peers across 100 targets, got %d", len(seen))
	}
}
