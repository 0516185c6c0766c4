package loadbalance

import (
	"fmt"
	"math/rand"

	"p2prpc/routingtable"
)

// WeightedRandomBalancer picks a bootstrap rendezvous peer with
// probability proportional to its Contact.Weight, so a handful of
// well-provisioned bootstrap peers absorb proportionally more of the
// initial rendezvous load than a barely-reachable one.
type WeightedRandomBalancer struct{}

func (b *WeightedRandomBalancer) Pick(pool []routingtable.Contact) (*routingtable.Contact, error) {
	if len(pool) == 0 {
		return nil, fmt.Errorf("loadbalance: empty rendezvous pool")
	}

	totalWeight := 0
	for _, c := range pool {
		totalWeight += weightOrDefault(c)
	}
	if totalWeight <= 0 {
		return &pool[rand.Intn(len(pool))], nil
	}

	r := rand.Intn(totalWeight)
	for i := range pool {
		r -= weightOrDefault(pool[i])
		if r < 0 {
			return &pool[i], nil
		}
	}
	return nil, fmt.Errorf("loadbalance: weighted selection fell through")
}

func weightOrDefault(c routingtable.Contact) int {
	if c.Weight <= 0 {
		return 1
	}
	return c.Weight
}

func (b *WeightedRandomBalancer) Name() string { return "WeightedRandom" }
