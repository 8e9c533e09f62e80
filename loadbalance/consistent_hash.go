package loadbalance

import (
	"fmt"
	"hash/crc32"
	"slices"
	"sort"
	"sync"

	"ipcrpc/registry"
)

// DefaultReplicas is the number of virtual nodes per instance.
const DefaultReplicas = 100

// ConsistentHashBalancer maps keys to instances using a hash ring, so the
// same key keeps landing on the same instance until the ring changes.
// Each instance is placed on the ring as DefaultReplicas virtual nodes,
// hashed from "{addr}#{i}", to spread the load evenly.
//
//	Hash Ring:
//	                  0
//	                ╱   ╲
//	              ╱       ╲
//	         B ●               ● A
//	           │    key ◆──►   │   (clockwise to nearest node → A)
//	         C ●               ● A' (virtual node of A)
//	              ╲       ╱
//	                ╲   ╱
//
// Used as a Balancer, it hashes the key it was created with: every call
// from that client goes to the same server while the instance set is
// stable.
type ConsistentHashBalancer struct {
	replicas int
	key      string

	mu      sync.RWMutex
	ring    []uint32                           // sorted hashes
	nodes   map[uint32]registry.ServiceInstance // hash → instance
	members map[string]struct{}                // addrs on the ring
}

func NewConsistentHashBalancer(key string) *ConsistentHashBalancer {
	return &ConsistentHashBalancer{
		replicas: DefaultReplicas,
		key:      key,
		nodes:    make(map[uint32]registry.ServiceInstance),
		members:  make(map[string]struct{}),
	}
}

// Add places an instance on the ring. Adding an address twice is a no-op.
func (b *ConsistentHashBalancer) Add(instance registry.ServiceInstance) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.add(instance)
}

func (b *ConsistentHashBalancer) add(instance registry.ServiceInstance) {
	if _, ok := b.members[instance.Addr]; ok {
		return
	}
	b.members[instance.Addr] = struct{}{}
	for i := 0; i < b.replicas; i++ {
		hash := crc32.ChecksumIEEE([]byte(fmt.Sprintf("%s#%d", instance.Addr, i)))
		b.ring = append(b.ring, hash)
		b.nodes[hash] = instance
	}
	slices.Sort(b.ring)
}

// Remove takes an instance off the ring.
func (b *ConsistentHashBalancer) Remove(addr string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.members[addr]; !ok {
		return
	}
	delete(b.members, addr)
	ring := b.ring[:0]
	for _, hash := range b.ring {
		if b.nodes[hash].Addr == addr {
			delete(b.nodes, hash)
			continue
		}
		ring = append(ring, hash)
	}
	b.ring = ring
}

// PickKey finds the instance responsible for key: the first virtual node
// clockwise from the key's hash, wrapping around past the largest one.
func (b *ConsistentHashBalancer) PickKey(key string) (*registry.ServiceInstance, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.pickKey(key)
}

func (b *ConsistentHashBalancer) pickKey(key string) (*registry.ServiceInstance, error) {
	if len(b.ring) == 0 {
		return nil, registry.ErrNoInstances
	}
	hash := crc32.ChecksumIEEE([]byte(key))
	idx := sort.Search(len(b.ring), func(i int) bool {
		return b.ring[i] >= hash
	})
	if idx == len(b.ring) {
		idx = 0
	}
	inst := b.nodes[b.ring[idx]]
	return &inst, nil
}

// Pick brings the ring in line with instances and picks by the
// balancer's key.
func (b *ConsistentHashBalancer) Pick(instances []registry.ServiceInstance) (*registry.ServiceInstance, error) {
	b.mu.RLock()
	same := b.sameMembers(instances)
	if same {
		defer b.mu.RUnlock()
		return b.pickKey(b.key)
	}
	b.mu.RUnlock()

	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.sameMembers(instances) {
		b.ring = b.ring[:0]
		clear(b.nodes)
		clear(b.members)
		for _, inst := range instances {
			b.add(inst)
		}
	}
	return b.pickKey(b.key)
}

func (b *ConsistentHashBalancer) sameMembers(instances []registry.ServiceInstance) bool {
	seen := 0
	for _, inst := range instances {
		if _, ok := b.members[inst.Addr]; !ok {
			return false
		}
		seen++
	}
	return seen == len(b.members)
}

func (b *ConsistentHashBalancer) Name() string {
	return "ConsistentHash"
}
