package loadbalance

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ipcrpc/registry"
)

var testInstances = []registry.ServiceInstance{
	{Network: "unix", Addr: "/run/rpc-1.sock", Weight: 10, Version: "1.0"},
	{Network: "unix", Addr: "/run/rpc-2.sock", Weight: 5, Version: "1.0"},
	{Network: "unix", Addr: "/run/rpc-3.sock", Weight: 10, Version: "1.0"},
}

func TestRoundRobin(t *testing.T) {
	b := &RoundRobinBalancer{}

	var results []string
	for i := 0; i < 3; i++ {
		inst, err := b.Pick(testInstances)
		require.NoError(t, err)
		results = append(results, inst.Addr)
	}
	assert.Equal(t, []string{"/run/rpc-1.sock", "/run/rpc-2.sock", "/run/rpc-3.sock"}, results)

	// Wraps around to the first one.
	inst, err := b.Pick(testInstances)
	require.NoError(t, err)
	assert.Equal(t, results[0], inst.Addr)
}

func TestEmptyInstances(t *testing.T) {
	balancers := []Balancer{
		&RoundRobinBalancer{},
		&WeightedRandomBalancer{},
		NewConsistentHashBalancer("k"),
	}
	for _, b := range balancers {
		t.Run(b.Name(), func(t *testing.T) {
			_, err := b.Pick(nil)
			assert.ErrorIs(t, err, registry.ErrNoInstances)
		})
	}
}

func TestWeightedRandom(t *testing.T) {
	b := &WeightedRandomBalancer{}

	counts := map[string]int{}
	for i := 0; i < 10000; i++ {
		inst, err := b.Pick(testInstances)
		require.NoError(t, err)
		counts[inst.Addr]++
	}

	// Weights are 10:5:10, so rpc-1 should get about twice what rpc-2 gets.
	ratio := float64(counts["/run/rpc-1.sock"]) / float64(counts["/run/rpc-2.sock"])
	assert.InDelta(t, 2.0, ratio, 0.5)
}

func TestWeightedRandomZeroWeights(t *testing.T) {
	b := &WeightedRandomBalancer{}
	insts := []registry.ServiceInstance{{Addr: "a"}, {Addr: "b"}}

	for i := 0; i < 100; i++ {
		inst, err := b.Pick(insts)
		require.NoError(t, err)
		assert.Contains(t, []string{"a", "b"}, inst.Addr)
	}

	// Positive weights win over zero ones.
	insts = []registry.ServiceInstance{{Addr: "a"}, {Addr: "b", Weight: 1}}
	for i := 0; i < 100; i++ {
		inst, err := b.Pick(insts)
		require.NoError(t, err)
		assert.Equal(t, "b", inst.Addr)
	}
}

func TestConsistentHash(t *testing.T) {
	b := NewConsistentHashBalancer("")
	for _, inst := range testInstances {
		b.Add(inst)
	}

	inst1, err := b.PickKey("user-123")
	require.NoError(t, err)
	inst2, err := b.PickKey("user-123")
	require.NoError(t, err)
	assert.Equal(t, inst1.Addr, inst2.Addr)

	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		inst, err := b.PickKey(fmt.Sprintf("key-%d", i))
		require.NoError(t, err)
		seen[inst.Addr] = true
	}
	assert.GreaterOrEqual(t, len(seen), 2)
}

func TestConsistentHashRemove(t *testing.T) {
	b := NewConsistentHashBalancer("")
	for _, inst := range testInstances {
		b.Add(inst)
	}

	owner, err := b.PickKey("session-9")
	require.NoError(t, err)
	b.Remove(owner.Addr)

	moved, err := b.PickKey("session-9")
	require.NoError(t, err)
	assert.NotEqual(t, owner.Addr, moved.Addr)

	// Keys owned by the remaining instances don't move.
	for i := 0; i < 50; i++ {
		key := fmt.Sprintf("key-%d", i)
		b.Add(*owner)
		before, err := b.PickKey(key)
		require.NoError(t, err)
		b.Remove(owner.Addr)
		after, err := b.PickKey(key)
		require.NoError(t, err)
		if before.Addr != owner.Addr {
			assert.Equal(t, before.Addr, after.Addr, key)
		}
	}
}

func TestConsistentHashAsBalancer(t *testing.T) {
	b := NewConsistentHashBalancer("client-42")

	first, err := b.Pick(testInstances)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		inst, err := b.Pick(testInstances)
		require.NoError(t, err)
		assert.Equal(t, first.Addr, inst.Addr)
	}

	// The ring follows the instance list.
	var rest []registry.ServiceInstance
	for _, inst := range testInstances {
		if inst.Addr != first.Addr {
			rest = append(rest, inst)
		}
	}
	inst, err := b.Pick(rest)
	require.NoError(t, err)
	assert.NotEqual(t, first.Addr, inst.Addr)
}
