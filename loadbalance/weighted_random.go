package loadbalance

import (
	"fmt"
	"math/rand/v2"

	"ipcrpc/registry"
)

// WeightedRandomBalancer picks instances at random in proportion to their
// Weight. Instances with a weight of zero or less are only picked when no
// instance has a positive weight, and then uniformly.
type WeightedRandomBalancer struct{}

func (b *WeightedRandomBalancer) Pick(instances []registry.ServiceInstance) (*registry.ServiceInstance, error) {
	if len(instances) == 0 {
		return nil, registry.ErrNoInstances
	}

	totalWeight := 0
	for _, inst := range instances {
		if inst.Weight > 0 {
			totalWeight += inst.Weight
		}
	}
	if totalWeight == 0 {
		return &instances[rand.IntN(len(instances))], nil
	}

	r := rand.IntN(totalWeight)
	for i := range instances {
		if instances[i].Weight <= 0 {
			continue
		}
		r -= instances[i].Weight
		if r < 0 {
			return &instances[i], nil
		}
	}
	return nil, fmt.Errorf("unexpected error in weighted random selection")
}

func (b *WeightedRandomBalancer) Name() string {
	return "WeightedRandom"
}
