// Package loadbalance picks which server instance a client call goes to.
//
// Three strategies are implemented:
//   - RoundRobin:      equal-capacity instances
//   - WeightedRandom:  instances of different capacity, by Weight
//   - ConsistentHash:  calls that must keep landing on the same server,
//     such as ones relying on per-connection session state
package loadbalance

import "ipcrpc/registry"

// Balancer is the interface for load balancing strategies.
// The client calls Pick() before each call to select a target instance.
type Balancer interface {
	// Pick selects one instance from the available list. It must be safe
	// for concurrent use.
	Pick(instances []registry.ServiceInstance) (*registry.ServiceInstance, error)

	// Name returns the strategy name, for logging.
	Name() string
}
