// Package registry lets RPC servers advertise where they listen and lets
// clients find them by service name.
package registry

import "errors"

var ErrNoInstances = errors.New("registry: no instances")

// ServiceInstance describes one listening server.
type ServiceInstance struct {
	Network string // "unix" or "tcp"
	Addr    string
	Weight  int // Weight for load balancing
	Version string
}

type Registry interface {
	Register(serviceName string, instance ServiceInstance, ttl int64) error
	Deregister(serviceName string, addr string) error
	Discover(serviceName string) ([]ServiceInstance, error)
	Watch(serviceName string) <-chan []ServiceInstance
}
