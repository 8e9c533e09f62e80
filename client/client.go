// Package client calls functions on RPC servers.
//
// Conn is a single connection. Client sits on top: it finds the instances
// of a named service in a registry, picks one with a load balancer and
// borrows a Conn from that instance's pool for the duration of the call.
//
//	Client.Call ─► instances ─► Balancer.Pick ─► ConnPool.Get ─► Conn.Call
//	                  ▲
//	Registry.Watch ───┘ (Registry.Discover on first use)
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"ipcrpc/loadbalance"
	"ipcrpc/message"
	"ipcrpc/protocol"
	"ipcrpc/registry"
	"ipcrpc/transport"
)

var ErrClientClosed = errors.New("client: closed")

// DefaultNetwork is used for instances registered without a network.
const DefaultNetwork = "unix"

type Client struct {
	registry registry.Registry
	balancer loadbalance.Balancer
	opts     options

	mu       sync.Mutex
	pools    map[string]*transport.ConnPool[*Conn] // network://addr → pool
	services map[string]*serviceView
	closed   bool
	done     chan struct{}
}

// serviceView is the client's copy of one service's instance list, kept
// current by a registry watch.
type serviceView struct {
	instances []registry.ServiceInstance
	synced    bool
}

func NewClient(reg registry.Registry, bal loadbalance.Balancer, opts ...Option) *Client {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Client{
		registry: reg,
		balancer: bal,
		opts:     o,
		pools:    make(map[string]*transport.ConnPool[*Conn]),
		services: make(map[string]*serviceView),
		done:     make(chan struct{}),
	}
}

// Call invokes functionID on an instance of service. Discovery and balancing
// errors are returned as is. When WithRetry allows it, a call is retried on a
// freshly picked instance if it failed before the request was sent: dialing,
// a closed pooled connection or a failed send. Once the request is out, a
// lost or malformed reply is returned without retrying, since the function
// may already have run. Result codes are never retried.
func (c *Client) Call(ctx context.Context, service string, functionID uint32, args *message.Args) (*protocol.Response, error) {
	var err error
	for attempt := 0; ; attempt++ {
		var resp *protocol.Response
		var retryable bool
		resp, retryable, err = c.call(ctx, service, functionID, args)
		if err == nil {
			return resp, nil
		}
		if !retryable || attempt >= c.opts.retries {
			return nil, err
		}

		c.opts.logger.Warn("call failed, retrying",
			zap.String("service", service),
			zap.Uint32("function_id", functionID),
			zap.Int("attempt", attempt+1),
			zap.Error(err))

		select {
		case <-time.After(c.opts.backoff):
		case <-ctx.Done():
			return nil, multierr.Append(err, ctx.Err())
		}
	}
}

// Invoke is Call followed by protocol.CheckError on the result code.
func (c *Client) Invoke(ctx context.Context, service string, functionID uint32, args *message.Args) ([]byte, error) {
	resp, err := c.Call(ctx, service, functionID, args)
	if err != nil {
		return nil, err
	}
	if err := protocol.CheckError(resp.Result); err != nil {
		return nil, fmt.Errorf("%s function %d: %w", service, functionID, err)
	}
	return resp.Data, nil
}

// call makes one attempt. The bool reports whether the failure happened in
// the transport and may succeed on another try.
func (c *Client) call(ctx context.Context, service string, functionID uint32, args *message.Args) (*protocol.Response, bool, error) {
	instances, err := c.instances(service)
	if err != nil {
		return nil, false, err
	}
	inst, err := c.balancer.Pick(instances)
	if err != nil {
		return nil, false, fmt.Errorf("pick %s instance: %w", service, err)
	}

	pool, err := c.pool(*inst)
	if err != nil {
		return nil, false, err
	}
	conn, err := pool.Get(ctx)
	if err != nil {
		retryable := !errors.Is(err, transport.ErrPoolClosed) && ctx.Err() == nil
		return nil, retryable, fmt.Errorf("connect to %s: %w", inst.Addr, err)
	}

	resp, err := conn.Call(functionID, args)
	if err != nil {
		pool.Discard(conn)
		return nil, NotSent(err), err
	}
	pool.Put(conn)
	return resp, false, nil
}

// instances returns the known instances of service. The first call for a
// service starts watching it and reads the registry once; later calls use
// the list the watch keeps up to date.
func (c *Client) instances(service string) ([]registry.ServiceInstance, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClientClosed
	}
	v, ok := c.services[service]
	if !ok {
		v = &serviceView{}
		c.services[service] = v
		go c.watch(service, v, c.registry.Watch(service))
	}
	if v.synced {
		return v.instances, nil
	}
	instances, err := c.registry.Discover(service)
	if err != nil {
		return nil, fmt.Errorf("discover %s: %w", service, err)
	}
	v.instances, v.synced = instances, true
	return instances, nil
}

// watch applies registry updates to v until the client closes. If the
// registry ends the watch, v is dropped and the next call starts over.
func (c *Client) watch(service string, v *serviceView, updates <-chan []registry.ServiceInstance) {
	for {
		select {
		case <-c.done:
			return
		case instances, ok := <-updates:
			c.mu.Lock()
			if !ok {
				if c.services[service] == v {
					delete(c.services, service)
				}
				c.mu.Unlock()
				c.opts.logger.Debug("registry watch ended", zap.String("service", service))
				return
			}
			v.instances, v.synced = instances, true
			c.mu.Unlock()
			c.opts.logger.Debug("instances changed",
				zap.String("service", service), zap.Int("instances", len(instances)))
		}
	}
}

func (c *Client) pool(inst registry.ServiceInstance) (*transport.ConnPool[*Conn], error) {
	network := inst.Network
	if network == "" {
		network = DefaultNetwork
	}
	key := network + "://" + inst.Addr

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClientClosed
	}
	if p, ok := c.pools[key]; ok {
		return p, nil
	}

	dial := c.opts.dialer
	if dial == nil {
		dial = transport.StreamDialer(network)
	}
	p := transport.NewConnPool(c.opts.poolSize, func(ctx context.Context) (*Conn, error) {
		ch, err := dial(ctx, inst.Addr)
		if err != nil {
			return nil, err
		}
		c.opts.logger.Debug("connected", zap.String("addr", key))
		return NewConn(ch), nil
	})
	c.pools[key] = p
	return p, nil
}

// Close stops the registry watches and closes every idle pooled
// connection. Connections in use are closed as their calls finish.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.done)
	var err error
	for key, p := range c.pools {
		err = multierr.Append(err, p.Close())
		delete(c.pools, key)
	}
	return err
}
