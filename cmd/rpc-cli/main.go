// Command rpc-cli is an interactive client for rpc-server.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"ipcrpc/client"
	"ipcrpc/cmd/rpc-cli/cli"
	"ipcrpc/loadbalance"
	"ipcrpc/registry"
)

var (
	network = flag.String("network", "unix", "server network: unix or tcp")
	addr    = flag.String("addr", "/tmp/ipcrpc.sock", "server address, used when -etcd is empty")
	etcd    = flag.String("etcd", "", "comma-separated etcd endpoints to discover servers from")
	service = flag.String("service", "ipcrpc", "service name")
	retries = flag.Int("retries", 1, "retries on connection failures")
	debug   = flag.Bool("debug", false, "log client internals to stderr")
)

func main() {
	flag.Parse()
	os.Exit(run())
}

func run() int {
	logger := zap.NewNop()
	if *debug {
		var err error
		if logger, err = zap.NewDevelopment(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
			return 1
		}
	}
	defer logger.Sync()

	var reg registry.Registry
	if *etcd != "" {
		etcdReg, err := registry.NewEtcdRegistry(strings.Split(*etcd, ","), logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to connect to etcd: %v\n", err)
			return 1
		}
		defer etcdReg.Close()
		reg = etcdReg
	} else {
		mem := registry.NewMemoryRegistry()
		mem.Register(*service, registry.ServiceInstance{Network: *network, Addr: *addr, Weight: 1}, 0)
		reg = mem
	}

	c := client.NewClient(reg, &loadbalance.RoundRobinBalancer{},
		client.WithLogger(logger),
		client.WithPoolSize(1),
		client.WithRetry(*retries, 0))
	defer c.Close()

	if err := cli.New(*service, c).Start(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	return 0
}
