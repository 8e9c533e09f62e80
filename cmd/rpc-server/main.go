// Command rpc-server serves a small set of demo functions over a unix or
// tcp socket, optionally advertising itself in etcd.
package main

import (
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"ipcrpc/middleware"
	"ipcrpc/registry"
	"ipcrpc/server"
	"ipcrpc/transport"
)

const (
	leaseTTL     = 10 // seconds
	drainTimeout = 10 * time.Second
)

var (
	network = flag.String("network", "unix", "listen network: unix or tcp")
	addr    = flag.String("addr", "/tmp/ipcrpc.sock", "listen address")
	etcd    = flag.String("etcd", "", "comma-separated etcd endpoints; empty disables registration")
	service = flag.String("service", "ipcrpc", "service name to register under")
	weight  = flag.Int("weight", 1, "load balancing weight to register with")
	rateLim = flag.Float64("rate", 0, "max calls per second across all connections, 0 for unlimited")
	burst   = flag.Int("burst", 100, "rate limiter burst")
	debug   = flag.Bool("debug", false, "development logging")
)

func newLogger() (*zap.Logger, error) {
	if *debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func main() {
	flag.Parse()
	os.Exit(run())
}

// run serves until a signal or a fatal error and returns the exit code.
// Deferred cleanup runs before main exits.
func run() int {
	logger, err := newLogger()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sig)

	srv, err := server.NewServer(session{}, functions(newStore()), server.WithLogger(logger))
	if err != nil {
		logger.Error("failed to create server", zap.Error(err))
		return 1
	}
	srv.Use(
		middleware.Logging[session](logger.Named("access")),
		middleware.Recover[session](),
	)
	if *rateLim > 0 {
		srv.Use(middleware.RateLimit[session](*rateLim, *burst))
	}

	l, err := transport.Listen(*network, *addr)
	if err != nil {
		logger.Error("failed to listen", zap.String("network", *network), zap.String("addr", *addr), zap.Error(err))
		return 1
	}

	if *etcd != "" {
		reg, err := registry.NewEtcdRegistry(strings.Split(*etcd, ","), logger)
		if err != nil {
			l.Close()
			logger.Error("failed to connect to etcd", zap.Error(err))
			return 1
		}
		defer reg.Close()
		inst := registry.ServiceInstance{Network: *network, Addr: l.Addr(), Weight: *weight}
		if err := srv.Advertise(reg, *service, inst, leaseTTL); err != nil {
			l.Close()
			logger.Error("failed to register", zap.Error(err))
			return 1
		}
		logger.Info("registered", zap.String("service", *service), zap.String("addr", inst.Addr))
	}

	served := make(chan error, 1)
	go func() { served <- srv.Serve(l) }()

	code := 0
	select {
	case err := <-served:
		if err == nil {
			return 0
		}
		logger.Error("server stopped", zap.Error(err))
		code = 1
	case s := <-sig:
		logger.Info("shutting down", zap.Stringer("signal", s))
	}
	if err := srv.Shutdown(drainTimeout); err != nil {
		logger.Error("shutdown incomplete", zap.Error(err))
		code = 1
	}
	return code
}
