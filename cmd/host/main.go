// Command host runs the cluster's control-plane process: the rank-0
// process a driver CLI invocation talks to over HTTP, which in turn
// drives every worker over the message fabric.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/arxgeo/geodist/internal/config"
	"github.com/arxgeo/geodist/internal/controlplane"
	"github.com/arxgeo/geodist/internal/logger"
	"github.com/arxgeo/geodist/internal/metrics"
)

func main() {
	var (
		listen      = flag.String("listen", ":8090", "address the driver-facing HTTP API binds")
		configPath  = flag.String("config", "", "path to an INI configuration file; empty uses built-in defaults")
		metricsAddr = flag.String("metrics", ":9090", "address the Prometheus /metrics endpoint binds; empty disables it")
		verbose     = flag.Bool("verbose", false, "enable debug logging")
	)
	flag.Parse()

	if *verbose {
		logger.SetLevel(logger.DEBUG)
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			logger.Error("host: load config: %v", err)
			os.Exit(1)
		}
		cfg = loaded
		if err := config.WatchReload(*configPath, func(c *config.Config) {
			logger.Info("host: configuration file changed; new values take effect on the next init")
			cfg = c
		}); err != nil {
			logger.Warn("host: config hot-reload disabled: %v", err)
		}
	}

	reg := metrics.New()
	metrics.Install(reg)
	if *metricsAddr != "" {
		reg.Serve(*metricsAddr)
		defer reg.Stop()
	}

	hub := controlplane.NewHub()
	server := controlplane.NewServer(cfg, hub)
	router := controlplane.NewRouter(server)

	httpServer := &http.Server{
		Addr:         *listen,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("host: control plane listening on %s", *listen)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("host: server error: %v", err)
			os.Exit(1)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("host: shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("host: graceful shutdown failed: %v", err)
	}
	server.Terminate()
}
