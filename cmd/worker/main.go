// Command worker runs a single cluster node: it accepts the host's
// fabric messages (config broadcast, partition assignment, dataset
// load, queries) and blocks until a remote or local shutdown retires
// it.
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/arxgeo/geodist/internal/controller"
	"github.com/arxgeo/geodist/internal/logger"
)

func main() {
	var (
		rank    = flag.Int("rank", 1, "this node's rank within the cluster; rank 0 is always the host")
		addr    = flag.String("addr", ":1", "address to accept fabric connections on; override when port 1 isn't bindable")
		verbose = flag.Bool("verbose", false, "enable debug logging")
	)
	flag.Parse()

	if *verbose {
		logger.SetLevel(logger.DEBUG)
	}

	w := controller.NewWorkerController(int32(*rank))
	bound, err := w.Listen(*addr)
	if err != nil {
		logger.Error("worker: listen on %s: %v", *addr, err)
		os.Exit(1)
	}
	logger.Info("worker: rank %d accepting fabric connections on %s", *rank, bound)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sig:
		logger.Info("worker: signal received, shutting down")
		w.Shutdown()
	case <-w.Done():
		logger.Info("worker: retired by host")
	}
}
