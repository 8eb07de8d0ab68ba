package embedded

import (
	"fmt"
	"log/slog"

	natsServer "github.com/nats-io/nats-server/v2/server"
	natsTest "github.com/nats-io/nats-server/v2/test"
)

// NATSServer is an in-process NATS server with JetStream, used by the dev
// role and by transport tests.
type NATSServer struct {
	server *natsServer.Server
	log    *slog.Logger
}

// NewNATSServer starts the server on port, or on a random port when port is
// -1. JetStream data lives in storeDir, a temporary directory when empty.
func NewNATSServer(log *slog.Logger, port int, storeDir string) (*NATSServer, error) {
	opts := &natsServer.Options{
		Host:      "127.0.0.1",
		Port:      port,
		JetStream: true,
		StoreDir:  storeDir,
		NoLog:     true,
		NoSigs:    true,
	}

	log.Info("starting embedded NATS server", slog.Int("port", port))

	ns := natsTest.RunServer(opts)
	if ns == nil {
		return nil, fmt.Errorf("failed to start NATS server")
	}

	log.Info("embedded NATS server started", slog.String("url", ns.ClientURL()))

	return &NATSServer{
		server: ns,
		log:    log,
	}, nil
}

func (n *NATSServer) Shutdown() {
	if n.server != nil {
		n.log.Info("shutting down embedded NATS server")
		n.server.Shutdown()
		n.server.WaitForShutdown()
	}
}

func (n *NATSServer) URL() string {
	return n.server.ClientURL()
}
