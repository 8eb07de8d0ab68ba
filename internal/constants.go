package internal

import "time"

// Roles
const (
	RoleAdapter = "adapter"
	RoleKafka   = "kafka"
	RoleAPI     = "api"
	RoleDev     = "dev"
)

// Message headers set by upstream components and on emitted results
const (
	ComponentHeader = "Gf-Component"
	StreamHeader    = "Gf-Stream"
	ChannelHeader   = "Gf-Channel"
)

// NATS client constants
const (
	NATSConnectionTimeout = 10 * time.Second
	NATSConnectionRetries = 12
	NATSInitialRetryDelay = 1 * time.Second
	NATSMaxRetryDelay     = 30 * time.Second
	NATSMaxConnectionWait = 2 * time.Minute
	NATSDefaultMaxAge     = 24 * time.Hour

	ConsumerInitialRetryDelay = 1 * time.Second
	ConsumerMaxRetryDelay     = 10 * time.Second
	ConsumerRetries           = 10

	FetchMaxWait    = 1 * time.Second
	FetchBatchSize  = 100
	FetchRetryDelay = 100 * time.Millisecond

	AckRetries = 3
)

// Kafka source constants
const (
	KafkaClientID = "glassflow-cep"
)

const (
	ShutdownTimeout                 = 30 * time.Second
	DefaultComponentShutdownTimeout = 5 * time.Second
	DefaultHTTPReadHeaderTimeout    = 10 * time.Second
)
