package api

import (
	"log/slog"
	"time"
)

// HTTPServerConfig contains all configuration parameters for the registry HTTP server.
type HTTPServerConfig struct {
	// ListenAddr is the address and port the registry API listens on.
	ListenAddr string

	// MetricsAddr is the address and port for the metrics server.
	// If empty, metrics server will not be started.
	MetricsAddr string

	EnablePprof bool

	Log *slog.Logger

	// DrainDuration is the time to wait after marking server not ready
	// before shutting down, allowing load balancers to detect the change.
	DrainDuration time.Duration

	GracefulShutdownDuration time.Duration
	ReadTimeout              time.Duration
	WriteTimeout             time.Duration

	// MaxBodySize caps request bodies. Zero means DefaultMaxBodySize.
	MaxBodySize int64
}

// DefaultMaxBodySize is the request body limit used when none is configured.
const DefaultMaxBodySize = 64 * 1024
