package nbdserver

import (
	"net"

	"github.com/rs/zerolog"

	"github.com/nbdserver/nbdserver/internal/driver"
	"github.com/nbdserver/nbdserver/internal/metrics"
	"github.com/nbdserver/nbdserver/internal/wire"
)

// ServerConfig is immutable once a ServerBuilder finalizes it; every
// shard holds a reference to the same instance.
type ServerConfig struct {
	Port           int
	HandshakeFlags uint16
	OptionHandlers map[wire.Opt]OptionHandler
	Registry       *driver.Registry
	Logger         zerolog.Logger
	Metrics        *metrics.Metrics
}

// ServerBuilder assembles a ServerConfig and the ServerState it will
// share across connections, following the teacher's constructor-option
// pattern rather than a struct literal with exported mutable fields.
type ServerBuilder struct {
	port           int
	handshakeFlags uint16
	optionHandlers map[wire.Opt]OptionHandler
	registry       *driver.Registry
	logger         zerolog.Logger
	metrics        *metrics.Metrics
}

// NewServerBuilder returns a builder seeded with the server's defaults:
// port 10809, FIXED_NEWSTYLE advertised, the default option-handler
// table, and the process-wide driver registry.
func NewServerBuilder() *ServerBuilder {
	return &ServerBuilder{
		port:           wire.DefaultPort,
		handshakeFlags: wire.FlagFixedNewstyle,
		optionHandlers: defaultOptionHandlers(),
		registry:       driver.Default(),
		logger:         zerolog.Nop(),
	}
}

// WithPort overrides the TCP port the server listens on.
func (b *ServerBuilder) WithPort(port int) *ServerBuilder {
	b.port = port
	return b
}

// WithLogger overrides the zerolog logger shards and the acceptor log
// through.
func (b *ServerBuilder) WithLogger(logger zerolog.Logger) *ServerBuilder {
	b.logger = logger
	return b
}

// WithMetrics attaches a Prometheus metrics sink. Passing nil (the
// default) disables metrics entirely; every recorder call is then a
// no-op.
func (b *ServerBuilder) WithMetrics(m *metrics.Metrics) *ServerBuilder {
	b.metrics = m
	return b
}

// WithOptionHandler overrides (or adds) the handler for a single option
// code, leaving the rest of the dispatch table untouched.
func (b *ServerBuilder) WithOptionHandler(opt wire.Opt, h OptionHandler) *ServerBuilder {
	b.optionHandlers[opt] = h
	return b
}

// WithRegistry sets the driver registry stored in ServerConfig.Registry.
// Defaults to the process-wide registry returned by driver.Default().
// The ExportName and List handlers resolve images through ServerState
// and do not consult this registry.
func (b *ServerBuilder) WithRegistry(r *driver.Registry) *ServerBuilder {
	b.registry = r
	return b
}

// Build finalizes the configuration and returns a Server ready to
// accept connections against a freshly-allocated, empty ServerState.
// The host program is expected to populate that state (AddImage,
// SetDefaultDriver) before calling Run.
func (b *ServerBuilder) Build() *Server {
	cfg := &ServerConfig{
		Port:           b.port,
		HandshakeFlags: b.handshakeFlags,
		OptionHandlers: b.optionHandlers,
		Registry:       b.registry,
		Logger:         b.logger,
		Metrics:        b.metrics,
	}
	return &Server{
		config: cfg,
		state:  NewServerState(),
		ready:  make(chan net.Addr, 1),
	}
}
