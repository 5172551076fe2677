package edgedb

import "github.com/goerch/edgedb-net/internal/protocol"

// Logger, LogEvent and the stock implementations are defined in
// internal/protocol (most events originate inside the connection
// lifecycle) and re-exported here as the public logging surface.
type (
	Logger   = protocol.Logger
	LogEvent = protocol.LogEvent
)

type (
	SlogLogger   = protocol.SlogLogger
	SimpleLogger = protocol.SimpleLogger
	NoopLogger   = protocol.NoopLogger
)

// NewSlogLogger adapts a *slog.Logger (nil selects slog.Default()).
var NewSlogLogger = protocol.NewSlogLogger
