package protocol

import (
	"context"
	"fmt"
	"log"
	"log/slog"
)

// LogEvent is one noteworthy occurrence in the life of a connection:
// dialing, authentication, readiness, a server log message, a
// disconnect.
// Mirrors the teacher's ConnLogKind enum, generalized to the richer
// event set this protocol produces.
type LogEvent struct {
	Name    string
	Level   slog.Level
	Message string
	Attrs   []slog.Attr
}

func (e LogEvent) LogAttrs() []slog.Attr { return e.Attrs }
func (e LogEvent) LogLevel() slog.Level  { return e.Level }
func (e LogEvent) EventName() string     { return e.Name }

func newEvent(name string, level slog.Level, msg string, attrs ...slog.Attr) LogEvent {
	return LogEvent{Name: name, Level: level, Message: msg, Attrs: attrs}
}

// Event constructors for the protocol engine. EventRetry has no caller
// in this module.
func EventConnecting(addr string) LogEvent {
	return newEvent("connecting", slog.LevelDebug, "dialing server", slog.String("address", addr))
}

func EventHandshakeDowngrade(clientMajor, clientMinor, serverMajor, serverMinor uint16) LogEvent {
	return newEvent("handshake_downgrade", slog.LevelInfo, "server negotiated a lower protocol version",
		slog.Int("client_major", int(clientMajor)), slog.Int("client_minor", int(clientMinor)),
		slog.Int("server_major", int(serverMajor)), slog.Int("server_minor", int(serverMinor)))
}

func EventAuthenticated() LogEvent {
	return newEvent("authenticated", slog.LevelInfo, "authentication succeeded")
}

func EventReady(tx TransactionStatus) LogEvent {
	return newEvent("ready", slog.LevelDebug, "connection ready", slog.String("tx_status", tx.String()))
}

func EventServerLog(msg LogMessage) LogEvent {
	return newEvent("server_log", slog.LevelInfo, msg.Text, slog.Int("code", int(msg.Code)))
}

func EventDisconnected(err error) LogEvent {
	attrs := []slog.Attr{}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	return newEvent("disconnected", slog.LevelWarn, "connection lost", attrs...)
}

func EventRetry(attempt int, err error) LogEvent {
	return newEvent("retry", slog.LevelWarn, "retrying after a retryable failure",
		slog.Int("attempt", attempt), slog.String("error", fmt.Sprint(err)))
}

// Logger is the sink a connection reports structured events to.
// Mirrors the teacher's Report(event, *Connection) shape, without the
// connection argument.
type Logger interface {
	Report(event LogEvent)
}

// SlogLogger adapts a *slog.Logger. Dial does not install it by
// default; a nil DialOptions.Logger means NoopLogger.
type SlogLogger struct {
	logger *slog.Logger
	ctx    context.Context
}

func NewSlogLogger(logger *slog.Logger) SlogLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return SlogLogger{logger: logger, ctx: context.Background()}
}

func (l SlogLogger) WithContext(ctx context.Context) SlogLogger {
	return SlogLogger{logger: l.logger, ctx: ctx}
}

func (l SlogLogger) Report(event LogEvent) {
	l.logger.LogAttrs(l.ctx, event.LogLevel(), event.Message, event.Attrs...)
}

// SimpleLogger writes plain lines via the standard log package.
type SimpleLogger struct{}

func (SimpleLogger) Report(event LogEvent) {
	log.Printf("[%s] %s [event=%s]", event.LogLevel(), event.Message, event.EventName())
}

// NoopLogger discards everything; used as a safe zero value.
type NoopLogger struct{}

func (NoopLogger) Report(LogEvent) {}
