package protocol

import "fmt"

// ClientErrorKind classifies a driver-raised (as opposed to
// server-raised) failure, per the error taxonomy.
type ClientErrorKind int

const (
	KindTransport ClientErrorKind = iota
	KindProtocol
	KindAuthentication
	KindClientMisuse
	KindCancellation
)

func (k ClientErrorKind) String() string {
	switch k {
	case KindTransport:
		return "Transport"
	case KindProtocol:
		return "Protocol"
	case KindAuthentication:
		return "Authentication"
	case KindClientMisuse:
		return "Client"
	case KindCancellation:
		return "Cancellation"
	default:
		return "Unknown"
	}
}

// ClientError is a driver-raised error: connection failures, protocol
// violations, authentication failures, or caller misuse. Mirrors the
// teacher's ClientError{Code, Msg}, generalized from a numeric code to
// a kind plus an optional wrapped cause.
type ClientError struct {
	Kind  ClientErrorKind
	Msg   string
	Cause error
}

func (e ClientError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e ClientError) Unwrap() error { return e.Cause }

// Temporary reports whether a retry might succeed. Mirrors the
// teacher's ClientError.Temporary() used to drive its retry policy.
func (e ClientError) Temporary() bool {
	switch e.Kind {
	case KindTransport:
		return true
	default:
		return false
	}
}

func NewTransportError(msg string, cause error) ClientError {
	return ClientError{Kind: KindTransport, Msg: msg, Cause: cause}
}

func NewProtocolError(msg string, cause error) ClientError {
	return ClientError{Kind: KindProtocol, Msg: msg, Cause: cause}
}

func NewAuthError(msg string, cause error) ClientError {
	return ClientError{Kind: KindAuthentication, Msg: msg, Cause: cause}
}

func NewMisuseError(msg string) ClientError {
	return ClientError{Kind: KindClientMisuse, Msg: msg}
}

func NewCancellationError(cause error) ClientError {
	return ClientError{Kind: KindCancellation, Msg: "operation canceled", Cause: cause}
}

// ServerError wraps an ErrorResponse frame — the execution-error kind
// in the taxonomy. It carries the server code, message, hints, and the
// should-retry/should-reconcile-state flags the server communicates via
// header attributes.
type ServerError struct {
	Code            uint32
	Message         string
	Hints           []string
	ShouldRetry     bool
	ShouldReconcile bool
}

func (e ServerError) Error() string {
	return fmt.Sprintf("server error 0x%x: %s", e.Code, e.Message)
}

// Well-known ErrorResponse header field ids carrying retry/reconcile hints.
const (
	HeaderHint            uint16 = 1
	HeaderShouldRetry     uint16 = 2
	HeaderShouldReconcile uint16 = 3
)

func NewServerError(resp ErrorResponse) ServerError {
	se := ServerError{Code: resp.Code, Message: resp.Message}
	for _, h := range resp.Headers {
		switch h.Key {
		case HeaderHint:
			se.Hints = append(se.Hints, string(h.Value))
		case HeaderShouldRetry:
			se.ShouldRetry = len(h.Value) == 1 && h.Value[0] == 1
		case HeaderShouldReconcile:
			se.ShouldReconcile = len(h.Value) == 1 && h.Value[0] == 1
		}
	}
	return se
}
