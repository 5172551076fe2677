package edgedb

import (
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/goerch/edgedb-net/internal/protocol"
)

// ClientErrorKind re-exports the driver-raised error taxonomy so
// callers never need to import internal/protocol directly.
type ClientErrorKind = protocol.ClientErrorKind

const (
	KindTransport      = protocol.KindTransport
	KindProtocol       = protocol.KindProtocol
	KindAuthentication = protocol.KindAuthentication
	KindClientMisuse   = protocol.KindClientMisuse
	KindCancellation   = protocol.KindCancellation
)

// ClientError is a driver-raised error: a connection failure, a
// protocol violation, an authentication failure, or caller misuse (e.g.
// calling a transaction method after its callback has returned).
// Mirrors the teacher's ClientError{Code, Msg} split from its
// server-raised Error type.
type ClientError = protocol.ClientError

// Error is raised by the server: an ErrorResponse frame carrying a
// numeric code, a human-readable message, and hints. ShouldRetry and
// ShouldReconcileState reflect the header attributes the server sets to
// tell the client whether a transaction retry is worth attempting and
// whether the client's session state needs reshipping.
type Error struct {
	Code                 uint32
	Message              string
	Hints                []string
	ShouldRetry          bool
	ShouldReconcileState bool
}

func (e *Error) Error() string {
	return fmt.Sprintf("edgedb: error 0x%x: %s", e.Code, e.Message)
}

// Temporary reports whether retrying the operation that produced this
// error might succeed. Used by transaction.go's retry loop.
func (e *Error) Temporary() bool { return e.ShouldRetry }

func fromServerError(se protocol.ServerError) *Error {
	return &Error{
		Code:                 se.Code,
		Message:              se.Message,
		Hints:                se.Hints,
		ShouldRetry:          se.ShouldRetry,
		ShouldReconcileState: se.ShouldReconcile,
	}
}

// IsRetryable reports whether err is worth retrying inside a
// transaction: either a ClientError the driver itself marked Temporary
// (any transport-kind failure; whether result data had already arrived
// is not checked), or a server Error whose ShouldRetry hint is set.
func IsRetryable(err error) bool {
	switch e := err.(type) {
	case ClientError:
		return e.Temporary()
	case *Error:
		return e.Temporary()
	default:
		return false
	}
}

// joinErrors aggregates independent failures (e.g. closing every
// connection in a pool during Client.Close) the way the teacher
// aggregates shutdown errors across shards, using the same
// hashicorp/go-multierror the teacher depends on rather than a
// hand-rolled slice-of-errors type.
func joinErrors(errs ...error) error {
	var result *multierror.Error
	for _, e := range errs {
		if e != nil {
			result = multierror.Append(result, e)
		}
	}
	return result.ErrorOrNil()
}
