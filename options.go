package edgedb

import (
	"time"

	"github.com/goerch/edgedb-net/internal/protocol"
)

// TLSOptions re-exports the protocol engine's TLS configuration.
type TLSOptions = protocol.TLSOptions

// RetryRule sets how many attempts to make and how to back off between
// them when retrying a retryable failure.
type RetryRule struct {
	MaxAttempts int
	BackoffMin  time.Duration
	BackoffMax  time.Duration
}

// DefaultRetryRule backs off exponentially from 100ms up to 5s across
// at most 3 attempts, jittered by backoff.v4's default algorithm.
var DefaultRetryRule = RetryRule{MaxAttempts: 3, BackoffMin: 100 * time.Millisecond, BackoffMax: 5 * time.Second}

// RetryOptions governs Client.Tx's retry loop. The loop applies
// TransactionConflict's rule to every retryable failure, whatever its
// kind; NetworkError is carried here but not consulted.
type RetryOptions struct {
	TransactionConflict RetryRule
	NetworkError        RetryRule
}

// DefaultRetryOptions mirrors the teacher's connection_pool_retryable.go
// defaults: a handful of attempts with capped exponential backoff.
var DefaultRetryOptions = RetryOptions{
	TransactionConflict: DefaultRetryRule,
	NetworkError:        DefaultRetryRule,
}

// ClientType labels the kind of client (plain driver vs a higher-level
// ORM layered on top), mirroring the teacher's distinction between its
// raw Connection and its pooled/balanced wrappers. The value is kept in
// Options only; the connection handshake does not send it.
type ClientType string

const (
	ClientTypeDriver ClientType = "edgedb"
	ClientTypeORM    ClientType = "edgedb-orm"
)

// Options configures a Client: the server address, credentials,
// pool sizing, timeouts, TLS, and retry policy. Mirrors the teacher's
// Opts/DialOpts pair, collapsed into one struct since this driver has a
// single dial path instead of a pluggable Dialer interface.
type Options struct {
	Address  string
	Database string
	Username string
	Password string

	TLS *TLSOptions

	MaxConnections int
	ConnectTimeout time.Duration
	CommandTimeout time.Duration
	WaitTimeout    time.Duration // time Borrow will wait for a free connection

	Retry  RetryOptions
	Logger Logger

	ClientType ClientType
}

// DefaultOptions returns sane defaults for everything but Address,
// Username and Password, which the caller must supply.
func DefaultOptions() Options {
	return Options{
		MaxConnections: 10,
		ConnectTimeout: 10 * time.Second,
		CommandTimeout: 0, // no limit
		WaitTimeout:    30 * time.Second,
		Retry:          DefaultRetryOptions,
		ClientType:     ClientTypeDriver,
	}
}

// Clone returns a deep-enough copy for structural-sharing safety: the
// TLS pointer is copied, not aliased, so callers can derive variant
// Options without mutating a shared instance. Mirrors the teacher's
// Opts.Clone() used when deriving per-shard dial options.
func (o Options) Clone() Options {
	out := o
	if o.TLS != nil {
		tls := *o.TLS
		out.TLS = &tls
	}
	return out
}

func (o Options) dialOptions() protocol.DialOptions {
	return protocol.DialOptions{
		DialTimeout: o.ConnectTimeout,
		// CommandTimeout doubles as the connection's fallback per-frame
		// socket deadline for whichever query ctx carries no deadline
		// of its own; executeRaw also derives an explicit ctx timeout
		// from it, so this is a second line of defense at the socket
		// level rather than the primary enforcement point.
		ReadTimeout:  o.CommandTimeout,
		WriteTimeout: o.CommandTimeout,
		TLS:          o.TLS,
		Username:     o.Username,
		Password:     o.Password,
		Database:     o.Database,
		Logger:       o.Logger,
	}
}
