package edgedb

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/goerch/edgedb-net/internal/protocol"
)

// rollbackTimeout bounds the fallback rollback Release issues when the
// caller's own ctx is already done — typically exactly why the
// connection ended up InFailedTransaction in the first place (a
// cancelled or timed-out command). Rollback is pool bookkeeping at
// that point, not the caller's operation, so it gets its own budget
// instead of inheriting an already-expired deadline that would make
// recovery impossible.
const rollbackTimeout = 5 * time.Second

var (
	ErrPoolClosed   = errors.New("edgedb: pool is closed")
	ErrBorrowTimeout = errors.New("edgedb: timed out waiting for a free connection")
)

// ConnEvent notifies pool observers of a connection's lifecycle
// transitions, mirroring the teacher's ConnEvent{Conn, Kind} sent on
// connection_pool's notify channel, generalized from Tarantool's
// master/replica reconnect events to this single-endpoint pool's
// simpler connect/disconnect/error set.
type ConnEvent struct {
	Kind ConnEventKind
	Err  error
}

type ConnEventKind int

const (
	ConnEventConnected ConnEventKind = iota
	ConnEventDisconnected
	ConnEventError
)

// pool is a bounded, single-endpoint connection pool: a free list
// (a buffered channel acting as a FIFO), a count of currently open
// connections (capped at MaxConnections), and a notify channel for
// lifecycle events. Mirrors the teacher's connection_pool.go endpoint
// lifecycle and controller goroutine, simplified from multi-endpoint
// round-robin routing to a single address per spec §4.3.
type pool struct {
	opts Options

	mu       sync.Mutex
	free     chan *protocol.Conn
	created  int
	closed   bool

	notify chan ConnEvent
}

func newPool(opts Options) *pool {
	return &pool{
		opts:   opts,
		free:   make(chan *protocol.Conn, opts.MaxConnections),
		notify: make(chan ConnEvent, opts.MaxConnections*2+4),
	}
}

// Notify returns the channel connection lifecycle events are published
// to. Callers that don't read it simply miss events; the channel is
// sized generously so a slow consumer doesn't block the pool.
func (p *pool) Notify() <-chan ConnEvent { return p.notify }

func (p *pool) publish(ev ConnEvent) {
	select {
	case p.notify <- ev:
	default:
	}
}

// Borrow returns a healthy connection, creating one if the pool has not
// yet reached MaxConnections, or waiting on the free list (honoring
// ctx) otherwise. A connection handed out is no longer visible to any
// other Borrow call until Release.
func (p *pool) Borrow(ctx context.Context) (*protocol.Conn, error) {
	if p.opts.WaitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.WaitTimeout)
		defer cancel()
	}
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, ErrPoolClosed
		}
		select {
		case c := <-p.free:
			p.mu.Unlock()
			if c.Healthy() {
				return c, nil
			}
			// Stale/unhealthy connection pulled off the free list: drop it
			// and make room to dial a fresh one.
			c.Close()
			p.mu.Lock()
			p.created--
			p.mu.Unlock()
			continue
		default:
		}
		if p.created < p.opts.MaxConnections {
			p.created++
			p.mu.Unlock()
			c, err := p.dial(ctx)
			if err != nil {
				p.mu.Lock()
				p.created--
				p.mu.Unlock()
				p.publish(ConnEvent{Kind: ConnEventError, Err: err})
				return nil, err
			}
			p.publish(ConnEvent{Kind: ConnEventConnected})
			return c, nil
		}
		p.mu.Unlock()

		select {
		case c := <-p.free:
			if c.Healthy() {
				return c, nil
			}
			c.Close()
			p.mu.Lock()
			p.created--
			p.mu.Unlock()
			continue
		case <-ctx.Done():
			return nil, ErrBorrowTimeout
		}
	}
}

func (p *pool) dial(ctx context.Context) (*protocol.Conn, error) {
	return protocol.Dial(ctx, p.opts.Address, p.opts.dialOptions())
}

// rollbackParse and rollbackExec are the literal "rollback" command
// Release issues on a connection it finds InFailedTransaction. Built
// once since the command never changes; Parse is always sent alongside
// Execute because pool.go has no query cache to skip it with.
var (
	rollbackParse = &protocol.Parse{
		Capabilities: protocol.CapTransaction,
		Cardinality:  protocol.CardinalityMany,
		Query:        "rollback",
		OutputFormat: protocol.FormatNone,
	}
	rollbackExec = protocol.Execute{
		Capabilities: protocol.CapTransaction,
		Cardinality:  protocol.CardinalityMany,
		Query:        "rollback",
		OutputFormat: protocol.FormatNone,
	}
)

// Release returns c to the free list if it is still healthy, or closes
// it and frees a slot for a future dial otherwise. A connection whose
// last known transaction status is InFailedTransaction (an ad hoc
// Execute/Query outside Client.Tx that errored mid-transaction) gets a
// rollback attempt first, per spec §4.3: a successful rollback returns
// it to the pool like any other healthy connection, a failed one
// destroys it same as any other unhealthy connection.
func (p *pool) Release(ctx context.Context, c *protocol.Conn) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		c.Close()
		return
	}
	p.mu.Unlock()

	if c.TxStatus() == protocol.InFailedTransaction {
		rollbackCtx := ctx
		if ctx.Err() != nil {
			var cancel context.CancelFunc
			rollbackCtx, cancel = context.WithTimeout(context.Background(), rollbackTimeout)
			defer cancel()
		}
		if _, err := c.Execute(rollbackCtx, rollbackParse, rollbackExec); err != nil {
			c.Close()
			p.mu.Lock()
			p.created--
			p.mu.Unlock()
			p.publish(ConnEvent{Kind: ConnEventDisconnected})
			return
		}
	}

	if !c.Healthy() {
		c.Close()
		p.mu.Lock()
		p.created--
		p.mu.Unlock()
		p.publish(ConnEvent{Kind: ConnEventDisconnected})
		return
	}
	select {
	case p.free <- c:
	default:
		// Free list is full (shouldn't happen since it's sized to
		// MaxConnections and created never exceeds that), close instead
		// of leaking the connection.
		c.Close()
		p.mu.Lock()
		p.created--
		p.mu.Unlock()
	}
}

// Close closes every idle connection and marks the pool unusable for
// future Borrow calls. Connections currently on loan are closed as they
// are Released instead of immediately, since the pool has no way to
// recall them.
func (p *pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.free)
	p.mu.Unlock()

	var errs []error
	for c := range p.free {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return joinErrors(errs...)
}
