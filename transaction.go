package edgedb

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrTxClosed is returned by any Tx method called after its callback
// has returned — the façade a transaction hands to its callback is
// invalid once the callback exits, so misuse (e.g. a leaked Tx used
// from a goroutine started inside the callback) fails loudly instead
// of racing the connection back into the pool.
var ErrTxClosed = errors.New("edgedb: transaction façade used after its callback returned")

// Tx is the façade passed to a transaction callback: every query method
// a Client exposes, scoped to the one connection and transaction this
// callback is running inside of. Transactions never nest — calling
// Client.Tx from within a callback uses a fresh connection and fails
// the (distinct, unrelated) outer transaction's assumption of
// exclusive access to its connection, which is a caller bug, not
// something this driver can detect generically.
type Tx struct {
	conn   *txConn
	closed bool
}

func (t *Tx) requireOpen() error {
	if t.closed {
		return ErrTxClosed
	}
	return nil
}

// Execute runs a query inside the transaction, discarding any result.
func (t *Tx) Execute(ctx context.Context, query string, args ...any) error {
	if err := t.requireOpen(); err != nil {
		return err
	}
	_, err := t.conn.execute(ctx, query, args, cardinalityMany)
	return err
}

// Query runs a query inside the transaction and returns every result row.
func (t *Tx) Query(ctx context.Context, query string, args ...any) ([]any, error) {
	if err := t.requireOpen(); err != nil {
		return nil, err
	}
	return t.conn.execute(ctx, query, args, cardinalityMany)
}

// QuerySingle runs a query expected to return at most one row.
func (t *Tx) QuerySingle(ctx context.Context, query string, args ...any) (any, error) {
	if err := t.requireOpen(); err != nil {
		return nil, err
	}
	rows, err := t.conn.execute(ctx, query, args, cardinalityAtMostOne)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// TxFunc is a transaction callback. Returning a non-nil error rolls the
// transaction back; returning nil commits it. A retryable failure
// (detected via IsRetryable on whatever the callback or the commit
// itself returned) causes the whole callback to re-run from the start
// against a fresh transaction, so callbacks must be idempotent and must
// not have observable side effects outside the database before they
// return.
type TxFunc func(ctx context.Context, tx *Tx) error

// runTransaction drives one callback through the retry loop described
// in spec §5: begin, run the callback, commit or rollback, and on a
// retryable failure back off (per the teacher's
// connection_pool_retryable.go use of cenkalti/backoff/v4) and try
// again from a fresh BEGIN on a fresh connection.
func runTransaction(ctx context.Context, c *Client, opts RetryOptions, fn TxFunc) error {
	rule := opts.TransactionConflict
	if rule.MaxAttempts <= 0 {
		rule = DefaultRetryRule
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = rule.BackoffMin
	bo.MaxInterval = rule.BackoffMax
	bo.MaxElapsedTime = 0 // bounded by MaxAttempts instead of wall-clock

	attempt := 0
	var lastErr error
	for attempt < rule.MaxAttempts {
		attempt++
		err := attemptTransaction(ctx, c, fn)
		if err == nil {
			return nil
		}
		lastErr = err
		if !IsRetryable(err) || attempt == rule.MaxAttempts {
			return err
		}

		wait := bo.NextBackOff()
		if wait == backoff.Stop {
			return err
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

func attemptTransaction(ctx context.Context, c *Client, fn TxFunc) (err error) {
	raw, err := c.pool.Borrow(ctx)
	if err != nil {
		return err
	}
	released := false
	release := func() {
		if !released {
			released = true
			c.pool.Release(ctx, raw)
		}
	}
	defer release()

	tc := &txConn{client: c, raw: raw}

	if _, err = tc.execute(ctx, "start transaction", nil, cardinalityMany); err != nil {
		return err
	}

	tx := &Tx{conn: tc}
	cbErr := fn(ctx, tx)
	tx.closed = true

	if cbErr != nil {
		if _, rerr := tc.execute(ctx, "rollback", nil, cardinalityMany); rerr != nil {
			return joinErrors(cbErr, rerr)
		}
		return cbErr
	}

	if _, err = tc.execute(ctx, "commit", nil, cardinalityMany); err != nil {
		return err
	}
	return nil
}
