package protocol

import (
	"context"
	"sync"
)

// CommandLock serializes access to a single connection's request/response
// cycle: at most one goroutine may be mid-command at a time, since the
// wire protocol has no stream multiplexing. Mirrors the teacher's
// per-shard mutex pairing (the mutex guarding connShard.buf alongside a
// context-aware wait), generalized to a single connection-scoped lock
// with context cancellation instead of the teacher's fixed request
// timeout.
type CommandLock struct {
	mu   sync.Mutex
	held chan struct{} // non-nil and closed-on-release once acquired
}

// NewCommandLock returns an unlocked lock.
func NewCommandLock() *CommandLock {
	return &CommandLock{}
}

// Acquire blocks until the lock is free or ctx is done, whichever comes
// first. The returned release func must be called exactly once to free
// the lock; it is safe to call from any goroutine.
func (l *CommandLock) Acquire(ctx context.Context) (release func(), err error) {
	for {
		l.mu.Lock()
		if l.held == nil {
			done := make(chan struct{})
			l.held = done
			l.mu.Unlock()
			return func() {
				l.mu.Lock()
				if l.held == done {
					l.held = nil
				}
				l.mu.Unlock()
				close(done)
			}, nil
		}
		waitOn := l.held
		l.mu.Unlock()

		select {
		case <-waitOn:
			// Loop back and try again; another waiter may have won the race.
		case <-ctx.Done():
			return nil, NewCancellationError(ctx.Err())
		}
	}
}

// TryAcquire attempts to acquire the lock without blocking. ok is false
// if the connection is already mid-command.
func (l *CommandLock) TryAcquire() (release func(), ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held != nil {
		return nil, false
	}
	done := make(chan struct{})
	l.held = done
	return func() {
		l.mu.Lock()
		if l.held == done {
			l.held = nil
		}
		l.mu.Unlock()
		close(done)
	}, true
}

// Locked reports whether the connection is currently mid-command. Used
// by the pool's health check (Ready && NotInTx also requires the
// connection not be locked).
func (l *CommandLock) Locked() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held != nil
}
