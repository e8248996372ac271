// Package pool keeps a bounded cache of authenticated rcon sessions and
// re-runs failed commands on fresh sessions.
package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/wiseops/wise/internal/rcon"
)

// maxAttempts bounds how many sessions one Execute call may burn through
// before giving up.
const maxAttempts = 5

// UnrecoverableError wraps the error that made the pool stop retrying,
// either because retries ran out or because retrying is pointless.
type UnrecoverableError struct {
	Err error
}

func (e *UnrecoverableError) Error() string {
	return fmt.Sprintf("pool gave up: %v", e.Err)
}

func (e *UnrecoverableError) Unwrap() error {
	return e.Err
}

// Pool is a FIFO of idle sessions. Sessions are allocated lazily; a
// session whose last command failed on the transport is dropped instead
// of returned, because a desynced stream would corrupt every response
// after it.
type Pool struct {
	log   *slog.Logger
	creds func() rcon.Credentials

	mu     sync.Mutex
	idle   []*rcon.Session
	closed bool
}

// New creates an empty pool. creds is read on every allocation so a
// configuration reload takes effect on the next handshake.
func New(log *slog.Logger, creds func() rcon.Credentials) *Pool {
	return &Pool{
		log:   log,
		creds: creds,
	}
}

// Acquire pops the oldest idle session, or runs a full handshake when the
// pool is empty. The caller owns the session until Return.
func (p *Pool) Acquire(ctx context.Context) (*rcon.Session, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, errors.New("pool is closed")
	}
	if len(p.idle) > 0 {
		session := p.idle[0]
		p.idle = p.idle[1:]
		p.mu.Unlock()
		return session, nil
	}
	p.mu.Unlock()

	session, err := rcon.Connect(ctx, p.creds())
	if err != nil {
		if rcon.IsUnrecoverable(err) {
			return nil, &UnrecoverableError{Err: err}
		}
		return nil, err
	}
	p.log.Debug("allocated rcon session", "conn", session.ID())
	return session, nil
}

// Return puts a healthy session at the back of the queue. A session that
// just produced a transport error must be closed, not returned.
func (p *Pool) Return(session *rcon.Session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		_ = session.Close()
		return
	}
	p.idle = append(p.idle, session)
}

// Idle returns how many sessions are currently cached.
func (p *Pool) Idle() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}

// Close drops every idle session. Sessions checked out at the time are
// closed when they come back.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	for _, session := range p.idle {
		_ = session.Close()
	}
	p.idle = nil
}

// Execute runs fn with a pooled session. On success the session goes back
// into the pool. A failure status from the server keeps the session alive
// and fn is retried on it; any other error drops the session and fn is
// retried on a fresh one, up to maxAttempts times in total. Retries
// stopping, either by exhaustion or by an unrecoverable error, surface as
// UnrecoverableError.
func Execute[T any](ctx context.Context, p *Pool, fn func(context.Context, *rcon.Session) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		session, err := p.Acquire(ctx)
		if err != nil {
			var unrecoverable *UnrecoverableError
			if errors.As(err, &unrecoverable) {
				return zero, err
			}
			p.log.Debug("session allocation failed", "attempt", attempt, "error", err)
			lastErr = err
			continue
		}

		out, err := fn(ctx, session)
		if err == nil {
			p.Return(session)
			return out, nil
		}

		// A stubbed command never touched the wire and never will
		// succeed; the session is untouched and retrying is pointless.
		if errors.Is(err, rcon.ErrNotImplemented) {
			p.Return(session)
			return zero, err
		}

		// A failure status means the exchange completed; the stream is
		// still in sync and the session stays usable for the retry.
		if errors.Is(err, rcon.ErrFailure) {
			p.Return(session)
			p.log.Debug("command returned failure status, retrying",
				"conn", session.ID(), "attempt", attempt)
			lastErr = err
			continue
		}

		_ = session.Close()
		if rcon.IsUnrecoverable(err) {
			return zero, &UnrecoverableError{Err: err}
		}
		p.log.Debug("command failed, dropping session",
			"conn", session.ID(), "attempt", attempt, "error", err)
		lastErr = err
	}

	return zero, &UnrecoverableError{Err: lastErr}
}
