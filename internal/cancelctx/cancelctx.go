// Package cancelctx implements the single cancellation primitive
// threaded through every blocking operation in the transport engine
// (spec §4.8, §9 "Cancellation propagation"). It is a thin, explicit
// wrapper around context.Context/CancelCauseFunc rather than exception
// magic or an ad hoc bool flag.
package cancelctx

import (
	"context"
	"sync"

	"github.com/zealer1995/share-file.online/internal/xferrors"
)

// Token is a cancel-once primitive with an optional reason, safe for
// concurrent use. Every wait in the core (waitForBuffer, waitForAccept,
// waitForDone, waitForRemoteCaps, the send pump) selects on Done().
type Token struct {
	ctx    context.Context
	cancel context.CancelCauseFunc

	mu        sync.Mutex
	listeners []func(reason error)
}

// New creates a Token that is cancelled when parent is cancelled, or by
// an explicit call to Abort.
func New(parent context.Context) *Token {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancelCause(parent)
	return &Token{ctx: ctx, cancel: cancel}
}

// Done returns a channel closed once the token is aborted.
func (t *Token) Done() <-chan struct{} { return t.ctx.Done() }

// Aborted reports whether Abort has already been called (or the parent
// context ended).
func (t *Token) Aborted() bool {
	select {
	case <-t.ctx.Done():
		return true
	default:
		return false
	}
}

// Reason returns the reason passed to Abort, or nil if not yet aborted.
func (t *Token) Reason() error {
	return context.Cause(t.ctx)
}

// Abort cancels the token. Idempotent: only the first call's reason is
// retained (spec §8 property 4, "idempotent cancel").
func (t *Token) Abort(reason error) {
	if reason == nil {
		reason = xferrors.New(xferrors.Cancelled, "cancelled")
	}
	t.cancel(reason)

	t.mu.Lock()
	listeners := t.listeners
	t.listeners = nil
	t.mu.Unlock()
	for _, fn := range listeners {
		fn(reason)
	}
}

// OnAbort registers fn to run once the token is aborted. If the token
// is already aborted, fn runs synchronously before OnAbort returns.
func (t *Token) OnAbort(fn func(reason error)) {
	t.mu.Lock()
	if t.Aborted() {
		t.mu.Unlock()
		fn(context.Cause(t.ctx))
		return
	}
	t.listeners = append(t.listeners, fn)
	t.mu.Unlock()
}

// Context exposes the underlying context for use with APIs that accept
// one directly (e.g. pion's data-channel sends do not, but rendezvous
// dials do).
func (t *Token) Context() context.Context { return t.ctx }
