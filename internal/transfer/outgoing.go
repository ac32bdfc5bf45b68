package transfer

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/zealer1995/share-file.online/internal/cancelctx"
)

// OutgoingState is one node of the Outgoing Transfer lifecycle (spec
// §3): queued -> negotiating -> sending -> awaiting-final-ack ->
// {done, cancelled, failed}.
type OutgoingState string

const (
	OutgoingQueued           OutgoingState = "queued"
	OutgoingNegotiating      OutgoingState = "negotiating"
	OutgoingSending          OutgoingState = "sending"
	OutgoingAwaitingFinalAck OutgoingState = "awaiting-final-ack"
	OutgoingDone             OutgoingState = "done"
	OutgoingCancelled        OutgoingState = "cancelled"
	OutgoingFailed           OutgoingState = "failed"
)

// Outgoing is one queued-or-active send (spec §3 Outgoing Transfer).
type Outgoing struct {
	FileID string
	Name   string
	Source Source
	Cancel *cancelctx.Token

	mu       sync.Mutex
	state    OutgoingState
	metaSent bool
	err      error
}

// NewOutgoing builds a queued Outgoing transfer for source, deriving a
// fresh FileID (spec §3 does not mandate a format; a uuid keeps it
// collision-free across concurrent sessions the way session.Session
// derives its outgoingStreamBase).
func NewOutgoing(parent context.Context, name string, source Source) *Outgoing {
	return &Outgoing{
		FileID: uuid.NewString(),
		Name:   name,
		Source: source,
		Cancel: cancelctx.New(parent),
		state:  OutgoingQueued,
	}
}

func (o *Outgoing) State() OutgoingState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Outgoing) setState(s OutgoingState) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

func (o *Outgoing) markMetaSent() {
	o.mu.Lock()
	o.metaSent = true
	o.mu.Unlock()
}

func (o *Outgoing) didSendMeta() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.metaSent
}

func (o *Outgoing) fail(err error) {
	o.mu.Lock()
	o.err = err
	o.state = OutgoingFailed
	o.mu.Unlock()
}

func (o *Outgoing) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.err
}

// outgoingQueue serializes sends: at most one Outgoing is active per
// session at a time (spec §4.5: "the outgoing queue admits at most one
// active send; further enqueue calls wait their turn").
type outgoingQueue struct {
	mu     sync.Mutex
	items  []*Outgoing
	active *Outgoing
}

func (q *outgoingQueue) enqueue(o *Outgoing) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, o)
}

// next pops the head of the queue and marks it active. Returns nil if
// empty or a send is already active.
func (q *outgoingQueue) next() *Outgoing {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.active != nil || len(q.items) == 0 {
		return nil
	}
	o := q.items[0]
	q.items = q.items[1:]
	q.active = o
	return o
}

func (q *outgoingQueue) finishActive() {
	q.mu.Lock()
	q.active = nil
	q.mu.Unlock()
}

func (q *outgoingQueue) Active() *Outgoing {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.active
}

func (q *outgoingQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.items)
	if q.active != nil {
		n++
	}
	return n
}
