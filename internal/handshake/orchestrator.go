package handshake

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/zealer1995/share-file.online/internal/config"
	"github.com/zealer1995/share-file.online/internal/rendezvous"
	"github.com/zealer1995/share-file.online/internal/session"
	"github.com/zealer1995/share-file.online/internal/sigcodec"
	"github.com/zealer1995/share-file.online/internal/xferrors"
)

// joinResendInterval is how often the receiver re-broadcasts {type:
// "join"} until an offer arrives (spec §4.6 receiver path).
const joinResendInterval = 3 * time.Second

type role int

const (
	roleNone role = iota
	roleSender
	roleReceiver
)

// Events is the narrow capability-set surfaced by the Orchestrator
// itself, distinct from session.Events (connection lifecycle) and
// transfer.ReceiverEvents (file consent UI) — this one covers the
// handshake phase only.
type Events struct {
	OnError func(error)
}

// Orchestrator drives the Handshake Orchestrator (spec §4.6): sender
// publishes an offer and waits for a matching answer; receiver polls
// with "join" until an offer shows up, then answers it. Both roles
// converge when the underlying Session reports connected.
type Orchestrator struct {
	client *rendezvous.Client
	sess   *session.Session
	events Events

	mu         sync.Mutex
	role       role
	offerSig   string
	lastAnswer string
	converged  bool
	joinStop   chan struct{}
}

// New builds an Orchestrator bound to a fresh Session (constructed
// from cfg and sessEvents) and a Rendezvous Client dialing busURL. Call
// RunSender or RunReceiver, never both, on the same Orchestrator.
func New(ctx context.Context, busURL string, cfg *config.Config, sessEvents session.Events, events Events) *Orchestrator {
	o := &Orchestrator{events: events}
	o.sess = session.New(ctx, cfg, sessEvents)
	o.client = rendezvous.New(busURL, rendezvous.Events{
		OnMessage: o.handleMessage,
		OnError:   o.reportError,
	})
	return o
}

// Session returns the underlying Peer Session, for wiring to a Sender/
// Receiver/Engine once it converges.
func (o *Orchestrator) Session() *session.Session { return o.sess }

func (o *Orchestrator) reportError(err error) {
	if o.events.OnError != nil {
		o.events.OnError(err)
	}
}

// RunSender begins the sender path (spec §4.6): generates a 6-digit
// rendezvous code, connects, and broadcasts the freshly-created offer.
// Returns the code to display to the user.
func (o *Orchestrator) RunSender(ctx context.Context) (string, error) {
	o.mu.Lock()
	o.role = roleSender
	o.mu.Unlock()

	code, err := GenerateRoomCode()
	if err != nil {
		return "", err
	}

	offer, err := o.sess.CreateOffer()
	if err != nil {
		return "", err
	}
	o.mu.Lock()
	o.offerSig = offer
	o.mu.Unlock()

	if err := o.client.Connect(ctx, code); err != nil {
		return "", err
	}
	if err := o.client.SendSignal(offer); err != nil {
		return "", err
	}
	return code, nil
}

// RunReceiver begins the receiver path (spec §4.6): connects to the
// room named by the user-supplied code and broadcasts {type:"join"}
// every 3 s until the first offer signal arrives.
func (o *Orchestrator) RunReceiver(ctx context.Context, code string) error {
	o.mu.Lock()
	o.role = roleReceiver
	o.joinStop = make(chan struct{})
	o.mu.Unlock()

	if err := o.client.Connect(ctx, code); err != nil {
		return err
	}
	if err := o.client.SendJoin(); err != nil {
		return err
	}
	go o.joinLoop()
	return nil
}

func (o *Orchestrator) joinLoop() {
	o.mu.Lock()
	stop := o.joinStop
	o.mu.Unlock()
	if stop == nil {
		return
	}

	ticker := time.NewTicker(joinResendInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			_ = o.client.SendJoin()
		case <-stop:
			return
		}
	}
}

func (o *Orchestrator) stopJoinLoop() {
	o.mu.Lock()
	stop := o.joinStop
	o.joinStop = nil
	o.mu.Unlock()
	if stop != nil {
		close(stop)
	}
}

// handleMessage processes one inbound rendezvous bus payload,
// dispatching by role (spec §4.6). Self-echo is already filtered out
// by internal/rendezvous before this is invoked.
func (o *Orchestrator) handleMessage(payload string) {
	var msg rendezvous.BusMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		o.reportError(xferrors.Wrap(xferrors.InvalidFormat, "rendezvous bus message decode", err))
		return
	}

	o.mu.Lock()
	r := o.role
	o.mu.Unlock()

	switch r {
	case roleSender:
		o.handleSenderMessage(msg)
	case roleReceiver:
		o.handleReceiverMessage(msg)
	}
}

// handleSenderMessage accepts only {type:"signal"} whose decoded type
// is "answer" and whose content differs from the last applied answer
// (self-echo safety, spec §4.6); on a join it resends the offer as
// long as no answer has converged yet — the "retained resend offer
// loop" the spec names, here triggered by the receiver's presence
// broadcast rather than a timer, since resending on a schedule would
// race a receiver that joined between two ticks.
func (o *Orchestrator) handleSenderMessage(msg rendezvous.BusMessage) {
	o.mu.Lock()
	converged := o.converged
	offer := o.offerSig
	o.mu.Unlock()
	if converged {
		return
	}

	switch msg.Type {
	case "join":
		if offer != "" {
			_ = o.client.SendSignal(offer)
		}
	case "signal":
		env, err := sigcodec.Decode(msg.Content)
		if err != nil {
			o.reportError(err)
			return
		}
		if env.Type != sigcodec.TypeAnswer {
			return
		}

		o.mu.Lock()
		if msg.Content == o.lastAnswer {
			o.mu.Unlock()
			return
		}
		o.lastAnswer = msg.Content
		o.converged = true
		o.mu.Unlock()

		if err := o.sess.ApplyAnswer(msg.Content); err != nil {
			o.reportError(err)
		}
	}
}

// handleReceiverMessage accepts only {type:"signal"} whose decoded
// type is "offer" (rejecting "answer" protects against cross-talk from
// a third party or a self-echo of the receiver's own prior traffic,
// spec §4.6 receiver path). On the first valid offer it computes the
// answer and stops the join-resend loop.
func (o *Orchestrator) handleReceiverMessage(msg rendezvous.BusMessage) {
	if msg.Type != "signal" {
		return
	}

	o.mu.Lock()
	alreadyAnswered := o.converged
	o.mu.Unlock()
	if alreadyAnswered {
		return
	}

	env, err := sigcodec.Decode(msg.Content)
	if err != nil {
		o.reportError(err)
		return
	}
	if env.Type != sigcodec.TypeOffer {
		return
	}

	o.mu.Lock()
	o.converged = true
	o.mu.Unlock()
	o.stopJoinLoop()

	answer, err := o.sess.CreateAnswer(msg.Content)
	if err != nil {
		o.reportError(err)
		return
	}
	if err := o.client.SendSignal(answer); err != nil {
		o.reportError(err)
	}
}

// Close tears down the rendezvous subscription and the Session.
func (o *Orchestrator) Close() {
	o.stopJoinLoop()
	_ = o.client.Disconnect()
	_ = o.sess.Close()
}
