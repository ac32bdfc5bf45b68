package rendezvous

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/zealer1995/share-file.online/internal/xferrors"
)

// errReportInterval is the rate limit on repeated identical onError
// reports (spec §4.2 "rate-limited to at most once every 4 seconds for
// identical messages").
const errReportInterval = 4 * time.Second

// Events is the narrow callback interface a caller registers on a
// Client (spec §9 "callback soup becomes a narrow event interface").
type Events struct {
	OnOpen    func()
	OnMessage func(payload string)
	OnError   func(err error)
}

// Client is the Rendezvous Client (spec §4.2): it joins a room on a
// websocket-based broadcast bus, filters out its own echoed messages,
// and surfaces inbound broadcasts.
type Client struct {
	dialURL  string
	clientID string
	events   Events

	mu      sync.Mutex
	conn    *websocket.Conn
	closed  bool
	lastErr map[string]time.Time

	done chan struct{}
}

// New builds a Client that will dial busURL (a ws:// or wss:// base
// URL, without the room query parameter) when Connect is called.
func New(busURL string, events Events) *Client {
	return &Client{
		dialURL:  busURL,
		clientID: uuid.NewString(),
		events:   events,
		lastErr:  make(map[string]time.Time),
	}
}

// ClientID returns this instance's random per-instance id, the value
// compared against Envelope.SenderID to suppress self-echo.
func (c *Client) ClientID() string { return c.clientID }

// Done returns a channel closed once Disconnect has run, or nil if
// Connect has not been called yet.
func (c *Client) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Connect subscribes to roomId and starts the read pump. onOpen fires
// once the subscription is confirmed (spec §4.2 connect).
func (c *Client) Connect(ctx context.Context, roomID string) error {
	u, err := url.Parse(c.dialURL)
	if err != nil {
		return xferrors.Wrap(xferrors.NotConnected, "parse bus url", err)
	}
	q := u.Query()
	q.Set("room", roomID)
	u.RawQuery = q.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, u.String(), http.Header{})
	if err != nil {
		return xferrors.Wrap(xferrors.NotConnected, "dial rendezvous bus", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.closed = false
	c.done = make(chan struct{})
	c.mu.Unlock()

	go c.readPump()

	if c.events.OnOpen != nil {
		c.events.OnOpen()
	}
	return nil
}

func (c *Client) readPump() {
	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			c.reportError(xferrors.Wrap(xferrors.ChannelClosed, "rendezvous read", err))
			return
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			c.reportError(xferrors.Wrap(xferrors.InvalidFormat, "rendezvous envelope decode", err))
			continue
		}
		if env.SenderID == c.clientID {
			continue // spec §8 property 3: self-echo suppression
		}
		if c.events.OnMessage != nil {
			c.events.OnMessage(env.DataStr)
		}
	}
}

// reportError rate-limits identical error messages to at most once
// every errReportInterval (spec §4.2).
func (c *Client) reportError(err error) {
	if err == nil || c.events.OnError == nil {
		return
	}
	key := err.Error()

	c.mu.Lock()
	last, seen := c.lastErr[key]
	now := time.Now()
	if seen && now.Sub(last) < errReportInterval {
		c.mu.Unlock()
		return
	}
	c.lastErr[key] = now
	c.mu.Unlock()

	c.events.OnError(err)
}

// Send broadcasts payload to the room (spec §4.2 send).
func (c *Client) Send(payload string) error {
	c.mu.Lock()
	conn := c.conn
	closed := c.closed
	c.mu.Unlock()
	if conn == nil || closed {
		return xferrors.New(xferrors.NotConnected, "rendezvous client not connected")
	}

	raw, err := marshalEnvelope(c.clientID, payload)
	if err != nil {
		return xferrors.Wrap(xferrors.InvalidFormat, "marshal rendezvous envelope", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		return xferrors.Wrap(xferrors.ChannelClosed, "rendezvous send", err)
	}
	return nil
}

// SendJoin broadcasts {type:"join"} (spec §4.6 receiver path).
func (c *Client) SendJoin() error {
	raw, err := json.Marshal(BusMessage{Type: "join"})
	if err != nil {
		return xferrors.Wrap(xferrors.InvalidFormat, "marshal join message", err)
	}
	return c.Send(string(raw))
}

// SendSignal broadcasts {type:"signal", content} (spec §4.6).
func (c *Client) SendSignal(content string) error {
	raw, err := json.Marshal(BusMessage{Type: "signal", Content: content})
	if err != nil {
		return xferrors.Wrap(xferrors.InvalidFormat, "marshal signal message", err)
	}
	return c.Send(string(raw))
}

// Disconnect tears down the subscription and clears state. Idempotent
// (spec §4.2 disconnect).
func (c *Client) Disconnect() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	done := c.done
	c.mu.Unlock()

	var err error
	if conn != nil {
		err = conn.Close()
	}
	if done != nil {
		close(done)
	}
	return err
}
