package rendezvous

import (
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// serverClient is one connected bus subscriber, scoped to a room. It
// mirrors the teacher's WebsocketClient (Conn + buffered Send channel
// drained by a dedicated WritePump goroutine), generalized from the
// teacher's per-command registry dispatch to a room-wide rebroadcast:
// the bus does not parse payloads (spec §4.2 "The client does not
// parse content").
type serverClient struct {
	conn *websocket.Conn
	send chan []byte
	room string
}

type broadcastMsg struct {
	room    string
	payload []byte
}

// Hub is the reference broadcast-bus server (spec §1 "explicitly out
// of scope ... specified only at its send/receive interface" — this is
// one concrete implementation of that interface, adapted from the
// teacher's websocket/websocket.go Hub, used by cmd/rendezvousd and by
// integration tests).
type Hub struct {
	mu         sync.Mutex
	rooms      map[string]map[*serverClient]bool
	register   chan *serverClient
	unregister chan *serverClient
	broadcast  chan broadcastMsg
}

// NewHub constructs an idle Hub. Call Run in a goroutine before
// serving any connections.
func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[string]map[*serverClient]bool),
		register:   make(chan *serverClient),
		unregister: make(chan *serverClient),
		broadcast:  make(chan broadcastMsg),
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Run drives the hub's event loop. It never returns; call it with go.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			if _, ok := h.rooms[c.room]; !ok {
				h.rooms[c.room] = make(map[*serverClient]bool)
			}
			h.rooms[c.room][c] = true
			h.mu.Unlock()

		case c := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.rooms[c.room]; ok {
				if _, exists := clients[c]; exists {
					delete(clients, c)
					close(c.send)
					if len(clients) == 0 {
						delete(h.rooms, c.room)
					}
				}
			}
			h.mu.Unlock()

		case m := <-h.broadcast:
			h.mu.Lock()
			for client := range h.rooms[m.room] {
				select {
				case client.send <- m.payload:
				default:
					close(client.send)
					delete(h.rooms[m.room], client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// ServeHTTP upgrades the connection and joins it to the room named by
// the "room" query parameter.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	room := r.URL.Query().Get("room")
	if room == "" {
		http.Error(w, "missing room", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[rendezvous] upgrade error: %v", err)
		return
	}

	c := &serverClient{conn: conn, send: make(chan []byte, 256), room: room}
	h.register <- c

	go c.writePump()
	c.readPump(h)
}

func (c *serverClient) readPump(h *Hub) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			log.Printf("[rendezvous] read error in room %s: %v", c.room, err)
			return
		}
		h.broadcast <- broadcastMsg{room: c.room, payload: message}
	}
}

func (c *serverClient) writePump() {
	defer c.conn.Close()
	for message := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			log.Printf("[rendezvous] write error in room %s: %v", c.room, err)
			return
		}
	}
}
