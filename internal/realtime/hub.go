package realtime

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"vibetunes/internal/infra"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 64
)

type message struct {
	topic   string
	payload []byte
	close   bool
}

type client struct {
	topic   string
	conn    *websocket.Conn
	send    chan []byte
	initial []byte
}

// Hub fans published messages out to the WebSocket viewers of a topic.
//
// Publishing never blocks and never drops: messages wait in an unbounded queue
// until Run delivers them, in publish order. The hub retains the last message of
// every topic and hands it to each new viewer first, so a viewer always starts
// from the latest published state. Messages may repeat around registration;
// viewers keep the one with the highest version. A viewer whose own buffer
// overflows is disconnected and resumes from the retained message on reconnect.
type Hub struct {
	clients  map[string]map[*client]struct{}
	retained map[string][]byte

	mu      sync.Mutex
	pending []message
	wake    chan struct{}

	register   chan *client
	unregister chan *client
	counts     chan countRequest
	done       chan struct{}
	logger     *infra.Logger
}

type countRequest struct {
	topic string
	reply chan int
}

// NewHub creates a hub. Run must be started before viewers connect.
func NewHub(logger *infra.Logger) *Hub {
	if logger == nil {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Hub{
		clients:    make(map[string]map[*client]struct{}),
		retained:   make(map[string][]byte),
		wake:       make(chan struct{}, 1),
		register:   make(chan *client),
		unregister: make(chan *client),
		counts:     make(chan countRequest),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run owns the client set until ctx is canceled.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for topic := range h.clients {
				h.dropTopic(topic)
			}
			return nil

		case <-h.wake:
			h.flush()

		case c := <-h.register:
			if h.clients[c.topic] == nil {
				h.clients[c.topic] = make(map[*client]struct{})
			}
			h.clients[c.topic][c] = struct{}{}
			first := c.initial
			if last, ok := h.retained[c.topic]; ok {
				first = last
			}
			if first != nil {
				c.send <- first
			}
			h.logger.Debug().Str("topic", c.topic).Int("viewers", len(h.clients[c.topic])).Msg("realtime: viewer connected")

		case c := <-h.unregister:
			h.drop(c)

		case req := <-h.counts:
			req.reply <- len(h.clients[req.topic])
		}
	}
}

func (h *Hub) flush() {
	h.mu.Lock()
	batch := h.pending
	h.pending = nil
	h.mu.Unlock()

	for _, m := range batch {
		if m.close {
			delete(h.retained, m.topic)
			h.dropTopic(m.topic)
			continue
		}
		h.retained[m.topic] = m.payload
		for c := range h.clients[m.topic] {
			select {
			case c.send <- m.payload:
			default:
				h.logger.Warn().Str("topic", m.topic).Msg("realtime: viewer too slow, disconnecting")
				h.drop(c)
			}
		}
	}
}

func (h *Hub) enqueue(m message) {
	h.mu.Lock()
	h.pending = append(h.pending, m)
	h.mu.Unlock()
	select {
	case h.wake <- struct{}{}:
	default:
	}
}

// Broadcast queues payload for every viewer of topic and retains it for later viewers.
func (h *Hub) Broadcast(topic string, payload []byte) {
	h.enqueue(message{topic: topic, payload: payload})
}

// CloseTopic disconnects every viewer of topic and forgets its retained message.
// It takes effect after the messages published before it.
func (h *Hub) CloseTopic(topic string) {
	h.enqueue(message{topic: topic, close: true})
}

// ViewerCount returns the number of connected viewers for topic.
func (h *Hub) ViewerCount(ctx context.Context, topic string) int {
	req := countRequest{topic: topic, reply: make(chan int, 1)}
	select {
	case h.counts <- req:
		return <-req.reply
	case <-ctx.Done():
		return 0
	case <-h.done:
		return 0
	}
}

// Serve streams topic to conn until the viewer disconnects or the hub drops it.
// The viewer first receives the topic's retained message, or initial when
// nothing was published yet, then every later message.
func (h *Hub) Serve(ctx context.Context, conn *websocket.Conn, topic string, initial []byte) {
	c := &client{topic: topic, conn: conn, send: make(chan []byte, sendBuffer), initial: initial}
	select {
	case h.register <- c:
	case <-ctx.Done():
		conn.Close()
		return
	case <-h.done:
		conn.Close()
		return
	}

	go h.writePump(c)

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	select {
	case h.unregister <- c:
	case <-ctx.Done():
	case <-h.done:
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				h.logger.Debug().Err(err).Str("topic", c.topic).Msg("realtime: write failed")
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) drop(c *client) {
	viewers, ok := h.clients[c.topic]
	if !ok {
		return
	}
	if _, ok := viewers[c]; !ok {
		return
	}
	delete(viewers, c)
	close(c.send)
	if len(viewers) == 0 {
		delete(h.clients, c.topic)
	}
	h.logger.Debug().Str("topic", c.topic).Msg("realtime: viewer disconnected")
}

func (h *Hub) dropTopic(topic string) {
	for c := range h.clients[topic] {
		h.drop(c)
	}
}
