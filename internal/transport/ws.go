package transport

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/inkwell2d/netphys/internal/netmsg"
)

// Hub is the server-side websocket transport. Every envelope read from one
// peer is delivered to the local handler and relayed to all other peers, so
// the hub behaves like a broadcast bus with the server as one participant.
//
// TCP gives every connection reliable in-order delivery, so both send
// options map to the same framing; the channel byte is carried for parity
// with transports that honor it.
type Hub struct {
	id       string
	upgrader websocket.Upgrader
	handler  Handler

	mu    sync.Mutex
	conns map[string]*wsConn
}

type wsConn struct {
	conn *websocket.Conn

	// writeMu serializes writes; gorilla allows one concurrent writer.
	writeMu sync.Mutex
}

func (c *wsConn) write(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.BinaryMessage, frame)
}

// NewHub creates a websocket hub with a fresh peer identity.
func NewHub() *Hub {
	return &Hub{
		id:    uuid.NewString(),
		conns: make(map[string]*wsConn),
	}
}

func (h *Hub) PeerID() string { return h.id }

func (h *Hub) SetHandler(handler Handler) { h.handler = handler }

// ServeHTTP upgrades the request and pumps envelopes until the peer drops.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	key := uuid.NewString()
	wc := &wsConn{conn: conn}
	h.mu.Lock()
	h.conns[key] = wc
	h.mu.Unlock()
	slog.Info("peer connected", "remote", r.RemoteAddr)

	defer func() {
		h.mu.Lock()
		delete(h.conns, key)
		h.mu.Unlock()
		conn.Close()
		slog.Info("peer disconnected", "remote", r.RemoteAddr)
	}()

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return
		}
		env, err := netmsg.Decode(frame)
		if err != nil {
			slog.Warn("dropping malformed frame", "remote", r.RemoteAddr, "err", err)
			continue
		}
		if h.handler != nil {
			h.handler(env)
		}
		h.relay(key, frame)
	}
}

// relay forwards a raw frame to every peer except its origin.
func (h *Hub) relay(origin string, frame []byte) {
	h.mu.Lock()
	targets := make([]*wsConn, 0, len(h.conns))
	for key, wc := range h.conns {
		if key != origin {
			targets = append(targets, wc)
		}
	}
	h.mu.Unlock()
	for _, wc := range targets {
		if err := wc.write(frame); err != nil {
			slog.Warn("failed to relay to peer", "err", err)
		}
	}
}

func (h *Hub) Send(env netmsg.Envelope, _ netmsg.SendOptions) error {
	w := netmsg.GetWriter()
	defer w.Put()
	w.Encode(env)
	h.relay("", w.Bytes())
	return nil
}

func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for key, wc := range h.conns {
		wc.conn.Close()
		delete(h.conns, key)
	}
	return nil
}

// WSClient is the client-side websocket transport.
type WSClient struct {
	id      string
	wc      *wsConn
	handler Handler

	closeOnce sync.Once
}

// DialWS connects to a hub and starts the read pump.
func DialWS(url string) (*WSClient, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", url, err)
	}
	c := &WSClient{
		id: uuid.NewString(),
		wc: &wsConn{conn: conn},
	}
	go c.readLoop()
	return c, nil
}

func (c *WSClient) readLoop() {
	for {
		_, frame, err := c.wc.conn.ReadMessage()
		if err != nil {
			return
		}
		env, err := netmsg.Decode(frame)
		if err != nil {
			slog.Warn("dropping malformed frame", "err", err)
			continue
		}
		if c.handler != nil {
			c.handler(env)
		}
	}
}

func (c *WSClient) PeerID() string { return c.id }

func (c *WSClient) SetHandler(h Handler) { c.handler = h }

func (c *WSClient) Send(env netmsg.Envelope, _ netmsg.SendOptions) error {
	w := netmsg.GetWriter()
	defer w.Put()
	w.Encode(env)
	if err := c.wc.write(w.Bytes()); err != nil {
		return fmt.Errorf("websocket send: %w", err)
	}
	return nil
}

func (c *WSClient) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.wc.conn.Close()
	})
	return err
}
