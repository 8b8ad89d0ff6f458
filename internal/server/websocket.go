package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"

	"github.com/conneroisu/wisp/internal/validation"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Input events carry values.
	maxMessageSize = 64 << 10
)

// Client is one browser connection to a session.
type Client struct {
	conn    *websocket.Conn
	send    chan []byte
	server  *PreviewServer
	session *Session
}

// enqueue queues msg without blocking. A client that cannot keep up misses
// the message; the next render carries the full markup anyway.
func (c *Client) enqueue(msg UpdateMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (s *PreviewServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.checkOrigin(r) {
		http.Error(w, "Origin not allowed", http.StatusForbidden)
		return
	}
	sess, ok := s.session(chi.URLParam(r, "session"))
	if !ok {
		http.Error(w, "Unknown session", http.StatusNotFound)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.originHosts(),
	})
	if err != nil {
		s.logger.Warn(r.Context(), err, "WebSocket upgrade error")
		return
	}

	client := &Client{
		conn:    conn,
		send:    make(chan []byte, 256),
		server:  s,
		session: sess,
	}

	select {
	case s.register <- client:
	case <-s.done:
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}

	go client.writePump()
	go client.readPump()
}

// originHosts lists the host[:port] values browsers may connect from.
func (s *PreviewServer) originHosts() []string {
	port := s.config.Server.Port
	hosts := []string{
		fmt.Sprintf("%s:%d", s.config.Server.Host, port),
		fmt.Sprintf("localhost:%d", port),
		fmt.Sprintf("127.0.0.1:%d", port),
	}
	for _, origin := range s.config.Server.AllowedOrigins {
		if u, err := url.Parse(origin); err == nil && u.Host != "" {
			hosts = append(hosts, u.Host)
		}
	}
	return hosts
}

// checkOrigin validates the request origin for security
func (s *PreviewServer) checkOrigin(r *http.Request) bool {
	if err := validation.ValidateOrigin(r.Header.Get("Origin"), s.originHosts()); err != nil {
		s.logger.Debug(r.Context(), "Rejected origin", "error", err.Error())
		return false
	}
	return true
}

func (s *PreviewServer) runWebSocketHub(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	definitions := s.definitions

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return

		case client := <-s.register:
			s.clientsMutex.Lock()
			s.clients[client] = struct{}{}
			count := len(s.clients)
			s.clientsMutex.Unlock()
			client.session.attach(client)
			s.logger.Debug(ctx, "Client connected", "session", client.session.ID, "clients", count)

		case client := <-s.unregister:
			s.clientsMutex.Lock()
			_, ok := s.clients[client]
			delete(s.clients, client)
			count := len(s.clients)
			s.clientsMutex.Unlock()
			if !ok {
				continue
			}
			remaining := client.session.detach(client)
			close(client.send)
			s.logger.Debug(ctx, "Client disconnected", "session", client.session.ID, "clients", count)
			if remaining == 0 {
				s.closeSession(client.session.ID)
			}

		case message := <-s.broadcast:
			s.sendAll(message)

		case ev, ok := <-definitions:
			if !ok {
				definitions = nil
				continue
			}
			s.applyDefinitionChanges(ctx, ev)

		case now := <-ticker.C:
			s.reapSessions(now)
		}
	}
}

// sendAll queues data on every client, skipping clients whose buffer is full.
// Only the hub goroutine calls it.
func (s *PreviewServer) sendAll(data []byte) {
	s.clientsMutex.RLock()
	defer s.clientsMutex.RUnlock()
	for client := range s.clients {
		select {
		case client.send <- data:
		default:
		}
	}
}

// readPump forwards event messages to the session
func (c *Client) readPump() {
	defer func() {
		select {
		case c.server.unregister <- c:
		case <-c.server.done:
		}
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	ctx := c.session.ctx

	for {
		readCtx, readCancel := context.WithTimeout(ctx, pongWait)
		_, data, err := c.conn.Read(readCtx)
		readCancel()

		if err != nil {
			if status := websocket.CloseStatus(err); status != websocket.StatusNormalClosure &&
				status != websocket.StatusGoingAway && ctx.Err() == nil {
				c.server.logger.Debug(ctx, "WebSocket read ended", "error", err.Error())
			}
			return
		}

		var msg EventMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.server.logger.Warn(ctx, err, "Ignoring malformed client message")
			continue
		}
		if msg.Type == "event" {
			c.session.HandleEvent(msg)
		}
	}
}

// writePump pumps messages to the websocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	ctx := context.Background()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Write(writeCtx, websocket.MessageText, message)
			cancel()
			if err != nil {
				return
			}

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
