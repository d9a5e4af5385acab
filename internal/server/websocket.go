package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/coder/websocket"

	"github.com/conneroisu/fiddle/internal/workspace"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Buffers arrive as full
	// text, so the limit has to fit a real snippet.
	maxMessageSize = 1 << 20
)

// Client represents a WebSocket client bound to one playground session
type Client struct {
	conn    *websocket.Conn
	send    chan []byte
	server  *PlaygroundServer
	session string
}

// ClientMessage represents a message received from the browser
type ClientMessage struct {
	Type    string `json:"type"`
	Target  string `json:"target,omitempty"`
	Content string `json:"content,omitempty"`
	Format  string `json:"format,omitempty"`
}

func (s *PlaygroundServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Validate origin before accepting connection
	if !s.checkOrigin(r) {
		http.Error(w, "Origin not allowed", http.StatusForbidden)
		return
	}

	sessionID := r.URL.Query().Get("session")
	if _, exists := s.sessions.Get(sessionID); !exists {
		http.Error(w, "Unknown session", http.StatusNotFound)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: false, // Always verify origin
	})
	if err != nil {
		s.logger.Warn(r.Context(), err, "WebSocket upgrade failed")
		return
	}

	client := &Client{
		conn:    conn,
		send:    make(chan []byte, 256),
		server:  s,
		session: sessionID,
	}

	// Start goroutines for this client first
	go client.writePump()
	go client.readPump()

	// Register client after goroutines are started
	s.register <- client
}

// checkOrigin validates the request origin for security
func (s *PlaygroundServer) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		// Reject connections without origin header for security
		return false
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}

	if originURL.Scheme != "http" && originURL.Scheme != "https" {
		return false
	}

	// The playground serves itself, so its own host is always allowed
	allowedHosts := []string{
		fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port),
		fmt.Sprintf("localhost:%d", s.config.Server.Port),
		fmt.Sprintf("127.0.0.1:%d", s.config.Server.Port),
	}
	for _, allowed := range allowedHosts {
		if originURL.Host == allowed {
			return true
		}
	}

	// Plus anything the operator explicitly allowed
	for _, allowed := range s.config.Server.AllowedOrigins {
		if origin == allowed {
			return true
		}
	}

	return false
}

func (s *PlaygroundServer) runWebSocketHub(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case client := <-s.register:
			if client == nil || client.conn == nil {
				continue
			}
			s.clientsMutex.Lock()
			s.clients[client.conn] = client
			clientCount := len(s.clients)
			s.clientsMutex.Unlock()
			s.logger.Debug(ctx, "Client connected",
				"session", client.session, "total", clientCount)

		case conn := <-s.unregister:
			if conn == nil {
				continue
			}
			s.clientsMutex.Lock()
			if client, ok := s.clients[conn]; ok {
				delete(s.clients, conn)
				close(client.send)
				conn.Close(websocket.StatusNormalClosure, "")
				s.logger.Debug(ctx, "Client disconnected", "total", len(s.clients))
			}
			s.clientsMutex.Unlock()

		case message := <-s.broadcast:
			s.clientsMutex.RLock()
			var failedClients []*websocket.Conn
			for conn, client := range s.clients {
				select {
				case client.send <- message:
				default:
					// Client's send channel is full, mark for removal
					failedClients = append(failedClients, conn)
				}
			}
			s.clientsMutex.RUnlock()

			// Clean up failed clients outside the read lock
			if len(failedClients) > 0 {
				s.clientsMutex.Lock()
				for _, conn := range failedClients {
					if client, ok := s.clients[conn]; ok {
						delete(s.clients, conn)
						close(client.send)
						conn.Close(websocket.StatusNormalClosure, "")
					}
				}
				s.clientsMutex.Unlock()
			}
		}
	}
}

// sendToSession queues a message for every client of one session.
func (s *PlaygroundServer) sendToSession(sessionID string, msg UpdateMessage) {
	jsonData, err := json.Marshal(msg)
	if err != nil {
		s.logger.Warn(context.Background(), err, "Failed to marshal session message")
		return
	}

	s.clientsMutex.RLock()
	defer s.clientsMutex.RUnlock()

	for _, client := range s.clients {
		if client.session != sessionID {
			continue
		}
		select {
		case client.send <- jsonData:
		default:
			// Slow client, the hub will drop it on the next broadcast
		}
	}
}

// readPump pumps messages from the websocket connection
func (c *Client) readPump() {
	defer func() {
		c.server.unregister <- c.conn
	}()

	c.conn.SetReadLimit(maxMessageSize)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for {
		readCtx, readCancel := context.WithTimeout(ctx, pongWait)
		_, data, err := c.conn.Read(readCtx)
		readCancel()

		if err != nil {
			// Check if it's a normal closure
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure &&
				websocket.CloseStatus(err) != websocket.StatusGoingAway {
				c.server.logger.Debug(ctx, "WebSocket read ended", "error", err.Error())
			}
			break
		}

		c.handleMessage(data)
	}
}

// handleMessage dispatches one message from the editing surface.
func (c *Client) handleMessage(data []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError(fmt.Sprintf("malformed message: %v", err))
		return
	}

	session, exists := c.server.sessions.Get(c.session)
	if !exists {
		c.sendError("session expired")
		return
	}

	switch msg.Type {
	case "buffer_update":
		target, err := workspace.ParseTarget(msg.Target)
		if err != nil {
			c.sendError(err.Error())
			return
		}
		doc, revision, err := session.UpdateBuffer(target, msg.Content)
		if err != nil {
			c.sendError(err.Error())
			return
		}
		c.server.sendToSession(c.session, UpdateMessage{
			Type:      "preview",
			Content:   doc,
			Revision:  revision,
			Timestamp: time.Now(),
		})

	case "share_request":
		compact, err := resolveShareFormat(msg.Format, c.server.config.Share.Compact)
		if err != nil {
			c.sendError(err.Error())
			return
		}
		link, err := session.ShareURL(c.server.config.ShareOrigin(), compact)
		if err != nil {
			c.sendError(err.Error())
			return
		}
		c.server.sendToSession(c.session, UpdateMessage{
			Type:      "share_url",
			Content:   link,
			Timestamp: time.Now(),
		})

	default:
		c.sendError(fmt.Sprintf("unknown message type %q", msg.Type))
	}
}

// sendError queues an error message for this client only.
func (c *Client) sendError(detail string) {
	msg := UpdateMessage{Type: "error", Content: detail, Timestamp: time.Now()}
	jsonData, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case c.send <- jsonData:
	default:
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
			writeCtx, cancel := context.WithTimeout(ctx, writeWait)
			if !ok {
				c.conn.Close(websocket.StatusNormalClosure, "")
				cancel()
				return
			}

			if err := c.conn.Write(writeCtx, websocket.MessageText, message); err != nil {
				cancel()
				return
			}
			cancel()

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeWait)
			if err := c.conn.Ping(pingCtx); err != nil {
				cancel()
				return
			}
			cancel()
		}
	}
}
