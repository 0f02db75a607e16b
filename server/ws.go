package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/brandforge/brandforge/engine"
)

// WebSocket timeout constants following Gorilla best practices
const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = 54 * time.Second

	// Maximum message size allowed from peer
	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// JobUpdateMessage is pushed to WebSocket clients whenever a job changes.
type JobUpdateMessage struct {
	Type      string           `json:"type"`
	Job       *engine.Snapshot `json:"job"`
	Timestamp int64            `json:"timestamp"`
}

// Client represents one WebSocket connection. Updates are tenant-filtered:
// a client only sees jobs belonging to its own tenant.
type Client struct {
	server    *Server
	conn      *websocket.Conn
	tenantID  string
	sendMsg   chan interface{}
	id        string
	closeOnce sync.Once
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.sendMsg)
	})
}

// HandleWebSocket upgrades /api/ws connections and registers the client for
// job-update pushes.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnw("WebSocket upgrade failed", "error", err)
		return
	}

	client := &Client{
		server:   s,
		conn:     conn,
		tenantID: tenantID,
		sendMsg:  make(chan interface{}, 64),
		id:       uuid.NewString(),
	}

	s.mu.Lock()
	s.clients[client] = true
	s.mu.Unlock()

	s.logger.Debugw("WebSocket client connected",
		"client_id", shortID(client.id),
		"tenant_id", tenantID,
	)

	go client.writePump()
	go client.readPump()
}

// readPump drains incoming frames so pong handling works; clients have
// nothing meaningful to send.
func (c *Client) readPump() {
	defer func() {
		c.server.removeClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNoStatusReceived,
			) {
				c.server.logger.Warnw("WebSocket read error",
					"client_id", shortID(c.id),
					"error", err,
				)
			}
			return
		}
	}
}

// writePump writes queued messages and keepalive pings to the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.server.ctx.Done():
			return
		case msg, ok := <-c.sendMsg:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				c.server.logger.Debugw("WebSocket write failed",
					"client_id", shortID(c.id),
					"error", err,
				)
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

func (s *Server) removeClient(c *Client) {
	s.mu.Lock()
	if _, ok := s.clients[c]; ok {
		delete(s.clients, c)
		c.close()
	}
	s.mu.Unlock()
}

// startJobUpdateBroadcaster subscribes to store updates and fans them out to
// connected clients of the same tenant.
func (s *Server) startJobUpdateBroadcaster() {
	jobChan := s.store.Subscribe()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			// Unsubscribe first (removes from list), then close.
			// Order matters: closing while still subscribed could panic on send
			s.store.Unsubscribe(jobChan)
			close(jobChan)
		}()

		for {
			select {
			case <-s.ctx.Done():
				return
			case job := <-jobChan:
				s.broadcastJobUpdate(job)
			}
		}
	}()
}

// broadcastJobUpdate sends a job snapshot to every client of the job's
// tenant. Slow clients are skipped rather than blocking the broadcaster.
func (s *Server) broadcastJobUpdate(job *engine.Job) {
	msg := JobUpdateMessage{
		Type:      "job_update",
		Job:       s.reporter.Snapshot(job),
		Timestamp: time.Now().Unix(),
	}

	// Sends happen under the read lock: removeClient and Shutdown close
	// sendMsg under the write lock, so a send can never race the close.
	// Sends are non-blocking, so holding the lock is cheap.
	sent := 0
	s.mu.RLock()
	for client := range s.clients {
		if client.tenantID != job.TenantID {
			continue
		}
		select {
		case client.sendMsg <- msg:
			sent++
		default:
			// Channel full - skip
		}
	}
	s.mu.RUnlock()

	if sent > 0 {
		s.logger.Debugw("Broadcasted job update",
			"job_id", shortID(job.ID),
			"status", job.Status,
			"clients", sent,
		)
	}
}
