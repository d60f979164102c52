// Package wsstream serves captured PCM blocks to websocket clients.
//
// Each client receives one JSON text message describing the track format,
// then a stream of binary messages, one per delivered block. Clients that
// cannot keep up are dropped rather than allowed to stall the capture
// pipeline.
package wsstream

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/audiotap/audiotap/pkg/sink"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// clientSendDepth is the per-client backlog of blocks before the client
// is considered too slow and disconnected.
const clientSendDepth = 32

var upgrader = websocket.Upgrader{
	// The streamer is meant for same-host and LAN monitoring, not the
	// open internet; any origin may subscribe.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// formatMessage is the JSON header sent to every new client.
type formatMessage struct {
	SampleRate    int `json:"sampleRate"`
	Channels      int `json:"channels"`
	BitsPerSample int `json:"bitsPerSample"`
}

// Server fans captured blocks out to websocket subscribers.
type Server struct {
	logger *slog.Logger
	format formatMessage

	mu      sync.Mutex
	clients map[*client]struct{}

	httpServer *http.Server
}

// NewServer creates a Server listening on addr (for example ":8090")
// announcing the given track format to subscribers.
func NewServer(addr string, format sink.Format) *Server {
	s := &Server{
		logger: slog.Default().With("component", "wsstream"),
		format: formatMessage{
			SampleRate:    format.SampleRate,
			Channels:      format.Channels,
			BitsPerSample: format.BitsPerSample,
		},
		clients: make(map[*client]struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/stream", s.handleStream)
	s.httpServer = &http.Server{Addr: addr, Handler: mux}
	return s
}

// Start begins serving in the background. Errors other than a clean
// shutdown are logged.
func (s *Server) Start() {
	go func() {
		s.logger.Info("websocket streamer listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("websocket streamer stopped", "err", err)
		}
	}()
}

// Shutdown stops the listener and disconnects every client.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for c := range s.clients {
		c.close()
		delete(s.clients, c)
	}
	s.mu.Unlock()
	return s.httpServer.Shutdown(ctx)
}

// Broadcast sends one block's PCM payload to every connected client. The
// data is copied, so the caller keeps ownership of its block.
func (s *Server) Broadcast(data []byte) {
	payload := make([]byte, len(data))
	copy(payload, data)

	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		select {
		case c.send <- payload:
		default:
			s.logger.Warn("websocket client too slow, dropping", "client uuid", c.uuid)
			c.close()
			delete(s.clients, c)
		}
	}
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "err", err)
		return
	}

	header, err := json.Marshal(s.format)
	if err == nil {
		err = conn.WriteMessage(websocket.TextMessage, header)
	}
	if err != nil {
		s.logger.Error("could not send format header", "err", err)
		conn.Close()
		return
	}

	c := &client{
		uuid: uuid.New(),
		conn: conn,
		send: make(chan []byte, clientSendDepth),
	}
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()

	s.logger.Info("websocket client connected", "client uuid", c.uuid, "remote", r.RemoteAddr)
	go c.writePump(s)
}

type client struct {
	uuid      uuid.UUID
	conn      *websocket.Conn
	send      chan []byte
	closeOnce sync.Once
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}

// writePump drains the client's send channel onto the websocket until the
// channel closes or a write fails.
func (c *client) writePump(s *Server) {
	defer c.conn.Close()
	for payload := range c.send {
		if err := c.conn.WriteMessage(websocket.BinaryMessage, payload); err != nil {
			s.logger.Debug("websocket write failed", "client uuid", c.uuid, "err", err)
			s.mu.Lock()
			if _, ok := s.clients[c]; ok {
				c.close()
				delete(s.clients, c)
			}
			s.mu.Unlock()
			return
		}
	}
}
