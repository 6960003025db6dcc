// Package signaltest runs an in-process signaling relay that stands in for
// the backend call endpoint in tests and local development. It relays each
// frame from one connected token to every other one; real call routing and
// persistence live in the backend.
package signaltest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type Server struct {
	hs *httptest.Server

	mu    sync.Mutex
	conns map[string]*peerConn
}

type peerConn struct {
	ws *websocket.Conn

	mu       sync.Mutex
	lastCall string
}

func (p *peerConn) write(data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ws.WriteMessage(websocket.TextMessage, data)
}

func New() *Server {
	gin.SetMode(gin.TestMode)
	s := &Server{conns: make(map[string]*peerConn)}

	r := gin.New()
	r.GET("/signal/:token", func(c *gin.Context) {
		s.handleSignal(c)
	})
	s.hs = httptest.NewServer(r)
	return s
}

// BaseURL is the websocket base; clients append /signal/{token}.
func (s *Server) BaseURL() string {
	return "ws" + strings.TrimPrefix(s.hs.URL, "http")
}

func (s *Server) Close() {
	s.mu.Lock()
	for _, p := range s.conns {
		_ = p.ws.Close()
	}
	s.conns = make(map[string]*peerConn)
	s.mu.Unlock()
	s.hs.Close()
}

func (s *Server) handleSignal(c *gin.Context) {
	token := c.Param("token")
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signaltest").Msg("ws upgrade")
		return
	}
	p := &peerConn{ws: ws}

	s.mu.Lock()
	s.conns[token] = p
	s.mu.Unlock()
	log.Info().Str("module", "signaltest").Str("token", token).Msg("peer connected")

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			break
		}
		var env struct {
			CallID string `json:"call_id"`
		}
		if err := json.Unmarshal(data, &env); err == nil && env.CallID != "" {
			p.mu.Lock()
			p.lastCall = env.CallID
			p.mu.Unlock()
		}
		s.relay(token, data)
	}

	s.mu.Lock()
	delete(s.conns, token)
	s.mu.Unlock()
	_ = ws.Close()

	// The backend notifies the other party when a participant drops
	// mid-call; mirror that so disconnect paths are testable.
	p.mu.Lock()
	lastCall := p.lastCall
	p.mu.Unlock()
	if lastCall != "" {
		bye, _ := json.Marshal(map[string]string{
			"type":    "end-call",
			"call_id": lastCall,
			"reason":  "disconnected",
		})
		s.relay(token, bye)
	}
	log.Info().Str("module", "signaltest").Str("token", token).Msg("peer disconnected")
}

func (s *Server) relay(from string, data []byte) {
	s.mu.Lock()
	targets := make([]*peerConn, 0, len(s.conns))
	for token, p := range s.conns {
		if token != from {
			targets = append(targets, p)
		}
	}
	s.mu.Unlock()
	for _, p := range targets {
		if err := p.write(data); err != nil {
			log.Warn().Err(err).Str("module", "signaltest").Msg("relay write")
		}
	}
}
