// Package signaling implements the websocket client side of the call
// signaling protocol: one ordered, reliable logical channel per token.
package signaling

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/Banula-Lavindu/Luster-backend/internal/core"
	"github.com/Banula-Lavindu/Luster-backend/internal/domain"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrClosed       = errors.New("connection closed")
)

const (
	sendQueueSize = 32
	writeTimeout  = 5 * time.Second
)

// Dialer opens signaling channels against one backend base URL.
// The endpoint is <base>/signal/{token}.
type Dialer struct {
	BaseURL     string
	DialTimeout time.Duration
	PingPeriod  time.Duration
}

func (d *Dialer) Dial(ctx context.Context, token domain.Token) (core.SignalConnection, <-chan core.Message, error) {
	endpoint := strings.TrimRight(d.BaseURL, "/") + "/signal/" + url.PathEscape(string(token))

	wsd := websocket.Dialer{HandshakeTimeout: d.DialTimeout}
	ws, _, err := wsd.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, nil, &core.TransportError{Cause: err}
	}
	log.Info().Str("module", "signaling").Str("endpoint", endpoint).Msg("channel connected")

	c := &Channel{
		conn:       ws,
		send:       make(chan []byte, sendQueueSize),
		inbound:    make(chan core.Message, sendQueueSize),
		quit:       make(chan struct{}),
		pingPeriod: d.PingPeriod,
	}
	go c.writePump()
	go c.readPump()
	return c, c.inbound, nil
}

// Channel is one live websocket signaling connection.
type Channel struct {
	conn       *websocket.Conn
	send       chan []byte
	inbound    chan core.Message
	quit       chan struct{}
	pingPeriod time.Duration

	mu     sync.RWMutex
	closed bool
	err    error
}

func (c *Channel) TrySend(m core.Message) error {
	data, err := Encode(m)
	if err != nil {
		return err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- data:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *Channel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	close(c.quit)
	c.mu.Unlock()
}

// Err reports the terminal transport fault, nil after a local Close.
func (c *Channel) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

// fail records the first transport fault and tears the connection down.
func (c *Channel) fail(err error) {
	c.mu.Lock()
	if !c.closed && c.err == nil {
		c.err = &core.TransportError{Cause: err}
	}
	c.mu.Unlock()
	c.Close()
	_ = c.conn.Close()
}

func (c *Channel) writePump() {
	var ping *time.Ticker
	if c.pingPeriod > 0 {
		ping = time.NewTicker(c.pingPeriod)
		defer ping.Stop()
	} else {
		ping = time.NewTicker(time.Hour)
		ping.Stop()
	}
	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				// Local close: a closed buffered channel hands out queued
				// frames before reporting !ok, so everything pending has
				// been written. Say goodbye and drop the socket.
				log.Info().Str("module", "signaling").Msg("writePump send channel closed")
				_ = c.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeTimeout))
				_ = c.conn.Close()
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				log.Error().Err(err).Str("module", "signaling").Msg("writePump set deadline")
				c.fail(err)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signaling").Msg("writePump write error")
				c.fail(err)
				return
			}
		case <-ping.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				log.Error().Err(err).Str("module", "signaling").Msg("writePump ping error")
				c.fail(err)
				return
			}
		}
	}
}

func (c *Channel) readPump() {
	defer func() {
		log.Info().Str("module", "signaling").Msg("readPump closing")
		close(c.inbound)
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.fail(err)
			return
		}
		msg, err := Decode(data)
		if err != nil {
			// Malformed frames are skipped; the envelope is at-least-once
			// and the negotiator tolerates gaps in non-critical messages.
			log.Error().Err(err).Str("module", "signaling").Msg("bad inbound frame")
			continue
		}
		select {
		case c.inbound <- msg:
		case <-c.quit:
			return
		}
	}
}
