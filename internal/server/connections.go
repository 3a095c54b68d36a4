package server

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"
)

const (
	connSendBuffer = 64
	connWriteLimit = 10 * time.Second
)

// clientConn wraps one websocket. All writes go through the send channel and
// a single writer goroutine, so handlers and session-event forwarders never
// interleave frames.
type clientConn struct {
	id   string
	sock *websocket.Conn
	send chan ServerMessage
	done chan struct{}
	once sync.Once
	log  zerolog.Logger
}

func newClientConn(id string, sock *websocket.Conn, log zerolog.Logger) *clientConn {
	c := &clientConn{
		id:   id,
		sock: sock,
		send: make(chan ServerMessage, connSendBuffer),
		done: make(chan struct{}),
		log:  log.With().Str("conn_id", id).Logger(),
	}
	go c.writeLoop()
	return c
}

func (c *clientConn) writeLoop() {
	for {
		select {
		case msg := <-c.send:
			data, err := json.Marshal(msg)
			if err != nil {
				c.log.Error().Err(err).Str("type", msg.Type).Msg("marshal outbound message")
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), connWriteLimit)
			err = c.sock.Write(ctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				c.log.Debug().Err(err).Str("type", msg.Type).Msg("write failed")
				return
			}
		case <-c.done:
			return
		}
	}
}

// enqueue hands a message to the writer. Returns false when the connection
// is stopped or its buffer is full; a full buffer means the peer is not
// draining and the message is dropped.
func (c *clientConn) enqueue(msg ServerMessage) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	case <-c.done:
		return false
	default:
		c.log.Warn().Str("type", msg.Type).Msg("send buffer full, dropping message")
		return false
	}
}

func (c *clientConn) stop() {
	c.once.Do(func() { close(c.done) })
}

// ConnectionManager tracks live websockets by connection id.
type ConnectionManager struct {
	mu    sync.RWMutex
	conns map[string]*clientConn
	log   zerolog.Logger
}

func NewConnectionManager(log zerolog.Logger) *ConnectionManager {
	return &ConnectionManager{
		conns: make(map[string]*clientConn),
		log:   log,
	}
}

func (cm *ConnectionManager) Add(id string, sock *websocket.Conn) *clientConn {
	c := newClientConn(id, sock, cm.log)
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.conns[id] = c
	return c
}

func (cm *ConnectionManager) Remove(id string) {
	cm.mu.Lock()
	c := cm.conns[id]
	delete(cm.conns, id)
	cm.mu.Unlock()
	if c != nil {
		c.stop()
	}
}

func (cm *ConnectionManager) Get(id string) *clientConn {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.conns[id]
}

func (cm *ConnectionManager) Count() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.conns)
}

// CloseAll stops every writer, used at shutdown after sessions have
// published their terminal state.
func (cm *ConnectionManager) CloseAll() {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	for id, c := range cm.conns {
		c.stop()
		c.sock.Close(websocket.StatusGoingAway, "server shutting down")
		delete(cm.conns, id)
	}
}
