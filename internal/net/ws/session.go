package ws

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"bombfield/server/internal/net/proto"
	"bombfield/server/internal/sim"
)

const (
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = pongWait * 9 / 10
	maxMessageSize    = 64 * 1024
	defaultSendBuffer = 256
)

var (
	ErrSessionClosed = errors.New("ws: session closed")
	ErrSendQueueFull = errors.New("ws: send queue full")
	errNoConnection  = errors.New("ws: no connection")
)

// Session is the server side of one participant connection. Send never
// blocks the tick: frames are queued and written by the session's own
// writer goroutine.
type Session struct {
	owner sim.Owner
	conn  *websocket.Conn
	codec proto.Codec

	queue     chan []byte
	done      chan struct{}
	closeOnce sync.Once

	sent    atomic.Uint64
	dropped atomic.Uint64
}

func newSession(conn *websocket.Conn, codec proto.Codec, buffer int) *Session {
	if buffer <= 0 {
		buffer = defaultSendBuffer
	}
	return &Session{
		conn:  conn,
		codec: codec,
		queue: make(chan []byte, buffer),
		done:  make(chan struct{}),
	}
}

// Owner is the id the authority assigned to this connection.
func (s *Session) Owner() sim.Owner {
	return s.owner
}

// Send encodes msg and queues it for the writer.
func (s *Session) Send(msg proto.Message) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}
	data, err := s.codec.Encode(msg)
	if err != nil {
		return err
	}
	select {
	case s.queue <- data:
		return nil
	default:
		s.dropped.Add(1)
		return ErrSendQueueFull
	}
}

// Close stops the writer and closes the socket. It is safe to call more
// than once.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		if s.conn == nil {
			err = errNoConnection
			return
		}
		err = s.conn.Close()
	})
	return err
}

func (s *Session) messageType() int {
	if s.codec.Binary() {
		return websocket.BinaryMessage
	}
	return websocket.TextMessage
}

// writePump drains the queue onto the socket and keeps the peer alive with
// pings.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	kind := s.messageType()
	for {
		select {
		case <-s.done:
			return
		case data := <-s.queue:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(kind, data); err != nil {
				s.Close()
				return
			}
			s.sent.Add(1)
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.Close()
				return
			}
		}
	}
}
