package ws

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"bombfield/server/internal/net/proto"
)

// Client is the participant side of a websocket connection.
type Client struct {
	conn  *websocket.Conn
	codec proto.Codec
	mu    sync.Mutex
}

// Dial connects to a /ws endpoint, asking the server to speak codec.
func Dial(ctx context.Context, rawURL string, codec proto.Codec) (*Client, error) {
	if codec == nil {
		codec = proto.JSONCodec{}
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", rawURL, err)
	}
	q := u.Query()
	q.Set("codec", codec.Name())
	u.RawQuery = q.Encode()

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", u.Redacted(), err)
	}
	conn.SetReadLimit(maxMessageSize)
	return &Client{conn: conn, codec: codec}, nil
}

// Send writes msg. Safe for concurrent use.
func (c *Client) Send(msg proto.Message) error {
	data, err := c.codec.Encode(msg)
	if err != nil {
		return err
	}
	kind := websocket.TextMessage
	if c.codec.Binary() {
		kind = websocket.BinaryMessage
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(kind, data)
}

// Receive blocks for the next message. Call it from one goroutine only.
func (c *Client) Receive() (proto.Message, error) {
	_, payload, err := c.conn.ReadMessage()
	if err != nil {
		return proto.Message{}, err
	}
	return c.codec.Decode(payload)
}

func (c *Client) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

// Close says goodbye and closes the socket.
func (c *Client) Close() error {
	c.mu.Lock()
	c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait),
	)
	c.mu.Unlock()
	return c.conn.Close()
}
