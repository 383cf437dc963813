// Package nats wraps a nats.go connection with the reconnect policy and
// structured logging the Notification Bridge needs to survive the
// wake-channel embedded server restarting underneath it (spec.md §4.4).
package nats

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	nc "github.com/nats-io/nats.go"

	"github.com/ronylicha/agentctx-core/internal/logging"
)

var log = logging.New("nats")

// Message is a subject/reply/payload tuple, decoupling callers from
// the nats.go Msg type.
type Message struct {
	Subject string
	Reply   string
	Data    []byte
}

// Client wraps a NATS connection with convenience methods and a
// capped-exponential-backoff reconnect policy.
type Client struct {
	conn *nc.Conn
}

const (
	reconnectBase = 1 * time.Second
	reconnectCap  = 30 * time.Second
)

// reconnectDelay implements 1s, 2s, 4s, ... capped at 30s.
func reconnectDelay(attempts int) time.Duration {
	d := time.Duration(float64(reconnectBase) * math.Pow(2, float64(attempts)))
	if d > reconnectCap || d <= 0 {
		return reconnectCap
	}
	return d
}

// NewClient connects to url with indefinite, capped-exponential-backoff
// reconnects.
func NewClient(url string) (*Client, error) {
	opts := []nc.Option{
		nc.MaxReconnects(-1),
		nc.CustomReconnectDelay(reconnectDelay),
		nc.DisconnectErrHandler(func(conn *nc.Conn, err error) {
			if err != nil {
				log.Warn("disconnected: %v", err)
			}
		}),
		nc.ReconnectHandler(func(conn *nc.Conn) {
			log.Info("reconnected to %s", conn.ConnectedUrl())
		}),
		nc.ClosedHandler(func(conn *nc.Conn) {
			log.Info("connection closed")
		}),
	}

	conn, err := nc.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &Client{conn: conn}, nil
}

// Close closes the NATS connection.
func (c *Client) Close() {
	if c.conn != nil {
		c.conn.Close()
	}
}

// Publish publishes data to a subject.
func (c *Client) Publish(subject string, data []byte) error {
	if err := c.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

// PublishJSON publishes a JSON-encoded message to a subject.
func (c *Client) PublishJSON(subject string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return c.Publish(subject, data)
}

// Subscribe creates an asynchronous subscription.
func (c *Client) Subscribe(subject string, handler func(*Message)) (*nc.Subscription, error) {
	sub, err := c.conn.Subscribe(subject, func(msg *nc.Msg) {
		handler(&Message{
			Subject: msg.Subject,
			Reply:   msg.Reply,
			Data:    msg.Data,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}
	return sub, nil
}

// Request sends a request and waits for a reply.
func (c *Client) Request(subject string, data []byte, timeout time.Duration) (*Message, error) {
	msg, err := c.conn.Request(subject, data, timeout)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", subject, err)
	}
	return &Message{
		Subject: msg.Subject,
		Reply:   msg.Reply,
		Data:    msg.Data,
	}, nil
}

// Flush flushes the buffered data to the server.
func (c *Client) Flush() error {
	if err := c.conn.Flush(); err != nil {
		return fmt.Errorf("flush failed: %w", err)
	}
	return nil
}

// IsConnected returns true if the client is currently connected.
func (c *Client) IsConnected() bool {
	return c.conn != nil && c.conn.IsConnected()
}

// RawConn returns the underlying NATS connection for advanced use cases.
func (c *Client) RawConn() *nc.Conn {
	return c.conn
}
