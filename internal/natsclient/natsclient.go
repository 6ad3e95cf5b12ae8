// Package natsclient connects to NATS JetStream for event publishing.
package natsclient

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// Client wraps a NATS connection with a JetStream context.
type Client struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// Connect dials NATS and initializes JetStream. Returns nil client and nil
// error when url is empty so the publisher degrades to a no-op.
func Connect(url string) (*Client, error) {
	if url == "" {
		return nil, nil
	}

	conn, err := nats.Connect(url,
		nats.Name("procurement-approvals"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("init JetStream: %w", err)
	}
	return &Client{conn: conn, js: js}, nil
}

// Publish sends data to a subject, honoring ctx cancellation.
func (c *Client) Publish(ctx context.Context, subject string, data []byte) error {
	_, err := c.js.Publish(subject, data, nats.Context(ctx))
	return err
}

// Close drains and closes the connection.
func (c *Client) Close() {
	if c == nil || c.conn == nil {
		return
	}
	_ = c.conn.Drain()
}
