package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	socketio "github.com/googollee/go-socket.io"
	"github.com/googollee/go-socket.io/engineio"
)

// SocketIODialer connects to the backend's Socket.IO endpoint.
type SocketIODialer struct {
	URL    string
	Logger *slog.Logger
}

// NewSocketIODialer returns a dialer for the given backend base URL.
func NewSocketIODialer(url string, logger *slog.Logger) *SocketIODialer {
	return &SocketIODialer{URL: url, Logger: logger}
}

// Dial opens a Socket.IO client and registers onDetection for
// person_detection_response messages.
func (d *SocketIODialer) Dial(ctx context.Context, onDetection Handler) (Conn, error) {
	client, err := socketio.NewClient(d.URL, &engineio.Options{
		PingTimeout:  60 * time.Second,
		PingInterval: 25 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("creating socket.io client: %w", err)
	}

	client.OnEvent(EventDetection, func(s socketio.Conn, msg json.RawMessage) {
		onDetection(msg)
	})
	client.OnError(func(s socketio.Conn, err error) {
		d.Logger.Warn("push channel error", "error", err)
	})
	client.OnDisconnect(func(s socketio.Conn, reason string) {
		d.Logger.Info("push channel disconnected", "reason", reason)
	})

	done := make(chan error, 1)
	go func() { done <- client.Connect() }()

	select {
	case err := <-done:
		if err != nil {
			return nil, fmt.Errorf("connecting to %s: %w", d.URL, err)
		}
	case <-ctx.Done():
		go func() {
			if err := <-done; err == nil {
				_ = client.Close()
			}
		}()
		return nil, ctx.Err()
	}

	return &socketIOConn{client: client}, nil
}

type socketIOConn struct {
	client *socketio.Client

	mu     sync.Mutex
	closed bool
}

// Emit queues the message on the client. The library drops messages for a
// namespace that is not ready without reporting it, so only emitting on a
// closed connection is an error here.
func (c *socketIOConn) Emit(event string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.client.Emit(event, payload)
	return nil
}

func (c *socketIOConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.client.Close()
}
