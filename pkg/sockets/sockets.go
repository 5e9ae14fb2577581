package sockets

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var ErrClosed = errors.New("closed connection")

type Connection interface {
	Dial(ctx context.Context, url, subprotocol string) error
	Send(msg Msg) error
	// StartPing begins the periodic ping schedule. It is a separate call so
	// protocols that must authenticate first can delay it until login
	// completes.
	StartPing()
	IsClosed() bool
	io.Closer
}

// Msg is the message structure.
type Msg struct {
	Body []byte
}

type Conn struct {
	mu               sync.Mutex
	ws               *websocket.Conn
	closed           bool
	sslSkipVerify    bool
	handshakeTimeout time.Duration
	pingInterval     time.Duration
	pingMsg          []byte
	pingOnce         sync.Once
	pingStop         chan struct{}
	onError          func(err error)
	onMessage        func([]byte, Connection)
	onConnected      func(Connection)
}

func New(opts ...func(*Conn)) Connection {
	c := &Conn{
		handshakeTimeout: 15 * time.Second,
		pingStop:         make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Conn) Dial(ctx context.Context, url, subProtocol string) error {
	dialer := &websocket.Dialer{
		HandshakeTimeout: c.handshakeTimeout,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: c.sslSkipVerify,
		},
	}
	var header http.Header
	if subProtocol != "" {
		dialer.Subprotocols = []string{subProtocol}
	}
	conn, _, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.ws = conn
	c.closed = false
	c.mu.Unlock()

	if c.onConnected != nil {
		go c.onConnected(c)
	}
	go c.readLoop(conn)
	return nil
}

func (c *Conn) readLoop(ws *websocket.Conn) {
	for {
		_, msg, err := ws.ReadMessage()
		if err != nil {
			if !c.IsClosed() && c.onError != nil {
				c.onError(err)
			}
			return
		}
		if c.onMessage != nil {
			go c.onMessage(msg, c)
		}
	}
}

func (c *Conn) Send(msg Msg) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.ws == nil {
		return ErrClosed
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, msg.Body); err != nil {
		c.closeLocked()
		if c.onError != nil {
			go c.onError(err)
		}
		return err
	}
	return nil
}

func (c *Conn) StartPing() {
	if c.pingInterval <= 0 || len(c.pingMsg) == 0 {
		return
	}
	c.pingOnce.Do(func() {
		ticker := time.NewTicker(c.pingInterval)
		go func() {
			defer ticker.Stop()
			for {
				select {
				case <-c.pingStop:
					return
				case <-ticker.C:
				}
				if c.Send(Msg{Body: c.pingMsg}) != nil {
					return
				}
			}
		}()
	})
}

func (c *Conn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close closes the connection and cancels the ping schedule.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closeLocked()
	return nil
}

func (c *Conn) closeLocked() {
	c.closed = true
	select {
	case <-c.pingStop:
	default:
		close(c.pingStop)
	}
	if c.ws != nil {
		_ = c.ws.Close()
	}
}
