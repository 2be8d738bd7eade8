package chat

import (
	"net"
	"sync"
)

// outBufferSize is the per-client outbound line buffer. When it is full the
// broadcast path drops lines for that client instead of blocking.
const outBufferSize = 32

// Client is one live server-side connection, created by the accept loop and
// keyed in the Registry by username once registration succeeds.
type Client struct {
	ID       string // session correlation id, assigned before a username exists
	Username string
	Conn     net.Conn
	Out      chan string // outbound lines drained by the writer goroutine

	done    chan struct{}
	closing sync.Once
}

func newClient(id string, conn net.Conn) *Client {
	return &Client{
		ID:   id,
		Conn: conn,
		Out:  make(chan string, outBufferSize),
		done: make(chan struct{}),
	}
}

// Close releases the writer goroutine and closes the underlying connection,
// which also unblocks a reader parked on it. The session teardown and the
// server's forced shutdown may both call it; only the first call has effect.
func (c *Client) Close() {
	c.closing.Do(func() {
		close(c.done)
		if c.Conn != nil {
			_ = c.Conn.Close()
		}
	})
}

var (
	ErrServerRunning      = errorString("server already running")
	ErrServerStopped      = errorString("server already stopped")
	ErrClientConnected    = errorString("client already connected")
	ErrClientDisconnected = errorString("client not connected")
)

type errorString string

func (e errorString) Error() string { return string(e) }
