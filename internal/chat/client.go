package chat

import (
	"bufio"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
)

// MessageHandler consumes one inbound line from the server.
type MessageHandler func(line string)

// ChatClient is the connecting side of the protocol: it dials the server,
// surfaces inbound lines through a handler, and offers soft-failure sends so
// a UI layer never has to deal with transport errors mid-conversation.
type ChatClient struct {
	host   string
	port   int
	logger *slog.Logger

	mu        sync.Mutex
	conn      net.Conn
	connected bool
	handler   MessageHandler
}

func NewChatClient(host string, port int, logger *slog.Logger) *ChatClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatClient{host: host, port: port, logger: logger}
}

func (c *ChatClient) Host() string { return c.host }

func (c *ChatClient) Port() int { return c.port }

// Connect dials the server and starts the receive loop. Connecting while
// already connected returns ErrClientConnected; after a Disconnect the
// client may connect again.
func (c *ChatClient) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return ErrClientConnected
	}

	conn, err := net.Dial("tcp", net.JoinHostPort(c.host, strconv.Itoa(c.port)))
	if err != nil {
		return err
	}
	c.conn = conn
	c.connected = true

	go c.receiveLoop(conn)

	c.logger.Debug("connected", "host", c.host, "port", c.port)
	return nil
}

// SetMessageHandler routes inbound lines to h instead of stdout. Passing nil
// restores the stdout default.
func (c *ChatClient) SetMessageHandler(h MessageHandler) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
}

// SendMessage writes one line to the server. It reports false, never an
// error, when the client is disconnected or the write fails.
func (c *ChatClient) SendMessage(text string) bool {
	c.mu.Lock()
	conn := c.conn
	ok := c.connected
	c.mu.Unlock()

	if !ok || conn == nil {
		return false
	}
	if _, err := fmt.Fprintf(conn, "%s\n", text); err != nil {
		c.logger.Debug("send failed", "error", err)
		return false
	}
	return true
}

// RegisterUsername answers the server's username prompt. The outcome arrives
// on the message stream: a welcome line on success, INVALID NAME otherwise.
func (c *ChatClient) RegisterUsername(name string) error {
	if !c.SendMessage(name) {
		return ErrClientDisconnected
	}
	return nil
}

// Disconnect announces departure best-effort and closes the connection.
// Disconnecting an already disconnected client is a no-op.
func (c *ChatClient) Disconnect() {
	c.mu.Lock()
	conn := c.conn
	ok := c.connected
	c.mu.Unlock()

	if !ok || conn == nil {
		return
	}

	c.SendMessage("/quit")
	c.teardown(conn)
}

func (c *ChatClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected && c.conn != nil
}

// receiveLoop delivers inbound lines to the handler until the connection
// drops, then tears its own connection down.
func (c *ChatClient) receiveLoop(conn net.Conn) {
	defer c.teardown(conn)

	r := bufio.NewReader(conn)
	for {
		line, err := readLine(r)
		if err != nil {
			return
		}
		c.deliver(line)
	}
}

func (c *ChatClient) deliver(line string) {
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()

	if h != nil {
		h(line)
		return
	}
	fmt.Println(line)
}

// teardown closes conn and clears the connected state, but only while conn
// is still the current connection. A receive loop left over from an earlier
// connection therefore cannot tear down a newer one.
func (c *ChatClient) teardown(conn net.Conn) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.connected = false
	c.mu.Unlock()

	_ = conn.Close()
	c.logger.Debug("disconnected")
}
