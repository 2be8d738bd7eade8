package chat

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Protocol lines for the username handshake.
const (
	promptUsername   = "Enter username:"
	replyInvalidName = "INVALID NAME"
)

// handleSession owns one accepted connection from handshake to teardown. It
// runs in its own goroutine; the outbound writer owns the write side of the
// socket, this loop owns the read side.
func (s *Server) handleSession(c *Client) {
	defer s.releaseSession(c)

	StartOutboundWriter(c)

	reader := bufio.NewReader(c.Conn)

	// Username handshake. EOF or a read error before a name is accepted
	// abandons the connection without any broadcast.
	for {
		sendLine(c, promptUsername)
		line, err := readLine(reader)
		if err != nil {
			return
		}
		if s.registry.TryRegister(line, c) {
			break
		}
		sendLine(c, replyInvalidName)
	}

	sendLine(c, "Welcome to the chat group, "+c.Username+"!")
	s.broadcastMessage(SystemMessage(c.Username + " has joined."))

	// Relay loop.
	for {
		line, err := readLine(reader)
		if err != nil {
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.EqualFold(line, "/quit") {
			return
		}
		s.broadcastMessage(UserMessage(c.Username, line))
	}
}

// releaseSession tears one session down: the registry entry goes first so the
// departure notice reaches only the clients still registered, then the socket
// closes. It may race a forced shutdown over the same entry; whichever side
// removes it broadcasts the notice.
func (s *Server) releaseSession(c *Client) {
	if _, ok := s.registry.Remove(c.Username); ok {
		s.broadcastMessage(SystemMessage(c.Username + " has left."))
	}
	c.Close()
	s.forget(c)
}

// readLine reads one newline-terminated line, tolerating a final line without
// the terminator.
func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err == nil {
		return strings.TrimRight(line, "\r\n"), nil
	}
	if err == io.EOF && line != "" {
		return strings.TrimRight(line, "\r\n"), nil
	}
	if err == io.EOF {
		return "", io.EOF
	}
	return "", fmt.Errorf("read: %w", err)
}
