package chat

import (
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// admissionRetryDelay is how long the accept loop waits between capacity
// checks while holding an accepted connection for a free slot.
const admissionRetryDelay = 100 * time.Millisecond

type serverState int

const (
	stateCreated serverState = iota
	stateRunning
	stateStopped
)

// Server accepts TCP connections and runs one chat session per connection.
// The lifecycle is created -> running -> stopped; a stopped server cannot be
// started again.
type Server struct {
	maxClients int
	logger     *slog.Logger
	registry   *Registry

	mu       sync.Mutex
	state    serverState
	port     int
	listener net.Listener
	live     map[*Client]struct{}

	accepts  sync.WaitGroup
	sessions sync.WaitGroup
}

// NewServer configures a server for the given port and capacity. Port 0 binds
// an ephemeral free port; the bound port is available from Port once running.
func NewServer(port, maxClients int, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		maxClients: maxClients,
		logger:     logger,
		registry:   NewRegistry(logger),
		port:       port,
		live:       make(map[*Client]struct{}),
	}
}

// Start binds the listener and spawns the accept loop. Starting a running
// server returns ErrServerRunning; a stopped one, ErrServerStopped.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case stateRunning:
		return ErrServerRunning
	case stateStopped:
		return ErrServerStopped
	}

	ln, err := net.Listen("tcp", ":"+strconv.Itoa(s.port))
	if err != nil {
		return err
	}
	s.listener = ln
	s.port = ln.Addr().(*net.TCPAddr).Port
	s.state = stateRunning

	s.accepts.Add(1)
	go s.acceptLoop(ln)

	s.logger.Info("server started", "port", s.port, "max_clients", s.maxClients)
	return nil
}

// Stop shuts the server down: the listener closes, every registered user is
// removed with a departure notice to those still registered, and every
// remaining connection is closed. It returns once the accept loop and all
// session handlers have finished. Stopping a server that is not running is a
// no-op.
func (s *Server) Stop() {
	s.mu.Lock()
	if s.state != stateRunning {
		s.mu.Unlock()
		return
	}
	s.state = stateStopped
	ln := s.listener
	s.mu.Unlock()

	s.logger.Info("shutting down")

	_ = ln.Close()

	// Drain the registry one entry at a time so each departure notice
	// reaches only the users still registered.
	for _, name := range s.registry.Usernames() {
		if c, ok := s.registry.Remove(name); ok {
			s.broadcastMessage(SystemMessage(name + " has left."))
			c.Close()
		}
	}

	// Connections still alive at this point never finished the handshake,
	// or lost their registry entry to a concurrent teardown.
	s.mu.Lock()
	for c := range s.live {
		c.Close()
	}
	s.mu.Unlock()

	s.accepts.Wait()
	s.sessions.Wait()

	s.logger.Info("shutdown complete")
}

// Port reports the bound port. Before a successful Start it is whatever was
// passed to NewServer.
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

// ClientCount reports the number of registered users.
func (s *Server) ClientCount() int {
	return s.registry.Size()
}

func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateRunning
}

func (s *Server) acceptLoop(ln net.Listener) {
	defer s.accepts.Done()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.IsRunning() {
				s.logger.Error("accept failed", "error", err)
				continue
			}
			return
		}

		c := newClient(uuid.NewString(), conn)
		s.track(c)

		s.logger.Debug("client connected", "addr", conn.RemoteAddr().String(), "sid", c.ID)

		// Soft admission: hold the connection until capacity frees. Only the
		// accept loop waits; established sessions are unaffected.
		if !s.waitForSlot() {
			c.Close()
			s.forget(c)
			return
		}

		s.sessions.Add(1)
		go func() {
			defer s.sessions.Done()
			s.handleSession(c)
		}()
	}
}

// waitForSlot blocks while the registry is at capacity, polling until a slot
// frees or the server stops. It reports whether the caller may proceed.
func (s *Server) waitForSlot() bool {
	for s.registry.Size() >= s.maxClients {
		if !s.IsRunning() {
			return false
		}
		time.Sleep(admissionRetryDelay)
	}
	return s.IsRunning()
}

// broadcastMessage renders m once and fans it out to every registered
// client, counting it by kind.
func (s *Server) broadcastMessage(m Message) {
	MessagesTotal.WithLabelValues(m.Kind.String()).Inc()
	s.registry.Broadcast(m.Render())
}

func (s *Server) track(c *Client) {
	s.mu.Lock()
	s.live[c] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) forget(c *Client) {
	s.mu.Lock()
	delete(s.live, c)
	s.mu.Unlock()
}
