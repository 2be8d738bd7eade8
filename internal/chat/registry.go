package chat

import (
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

// Registry maps usernames to live client entries. It is the only state
// shared between session handlers and the server coordinator; every access
// goes through its methods, which are safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*Client
	logger  *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		clients: make(map[string]*Client),
		logger:  logger,
	}
}

// TryRegister claims username for c. The membership test and the insert are
// one atomic step, so of two concurrent attempts on the same name exactly
// one wins. Names are trimmed first; an empty result is rejected. On success
// the trimmed name is stored in c.Username.
func (r *Registry) TryRegister(username string, c *Client) bool {
	username = strings.TrimSpace(username)
	if username == "" {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.clients[username]; exists {
		return false
	}
	c.Username = username
	r.clients[username] = c
	ConnectedClients.Set(float64(len(r.clients)))

	r.logger.Info("user registered", "username", username, "sid", c.ID)
	return true
}

// Remove drops the entry for username if present, returning it and whether
// anything was removed. Removing an absent name is a no-op, so the session
// teardown and the forced shutdown path may both call it and only one of
// them observes the removal.
func (r *Registry) Remove(username string) (*Client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[username]
	if !ok {
		return nil, false
	}
	delete(r.clients, username)
	ConnectedClients.Set(float64(len(r.clients)))

	r.logger.Info("user left", "username", username)
	return c, true
}

// Broadcast delivers one rendered line to every currently registered sink.
// A slow or defunct sink is skipped and counted; it never aborts delivery to
// the remaining clients.
func (r *Registry) Broadcast(line string) {
	start := time.Now()

	r.mu.RLock()
	for _, c := range r.clients {
		sendLine(c, line)
	}
	r.mu.RUnlock()

	BroadcastDuration.Observe(time.Since(start).Seconds())
}

func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

func (r *Registry) Contains(username string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.clients[username]
	return ok
}

// Usernames returns a sorted snapshot of the registered names.
func (r *Registry) Usernames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func sendLine(c *Client, line string) {
	// Non-blocking send prevents a slow or disconnected client from holding
	// up the broadcast path.
	select {
	case c.Out <- line:
	default:
		DroppedLines.Inc()
	}
}
