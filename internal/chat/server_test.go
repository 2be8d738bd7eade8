package chat

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"
)

func TestServer_Lifecycle(t *testing.T) {
	s := NewServer(0, 4, testLogger())

	if s.IsRunning() {
		t.Fatal("new server should not be running")
	}
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if got := s.Port(); got <= 0 {
		t.Fatalf("expected a bound ephemeral port, got %d", got)
	}
	if !s.IsRunning() {
		t.Fatal("started server should be running")
	}
	if err := s.Start(); err != ErrServerRunning {
		t.Fatalf("expected ErrServerRunning, got %v", err)
	}

	s.Stop()
	if s.IsRunning() {
		t.Fatal("stopped server should not be running")
	}
	if err := s.Start(); err != ErrServerStopped {
		t.Fatalf("expected ErrServerStopped, got %v", err)
	}
	s.Stop() // second stop is a no-op
}

func TestServer_StopBeforeStartIsNoop(t *testing.T) {
	s := NewServer(0, 4, testLogger())
	s.Stop()

	if err := s.Start(); err != nil {
		t.Fatalf("start after no-op stop: %v", err)
	}
	t.Cleanup(s.Stop)
}

func TestServer_HandshakeRejectsBlankAndTakenNames(t *testing.T) {
	s := startServer(t, 4)

	aConn, aR := dialServer(t, s.Port())
	join(t, aConn, aR, "alice")

	bConn, bR := dialServer(t, s.Port())
	expectLine(t, bConn, bR, "Enter username:")

	fmt.Fprintf(bConn, "   \n")
	expectLine(t, bConn, bR, "INVALID NAME")
	expectLine(t, bConn, bR, "Enter username:")

	fmt.Fprintf(bConn, "alice\n")
	expectLine(t, bConn, bR, "INVALID NAME")
	expectLine(t, bConn, bR, "Enter username:")

	fmt.Fprintf(bConn, "bob\n")
	expectLine(t, bConn, bR, "Welcome to the chat group, bob!")
	expectLine(t, bConn, bR, "[SYSTEM] bob has joined.")
}

func TestServer_BroadcastBetweenClients(t *testing.T) {
	s := startServer(t, 4)

	aConn, aR := dialServer(t, s.Port())
	join(t, aConn, aR, "alice")

	bConn, bR := dialServer(t, s.Port())
	join(t, bConn, bR, "bob")
	expectLine(t, aConn, aR, "[SYSTEM] bob has joined.")

	fmt.Fprintf(aConn, "hello bob\n")
	expectLine(t, aConn, aR, "[alice] hello bob")
	expectLine(t, bConn, bR, "[alice] hello bob")

	// Blank input is dropped; the next real line arrives immediately after.
	fmt.Fprintf(bConn, "   \n")
	fmt.Fprintf(bConn, "hello alice\n")
	expectLine(t, aConn, aR, "[bob] hello alice")
	expectLine(t, bConn, bR, "[bob] hello alice")
}

func TestServer_QuitBroadcastsDeparture(t *testing.T) {
	s := startServer(t, 4)

	aConn, aR := dialServer(t, s.Port())
	join(t, aConn, aR, "alice")

	bConn, bR := dialServer(t, s.Port())
	join(t, bConn, bR, "bob")
	expectLine(t, aConn, aR, "[SYSTEM] bob has joined.")

	// The quit command is case-insensitive.
	fmt.Fprintf(bConn, "/QUIT\n")
	expectLine(t, aConn, aR, "[SYSTEM] bob has left.")
	waitForCount(t, s, 1)

	// No duplicate departure notice: the next line alice sees is her own echo.
	fmt.Fprintf(aConn, "still here\n")
	expectLine(t, aConn, aR, "[alice] still here")
}

func TestServer_AbruptDisconnectBroadcastsDeparture(t *testing.T) {
	s := startServer(t, 4)

	aConn, aR := dialServer(t, s.Port())
	join(t, aConn, aR, "alice")

	bConn, bR := dialServer(t, s.Port())
	join(t, bConn, bR, "bob")
	expectLine(t, aConn, aR, "[SYSTEM] bob has joined.")

	_ = bConn.Close()

	expectLine(t, aConn, aR, "[SYSTEM] bob has left.")
	waitForCount(t, s, 1)
}

func TestServer_HoldsConnectionsAtCapacity(t *testing.T) {
	s := startServer(t, 1)

	aConn, aR := dialServer(t, s.Port())
	join(t, aConn, aR, "alice")

	// At capacity the next connection is accepted but held before the
	// handshake: no prompt must arrive while the slot is taken.
	bConn, bR := dialServer(t, s.Port())
	_ = bConn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	if line, err := bR.ReadString('\n'); err == nil {
		t.Fatalf("expected no prompt while at capacity, got %q", line)
	}

	fmt.Fprintf(aConn, "/quit\n")
	waitForCount(t, s, 0)

	join(t, bConn, bR, "bob")
	waitForCount(t, s, 1)
}

func TestServer_StopDisconnectsClients(t *testing.T) {
	s := startServer(t, 4)

	aConn, aR := dialServer(t, s.Port())
	join(t, aConn, aR, "alice")

	bConn, bR := dialServer(t, s.Port())
	join(t, bConn, bR, "bob")
	expectLine(t, aConn, aR, "[SYSTEM] bob has joined.")

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("stop did not return with clients connected")
	}

	if got := s.ClientCount(); got != 0 {
		t.Fatalf("expected empty registry after stop, got %d", got)
	}
	expectDisconnect(t, aConn, aR)
	expectDisconnect(t, bConn, bR)
}

func TestServer_StopClosesPreRegistrationConnections(t *testing.T) {
	s := startServer(t, 4)

	conn, r := dialServer(t, s.Port())
	expectLine(t, conn, r, "Enter username:")

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("stop did not return with an unregistered session open")
	}
	expectDisconnect(t, conn, r)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startServer(t *testing.T, maxClients int) *Server {
	t.Helper()
	s := NewServer(0, maxClients, testLogger())
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(s.Stop)
	return s
}

func dialServer(t *testing.T, port int) (net.Conn, *bufio.Reader) {
	t.Helper()
	conn, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn, bufio.NewReader(conn)
}

// join performs the username handshake and consumes the welcome and join
// lines the server sends back to the new client.
func join(t *testing.T, conn net.Conn, r *bufio.Reader, name string) {
	t.Helper()
	expectLine(t, conn, r, "Enter username:")
	fmt.Fprintf(conn, "%s\n", name)
	expectLine(t, conn, r, "Welcome to the chat group, "+name+"!")
	expectLine(t, conn, r, "[SYSTEM] "+name+" has joined.")
}

func expectLine(t *testing.T, conn net.Conn, r *bufio.Reader, want string) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("read while waiting for %q: %v", want, err)
	}
	if got := strings.TrimRight(line, "\r\n"); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

// expectDisconnect drains remaining lines until the server hangs up.
func expectDisconnect(t *testing.T, conn net.Conn, r *bufio.Reader) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, err := r.ReadString('\n'); err != nil {
			return
		}
	}
}

func waitForCount(t *testing.T, s *Server, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.ClientCount() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("client count never reached %d (now %d)", want, s.ClientCount())
}
