package wire

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	mu     sync.Mutex
	frames []*Frame
}

func (h *recordingHandler) HandleFrame(_ *Conn, f *Frame) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.frames = append(h.frames, f.Clone())
	return nil
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.frames)
}

type eventLog struct {
	mu     sync.Mutex
	events []ServerEvent
}

func (l *eventLog) hook(event ServerEvent, _ *Conn, _ *Frame) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *eventLog) has(want ServerEvent) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.events {
		if e == want {
			return true
		}
	}
	return false
}

func startServer(t *testing.T, handler FrameHandler) (*Server, string, *eventLog) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := NewServer(NewHandshaker(), handler)
	log := &eventLog{}
	srv.Subscribe(log.hook)

	go srv.Serve(ln)
	t.Cleanup(srv.Shutdown)
	return srv, ln.Addr().String(), log
}

func dialAgent(t *testing.T, addr string) *Conn {
	t.Helper()
	sock, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	conn := NewConn(sock)
	t.Cleanup(conn.Close)
	require.NoError(t, ClientHandshake(conn, true))
	return conn
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestServerSessionLifecycle(t *testing.T) {
	handler := &recordingHandler{}
	srv, addr, log := startServer(t, handler)

	agent := dialAgent(t, addr)
	waitFor(t, func() bool { return log.has(ConnectionEstablished) }, "session never established")
	assert.True(t, log.has(ConnectionAccepted))
	assert.Equal(t, 1, srv.SessionCount())

	require.NoError(t, agent.Send(Envelope("AA:BB:CC:DD:EE:FF", MsgRequestRules)))
	waitFor(t, func() bool { return handler.count() == 1 }, "frame never reached handler")
	assert.True(t, log.has(MessageReceived))

	agent.Close()
	waitFor(t, func() bool { return log.has(ConnectionTerminated) }, "session never terminated")
	waitFor(t, func() bool { return srv.SessionCount() == 0 }, "live set never drained")
}

func TestServerObservesHandshakeTraffic(t *testing.T) {
	_, addr, log := startServer(t, &recordingHandler{})

	dialAgent(t, addr)
	waitFor(t, func() bool { return log.has(ConnectionEstablished) }, "session never established")

	// No application message was sent; the frame events come from the
	// handshake exchange itself.
	assert.True(t, log.has(MessageSent))
	assert.True(t, log.has(MessageReceived))
}

func TestServerRejectsDuplicateIP(t *testing.T) {
	_, addr, _ := startServer(t, &recordingHandler{})

	first := dialAgent(t, addr)
	defer first.Close()

	// Second connection from the same address is closed before any handshake.
	sock, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	dup := NewConn(sock)
	defer dup.Close()

	require.NoError(t, dup.SetTimeout(2*time.Second))
	_, err = dup.Recv()
	assert.ErrorIs(t, err, ErrTransport)

	// The original session is unaffected.
	require.NoError(t, first.Send(Envelope("AA:BB:CC:DD:EE:FF", MsgRequestRules)))
}

func TestServerShutdownClosesSessions(t *testing.T) {
	srv, addr, log := startServer(t, &recordingHandler{})

	agent := dialAgent(t, addr)
	waitFor(t, func() bool { return log.has(ConnectionEstablished) }, "session never established")

	srv.Shutdown()
	assert.Equal(t, 0, srv.SessionCount())

	require.NoError(t, agent.SetTimeout(2*time.Second))
	_, err := agent.Recv()
	assert.Error(t, err)

	_, err = net.DialTimeout("tcp", addr, time.Second)
	assert.Error(t, err, "listener must be closed")
}

func TestServerSessionByIP(t *testing.T) {
	srv, addr, log := startServer(t, &recordingHandler{})

	dialAgent(t, addr)
	waitFor(t, func() bool { return log.has(ConnectionEstablished) }, "session never established")

	conn, ok := srv.SessionByIP("127.0.0.1")
	require.True(t, ok)
	assert.Equal(t, "127.0.0.1", conn.RemoteIP())

	_, ok = srv.SessionByIP("10.0.0.9")
	assert.False(t, ok)
}
