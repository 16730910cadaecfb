package wire

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
)

// ServerEvent identifies a lifecycle notification emitted by the acceptor.
type ServerEvent int

const (
	ConnectionAccepted ServerEvent = iota
	ConnectionEstablished
	ConnectionFailedToEstablish
	ConnectionTerminated
	MessageReceived
	MessageSent
)

func (e ServerEvent) String() string {
	switch e {
	case ConnectionAccepted:
		return "CONNECTION_ACCEPTED"
	case ConnectionEstablished:
		return "CONNECTION_ESTABLISHED"
	case ConnectionFailedToEstablish:
		return "CONNECTION_FAILED_TO_ESTABLISH"
	case ConnectionTerminated:
		return "CONNECTION_TERMINATED"
	case MessageReceived:
		return "MESSAGE_RECEIVED"
	case MessageSent:
		return "MESSAGE_SENT"
	}
	return fmt.Sprintf("SERVER_EVENT(%d)", int(e))
}

// EventHook receives lifecycle notifications. The frame is nil for connection
// events and a deep copy for message events.
type EventHook func(event ServerEvent, conn *Conn, frame *Frame)

// FrameHandler consumes inbound frames from an established session.
// Returned errors tear the session down.
type FrameHandler interface {
	HandleFrame(conn *Conn, frame *Frame) error
}

// Server accepts agent connections, runs the handshake, and pumps frames to
// the handler. One concurrent session is kept per remote IP; a newcomer from
// an already connected address is rejected before any handshake work.
type Server struct {
	handshaker *Handshaker
	handler    FrameHandler

	mu    sync.Mutex
	hooks []EventHook
	live  map[string]*Conn
	ln    net.Listener

	closed  chan struct{}
	once    sync.Once
	readers sync.WaitGroup
}

// NewServer wires an acceptor to its handshaker and frame handler.
func NewServer(handshaker *Handshaker, handler FrameHandler) *Server {
	return &Server{
		handshaker: handshaker,
		handler:    handler,
		live:       make(map[string]*Conn),
		closed:     make(chan struct{}),
	}
}

// Subscribe registers a lifecycle hook. Hooks run synchronously on the
// session goroutine and must not block.
func (s *Server) Subscribe(hook EventHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, hook)
}

func (s *Server) notify(event ServerEvent, conn *Conn, frame *Frame) {
	s.mu.Lock()
	hooks := make([]EventHook, len(s.hooks))
	copy(hooks, s.hooks)
	s.mu.Unlock()
	for _, h := range hooks {
		h(event, conn, frame)
	}
}

// ListenAndServe blocks accepting connections until Shutdown is called.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	slog.Info("wrapper server listening", "addr", ln.Addr().String())

	for {
		sock, err := ln.Accept()
		if err != nil {
			select {
			case <-s.closed:
				s.readers.Wait()
				return nil
			default:
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return fmt.Errorf("%w: %v", ErrTransport, err)
		}

		conn := NewConn(sock)
		if !s.admit(conn) {
			slog.Warn("duplicate session rejected", "peer", conn.RemoteIP())
			conn.Close()
			continue
		}
		s.notify(ConnectionAccepted, conn, nil)

		s.readers.Add(1)
		go s.session(conn)
	}
}

// admit registers the connection in the live set unless its IP is taken.
func (s *Server) admit(conn *Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.live[conn.RemoteIP()]; taken {
		return false
	}
	s.live[conn.RemoteIP()] = conn
	return true
}

func (s *Server) evict(conn *Conn) {
	s.mu.Lock()
	if s.live[conn.RemoteIP()] == conn {
		delete(s.live, conn.RemoteIP())
	}
	s.mu.Unlock()
}

// session runs the handshake and then the read loop for one agent.
func (s *Server) session(conn *Conn) {
	defer s.readers.Done()
	defer s.evict(conn)
	defer conn.Close()

	// Hooks attach before the handshake so subscribers see its traffic too.
	conn.OnSend = func(c *Conn, f *Frame) { s.notify(MessageSent, c, f) }
	conn.OnRecv = func(c *Conn, f *Frame) { s.notify(MessageReceived, c, f) }

	if !s.handshaker.Handshake(conn) {
		s.notify(ConnectionFailedToEstablish, conn, nil)
		return
	}
	s.notify(ConnectionEstablished, conn, nil)
	slog.Info("session established", "peer", conn.RemoteIP(), "encrypted", conn.Encrypted())

	for {
		frame, err := conn.Recv()
		if err != nil {
			if !errors.Is(err, ErrTransport) {
				slog.Warn("session read failed", "peer", conn.RemoteIP(), "err", err)
			}
			break
		}
		if err := s.handler.HandleFrame(conn, frame); err != nil {
			slog.Warn("session handler failed", "peer", conn.RemoteIP(), "err", err)
			break
		}
	}

	s.notify(ConnectionTerminated, conn, nil)
	slog.Info("session terminated", "peer", conn.RemoteIP())
}

// SessionCount reports the number of live sessions, handshaking included.
func (s *Server) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}

// SessionByIP returns the live session for an agent IP, if any.
func (s *Server) SessionByIP(ip string) (*Conn, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.live[ip]
	return c, ok
}

// Shutdown stops accepting, closes every live session, and waits for the
// session goroutines to drain. Idempotent.
func (s *Server) Shutdown() {
	s.once.Do(func() {
		close(s.closed)
		s.mu.Lock()
		ln := s.ln
		conns := make([]*Conn, 0, len(s.live))
		for _, c := range s.live {
			conns = append(conns, c)
		}
		s.mu.Unlock()

		if ln != nil {
			ln.Close()
		}
		for _, c := range conns {
			c.Close()
		}
		s.readers.Wait()
	})
}
