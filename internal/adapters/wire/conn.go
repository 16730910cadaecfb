package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

var (
	// ErrTransport wraps socket-level failures; the session is torn down.
	ErrTransport = errors.New("wire: transport error")
	// ErrProtocol wraps malformed traffic; the session is torn down.
	ErrProtocol = errors.New("wire: protocol error")
)

// MaxFrameBytes caps the declared length of an inbound frame so a forged
// header cannot force an arbitrary allocation.
const MaxFrameBytes = 16 << 20

// FrameHook observes plaintext frames on a connection. Hooks receive a deep
// copy, so they may retain or mutate it freely.
type FrameHook func(c *Conn, f *Frame)

// Conn owns one agent socket together with its session cipher state.
// It is single-reader: exactly one goroutine may call Recv. Sends may come
// from any goroutine and are serialized internally.
type Conn struct {
	sock net.Conn
	addr string // peer IP without port

	iv        []byte
	key       []byte
	cipher    *sessionCipher
	encrypted bool

	OnSend FrameHook
	OnRecv FrameHook

	writeMu   sync.Mutex
	closeOnce sync.Once
}

// NewConn wraps an accepted socket.
func NewConn(sock net.Conn) *Conn {
	addr := ""
	if sock.RemoteAddr() != nil {
		if host, _, err := net.SplitHostPort(sock.RemoteAddr().String()); err == nil {
			addr = host
		}
	}
	return &Conn{sock: sock, addr: addr}
}

// RemoteIP returns the peer IP address.
func (c *Conn) RemoteIP() string {
	return c.addr
}

// Encrypted reports whether the session cipher is active.
func (c *Conn) Encrypted() bool {
	return c.encrypted
}

// enableEncryption installs the session cipher. Called by the handshake only,
// before the reader goroutine exists.
func (c *Conn) enableEncryption(key, iv []byte) error {
	sc, err := newSessionCipher(key, iv)
	if err != nil {
		return err
	}
	c.key, c.iv, c.cipher, c.encrypted = key, iv, sc, true
	return nil
}

// clearCrypto zeroes all cipher state after a failed handshake.
func (c *Conn) clearCrypto() {
	for i := range c.key {
		c.key[i] = 0
	}
	for i := range c.iv {
		c.iv[i] = 0
	}
	c.key, c.iv, c.cipher, c.encrypted = nil, nil, nil, false
}

// SetTimeout bounds subsequent blocking socket operations. Zero clears it.
func (c *Conn) SetTimeout(d time.Duration) error {
	if d <= 0 {
		return c.sock.SetDeadline(time.Time{})
	}
	return c.sock.SetDeadline(time.Now().Add(d))
}

// Close half-closes then closes the socket. Idempotent.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		if tcp, ok := c.sock.(*net.TCPConn); ok {
			tcp.CloseWrite() // best effort half-close
		}
		c.sock.Close()
	})
}

// Send serializes the frame, encrypts it when the session cipher is active,
// and writes it atomically with respect to other senders. The OnSend hook
// fires before the write.
func (c *Conn) Send(f *Frame) error {
	if c.OnSend != nil {
		c.OnSend(c, f.Clone())
	}

	var data []byte
	if c.encrypted {
		// The inner frame is serialized without its length prefix, padded,
		// encrypted, and carried as the single RAW field of an outer frame.
		ciphertext := c.cipher.Encrypt(f.Encode(false))
		data = NewFrame(RawField(ciphertext)).Encode(true)
	} else {
		data = f.Encode(true)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.sock.Write(data); err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return nil
}

// Recv reads one frame, decrypting when the session cipher is active.
// In encrypted mode the outer frame must be the raw ciphertext; anything
// else is a protocol error. The OnRecv hook fires with the plaintext frame.
func (c *Conn) Recv() (*Frame, error) {
	header := make([]byte, FullLengthSize)
	if _, err := io.ReadFull(c.sock, header); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	total := binary.BigEndian.Uint64(header)
	if total > MaxFrameBytes {
		return nil, fmt.Errorf("%w: declared frame length %d exceeds %d", ErrProtocol, total, MaxFrameBytes)
	}
	payload := make([]byte, total)
	if _, err := io.ReadFull(c.sock, payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	frame, err := decodeBody(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	if c.encrypted {
		if len(frame.Fields) != 1 || frame.Fields[0].Type != FieldRaw {
			return nil, fmt.Errorf("%w: encrypted frame must be a single RAW field", ErrProtocol)
		}
		plaintext, err := c.cipher.Decrypt(frame.Fields[0].Value)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrProtocol, err)
		}
		frame, err = decodeBody(plaintext)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrProtocol, err)
		}
	}

	if c.OnRecv != nil {
		c.OnRecv(c, frame.Clone())
	}
	return frame, nil
}
