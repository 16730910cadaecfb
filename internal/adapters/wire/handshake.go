package wire

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/curve25519"
)

// HandshakeTimeout bounds the whole scripted exchange. The operating socket
// has no read deadline once the handshake completes.
const HandshakeTimeout = 20 * time.Second

// MaxClockSkew is the tolerated difference between the peers' wall clocks.
const MaxClockSkew = 5 * time.Second

var ErrHandshake = errors.New("wire: handshake failed")

// Handshaker runs the session key agreement on freshly accepted connections.
// EnableEncryption false performs the key exchange but leaves frames in
// plaintext; production deployments always keep it true.
type Handshaker struct {
	EnableEncryption bool

	// now is swappable for clock-skew tests.
	now func() time.Time
}

// NewHandshaker returns a handshaker with encryption enabled.
func NewHandshaker() *Handshaker {
	return &Handshaker{EnableEncryption: true, now: time.Now}
}

// Handshake promotes conn to an encrypted session:
//
//	server -> client  [RAW iv][RAW server_pub]
//	client -> server  [RAW client_pub]
//	server -> client  [RAW unix_seconds]   (encrypted)
//	client -> server  [RAW unix_seconds]   (encrypted)
//
// On any failure all crypto state on the connection is cleared and false is
// returned; the caller closes the socket.
func (h *Handshaker) Handshake(conn *Conn) bool {
	if err := h.run(conn); err != nil {
		slog.Warn("handshake aborted", "peer", conn.RemoteIP(), "err", err)
		conn.clearCrypto()
		return false
	}
	return true
}

func (h *Handshaker) run(conn *Conn) error {
	if err := conn.SetTimeout(HandshakeTimeout); err != nil {
		return fmt.Errorf("%w: %v", ErrHandshake, err)
	}

	iv := make([]byte, SessionIVSize)
	if _, err := rand.Read(iv); err != nil {
		return fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	priv := make([]byte, curve25519.ScalarSize)
	if _, err := rand.Read(priv); err != nil {
		return fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	pub, err := curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrHandshake, err)
	}

	if err := conn.Send(NewFrame(RawField(iv), RawField(pub))); err != nil {
		return err
	}

	reply, err := conn.Recv()
	if err != nil {
		return err
	}
	clientPub, err := reply.NextRaw()
	if err != nil {
		return fmt.Errorf("%w: invalid client public key field", ErrHandshake)
	}

	key, err := DeriveSessionKey(priv, clientPub)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	if h.EnableEncryption {
		if err := conn.enableEncryption(key, iv); err != nil {
			return fmt.Errorf("%w: %v", ErrHandshake, err)
		}
	} else {
		slog.Warn("encryption disabled, proceeding with plaintext session", "peer", conn.RemoteIP())
	}

	// Authenticated-in-time check: both sides prove they hold the session key
	// by exchanging their clocks under it.
	nowRaw := make([]byte, 8)
	binary.BigEndian.PutUint64(nowRaw, uint64(h.now().Unix()))
	if err := conn.Send(NewFrame(RawField(nowRaw))); err != nil {
		return err
	}

	echo, err := conn.Recv()
	if err != nil {
		return err
	}
	clientTimeRaw, err := echo.NextRaw()
	if err != nil || len(clientTimeRaw) != 8 {
		return fmt.Errorf("%w: invalid client time field", ErrHandshake)
	}
	clientTime := time.Unix(int64(binary.BigEndian.Uint64(clientTimeRaw)), 0)
	if skew := h.now().Sub(clientTime).Abs(); skew > MaxClockSkew {
		return fmt.Errorf("%w: clock skew %s exceeds %s", ErrHandshake, skew, MaxClockSkew)
	}

	if err := conn.SetTimeout(0); err != nil {
		return fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	return nil
}

// ClientHandshake performs the agent side of the exchange. Used by the mock
// agent and by tests driving a real server over a socket pair.
func ClientHandshake(conn *Conn, enableEncryption bool) error {
	if err := conn.SetTimeout(HandshakeTimeout); err != nil {
		return fmt.Errorf("%w: %v", ErrHandshake, err)
	}

	hello, err := conn.Recv()
	if err != nil {
		return err
	}
	iv, err := hello.NextRaw()
	if err != nil || len(iv) != SessionIVSize {
		return fmt.Errorf("%w: invalid server IV", ErrHandshake)
	}
	serverPub, err := hello.NextRaw()
	if err != nil {
		return fmt.Errorf("%w: invalid server public key", ErrHandshake)
	}

	priv := make([]byte, curve25519.ScalarSize)
	if _, err := rand.Read(priv); err != nil {
		return fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	pub, err := curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	if err := conn.Send(NewFrame(RawField(pub))); err != nil {
		return err
	}

	key, err := DeriveSessionKey(priv, serverPub)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	if enableEncryption {
		if err := conn.enableEncryption(key, iv); err != nil {
			return fmt.Errorf("%w: %v", ErrHandshake, err)
		}
	}

	serverTimeFrame, err := conn.Recv()
	if err != nil {
		return err
	}
	if _, err := serverTimeFrame.NextRaw(); err != nil {
		return fmt.Errorf("%w: invalid server time field", ErrHandshake)
	}

	nowRaw := make([]byte, 8)
	binary.BigEndian.PutUint64(nowRaw, uint64(time.Now().Unix()))
	if err := conn.Send(NewFrame(RawField(nowRaw))); err != nil {
		return err
	}

	return conn.SetTimeout(0)
}
