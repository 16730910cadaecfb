package wire

import (
	"fmt"
	"log/slog"

	"github.com/spear-it/spearhead/internal/core/domain"
)

// Message ids spoken on agent sessions.
const (
	MsgReport       = "RPRT"
	MsgHeartbeat    = "HRTB"
	MsgRequestRules = "RQRL"
	MsgRulesList    = "RSLR"
)

// MessageHandler consumes one routed message. The frame cursor sits past the
// device MAC and message id; remaining fields are the message payload.
// A returned error drops the message, never the session.
type MessageHandler func(conn *Conn, deviceMAC string, frame *Frame) error

// Router dispatches inbound frames by message id. Every frame starts with
// [TEXT device_mac][TEXT msg_id]; frames that do not are dropped.
type Router struct {
	handlers map[string]MessageHandler
}

// NewRouter returns a router with no registered handlers.
func NewRouter() *Router {
	return &Router{handlers: make(map[string]MessageHandler)}
}

// Handle registers the handler for a message id, replacing any previous one.
func (r *Router) Handle(msgID string, h MessageHandler) {
	r.handlers[msgID] = h
}

// HandleFrame implements FrameHandler. Malformed envelopes and handler
// failures are logged and swallowed so one bad message cannot take a
// session down.
func (r *Router) HandleFrame(conn *Conn, frame *Frame) error {
	mac, msgID, err := r.envelope(frame)
	if err != nil {
		slog.Warn("dropping malformed message", "peer", conn.RemoteIP(), "err", err)
		return nil
	}

	h, ok := r.handlers[msgID]
	if !ok {
		slog.Warn("dropping message with unknown id", "peer", conn.RemoteIP(), "msg_id", msgID)
		return nil
	}
	if err := h(conn, mac, frame); err != nil {
		slog.Warn("dropping message", "peer", conn.RemoteIP(), "msg_id", msgID, "device", mac, "err", err)
	}
	return nil
}

func (r *Router) envelope(frame *Frame) (mac, msgID string, err error) {
	mac, err = frame.NextText()
	if err != nil {
		return "", "", fmt.Errorf("device mac: %w", err)
	}
	if !domain.IsValidMAC(mac) {
		return "", "", fmt.Errorf("device mac %q is not a valid MAC address", mac)
	}
	msgID, err = frame.NextText()
	if err != nil {
		return "", "", fmt.Errorf("message id: %w", err)
	}
	return mac, msgID, nil
}

// Envelope prepends the routing fields for an outbound message.
func Envelope(deviceMAC, msgID string, payload ...Field) *Frame {
	fields := make([]Field, 0, 2+len(payload))
	fields = append(fields, TextField(deviceMAC), TextField(msgID))
	fields = append(fields, payload...)
	return NewFrame(fields...)
}
