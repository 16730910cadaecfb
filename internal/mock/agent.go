// Package mock drives the wrapper listener with synthetic agent traffic
// for demos and end-to-end testing without a deployed fleet.
package mock

import (
	"context"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/spear-it/spearhead/internal/adapters/wire"
)

// Agent speaks the wrapper protocol over a single session. The session
// multiplexes every simulated endpoint identity, since the listener
// admits one session per source IP.
type Agent struct {
	conn *wire.Conn
	gen  *DataGenerator
}

// NewAgent builds an agent driving n simulated endpoint identities.
func NewAgent(n int) *Agent {
	return &Agent{gen: NewDataGenerator(n)}
}

// Connect dials the wrapper listener and performs the client handshake.
func (a *Agent) Connect(addr string, enableEncryption bool) error {
	sock, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("mock agent dial: %w", err)
	}
	conn := wire.NewConn(sock)
	if err := wire.ClientHandshake(conn, enableEncryption); err != nil {
		conn.Close()
		return fmt.Errorf("mock agent handshake: %w", err)
	}
	a.conn = conn
	return nil
}

// Close terminates the session.
func (a *Agent) Close() {
	if a.conn != nil {
		a.conn.Close()
	}
}

// SendReport submits one synthetic rule violation for the identity.
func (a *Agent) SendReport(agent, remote AgentIdentity) error {
	payload := a.gen.GenerateReport(agent, remote.IP, remote.MAC)
	return a.conn.Send(wire.Envelope(agent.MAC, wire.MsgReport, wire.TextField(string(payload))))
}

// SendHeartbeat submits a heartbeat naming the identities it contacted.
func (a *Agent) SendHeartbeat(agent AgentIdentity, contacted map[string]int64) error {
	payload := a.gen.GenerateHeartbeat(agent, contacted)
	return a.conn.Send(wire.Envelope(agent.MAC, wire.MsgHeartbeat, wire.TextField(string(payload))))
}

// RequestRules asks for the identity's active rule set and returns the
// raw rules JSON from the reply.
func (a *Agent) RequestRules(agent AgentIdentity) ([]byte, error) {
	if err := a.conn.Send(wire.Envelope(agent.MAC, wire.MsgRequestRules)); err != nil {
		return nil, err
	}
	reply, err := a.conn.Recv()
	if err != nil {
		return nil, err
	}
	if _, err := reply.NextText(); err != nil { // device mac
		return nil, err
	}
	msgID, err := reply.NextText()
	if err != nil {
		return nil, err
	}
	if msgID != wire.MsgRulesList {
		return nil, fmt.Errorf("mock agent: unexpected reply %q", msgID)
	}
	rules, err := reply.NextText()
	if err != nil {
		return nil, err
	}
	return []byte(rules), nil
}

// RunFleet streams traffic for n simulated endpoints until ctx is
// cancelled. Each round one endpoint reports a violation against a
// random peer, and every endpoint heartbeats periodically.
func RunFleet(ctx context.Context, addr string, n int, enableEncryption bool) error {
	if n < 2 {
		n = 2
	}
	agent := NewAgent(n)
	if err := agent.Connect(addr, enableEncryption); err != nil {
		return err
	}
	defer agent.Close()

	identities := agent.gen.Agents()
	log.Printf("Mock fleet connected: %d endpoints on one session", n)

	reportTicker := time.NewTicker(500 * time.Millisecond)
	defer reportTicker.Stop()
	heartbeatTicker := time.NewTicker(5 * time.Second)
	defer heartbeatTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-reportTicker.C:
			src := identities[agent.gen.rand.Intn(len(identities))]
			dst := identities[agent.gen.rand.Intn(len(identities))]
			if dst.MAC == src.MAC {
				continue
			}
			if err := agent.SendReport(src, dst); err != nil {
				return fmt.Errorf("mock fleet report: %w", err)
			}
		case <-heartbeatTicker.C:
			for _, identity := range identities {
				contacted := map[string]int64{
					identities[agent.gen.rand.Intn(len(identities))].MAC: int64(1 + agent.gen.rand.Intn(20)),
				}
				if err := agent.SendHeartbeat(identity, contacted); err != nil {
					return fmt.Errorf("mock fleet heartbeat: %w", err)
				}
			}
		}
	}
}
