package mock

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// Process names seen on typical fleet endpoints
var processNames = []string{
	"sshd", "curl", "wget", "scp", "rsync", "nginx", "postgres",
	"python3", "node", "java", "dockerd", "systemd-resolved",
}

// Hostname pool for simulated agents
var hostNames = []string{
	"fileserver", "buildbox", "dev-laptop", "db-primary", "edge-gw",
	"staging-web", "ci-runner", "backup-node", "ops-desktop", "kiosk-01",
}

var osDetails = []string{
	"Fedora Linux 42 (kernel 6.14)", "Ubuntu 24.04 LTS (kernel 6.8)",
	"Debian 13 (kernel 6.12)", "Arch Linux (kernel 6.15)",
}

// Service banners used as payload content for plausible traffic
var banners = []string{
	"SSH-2.0-OpenSSH_9.6\r\n",
	"HTTP/1.1 200 OK\r\nServer: nginx/1.26.0\r\n\r\n",
	"220 mail.example.org ESMTP Postfix\r\n",
	"GET /status HTTP/1.1\r\nHost: internal\r\n\r\n",
}

var violationTypes = []string{"packet", "packet", "packet"}

// AgentIdentity is one simulated wrapper endpoint.
type AgentIdentity struct {
	MAC      string
	Hostname string
	OS       string
	IP       string
}

// DataGenerator produces agent-shaped traffic documents.
type DataGenerator struct {
	rand   *rand.Rand
	agents []AgentIdentity
}

// NewDataGenerator seeds a generator with n agent identities.
func NewDataGenerator(n int) *DataGenerator {
	g := &DataGenerator{rand: rand.New(rand.NewSource(time.Now().UnixNano()))}
	for i := 0; i < n; i++ {
		g.agents = append(g.agents, AgentIdentity{
			MAC:      g.GenerateMAC(),
			Hostname: hostNames[i%len(hostNames)],
			OS:       osDetails[g.rand.Intn(len(osDetails))],
			IP:       fmt.Sprintf("10.0.0.%d", 10+i),
		})
	}
	return g
}

// Agents returns the seeded identities.
func (g *DataGenerator) Agents() []AgentIdentity {
	return g.agents
}

// GenerateMAC generates a random locally-administered MAC address.
func (g *DataGenerator) GenerateMAC() string {
	return fmt.Sprintf("02:%02X:%02X:%02X:%02X:%02X",
		g.rand.Intn(256), g.rand.Intn(256), g.rand.Intn(256),
		g.rand.Intn(256), g.rand.Intn(256))
}

// GenerateReport builds an RPRT payload for the given agent: a rule
// violation on a TCP conversation with a serialized packet payload.
func (g *DataGenerator) GenerateReport(agent AgentIdentity, remoteIP string, remoteMAC string) []byte {
	srcPort := int64(30000 + g.rand.Intn(30000))
	dstPort := int64([]int{22, 80, 443, 25, 5432}[g.rand.Intn(5)])
	payload := g.packetPayload(agent, remoteIP, uint16(srcPort), uint16(dstPort))

	doc := map[string]interface{}{
		"type": violationTypes[g.rand.Intn(len(violationTypes))],
		"data": map[string]interface{}{
			"timestamp_ns":               time.Now().UnixNano(),
			"violated_rule_id":           int64(1 + g.rand.Intn(5)),
			"violation_type":             "packet",
			"violation_response":         "alert",
			"protocol":                   6,
			"is_connection_establishing": g.rand.Intn(2) == 0,
			"direction":                  "outbound",
			"process": map[string]interface{}{
				"pid":  int64(100 + g.rand.Intn(30000)),
				"name": processNames[g.rand.Intn(len(processNames))],
			},
			"ip": map[string]interface{}{
				"src_ip":   agent.IP,
				"src_port": srcPort,
				"dst_ip":   remoteIP,
				"dst_port": dstPort,
			},
			"src_mac": agent.MAC,
			"dst_mac": remoteMAC,
			"payload": map[string]interface{}{
				"full_size": len(payload) + g.rand.Intn(512),
				"data":      base64.StdEncoding.EncodeToString(payload),
			},
		},
	}
	raw, _ := json.Marshal(doc)
	return raw
}

// GenerateHeartbeat builds an HRTB payload for the given agent.
func (g *DataGenerator) GenerateHeartbeat(agent AgentIdentity, contacted map[string]int64) []byte {
	doc := map[string]interface{}{
		"mac_address": agent.MAC,
		"device_name": agent.Hostname,
		"os_details":  agent.OS,
		"ip_address":  agent.IP,
		"network_details": map[string]interface{}{
			"contacted_macs": contacted,
		},
		"system_metrics": map[string]interface{}{
			"cpu_usage_percent":    float64(g.rand.Intn(9000)) / 100,
			"memory_usage_percent": float64(g.rand.Intn(9000)) / 100,
		},
	}
	raw, _ := json.Marshal(doc)
	return raw
}

// packetPayload serializes an Ethernet/IPv4/TCP frame carrying a service
// banner, so payload bytes look like real captured traffic.
func (g *DataGenerator) packetPayload(agent AgentIdentity, remoteIP string, srcPort, dstPort uint16) []byte {
	srcMAC, err := net.ParseMAC(agent.MAC)
	if err != nil {
		srcMAC = net.HardwareAddr{0x02, 0, 0, 0, 0, 1}
	}

	eth := &layers.Ethernet{
		SrcMAC:       srcMAC,
		DstMAC:       net.HardwareAddr{0x02, 0xDE, 0xAD, 0xBE, 0xEF, 0x01},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    net.ParseIP(agent.IP),
		DstIP:    net.ParseIP(remoteIP),
	}
	tcp := &layers.TCP{
		SrcPort: layers.TCPPort(srcPort),
		DstPort: layers.TCPPort(dstPort),
		PSH:     true,
		ACK:     true,
		Window:  65535,
	}
	tcp.SetNetworkLayerForChecksum(ip)

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{
		FixLengths:       true,
		ComputeChecksums: true,
	}
	banner := banners[g.rand.Intn(len(banners))]
	if err := gopacket.SerializeLayers(buf, opts, eth, ip, tcp, gopacket.Payload(banner)); err != nil {
		log.Printf("Mock payload serialization failed: %v", err)
		return []byte(banner)
	}
	return buf.Bytes()
}
