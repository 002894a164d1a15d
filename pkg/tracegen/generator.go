package tracegen

import (
	"fmt"

	"github.com/ogulcanaydogan/radio-burst-toolkit/pkg/trace"
)

const (
	scenarioPeriodic  = "periodic"
	scenarioUserInput = "user_input"
	scenarioTCPLoss   = "tcp_loss"
	scenarioMixed     = "mixed"

	deviceIP     = "10.0.0.2"
	firstPort    = 40000
	periodicHost = "sync.example.com"
	periodicApp  = "com.example.sync"
	syncCycle    = 30.0
	// trailing idle time kept after the last burst
	tailPadding = 30.0
)

// Generate builds a deterministic synthetic trace with count bursts.
func Generate(scenario string, count int) (trace.Trace, error) {
	if count < 1 {
		return trace.Trace{}, fmt.Errorf("count must be >= 1")
	}

	g := &generator{}
	switch scenario {
	case scenarioPeriodic:
		for idx := 0; idx < count; idx++ {
			g.periodicBurst(2 + float64(idx)*syncCycle)
		}
	case scenarioUserInput:
		at := 5.0
		for idx := 0; idx < count; idx++ {
			g.userInputBurst(idx, at)
			at += 7 + float64(idx%3)
		}
	case scenarioTCPLoss:
		for idx := 0; idx < count; idx++ {
			g.lossBurst(idx, 3+float64(idx)*6.5)
		}
	case scenarioMixed:
		for idx := 0; idx < count; idx++ {
			at := 4 + float64(idx)*5
			switch idx % 3 {
			case 0:
				g.periodicBurst(at)
			case 1:
				g.userInputBurst(idx, at)
			default:
				g.lossBurst(idx, at)
			}
		}
	default:
		return trace.Trace{}, fmt.Errorf("unsupported scenario %q", scenario)
	}

	g.trace.Duration = g.last + tailPadding
	return g.trace, nil
}

// SupportedScenarios lists accepted scenario names.
func SupportedScenarios() []string {
	return []string{
		scenarioPeriodic,
		scenarioUserInput,
		scenarioTCPLoss,
		scenarioMixed,
	}
}

type generator struct {
	trace    trace.Trace
	periodic int // session index of the shared sync session, 0 when unset
	last     float64
}

// periodicBurst appends a request/response exchange to the shared sync session.
func (g *generator) periodicBurst(at float64) {
	if g.periodic == 0 {
		g.trace.Sessions = append(g.trace.Sessions, trace.Session{
			ID:       "sync",
			Host:     periodicHost,
			App:      periodicApp,
			Endpoint: endpoint(len(g.trace.Sessions), "203.0.113.10", 443),
		})
		g.periodic = len(g.trace.Sessions)
	}
	s := &g.trace.Sessions[g.periodic-1]
	s.Packets = append(s.Packets,
		trace.Packet{Timestamp: at, Direction: trace.Uplink, PayloadLen: 310, TCPInfo: trace.TCPData},
		trace.Packet{Timestamp: at + 0.12, Direction: trace.Downlink, PayloadLen: 880, TCPInfo: trace.TCPData},
		trace.Packet{Timestamp: at + 0.15, Direction: trace.Uplink, PayloadLen: 0, TCPInfo: trace.TCPAck},
	)
	s.Transactions = append(s.Transactions, trace.Transaction{RequestTime: at, ResponseTime: at + 0.12, Method: "POST", URI: "/v1/sync"})
	g.touch(at + 0.15)
}

// userInputBurst appends a touch followed by a page fetch on its own session.
func (g *generator) userInputBurst(idx int, at float64) {
	g.trace.UserEvents = append(g.trace.UserEvents, trace.UserEvent{Time: at - 0.4, Kind: trace.EventTouch})
	g.trace.Sessions = append(g.trace.Sessions, trace.Session{
		ID:       fmt.Sprintf("ui-%04d", idx+1),
		Host:     fmt.Sprintf("page-%d.example.org", idx+1),
		App:      "com.example.browser",
		Endpoint: endpoint(len(g.trace.Sessions), "198.51.100.20", 443),
		Packets: []trace.Packet{
			{Timestamp: at, Direction: trace.Uplink, PayloadLen: 0, TCPInfo: trace.TCPEstablish},
			{Timestamp: at + 0.05, Direction: trace.Uplink, PayloadLen: 420, TCPInfo: trace.TCPData},
			{Timestamp: at + 0.3, Direction: trace.Downlink, PayloadLen: 960, TCPInfo: trace.TCPData},
			{Timestamp: at + 0.31, Direction: trace.Uplink, PayloadLen: 0, TCPInfo: trace.TCPAck},
		},
		Transactions: []trace.Transaction{{RequestTime: at + 0.05, ResponseTime: at + 0.3, Method: "GET", URI: "/"}},
	})
	g.touch(at + 0.31)
}

// lossBurst appends an upload that needs a retransmission.
func (g *generator) lossBurst(idx int, at float64) {
	g.trace.Sessions = append(g.trace.Sessions, trace.Session{
		ID:       fmt.Sprintf("upload-%04d", idx+1),
		Host:     fmt.Sprintf("cdn-%d.example.net", idx+1),
		App:      "com.example.uploader",
		Endpoint: endpoint(len(g.trace.Sessions), "192.0.2.30", 8443),
		Packets: []trace.Packet{
			{Timestamp: at, Direction: trace.Uplink, PayloadLen: 540, TCPInfo: trace.TCPData},
			{Timestamp: at + 0.4, Direction: trace.Uplink, PayloadLen: 540, TCPInfo: trace.TCPDataDup},
			{Timestamp: at + 0.45, Direction: trace.Downlink, PayloadLen: 0, TCPInfo: trace.TCPAckDup},
			{Timestamp: at + 0.5, Direction: trace.Downlink, PayloadLen: 0, TCPInfo: trace.TCPAck},
		},
	})
	g.touch(at + 0.5)
}

func (g *generator) touch(ts float64) {
	if ts > g.last {
		g.last = ts
	}
}

func endpoint(session int, dst string, port uint16) trace.Endpoint {
	return trace.Endpoint{
		SrcIP:    deviceIP,
		DstIP:    dst,
		SrcPort:  uint16(firstPort + session),
		DstPort:  port,
		Protocol: "tcp",
	}
}
