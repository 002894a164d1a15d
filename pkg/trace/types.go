package trace

import (
	"fmt"
	"math"
	"net"
	"strings"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// Direction is the packet direction relative to the device.
type Direction string

const (
	// Uplink packets leave the device.
	Uplink Direction = "uplink"
	// Downlink packets arrive at the device.
	Downlink Direction = "downlink"
)

// TCPInfo is the control signature assigned to a packet by session reconstruction.
type TCPInfo string

const (
	TCPData         TCPInfo = "DATA"
	TCPAck          TCPInfo = "ACK"
	TCPAckDup       TCPInfo = "ACK_DUP"
	TCPDataDup      TCPInfo = "DATA_DUP"
	TCPDataRecover  TCPInfo = "DATA_RECOVER"
	TCPAckRecover   TCPInfo = "ACK_RECOVER"
	TCPEstablish    TCPInfo = "ESTABLISH"
	TCPClose        TCPInfo = "CLOSE"
	TCPReset        TCPInfo = "RESET"
	TCPKeepAlive    TCPInfo = "KEEP_ALIVE"
	TCPKeepAliveAck TCPInfo = "KEEP_ALIVE_ACK"
	TCPZeroWindow   TCPInfo = "ZERO_WINDOW"
	TCPWindowUpdate TCPInfo = "WINDOW_UPDATE"
)

// IsLossOrDup reports retransmission and duplicate-ack signatures.
func (i TCPInfo) IsLossOrDup() bool {
	switch i {
	case TCPAckDup, TCPDataDup, TCPDataRecover, TCPAckRecover:
		return true
	default:
		return false
	}
}

// IsControl reports connection management signatures that carry no data.
func (i TCPInfo) IsControl() bool {
	switch i {
	case TCPEstablish, TCPClose, TCPReset, TCPKeepAlive, TCPKeepAliveAck, TCPZeroWindow, TCPWindowUpdate:
		return true
	default:
		return false
	}
}

// Packet is one captured frame after session reconstruction.
type Packet struct {
	Timestamp  float64   `json:"ts"`
	Direction  Direction `json:"direction"`
	PayloadLen int       `json:"payload_len"`
	TCPInfo    TCPInfo   `json:"tcp_info,omitempty"`
}

// ValidTimestamp reports whether the packet time can take part in timing arithmetic.
func (p Packet) ValidTimestamp() bool {
	return !math.IsNaN(p.Timestamp) && !math.IsInf(p.Timestamp, 0) && p.Timestamp >= 0
}

// Endpoint is the transport tuple of a session.
type Endpoint struct {
	SrcIP    string `json:"src_ip"`
	DstIP    string `json:"dst_ip"`
	SrcPort  uint16 `json:"src_port"`
	DstPort  uint16 `json:"dst_port"`
	Protocol string `json:"protocol"`
}

// Flows returns the network and transport flows for the tuple.
func (e Endpoint) Flows() (gopacket.Flow, gopacket.Flow, error) {
	src := net.ParseIP(strings.TrimSpace(e.SrcIP))
	dst := net.ParseIP(strings.TrimSpace(e.DstIP))
	if src == nil || dst == nil {
		return gopacket.Flow{}, gopacket.Flow{}, fmt.Errorf("invalid endpoint %s -> %s", e.SrcIP, e.DstIP)
	}

	var netFlow gopacket.Flow
	if src4, dst4 := src.To4(), dst.To4(); src4 != nil && dst4 != nil {
		netFlow = gopacket.NewFlow(layers.EndpointIPv4, src4, dst4)
	} else {
		netFlow = gopacket.NewFlow(layers.EndpointIPv6, src.To16(), dst.To16())
	}

	var srcPort, dstPort gopacket.Endpoint
	switch strings.ToLower(e.Protocol) {
	case "udp":
		srcPort = layers.NewUDPPortEndpoint(layers.UDPPort(e.SrcPort))
		dstPort = layers.NewUDPPortEndpoint(layers.UDPPort(e.DstPort))
	default:
		srcPort = layers.NewTCPPortEndpoint(layers.TCPPort(e.SrcPort))
		dstPort = layers.NewTCPPortEndpoint(layers.TCPPort(e.DstPort))
	}
	transportFlow, err := gopacket.FlowFromEndpoints(srcPort, dstPort)
	if err != nil {
		return gopacket.Flow{}, gopacket.Flow{}, fmt.Errorf("transport flow: %w", err)
	}
	return netFlow, transportFlow, nil
}

// FlowHash returns a direction-independent hash of the tuple, 0 when the tuple is unusable.
func (e Endpoint) FlowHash() uint64 {
	netFlow, transportFlow, err := e.Flows()
	if err != nil {
		return 0
	}
	return netFlow.FastHash() ^ transportFlow.FastHash()
}

// Transaction is one HTTP request/response pair observed in a session.
type Transaction struct {
	RequestTime  float64 `json:"request_time"`
	ResponseTime float64 `json:"response_time"`
	Method       string  `json:"method,omitempty"`
	URI          string  `json:"uri,omitempty"`
}

// Session is one transport-layer flow with its packets in capture order.
type Session struct {
	ID           string        `json:"id"`
	Host         string        `json:"host,omitempty"`
	App          string        `json:"app,omitempty"`
	Endpoint     Endpoint      `json:"endpoint"`
	Packets      []Packet      `json:"packets"`
	Transactions []Transaction `json:"transactions,omitempty"`
}

// GroupKey identifies the originating application and host of a session.
func (s Session) GroupKey() string {
	host := strings.TrimSpace(s.Host)
	if host == "" {
		if netFlow, _, err := s.Endpoint.Flows(); err == nil {
			host = netFlow.Dst().String()
		} else {
			host = s.ID
		}
	}
	return strings.TrimSpace(s.App) + "|" + host
}

// UserEventKind names a recorded user interaction.
type UserEventKind string

const (
	EventTouch     UserEventKind = "touch"
	EventKey       UserEventKind = "key"
	EventScreenOn  UserEventKind = "screen_on"
	EventLandscape UserEventKind = "landscape"
	EventPortrait  UserEventKind = "portrait"
)

// IsRotation reports orientation-change events.
func (k UserEventKind) IsRotation() bool {
	return k == EventLandscape || k == EventPortrait
}

// UserEvent is a user interaction marker supplied alongside the trace.
type UserEvent struct {
	Time float64       `json:"time"`
	Kind UserEventKind `json:"kind"`
}

// CPUSample is one device CPU utilisation reading in percent.
type CPUSample struct {
	Time  float64 `json:"time"`
	Usage float64 `json:"usage"`
}

// Trace is the immutable input of one analysis run.
type Trace struct {
	Sessions   []Session   `json:"sessions"`
	UserEvents []UserEvent `json:"user_events,omitempty"`
	CPU        []CPUSample `json:"cpu,omitempty"`
	// Duration is the capture length in seconds; 0 ends the trace at its last packet.
	Duration float64 `json:"duration,omitempty"`
}

// PacketCount returns the number of packets across all sessions.
func (t Trace) PacketCount() int {
	total := 0
	for _, s := range t.Sessions {
		total += len(s.Packets)
	}
	return total
}

// Filter restricts the analysed time range. A zero End leaves the range open.
type Filter struct {
	Begin float64 `json:"begin,omitempty" yaml:"begin"`
	End   float64 `json:"end,omitempty" yaml:"end"`
}

// Contains reports whether ts falls inside the filter window.
func (f Filter) Contains(ts float64) bool {
	if ts < f.Begin {
		return false
	}
	if f.End > 0 && ts > f.End {
		return false
	}
	return true
}

// Validate checks the window bounds.
func (f Filter) Validate() error {
	if f.Begin < 0 || math.IsNaN(f.Begin) || math.IsNaN(f.End) {
		return fmt.Errorf("filter bounds must be non-negative numbers")
	}
	if f.End > 0 && f.End < f.Begin {
		return fmt.Errorf("filter end %.3f is before begin %.3f", f.End, f.Begin)
	}
	return nil
}

// PacketRef locates a packet in the input sessions.
type PacketRef struct {
	Session int `json:"session"`
	Index   int `json:"index"`
}
