package timeline

import (
	"sort"

	"github.com/ogulcanaydogan/radio-burst-toolkit/pkg/trace"
)

const (
	mssMinPayload  = 1000
	mssMinFraction = 0.3
	// DefaultMSS is assumed when the trace shows no dominant segment size.
	DefaultMSS = 1460
)

// Span is one burst candidate: a contiguous arena range.
type Span struct {
	Begin   float64 `json:"begin"`
	End     float64 `json:"end"`
	First   int     `json:"first_packet"`
	Count   int     `json:"packet_count"`
	Payload int     `json:"payload"`
}

// Duration returns End-Begin.
func (s Span) Duration() float64 {
	return s.End - s.Begin
}

// Entries returns the arena slice covered by the span.
func (s Span) Entries(tl Timeline) []Entry {
	return tl.Packets[s.First : s.First+s.Count]
}

// DetectMSS returns the payload sizes that behave like full-size segments.
func DetectMSS(tl Timeline) []int {
	counts := make(map[int]int)
	large := 0
	for _, e := range tl.Packets {
		if e.Packet.PayloadLen > mssMinPayload {
			counts[e.Packet.PayloadLen]++
			large++
		}
	}

	sizes := make([]int, 0)
	for size, count := range counts {
		if count > 1 && float64(count)/float64(large) > mssMinFraction {
			sizes = append(sizes, size)
		}
	}
	if len(sizes) == 0 {
		return []int{DefaultMSS}
	}
	sort.Ints(sizes)
	return sizes
}

// Segment splits the arena wherever the gap to the previous packet exceeds
// threshold, unless that packet was a full-size segment still being followed
// by more data.
func Segment(tl Timeline, threshold float64, mss []int) []Span {
	if len(tl.Packets) == 0 {
		return nil
	}
	full := make(map[int]struct{}, len(mss))
	for _, size := range mss {
		full[size] = struct{}{}
	}

	spans := make([]Span, 0)
	current := Span{
		Begin:   tl.Packets[0].Packet.Timestamp,
		End:     tl.Packets[0].Packet.Timestamp,
		First:   0,
		Count:   1,
		Payload: tl.Packets[0].Packet.PayloadLen,
	}
	for idx := 1; idx < len(tl.Packets); idx++ {
		prev := tl.Packets[idx-1].Packet
		p := tl.Packets[idx].Packet
		_, continuing := full[prev.PayloadLen]
		if p.Timestamp-prev.Timestamp > threshold && !continuing {
			spans = append(spans, current)
			current = Span{Begin: p.Timestamp, First: idx}
		}
		current.End = p.Timestamp
		current.Count++
		current.Payload += p.PayloadLen
	}
	spans = append(spans, current)
	return spans
}

// FirstUplink returns the arena index of the first uplink packet in the span.
func FirstUplink(tl Timeline, s Span) (int, bool) {
	for idx := s.First; idx < s.First+s.Count; idx++ {
		if tl.Packets[idx].Packet.Direction == trace.Uplink {
			return idx, true
		}
	}
	return -1, false
}
