package timeline

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ogulcanaydogan/radio-burst-toolkit/pkg/trace"
)

// AnomalyKind names a recoverable input problem.
type AnomalyKind string

const (
	// AnomalyOutOfOrder marks a packet older than its predecessor in the same session.
	AnomalyOutOfOrder AnomalyKind = "out_of_order"
	// AnomalyInvalidTimestamp marks a packet excluded from timing arithmetic.
	AnomalyInvalidTimestamp AnomalyKind = "invalid_timestamp"
)

// Anomaly records one input problem that did not abort the run.
type Anomaly struct {
	Kind      AnomalyKind     `json:"kind"`
	Ref       trace.PacketRef `json:"ref"`
	Timestamp float64         `json:"timestamp"`
	Detail    string          `json:"detail"`
}

// Entry is one packet in the merged arena.
type Entry struct {
	Ref    trace.PacketRef
	Packet trace.Packet
}

// Timeline is the merged, time-ordered packet arena of a trace.
type Timeline struct {
	Packets   []Entry
	Anomalies []Anomaly
}

// Len returns the number of packets in the arena.
func (tl Timeline) Len() int {
	return len(tl.Packets)
}

// LastTimestamp returns the time of the newest packet, 0 for an empty arena.
func (tl Timeline) LastTimestamp() float64 {
	if len(tl.Packets) == 0 {
		return 0
	}
	return tl.Packets[len(tl.Packets)-1].Packet.Timestamp
}

type prepared struct {
	entries   []Entry
	anomalies []Anomaly
}

// Prepare validates every session concurrently and merges the surviving
// packets into one arena ordered by (timestamp, session, packet index).
func Prepare(ctx context.Context, sessions []trace.Session, filter trace.Filter, workers int) (Timeline, error) {
	if err := filter.Validate(); err != nil {
		return Timeline{}, fmt.Errorf("analysis filter: %w", err)
	}
	if len(sessions) == 0 {
		return Timeline{}, nil
	}
	if workers < 1 {
		workers = 1
	}
	if workers > len(sessions) {
		workers = len(sessions)
	}

	shards := make([][]int, workers)
	for idx, s := range sessions {
		shard := int(s.Endpoint.FlowHash() % uint64(workers))
		shards[shard] = append(shards[shard], idx)
	}

	slots := make([]prepared, len(sessions))
	var wg sync.WaitGroup
	for _, shard := range shards {
		if len(shard) == 0 {
			continue
		}
		wg.Add(1)
		go func(indices []int) {
			defer wg.Done()
			for _, idx := range indices {
				if ctx.Err() != nil {
					return
				}
				slots[idx] = prepareSession(idx, sessions[idx], filter)
			}
		}(shard)
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return Timeline{}, err
	}

	total := 0
	for _, slot := range slots {
		total += len(slot.entries)
	}
	tl := Timeline{Packets: make([]Entry, 0, total)}
	for _, slot := range slots {
		tl.Packets = append(tl.Packets, slot.entries...)
		tl.Anomalies = append(tl.Anomalies, slot.anomalies...)
	}
	sort.SliceStable(tl.Packets, func(i, j int) bool {
		return tl.Packets[i].Packet.Timestamp < tl.Packets[j].Packet.Timestamp
	})
	return tl, nil
}

func prepareSession(sessionIdx int, s trace.Session, filter trace.Filter) prepared {
	out := prepared{entries: make([]Entry, 0, len(s.Packets))}
	last := -1.0
	for pidx, p := range s.Packets {
		ref := trace.PacketRef{Session: sessionIdx, Index: pidx}
		if !p.ValidTimestamp() {
			out.anomalies = append(out.anomalies, Anomaly{
				Kind:      AnomalyInvalidTimestamp,
				Ref:       ref,
				Timestamp: p.Timestamp,
				Detail:    "timestamp is negative or not finite; packet excluded",
			})
			continue
		}
		if !filter.Contains(p.Timestamp) {
			continue
		}
		if p.Timestamp < last {
			out.anomalies = append(out.anomalies, Anomaly{
				Kind:      AnomalyOutOfOrder,
				Ref:       ref,
				Timestamp: p.Timestamp,
				Detail:    fmt.Sprintf("%.6f precedes previous packet at %.6f", p.Timestamp, last),
			})
		} else {
			last = p.Timestamp
		}
		out.entries = append(out.entries, Entry{Ref: ref, Packet: p})
	}
	return out
}
