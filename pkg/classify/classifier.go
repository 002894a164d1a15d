package classify

import (
	"math"
	"sort"

	"github.com/ogulcanaydogan/radio-burst-toolkit/pkg/burst"
	"github.com/ogulcanaydogan/radio-burst-toolkit/pkg/profile"
	"github.com/ogulcanaydogan/radio-burst-toolkit/pkg/timeline"
	"github.com/ogulcanaydogan/radio-burst-toolkit/pkg/trace"
)

// Params are the classifier thresholds of a profile.
type Params struct {
	UserInputThreshold float64
	UserEventTolerance float64
	CPUBusyThreshold   float64
	LongBurstDuration  float64
}

// ParamsFromProfile extracts classifier thresholds.
func ParamsFromProfile(p profile.Profile) Params {
	return Params{
		UserInputThreshold: p.UserInputThreshold,
		UserEventTolerance: p.UserEventTolerance,
		CPUBusyThreshold:   p.CPUBusyThreshold,
		LongBurstDuration:  p.LongBurstDuration,
	}
}

// Input is the read-only view the classifier evaluates.
type Input struct {
	Timeline   timeline.Timeline
	Spans      []timeline.Span
	Periodic   []bool
	Sessions   []trace.Session
	UserEvents []trace.UserEvent
	CPU        []trace.CPUSample
	TraceStart float64
	Params     Params
}

// Decision is the classification of one span.
type Decision struct {
	Category burst.Category
	Long     bool
}

type rule struct {
	category burst.Category
	match    func(c *classifier, idx int) bool
}

// rules is evaluated top to bottom; the first match wins.
var rules = []rule{
	{burst.CategoryUserInput, (*classifier).userInput},
	{burst.CategoryPeriodical, (*classifier).periodical},
	{burst.CategoryTCPLossOrDup, (*classifier).tcpLossOrDup},
	{burst.CategoryTCPProtocol, (*classifier).tcpProtocol},
	{burst.CategoryScreenRotation, (*classifier).screenRotation},
	{burst.CategoryClientApp, (*classifier).clientApp},
	{burst.CategoryCPU, (*classifier).cpuBusy},
	{burst.CategoryServerNetDelay, (*classifier).serverNetDelay},
	{burst.CategoryClientApp, (*classifier).clientIdle},
}

// RuleOrder returns the categories the rule chain can assign, in priority order.
func RuleOrder() []burst.Category {
	out := make([]burst.Category, 0, len(rules))
	seen := make(map[burst.Category]bool, len(rules))
	for _, r := range rules {
		if seen[r.category] {
			continue
		}
		seen[r.category] = true
		out = append(out, r.category)
	}
	return out
}

type classifier struct {
	in     Input
	events []trace.UserEvent
	cpu    []trace.CPUSample
}

// Classify assigns every span exactly one category and the long-burst flag.
func Classify(in Input) []Decision {
	c := &classifier{
		in:     in,
		events: append([]trace.UserEvent(nil), in.UserEvents...),
		cpu:    append([]trace.CPUSample(nil), in.CPU...),
	}
	sort.SliceStable(c.events, func(i, j int) bool { return c.events[i].Time < c.events[j].Time })
	sort.SliceStable(c.cpu, func(i, j int) bool { return c.cpu[i].Time < c.cpu[j].Time })

	out := make([]Decision, len(in.Spans))
	for idx, span := range in.Spans {
		d := Decision{Category: burst.CategoryUnknown}
		for _, r := range rules {
			if r.match(c, idx) {
				d.Category = r.category
				break
			}
		}
		d.Long = span.Duration() > in.Params.LongBurstDuration
		out[idx] = d
	}
	return out
}

// LongCount returns the number of decisions flagged long.
func LongCount(decisions []Decision) int {
	count := 0
	for _, d := range decisions {
		if d.Long {
			count++
		}
	}
	return count
}

func (c *classifier) userInput(idx int) bool {
	begin := c.in.Spans[idx].Begin
	_, ok := c.latestEvent(begin-c.in.Params.UserInputThreshold, begin, func(e trace.UserEvent) bool {
		return !e.Kind.IsRotation()
	})
	return ok
}

func (c *classifier) periodical(idx int) bool {
	return idx < len(c.in.Periodic) && c.in.Periodic[idx]
}

func (c *classifier) tcpLossOrDup(idx int) bool {
	for _, e := range c.in.Spans[idx].Entries(c.in.Timeline) {
		if e.Packet.TCPInfo.IsLossOrDup() {
			return true
		}
	}
	return false
}

func (c *classifier) tcpProtocol(idx int) bool {
	span := c.in.Spans[idx]
	if span.Payload > 0 {
		return false
	}
	for _, e := range span.Entries(c.in.Timeline) {
		if e.Packet.TCPInfo.IsControl() {
			return true
		}
	}
	return false
}

func (c *classifier) screenRotation(idx int) bool {
	begin := c.in.Spans[idx].Begin
	_, ok := c.latestEvent(begin-c.in.Params.UserInputThreshold, begin, func(e trace.UserEvent) bool {
		return e.Kind.IsRotation()
	})
	return ok
}

func (c *classifier) clientApp(idx int) bool {
	begin := c.in.Spans[idx].Begin
	prevEnd := math.Inf(-1)
	if idx > 0 {
		prevEnd = c.in.Spans[idx-1].End
	}
	event, ok := c.latestEvent(begin-c.in.Params.UserEventTolerance, begin, func(e trace.UserEvent) bool {
		return e.Time > prevEnd
	})
	if !ok {
		return false
	}
	avg, sampled := c.averageCPU(event.Time, begin)
	return !sampled || avg < c.in.Params.CPUBusyThreshold
}

func (c *classifier) cpuBusy(idx int) bool {
	avg, sampled := c.gapCPU(idx)
	return sampled && avg >= c.in.Params.CPUBusyThreshold
}

// clientIdle catches payload bursts no other rule explains. Control-only
// spans stay UNKNOWN.
func (c *classifier) clientIdle(idx int) bool {
	if c.in.Spans[idx].Payload <= 0 {
		return false
	}
	avg, sampled := c.gapCPU(idx)
	return !sampled || avg < c.in.Params.CPUBusyThreshold
}

// gapCPU averages CPU over the gap before the span, from trace start for the first.
func (c *classifier) gapCPU(idx int) (float64, bool) {
	from := c.in.TraceStart
	if idx > 0 {
		from = c.in.Spans[idx-1].End
	}
	return c.averageCPU(from, c.in.Spans[idx].Begin)
}

func (c *classifier) serverNetDelay(idx int) bool {
	span := c.in.Spans[idx]
	entries := span.Entries(c.in.Timeline)
	first := entries[0].Packet
	if first.Direction == trace.Downlink && (first.TCPInfo == trace.TCPData || first.TCPInfo == trace.TCPAck) {
		return true
	}

	seen := make(map[int]struct{})
	for _, e := range entries {
		if _, ok := seen[e.Ref.Session]; ok {
			continue
		}
		seen[e.Ref.Session] = struct{}{}
		for _, tx := range c.in.Sessions[e.Ref.Session].Transactions {
			if tx.RequestTime < span.Begin && tx.ResponseTime >= span.Begin && tx.ResponseTime <= span.End {
				return true
			}
		}
	}
	return false
}

// latestEvent returns the newest event in [from, to] accepted by keep.
func (c *classifier) latestEvent(from, to float64, keep func(trace.UserEvent) bool) (trace.UserEvent, bool) {
	end := sort.Search(len(c.events), func(i int) bool { return c.events[i].Time > to })
	for i := end - 1; i >= 0 && c.events[i].Time >= from; i-- {
		if keep(c.events[i]) {
			return c.events[i], true
		}
	}
	return trace.UserEvent{}, false
}

// averageCPU returns the mean utilisation of samples in [from, to].
func (c *classifier) averageCPU(from, to float64) (float64, bool) {
	start := sort.Search(len(c.cpu), func(i int) bool { return c.cpu[i].Time >= from })
	sum := 0.0
	count := 0
	for i := start; i < len(c.cpu) && c.cpu[i].Time <= to; i++ {
		sum += c.cpu[i].Usage
		count++
	}
	if count == 0 {
		return 0, false
	}
	return sum / float64(count), true
}
