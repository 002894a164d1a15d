package periodicity

import (
	"context"
	"sort"
	"sync"

	"github.com/ogulcanaydogan/radio-burst-toolkit/pkg/burst"
	"github.com/ogulcanaydogan/radio-burst-toolkit/pkg/profile"
	"github.com/ogulcanaydogan/radio-burst-toolkit/pkg/timeline"
	"github.com/ogulcanaydogan/radio-burst-toolkit/pkg/trace"
)

// toleranceEpsilon absorbs float rounding when deltas sit exactly on the tolerance edge.
const toleranceEpsilon = 1e-6

// Params are the periodicity thresholds of a profile.
type Params struct {
	MinCycle    float64
	Tolerance   float64
	MinSamples  int
	CloseSpaced float64
}

// ParamsFromProfile extracts detector thresholds.
func ParamsFromProfile(p profile.Profile) Params {
	return Params{
		MinCycle:    p.PeriodMinCycle,
		Tolerance:   p.PeriodCycleTolerance,
		MinSamples:  p.PeriodMinSamples,
		CloseSpaced: p.CloseSpacedBurstThreshold,
	}
}

// Result carries the periodic flag of every span plus the clusters behind them.
type Result struct {
	Flags             []bool
	Clusters          []burst.Cluster
	DistinctGroups    int
	ShortestCycle     float64
	ShortestCycleSpan int
}

// Summary converts the result into the output contract form.
func (r Result) Summary() burst.Periodicity {
	clusters := r.Clusters
	if clusters == nil {
		clusters = []burst.Cluster{}
	}
	return burst.Periodicity{
		Clusters:           clusters,
		DistinctGroups:     r.DistinctGroups,
		ShortestCycle:      r.ShortestCycle,
		ShortestCycleBurst: r.ShortestCycleSpan,
	}
}

type member struct {
	span  int
	start float64
}

type delta struct {
	value    float64
	from, to int // span indices
}

// Detect groups spans by the application/host of their first uplink packet
// and flags spans whose start-to-start deltas repeat within tolerance.
// Groups are evaluated concurrently and merged in sorted key order.
func Detect(
	ctx context.Context,
	tl timeline.Timeline,
	spans []timeline.Span,
	sessions []trace.Session,
	params Params,
	workers int,
) (Result, error) {
	result := Result{Flags: make([]bool, len(spans)), ShortestCycleSpan: -1}

	groups := make(map[string][]member)
	for idx, span := range spans {
		arenaIdx, ok := timeline.FirstUplink(tl, span)
		if !ok {
			continue
		}
		entry := tl.Packets[arenaIdx]
		key := sessions[entry.Ref.Session].GroupKey()
		groups[key] = append(groups[key], member{span: idx, start: entry.Packet.Timestamp})
	}
	keys := make([]string, 0, len(groups))
	for key, members := range groups {
		if len(members) >= 2 {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	if len(keys) == 0 {
		return result, nil
	}

	if workers < 1 {
		workers = 1
	}
	slots := make([][]burst.Cluster, len(keys))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers && w < len(keys); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for slot := range jobs {
				slots[slot] = detectGroup(keys[slot], groups[keys[slot]], params)
			}
		}()
	}
	for slot := range keys {
		if ctx.Err() != nil {
			break
		}
		jobs <- slot
	}
	close(jobs)
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	for _, clusters := range slots {
		if len(clusters) > 0 {
			result.DistinctGroups++
		}
		for _, c := range clusters {
			result.Clusters = append(result.Clusters, c)
			for _, spanIdx := range c.Bursts {
				result.Flags[spanIdx] = true
			}
			if result.ShortestCycleSpan < 0 || c.Cycle < result.ShortestCycle {
				result.ShortestCycle = c.Cycle
				result.ShortestCycleSpan = c.Bursts[0]
			}
		}
	}
	return result, nil
}

func detectGroup(key string, members []member, params Params) []burst.Cluster {
	candidates := make([]delta, 0, len(members)-1)
	for idx := 1; idx < len(members); idx++ {
		d := delta{
			value: members[idx].start - members[idx-1].start,
			from:  members[idx-1].span,
			to:    members[idx].span,
		}
		if d.value < params.CloseSpaced {
			continue
		}
		candidates = append(candidates, d)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].value < candidates[j].value
	})

	clusters := make([]burst.Cluster, 0)
	for len(candidates) > 0 {
		lo, hi, mean, ok := bestWindow(candidates, params)
		if !ok {
			break
		}
		window := candidates[lo:hi]
		spans := memberSpans(window)
		if len(spans) < params.MinSamples {
			break
		}
		clusters = append(clusters, burst.Cluster{
			Group:   key,
			Cycle:   mean,
			Members: len(spans),
			Bursts:  spans,
		})

		remaining := make([]delta, 0, len(candidates)-len(window))
		remaining = append(remaining, candidates[:lo]...)
		remaining = append(remaining, candidates[hi:]...)
		candidates = remaining
	}
	return clusters
}

// bestWindow finds the run of sorted deltas, spread within tolerance and
// mean at or above the minimum cycle, that spans the most distinct bursts.
// Ties prefer more deltas, then the shorter cycle, then the earlier run.
// Only the maximal run from each lo is scored: a narrower run covers a subset
// of its bursts and has a mean no higher, so if the winner misses
// min_samples every other run does too.
func bestWindow(sorted []delta, params Params) (int, int, float64, bool) {
	bestLo, bestHi := -1, -1
	bestMean := 0.0
	bestSpans := 0
	hi := 0
	sum := 0.0
	for lo := range sorted {
		if hi < lo {
			hi = lo
			sum = 0
		}
		for hi < len(sorted) && sorted[hi].value-sorted[lo].value <= params.Tolerance+toleranceEpsilon {
			sum += sorted[hi].value
			hi++
		}
		count := hi - lo
		mean := sum / float64(count)
		if mean+toleranceEpsilon >= params.MinCycle {
			spans := len(memberSpans(sorted[lo:hi]))
			bestCount := bestHi - bestLo
			switch {
			case bestLo < 0,
				spans > bestSpans,
				spans == bestSpans && count > bestCount,
				spans == bestSpans && count == bestCount && mean < bestMean:
				bestLo, bestHi, bestMean, bestSpans = lo, hi, mean, spans
			}
		}
		sum -= sorted[lo].value
	}
	if bestLo < 0 {
		return 0, 0, 0, false
	}
	return bestLo, bestHi, bestMean, true
}

func memberSpans(window []delta) []int {
	seen := make(map[int]struct{}, len(window)*2)
	spans := make([]int, 0, len(window)*2)
	for _, d := range window {
		for _, idx := range []int{d.from, d.to} {
			if _, ok := seen[idx]; ok {
				continue
			}
			seen[idx] = struct{}{}
			spans = append(spans, idx)
		}
	}
	sort.Ints(spans)
	return spans
}
