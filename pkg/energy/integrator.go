package energy

import (
	"math"

	"github.com/ogulcanaydogan/radio-burst-toolkit/pkg/burst"
	"github.com/ogulcanaydogan/radio-burst-toolkit/pkg/rrc"
	"github.com/ogulcanaydogan/radio-burst-toolkit/pkg/timeline"
)

// CategoryEnergy is the energy attributed to one burst category.
type CategoryEnergy struct {
	Category burst.Category `json:"category"`
	Count    int            `json:"count"`
	Energy   float64        `json:"energy"`
	Active   float64        `json:"active_time"`
}

// StateEnergy is the time and energy spent under one radio state label.
type StateEnergy struct {
	Label    string    `json:"label"`
	State    rrc.State `json:"state"`
	Duration float64   `json:"duration"`
	Energy   float64   `json:"energy"`
}

// Model is the energy breakdown of one trace.
type Model struct {
	Total       float64          `json:"total"`
	ByCategory  []CategoryEnergy `json:"by_category"`
	ByState     []StateEnergy    `json:"by_state"`
	BurstEnergy []float64        `json:"burst_energy"`
	BurstActive []float64        `json:"burst_active"`
}

type window struct {
	begin float64
	end   float64
}

// Integrate sums interval energy and attributes it to bursts. Burst i owns
// [begin_i, begin_i+1); the first window opens at start and the last closes
// at end, so every joule lands on exactly one burst when any exist.
func Integrate(intervals []rrc.Interval, spans []timeline.Span, categories []burst.Category, table *rrc.Table, start, end float64) Model {
	m := Model{
		ByState:     []StateEnergy{},
		BurstEnergy: make([]float64, len(spans)),
		BurstActive: make([]float64, len(spans)),
	}

	stateIdx := make(map[string]int)
	for _, iv := range intervals {
		e := iv.Energy()
		if e < 0 || math.IsNaN(e) {
			e = 0
		}
		m.Total += e

		idx, ok := stateIdx[iv.Label]
		if !ok {
			idx = len(m.ByState)
			stateIdx[iv.Label] = idx
			m.ByState = append(m.ByState, StateEnergy{Label: iv.Label, State: iv.State})
		}
		m.ByState[idx].Duration += iv.Duration()
		m.ByState[idx].Energy += e
	}

	windows := attributionWindows(spans, start, end)
	cursor := 0
	for wi, w := range windows {
		for cursor < len(intervals) && intervals[cursor].End <= w.begin {
			cursor++
		}
		for j := cursor; j < len(intervals) && intervals[j].Begin < w.end; j++ {
			iv := intervals[j]
			overlap := math.Min(iv.End, w.end) - math.Max(iv.Begin, w.begin)
			if overlap <= 0 {
				continue
			}
			m.BurstEnergy[wi] += overlap * math.Max(iv.Power, 0)
			if active(table, iv) {
				m.BurstActive[wi] += overlap
			}
		}
	}

	m.ByCategory = byCategory(categories, m.BurstEnergy, m.BurstActive)
	return m
}

func attributionWindows(spans []timeline.Span, start, end float64) []window {
	out := make([]window, len(spans))
	for idx, s := range spans {
		w := window{begin: s.Begin, end: end}
		if idx == 0 {
			w.begin = start
		}
		if idx+1 < len(spans) {
			w.end = spans[idx+1].Begin
		}
		out[idx] = w
	}
	return out
}

func active(table *rrc.Table, iv rrc.Interval) bool {
	if table == nil {
		return iv.State == rrc.StateConnectedHigh
	}
	return table.Active(iv.Phase())
}

func byCategory(categories []burst.Category, energies, activeTimes []float64) []CategoryEnergy {
	totals := make(map[burst.Category]*CategoryEnergy)
	for idx, c := range categories {
		if idx >= len(energies) {
			break
		}
		ce, ok := totals[c]
		if !ok {
			ce = &CategoryEnergy{Category: c}
			totals[c] = ce
		}
		ce.Count++
		ce.Energy += energies[idx]
		ce.Active += activeTimes[idx]
	}

	out := make([]CategoryEnergy, 0, len(totals))
	for _, c := range burst.AllCategories() {
		if ce, ok := totals[c]; ok {
			out = append(out, *ce)
		}
	}
	return out
}
