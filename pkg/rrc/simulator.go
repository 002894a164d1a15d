package rrc

import (
	"fmt"
	"math"

	"github.com/ogulcanaydogan/radio-burst-toolkit/pkg/profile"
	"github.com/ogulcanaydogan/radio-burst-toolkit/pkg/timeline"
)

// Interval is one contiguous period spent in a radio phase.
type Interval struct {
	State      State              `json:"state"`
	Stage      int                `json:"stage"`
	Label      string             `json:"label"`
	Technology profile.Technology `json:"technology"`
	Begin      float64            `json:"begin"`
	End        float64            `json:"end"`
	Power      float64            `json:"power"`
}

// Duration returns End-Begin.
func (iv Interval) Duration() float64 {
	return iv.End - iv.Begin
}

// Phase returns the state and stage of the interval.
func (iv Interval) Phase() Phase {
	return Phase{State: iv.State, Stage: iv.Stage}
}

// Energy returns duration times power in joules.
func (iv Interval) Energy() float64 {
	return iv.Duration() * iv.Power
}

type simulation struct {
	table    *Table
	now      float64
	phase    Phase
	deadline float64
	out      []Interval
}

// Simulate walks time-ordered spans through the transition table and returns
// a gapless interval sequence covering [start, end]. Promotion is placed so
// that it finishes when the burst's first packet is seen.
func Simulate(table *Table, spans []timeline.Span, start, end float64) ([]Interval, error) {
	if table == nil {
		return nil, fmt.Errorf("%w: transition table is nil", profile.ErrInvalidProfile)
	}
	if math.IsNaN(start) || math.IsNaN(end) || end < start {
		return nil, fmt.Errorf("%w: [%f, %f]", ErrInvalidWindow, start, end)
	}
	for idx, s := range spans {
		if s.Begin < start || s.End > end || s.End < s.Begin {
			return nil, fmt.Errorf("%w: span %d [%f, %f] outside [%f, %f]", ErrInvalidWindow, idx, s.Begin, s.End, start, end)
		}
		if idx > 0 && s.Begin < spans[idx-1].End {
			return nil, fmt.Errorf("%w: span %d overlaps its predecessor", ErrInvalidWindow, idx)
		}
	}

	sim := &simulation{table: table, now: start, phase: Phase{State: StateIdle}}
	for _, s := range spans {
		if err := sim.decayUntil(s.Begin, true); err != nil {
			return nil, err
		}
		if sim.phase.State == StateIdle {
			if err := sim.promote(s.Begin); err != nil {
				return nil, err
			}
		}
		sim.emit(s.End)
		tr, err := table.Next(sim.phase, EventBurstEnd)
		if err != nil {
			return nil, err
		}
		sim.enter(tr)
	}
	if err := sim.decayUntil(end, false); err != nil {
		return nil, err
	}
	sim.emit(end)
	return sim.out, nil
}

// decayUntil runs tail timers up to t. When wake is set, a tail still
// running at t is cut short by a burst start.
func (s *simulation) decayUntil(t float64, wake bool) error {
	for s.phase.State == StateConnectedLow {
		if t <= s.deadline {
			if !wake {
				return nil
			}
			s.emit(t)
			tr, err := s.table.Next(s.phase, EventBurstStart)
			if err != nil {
				return err
			}
			s.enter(tr)
			return nil
		}
		s.emit(s.deadline)
		tr, err := s.table.Next(s.phase, EventTimerExpired)
		if err != nil {
			return err
		}
		s.enter(tr)
	}
	return nil
}

func (s *simulation) promote(begin float64) error {
	tr, err := s.table.Next(s.phase, EventBurstStart)
	if err != nil {
		return err
	}
	if tr.Next.State != StatePromoting {
		s.emit(begin)
		s.enter(tr)
		return nil
	}

	s.emit(math.Max(s.now, begin-tr.Duration))
	s.enter(tr)
	s.emit(begin)
	done, err := s.table.Next(s.phase, EventTimerExpired)
	if err != nil {
		return err
	}
	s.enter(done)
	return nil
}

func (s *simulation) enter(tr Transition) {
	s.phase = tr.Next
	s.deadline = s.now + tr.Duration
}

// emit closes the current phase at t. Zero-length intervals are dropped.
func (s *simulation) emit(t float64) {
	if t > s.now {
		s.out = append(s.out, Interval{
			State:      s.phase.State,
			Stage:      s.phase.Stage,
			Label:      s.table.Label(s.phase),
			Technology: s.table.Technology(),
			Begin:      s.now,
			End:        t,
			Power:      s.table.Power(s.phase),
		})
		s.now = t
	}
}
