package rrc

import (
	"errors"
	"fmt"

	"github.com/ogulcanaydogan/radio-burst-toolkit/pkg/profile"
)

var (
	// ErrNoTransition is returned for a (phase, event) pair the machine does not define.
	ErrNoTransition = errors.New("no transition")
	// ErrInvalidWindow is returned when bursts fall outside the simulated window.
	ErrInvalidWindow = errors.New("invalid simulation window")
)

// State is a radio power tier, ordered by power level.
type State int

const (
	StateIdle State = iota
	StatePromoting
	StateConnectedHigh
	StateConnectedLow
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StatePromoting:
		return "PROMOTING"
	case StateConnectedHigh:
		return "CONNECTED_HIGH"
	case StateConnectedLow:
		return "CONNECTED_LOW"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MarshalText encodes the state name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name written by MarshalText.
func (s *State) UnmarshalText(text []byte) error {
	for _, candidate := range []State{StateIdle, StatePromoting, StateConnectedHigh, StateConnectedLow} {
		if candidate.String() == string(text) {
			*s = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown radio state %q", text)
}

// Event drives the radio state machine.
type Event int

const (
	EventBurstStart Event = iota
	EventBurstEnd
	EventTimerExpired
)

func (e Event) String() string {
	switch e {
	case EventBurstStart:
		return "burst_start"
	case EventBurstEnd:
		return "burst_end"
	case EventTimerExpired:
		return "timer_expired"
	default:
		return fmt.Sprintf("Event(%d)", int(e))
	}
}

// Phase is a state plus, for ConnectedLow, the index of the tail stage.
type Phase struct {
	State State
	Stage int
}

// Transition is the outcome of one (phase, event) lookup. A zero Duration
// means the phase holds until the next burst event.
type Transition struct {
	Next     Phase
	Duration float64
}

type key struct {
	from  Phase
	event Event
}

// Table is the transition table of one technology profile.
type Table struct {
	technology profile.Technology
	radio      profile.RadioParams
	entries    map[key]Transition
}

// NewTable builds the transition table for a profile's radio parameters.
func NewTable(tech profile.Technology, radio profile.RadioParams) (*Table, error) {
	if radio.PromotionDelay < 0 {
		return nil, fmt.Errorf("%w: negative promotion delay", profile.ErrInvalidProfile)
	}
	for idx, stage := range radio.Tail {
		if stage.Duration <= 0 {
			return nil, fmt.Errorf("%w: tail stage %d has no duration", profile.ErrInvalidProfile, idx)
		}
	}

	idle := Phase{State: StateIdle}
	promoting := Phase{State: StatePromoting}
	high := Phase{State: StateConnectedHigh}

	t := &Table{technology: tech, radio: radio, entries: make(map[key]Transition)}
	if radio.PromotionDelay > 0 {
		t.entries[key{idle, EventBurstStart}] = Transition{Next: promoting, Duration: radio.PromotionDelay}
		t.entries[key{promoting, EventTimerExpired}] = Transition{Next: high}
	} else {
		t.entries[key{idle, EventBurstStart}] = Transition{Next: high}
	}
	t.entries[key{high, EventBurstStart}] = Transition{Next: high}

	t.entries[key{high, EventBurstEnd}] = t.tailFrom(0)
	for idx := range radio.Tail {
		low := Phase{State: StateConnectedLow, Stage: idx}
		t.entries[key{low, EventTimerExpired}] = t.tailFrom(idx + 1)
		t.entries[key{low, EventBurstStart}] = Transition{Next: high}
	}
	return t, nil
}

func (t *Table) tailFrom(stage int) Transition {
	if stage >= len(t.radio.Tail) {
		return Transition{Next: Phase{State: StateIdle}}
	}
	return Transition{
		Next:     Phase{State: StateConnectedLow, Stage: stage},
		Duration: t.radio.Tail[stage].Duration,
	}
}

// Next looks up the transition for an event in the given phase.
func (t *Table) Next(from Phase, ev Event) (Transition, error) {
	tr, ok := t.entries[key{from, ev}]
	if !ok {
		return Transition{}, fmt.Errorf("%w: %s/%d on %s", ErrNoTransition, from.State, from.Stage, ev)
	}
	return tr, nil
}

// Technology returns the technology the table was built for.
func (t *Table) Technology() profile.Technology {
	return t.technology
}

// Power returns the draw in watts while in a phase.
func (t *Table) Power(ph Phase) float64 {
	switch ph.State {
	case StateIdle:
		return t.radio.IdlePower
	case StatePromoting:
		return t.radio.PromotionPower
	case StateConnectedHigh:
		return t.radio.ActivePower
	case StateConnectedLow:
		return t.radio.Tail[ph.Stage].Power
	default:
		return 0
	}
}

// Label returns the technology-specific name of a phase.
func (t *Table) Label(ph Phase) string {
	switch ph.State {
	case StateIdle:
		return t.radio.IdleState
	case StatePromoting:
		return t.radio.PromotionState
	case StateConnectedHigh:
		return t.radio.ActiveState
	case StateConnectedLow:
		return t.radio.Tail[ph.Stage].Name
	default:
		return ph.State.String()
	}
}

// Active reports whether a phase counts as active radio time.
func (t *Table) Active(ph Phase) bool {
	switch ph.State {
	case StateConnectedHigh:
		return true
	case StateConnectedLow:
		return t.radio.Tail[ph.Stage].Active
	case StateIdle, StatePromoting:
		return false
	default:
		return false
	}
}
