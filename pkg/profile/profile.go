package profile

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

var (
	// ErrInvalidProfile marks a profile that cannot drive a simulation.
	ErrInvalidProfile = errors.New("invalid profile")
	// ErrUnknownTechnology marks an unsupported technology tag.
	ErrUnknownTechnology = errors.New("unknown technology")
)

// Technology is the radio access technology a profile models.
type Technology string

const (
	Technology3G   Technology = "3G"
	TechnologyLTE  Technology = "LTE"
	TechnologyWiFi Technology = "WiFi"
)

// AllTechnologies lists supported technology tags.
func AllTechnologies() []Technology {
	return []Technology{Technology3G, TechnologyLTE, TechnologyWiFi}
}

// ParseTechnology maps a user supplied tag onto a Technology.
func ParseTechnology(value string) (Technology, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "3g", "umts":
		return Technology3G, nil
	case "lte", "4g":
		return TechnologyLTE, nil
	case "wifi", "wi-fi":
		return TechnologyWiFi, nil
	default:
		return "", fmt.Errorf("%w: %q (expected 3g|lte|wifi)", ErrUnknownTechnology, value)
	}
}

// TailStage is one decay step after a burst ends.
type TailStage struct {
	Name     string  `yaml:"name" toml:"name" json:"name"`
	Duration float64 `yaml:"duration" toml:"duration" json:"duration"`
	Power    float64 `yaml:"power" toml:"power" json:"power"`
	// Active stages count toward a burst's active radio time.
	Active bool `yaml:"active" toml:"active" json:"active"`
}

// RadioParams drives the radio state machine.
type RadioParams struct {
	PromotionState string      `yaml:"promotion_state" toml:"promotion_state" json:"promotion_state"`
	PromotionDelay float64     `yaml:"promotion_delay" toml:"promotion_delay" json:"promotion_delay"`
	PromotionPower float64     `yaml:"promotion_power" toml:"promotion_power" json:"promotion_power"`
	ActiveState    string      `yaml:"active_state" toml:"active_state" json:"active_state"`
	ActivePower    float64     `yaml:"active_power" toml:"active_power" json:"active_power"`
	IdleState      string      `yaml:"idle_state" toml:"idle_state" json:"idle_state"`
	IdlePower      float64     `yaml:"idle_power" toml:"idle_power" json:"idle_power"`
	Tail           []TailStage `yaml:"tail" toml:"tail" json:"tail"`
}

// TotalTail returns the time a radio needs to decay from active to idle.
func (r RadioParams) TotalTail() float64 {
	total := 0.0
	for _, stage := range r.Tail {
		total += stage.Duration
	}
	return total
}

// Profile holds the technology parameters of one analysis run.
type Profile struct {
	Name       string     `yaml:"name" toml:"name" json:"name"`
	Technology Technology `yaml:"technology" toml:"technology" json:"technology"`

	BurstThreshold     float64 `yaml:"burst_threshold" toml:"burst_threshold" json:"burst_threshold"`
	UserInputThreshold float64 `yaml:"user_input_threshold" toml:"user_input_threshold" json:"user_input_threshold"`
	UserEventTolerance float64 `yaml:"user_event_tolerance" toml:"user_event_tolerance" json:"user_event_tolerance"`
	CPUBusyThreshold   float64 `yaml:"cpu_busy_threshold" toml:"cpu_busy_threshold" json:"cpu_busy_threshold"`
	LongBurstDuration  float64 `yaml:"long_burst_duration" toml:"long_burst_duration" json:"long_burst_duration"`

	PeriodMinCycle            float64 `yaml:"period_min_cycle" toml:"period_min_cycle" json:"period_min_cycle"`
	PeriodCycleTolerance      float64 `yaml:"period_cycle_tolerance" toml:"period_cycle_tolerance" json:"period_cycle_tolerance"`
	PeriodMinSamples          int     `yaml:"period_min_samples" toml:"period_min_samples" json:"period_min_samples"`
	CloseSpacedBurstThreshold float64 `yaml:"close_spaced_burst_threshold" toml:"close_spaced_burst_threshold" json:"close_spaced_burst_threshold"`

	Radio RadioParams `yaml:"radio" toml:"radio" json:"radio"`
}

// Validate reports every parameter that makes the profile unusable.
func (p *Profile) Validate() error {
	if p == nil {
		return fmt.Errorf("%w: profile is nil", ErrInvalidProfile)
	}

	problems := make([]string, 0)
	if _, err := ParseTechnology(string(p.Technology)); err != nil {
		problems = append(problems, fmt.Sprintf("technology %q is not supported", p.Technology))
	}
	positive := map[string]float64{
		"burst_threshold": p.BurstThreshold,
	}
	nonNegative := map[string]float64{
		"user_input_threshold":   p.UserInputThreshold,
		"user_event_tolerance":   p.UserEventTolerance,
		"cpu_busy_threshold":     p.CPUBusyThreshold,
		"long_burst_duration":    p.LongBurstDuration,
		"period_min_cycle":       p.PeriodMinCycle,
		"period_cycle_tolerance": p.PeriodCycleTolerance,
		"radio.promotion_delay":  p.Radio.PromotionDelay,
		"radio.promotion_power":  p.Radio.PromotionPower,
		"radio.active_power":     p.Radio.ActivePower,
		"radio.idle_power":       p.Radio.IdlePower,
	}
	for _, name := range sortedKeys(positive) {
		if v := positive[name]; !finite(v) || v <= 0 {
			problems = append(problems, fmt.Sprintf("%s must be > 0", name))
		}
	}
	for _, name := range sortedKeys(nonNegative) {
		if v := nonNegative[name]; !finite(v) || v < 0 {
			problems = append(problems, fmt.Sprintf("%s must be >= 0", name))
		}
	}
	if !finite(p.CloseSpacedBurstThreshold) {
		problems = append(problems, "close_spaced_burst_threshold must be finite")
	}
	if p.PeriodMinSamples < 1 {
		problems = append(problems, "period_min_samples must be >= 1")
	}
	if strings.TrimSpace(p.Radio.ActiveState) == "" || strings.TrimSpace(p.Radio.IdleState) == "" {
		problems = append(problems, "radio active_state and idle_state are required")
	}
	if p.Radio.PromotionDelay > 0 && strings.TrimSpace(p.Radio.PromotionState) == "" {
		problems = append(problems, "radio promotion_state is required when promotion_delay > 0")
	}
	for idx, stage := range p.Radio.Tail {
		if strings.TrimSpace(stage.Name) == "" {
			problems = append(problems, fmt.Sprintf("radio.tail[%d] name is required", idx))
		}
		if !finite(stage.Duration) || stage.Duration <= 0 {
			problems = append(problems, fmt.Sprintf("radio.tail[%d] duration must be > 0", idx))
		}
		if !finite(stage.Power) || stage.Power < 0 {
			problems = append(problems, fmt.Sprintf("radio.tail[%d] power must be >= 0", idx))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidProfile, strings.Join(problems, "; "))
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
