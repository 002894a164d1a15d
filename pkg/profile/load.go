package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

type header struct {
	Technology string `yaml:"technology" toml:"technology"`
}

// Load parses a YAML or TOML profile file on top of its technology defaults.
func Load(path string) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("read profile %s: %w", path, err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	var unmarshal func([]byte, any) error
	switch ext {
	case ".yaml", ".yml":
		unmarshal = yaml.Unmarshal
	case ".toml":
		unmarshal = toml.Unmarshal
	default:
		return Profile{}, fmt.Errorf("unsupported profile format %q for %s", ext, path)
	}

	var h header
	if err := unmarshal(data, &h); err != nil {
		return Profile{}, fmt.Errorf("unmarshal profile %s: %w", path, err)
	}
	tech, err := ParseTechnology(h.Technology)
	if err != nil {
		return Profile{}, fmt.Errorf("profile %s: %w", path, err)
	}

	p, err := Default(tech)
	if err != nil {
		return Profile{}, err
	}
	// Tail stages from the file replace the defaults rather than merging by index.
	defaultTail := p.Radio.Tail
	p.Radio.Tail = nil
	if err := unmarshal(data, &p); err != nil {
		return Profile{}, fmt.Errorf("unmarshal profile %s: %w", path, err)
	}
	p.Technology = tech
	if p.Radio.Tail == nil {
		p.Radio.Tail = defaultTail
	}
	normalize(&p)
	return p, nil
}

func normalize(p *Profile) {
	def, err := Default(p.Technology)
	if err != nil {
		return
	}
	if strings.TrimSpace(p.Name) == "" {
		p.Name = def.Name
	}
	if p.BurstThreshold <= 0 {
		p.BurstThreshold = def.BurstThreshold
	}
	if p.UserInputThreshold <= 0 {
		p.UserInputThreshold = def.UserInputThreshold
	}
	if p.UserEventTolerance <= 0 {
		p.UserEventTolerance = def.UserEventTolerance
	}
	if p.CPUBusyThreshold <= 0 {
		p.CPUBusyThreshold = def.CPUBusyThreshold
	}
	if p.LongBurstDuration <= 0 {
		p.LongBurstDuration = def.LongBurstDuration
	}
	if p.PeriodMinCycle <= 0 {
		p.PeriodMinCycle = def.PeriodMinCycle
	}
	if p.PeriodMinSamples <= 0 {
		p.PeriodMinSamples = def.PeriodMinSamples
	}
	if strings.TrimSpace(p.Radio.ActiveState) == "" {
		p.Radio.ActiveState = def.Radio.ActiveState
	}
	if strings.TrimSpace(p.Radio.IdleState) == "" {
		p.Radio.IdleState = def.Radio.IdleState
	}
	if strings.TrimSpace(p.Radio.PromotionState) == "" {
		p.Radio.PromotionState = def.Radio.PromotionState
	}
}
