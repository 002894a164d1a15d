package profile

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultsValidate(t *testing.T) {
	for _, tech := range AllTechnologies() {
		p, err := Default(tech)
		if err != nil {
			t.Fatalf("default %s: %v", tech, err)
		}
		if err := p.Validate(); err != nil {
			t.Fatalf("default %s should validate: %v", tech, err)
		}
	}
}

func TestDefaultUnknownTechnology(t *testing.T) {
	if _, err := Default("5G-mmWave"); !errors.Is(err, ErrUnknownTechnology) {
		t.Fatalf("expected ErrUnknownTechnology, got %v", err)
	}
}

func TestLTEPingAveragedPowers(t *testing.T) {
	p, err := Default(TechnologyLTE)
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	if len(p.Radio.Tail) != 3 {
		t.Fatalf("expected 3 LTE tail stages, got %d", len(p.Radio.Tail))
	}
	short := p.Radio.Tail[1].Power
	if math.Abs(short-1.122) > 1e-9 {
		t.Fatalf("expected DRX short power 1.122, got %f", short)
	}
	long := p.Radio.Tail[2].Power
	if math.Abs(long-1.091) > 1e-9 {
		t.Fatalf("expected DRX long power 1.091, got %f", long)
	}
	if math.Abs(p.Radio.IdlePower-0.043*0.594/1.28) > 1e-12 {
		t.Fatalf("unexpected LTE idle power %f", p.Radio.IdlePower)
	}
	if math.Abs(p.Radio.TotalTail()-10.12) > 1e-9 {
		t.Fatalf("expected total tail 10.12, got %f", p.Radio.TotalTail())
	}
}

func TestValidateCollectsProblems(t *testing.T) {
	p, _ := Default(Technology3G)
	p.BurstThreshold = 0
	p.PeriodMinSamples = 0
	p.Radio.Tail[0].Duration = -1

	err := p.Validate()
	if !errors.Is(err, ErrInvalidProfile) {
		t.Fatalf("expected ErrInvalidProfile, got %v", err)
	}

	var nilProfile *Profile
	if err := nilProfile.Validate(); !errors.Is(err, ErrInvalidProfile) {
		t.Fatalf("expected nil profile to be invalid, got %v", err)
	}
}

func TestParseTechnology(t *testing.T) {
	tech, err := ParseTechnology(" Wi-Fi ")
	if err != nil || tech != TechnologyWiFi {
		t.Fatalf("expected WiFi, got %s (%v)", tech, err)
	}
	if _, err := ParseTechnology("satellite"); !errors.Is(err, ErrUnknownTechnology) {
		t.Fatalf("expected unknown technology error, got %v", err)
	}
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lte.yaml")
	content := `
technology: lte
name: Lab handset
burst_threshold: 2.5
period_cycle_tolerance: 0
close_spaced_burst_threshold: -50
radio:
  promotion_delay: 0.4
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write profile: %v", err)
	}

	p, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if p.Technology != TechnologyLTE || p.Name != "Lab handset" {
		t.Fatalf("unexpected header: %s / %s", p.Technology, p.Name)
	}
	if p.BurstThreshold != 2.5 {
		t.Fatalf("expected burst threshold 2.5, got %f", p.BurstThreshold)
	}
	if p.PeriodCycleTolerance != 0 || p.CloseSpacedBurstThreshold != -50 {
		t.Fatalf("expected explicit zero tolerance and negative spacing, got %f / %f", p.PeriodCycleTolerance, p.CloseSpacedBurstThreshold)
	}
	if p.Radio.PromotionDelay != 0.4 || p.Radio.ActiveState != "LTE_CONTINUOUS" {
		t.Fatalf("expected radio override on top of defaults, got %+v", p.Radio)
	}
	if len(p.Radio.Tail) != 3 {
		t.Fatalf("expected default tail to survive, got %d stages", len(p.Radio.Tail))
	}
	if p.PeriodMinSamples != DefaultPeriodMinSamples {
		t.Fatalf("expected default min samples, got %d", p.PeriodMinSamples)
	}
}

func TestLoadTOMLReplacesTail(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "umts.toml")
	content := `
technology = "3g"
period_min_samples = 4

[radio]
promotion_delay = 1.5

[[radio.tail]]
name = "TAIL_DCH"
duration = 4.0
power = 0.7
active = true
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write profile: %v", err)
	}

	p, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if p.Technology != Technology3G {
		t.Fatalf("expected 3G, got %s", p.Technology)
	}
	if p.PeriodMinSamples != 4 {
		t.Fatalf("expected min samples 4, got %d", p.PeriodMinSamples)
	}
	if len(p.Radio.Tail) != 1 || p.Radio.Tail[0].Duration != 4.0 {
		t.Fatalf("expected single replaced tail stage, got %+v", p.Radio.Tail)
	}
	if p.Radio.PromotionState != "PROMO_IDLE_DCH" {
		t.Fatalf("expected default promotion state, got %s", p.Radio.PromotionState)
	}
	if err := p.Validate(); err != nil {
		t.Fatalf("loaded profile should validate: %v", err)
	}
}

func TestLoadRejectsUnknownExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.conf")
	if err := os.WriteFile(path, []byte("technology=lte"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected unsupported format error")
	}
}
