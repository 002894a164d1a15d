package energy

import (
	"math"
	"testing"

	"github.com/ogulcanaydogan/radio-burst-toolkit/pkg/burst"
	"github.com/ogulcanaydogan/radio-burst-toolkit/pkg/profile"
	"github.com/ogulcanaydogan/radio-burst-toolkit/pkg/rrc"
	"github.com/ogulcanaydogan/radio-burst-toolkit/pkg/timeline"
)

const eps = 1e-9

func simulate(t *testing.T, tech profile.Technology, spans []timeline.Span, start, end float64) ([]rrc.Interval, *rrc.Table) {
	t.Helper()
	p, err := profile.Default(tech)
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	table, err := rrc.NewTable(tech, p.Radio)
	if err != nil {
		t.Fatalf("table: %v", err)
	}
	intervals, err := rrc.Simulate(table, spans, start, end)
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	return intervals, table
}

func TestIntegrateSingleBurst3G(t *testing.T) {
	spans := []timeline.Span{{Begin: 10, End: 11}}
	intervals, table := simulate(t, profile.Technology3G, spans, 0, 40)

	m := Integrate(intervals, spans, []burst.Category{burst.CategoryServerNetDelay}, table, 0, 40)
	// promotion 2s*0.53 + DCH 1s*0.7 + DCH tail 5s*0.7 + FACH tail 12s*0.35, idle is free
	want := 2*0.53 + 0.7 + 5*0.7 + 12*0.35
	if math.Abs(m.Total-want) > eps {
		t.Fatalf("expected total %f, got %f", want, m.Total)
	}
	if math.Abs(m.BurstEnergy[0]-want) > eps {
		t.Fatalf("expected the only burst to own all energy, got %f", m.BurstEnergy[0])
	}
	if math.Abs(m.BurstActive[0]-6) > eps {
		t.Fatalf("expected 6s active time (DCH plus active tail), got %f", m.BurstActive[0])
	}
	if len(m.ByCategory) != 1 || m.ByCategory[0].Category != burst.CategoryServerNetDelay || m.ByCategory[0].Count != 1 {
		t.Fatalf("unexpected category breakdown: %+v", m.ByCategory)
	}
	labels := []string{"STATE_IDLE", "PROMO_IDLE_DCH", "STATE_DCH", "TAIL_DCH", "TAIL_FACH"}
	if len(m.ByState) != len(labels) {
		t.Fatalf("expected %d state labels, got %+v", len(labels), m.ByState)
	}
	for idx, label := range labels {
		if m.ByState[idx].Label != label {
			t.Fatalf("state %d: expected %s, got %s", idx, label, m.ByState[idx].Label)
		}
	}
	if math.Abs(m.ByState[0].Duration-20) > eps {
		t.Fatalf("expected 20s of idle across both idle periods, got %f", m.ByState[0].Duration)
	}
}

func TestBurstEnergiesSumToTotal(t *testing.T) {
	spans := []timeline.Span{
		{Begin: 1, End: 1.5},
		{Begin: 4, End: 4.2},
		{Begin: 30, End: 36},
		{Begin: 37, End: 37},
	}
	categories := []burst.Category{
		burst.CategoryUserInput,
		burst.CategoryPeriodical,
		burst.CategoryServerNetDelay,
		burst.CategoryPeriodical,
	}
	for _, tech := range profile.AllTechnologies() {
		intervals, table := simulate(t, tech, spans, 0, 60)
		m := Integrate(intervals, spans, categories, table, 0, 60)

		sum := 0.0
		for _, e := range m.BurstEnergy {
			if e < 0 {
				t.Fatalf("%s: negative burst energy %f", tech, e)
			}
			sum += e
		}
		if math.Abs(sum-m.Total) > 1e-6 {
			t.Fatalf("%s: burst energies sum to %f, total is %f", tech, sum, m.Total)
		}

		catSum := 0.0
		for _, ce := range m.ByCategory {
			catSum += ce.Energy
		}
		if math.Abs(catSum-m.Total) > 1e-6 {
			t.Fatalf("%s: category energies sum to %f, total is %f", tech, catSum, m.Total)
		}
		if m.ByCategory[0].Category != burst.CategoryUserInput || m.ByCategory[1].Category != burst.CategoryPeriodical || m.ByCategory[1].Count != 2 {
			t.Fatalf("%s: unexpected category order %+v", tech, m.ByCategory)
		}
	}
}

func TestTotalGrowsWithTraceDuration(t *testing.T) {
	spans := []timeline.Span{{Begin: 2, End: 3}}
	prev := -1.0
	for _, end := range []float64{3, 5, 10, 30, 120} {
		intervals, table := simulate(t, profile.TechnologyLTE, spans, 0, end)
		m := Integrate(intervals, spans, []burst.Category{burst.CategoryUnknown}, table, 0, end)
		if m.Total < 0 {
			t.Fatalf("negative total %f", m.Total)
		}
		if m.Total+eps < prev {
			t.Fatalf("total decreased from %f to %f when extending trace to %f", prev, m.Total, end)
		}
		prev = m.Total
	}
}

func TestIntegrateWithoutBursts(t *testing.T) {
	intervals, table := simulate(t, profile.TechnologyWiFi, nil, 0, 50)
	m := Integrate(intervals, nil, nil, table, 0, 50)
	if math.Abs(m.Total-50*table.Power(rrc.Phase{State: rrc.StateIdle})) > eps {
		t.Fatalf("expected idle-only energy, got %f", m.Total)
	}
	if len(m.BurstEnergy) != 0 || len(m.ByCategory) != 0 {
		t.Fatalf("expected no attribution, got %+v", m)
	}

	empty := Integrate(nil, nil, nil, nil, 0, 0)
	if empty.Total != 0 {
		t.Fatalf("expected zero energy for empty input, got %f", empty.Total)
	}
}

func TestActiveTimeWithoutTableCountsHighOnly(t *testing.T) {
	intervals := []rrc.Interval{
		{State: rrc.StateConnectedHigh, Label: "A", Begin: 0, End: 2, Power: 1},
		{State: rrc.StateConnectedLow, Label: "T", Begin: 2, End: 5, Power: 0.5},
	}
	m := Integrate(intervals, []timeline.Span{{Begin: 0, End: 2}}, []burst.Category{burst.CategoryCPU}, nil, 0, 5)
	if m.BurstActive[0] != 2 {
		t.Fatalf("expected 2s active, got %f", m.BurstActive[0])
	}
	if math.Abs(m.Total-3.5) > eps {
		t.Fatalf("expected 3.5 J, got %f", m.Total)
	}
}
